package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"secpilot/internal/gateway"
	"secpilot/internal/i18n"
	"secpilot/internal/storage"

	"github.com/chzyer/readline"
)

const loginAttempts = 3

// runLogin 交互式登录：换取令牌并写入存储
// runLogin signs in interactively, exchanging credentials for a token and
// persisting it
func runLogin(gw *gateway.Client, store *storage.SQLiteStore, timeout time.Duration) error {
	rl, err := readline.New("")
	if err != nil {
		return fmt.Errorf("init prompt: %w", err)
	}
	defer rl.Close()

	for attempt := 1; attempt <= loginAttempts; attempt++ {
		rl.SetPrompt(i18n.T("login.email"))
		email, err := rl.Readline()
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		password, err := rl.ReadPassword(i18n.T("login.password"))
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		token, err := gw.Login(ctx, strings.TrimSpace(email), string(password))
		cancel()
		if err != nil {
			fmt.Println(i18n.T("login.failed", err.Error()))
			continue
		}
		if err := store.SetToken(token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
		fmt.Println(i18n.T("login.success"))
		return nil
	}
	return fmt.Errorf("login: too many failed attempts")
}
