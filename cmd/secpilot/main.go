package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"secpilot/internal/config"
	"secpilot/internal/gateway"
	"secpilot/internal/i18n"
	"secpilot/internal/render"
	"secpilot/internal/state"
	"secpilot/internal/storage"
	"secpilot/internal/tui"

	"github.com/joho/godotenv"
)

const version = "0.3.0"

func main() {
	var (
		configPath string
		forceLogin bool
		showVer    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config JSON/JSONC")
	flag.BoolVar(&forceLogin, "login", false, "Discard the stored token and sign in again")
	flag.BoolVar(&showVer, "version", false, "Print version and exit")
	flag.Parse()

	if showVer {
		fmt.Println("secpilot " + version)
		return
	}

	// .env 仅用于本地开发 / .env is a local-development convenience
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	i18n.Init(cfg.UI.Locale)

	store, err := storage.NewSQLiteStore(filepath.Join(cfg.Storage.BaseDir, "secpilot.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init storage failed: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := storage.MigrateLegacyState(store, cfg.Storage.LegacyStatePath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: %v\n", err)
	}

	// 配置里的令牌覆盖存储的 / a configured token overrides the stored one
	if strings.TrimSpace(cfg.Server.Token) != "" {
		if err := store.SetToken(cfg.Server.Token); err != nil {
			fmt.Fprintf(os.Stderr, "store token failed: %v\n", err)
			os.Exit(1)
		}
	}
	if forceLogin {
		_ = store.ClearToken()
	}

	timeout := time.Duration(cfg.Server.TimeoutMS) * time.Millisecond
	gw := gateway.New(cfg.Server.BaseURL, store, timeout)

	if store.Token() == "" {
		if err := runLogin(gw, store, timeout); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	cache := state.New(gw, store, state.Options{Mode: cfg.Server.Mode})

	if err := bootReconcile(cache, gw, store, timeout); err != nil {
		// 离线也能用本地缓存浏览 / cached data stays browsable offline
		fmt.Fprintf(os.Stderr, "warn: backend unreachable, showing cached data: %v\n", err)
	}

	if hist := cache.History(); len(hist) > 0 {
		cache.Open(hist[0].ID)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if _, err := cache.NewConversation(ctx, ""); err != nil {
			fmt.Fprintf(os.Stderr, "warn: create conversation failed: %v\n", err)
		}
		cancel()
	}

	// 会话中凭证失效会退回登录界面，成功后重开交互循环
	// A mid-session credential failure drops back to the login prompt and
	// reopens the interaction loop after a successful sign-in
	for {
		theme := render.ThemeByName(firstNonEmpty(store.Theme(), cfg.UI.Theme))

		exit, err := tui.Run(cache, store, tui.Options{
			Theme:          theme,
			Timeout:        timeout,
			RevealInterval: time.Duration(cfg.UI.TypewriterMS) * time.Millisecond,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "tui failed: %v\n", err)
			os.Exit(1)
		}
		switch exit {
		case tui.ExitAuthExpired:
			fmt.Fprintln(os.Stderr, i18n.T("error.unauthorized"))
			if err := runLogin(gw, store, timeout); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}
			if err := refreshAll(cache, timeout); err != nil {
				fmt.Fprintf(os.Stderr, "warn: refresh failed: %v\n", err)
			}
		case tui.ExitLoggedOut:
			fmt.Println("Signed out.")
			return
		default:
			return
		}
	}
}

// bootReconcile 启动时全量同步一次；凭证失效则重新登录并重试一次
// bootReconcile runs one full sync at startup; on a credential failure it
// re-logs in and retries once
func bootReconcile(cache *state.Cache, gw *gateway.Client, store *storage.SQLiteStore, timeout time.Duration) error {
	err := refreshAll(cache, timeout)
	if !errors.Is(err, gateway.ErrUnauthorized) {
		return err
	}
	if err := runLogin(gw, store, timeout); err != nil {
		return err
	}
	return refreshAll(cache, timeout)
}

func refreshAll(cache *state.Cache, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := cache.RefreshFolders(ctx); err != nil {
		return err
	}
	return cache.RefreshHistory(ctx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
