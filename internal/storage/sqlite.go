package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"secpilot/internal/state"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的持久化实现。所有数据都放在一张键值
// 表里：应用状态作为单个 JSON blob 全量覆盖写入，令牌与主题各占一个键。
// SQLiteStore implements persistence using SQLite with WAL mode. Everything
// lives in a single kv table: the app state is one JSON blob written with a
// full overwrite, and the token and theme each take a key of their own.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- App State ---

// LoadState 读取持久化状态。缺失或损坏的 blob 视为全新开始，绝不让启动失败。
// LoadState reads the persisted state. A missing or corrupt blob means a
// fresh start; this never fails the boot.
func (s *SQLiteStore) LoadState() state.AppState {
	raw, ok := s.get(StateKey)
	if !ok {
		return state.NewAppState()
	}
	var st state.AppState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return state.NewAppState()
	}
	st.Normalize()
	return st
}

// SaveState 整体覆盖写入应用状态 / SaveState overwrites the whole app state
func (s *SQLiteStore) SaveState(st state.AppState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.set(StateKey, string(data))
}

// --- Token ---

// Token 返回保存的访问令牌，没有则为空串
// Token returns the stored access token, empty when absent
func (s *SQLiteStore) Token() string {
	raw, _ := s.get(TokenKey)
	return raw
}

// SetToken 保存访问令牌 / SetToken stores the access token
func (s *SQLiteStore) SetToken(token string) error {
	return s.set(TokenKey, token)
}

// ClearToken 删除访问令牌（凭证失效时调用）
// ClearToken removes the access token, called on credential eviction
func (s *SQLiteStore) ClearToken() error {
	_, err := s.db.Exec("DELETE FROM kv WHERE key=?", TokenKey)
	if err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// --- Theme ---

// Theme 返回保存的主题偏好，没有则为空串
// Theme returns the stored theme preference, empty when absent
func (s *SQLiteStore) Theme() string {
	raw, _ := s.get(ThemeKey)
	return raw
}

// SetTheme 保存主题偏好 / SetTheme stores the theme preference
func (s *SQLiteStore) SetTheme(theme string) error {
	return s.set(ThemeKey, theme)
}

// --- Helpers ---

func (s *SQLiteStore) get(key string) (string, bool) {
	row := s.db.QueryRow("SELECT value FROM kv WHERE key=?", key)
	var value string
	if err := row.Scan(&value); err != nil {
		return "", false
	}
	return value, true
}

func (s *SQLiteStore) set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, nowUTC())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
