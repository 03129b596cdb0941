package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type ServerConfig struct {
	BaseURL   string `json:"base_url"`
	Token     string `json:"token"`
	Mode      string `json:"mode"`
	TimeoutMS int    `json:"timeout_ms"`
}

type UIConfig struct {
	// Theme 默认主题，运行期切换后以持久化存储为准
	// Theme is the default theme; a runtime toggle persists to the store and wins
	Theme string `json:"theme"`
	// TypewriterMS 打字机动画的 tick 间隔 / reveal animation tick interval
	TypewriterMS int    `json:"typewriter_ms"`
	Locale       string `json:"locale"`
}

type StorageConfig struct {
	BaseDir string `json:"base_dir"`
	// LegacyStatePath 旧版 JSON 状态文件，首次启动时迁入 SQLite
	// LegacyStatePath is the legacy JSON state file imported into SQLite on first run
	LegacyStatePath string `json:"legacy_state_path"`
}

type Config struct {
	Server  ServerConfig  `json:"server"`
	UI      UIConfig      `json:"ui"`
	Storage StorageConfig `json:"storage"`
}

type fileUIConfig struct {
	Theme        *string `json:"theme"`
	TypewriterMS *int    `json:"typewriter_ms"`
	Locale       *string `json:"locale"`
}

type fileConfig struct {
	Server  *ServerConfig  `json:"server"`
	UI      *fileUIConfig  `json:"ui"`
	Storage *StorageConfig `json:"storage"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:   "http://localhost:8000",
			Mode:      "assist",
			TimeoutMS: 60000,
		},
		UI: UIConfig{
			Theme:        "dark",
			TypewriterMS: 30,
		},
		Storage: StorageConfig{
			BaseDir:         "~/.secpilot",
			LegacyStatePath: "~/.secpilot/state.json",
		},
	}
}

// Load 按 全局文件 -> 项目文件/显式路径 -> 环境变量 的顺序合并配置
// Load merges configuration: global file, then project file or explicit path,
// then environment overrides
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("SECPILOT_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".secpilot", "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"secpilot.config.json",
		".secpilot/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned := stripJSONComments(data)
	var fileCfg fileConfig
	if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Server != nil {
		cfg.Server = mergeServer(cfg.Server, *fc.Server)
	}
	if fc.UI != nil {
		if fc.UI.Theme != nil {
			cfg.UI.Theme = *fc.UI.Theme
		}
		if fc.UI.TypewriterMS != nil {
			cfg.UI.TypewriterMS = *fc.UI.TypewriterMS
		}
		if fc.UI.Locale != nil {
			cfg.UI.Locale = *fc.UI.Locale
		}
	}
	if fc.Storage != nil {
		cfg.Storage = mergeStorage(cfg.Storage, *fc.Storage)
	}
}

func mergeServer(base ServerConfig, override ServerConfig) ServerConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Token) != "" {
		base.Token = override.Token
	}
	if strings.TrimSpace(override.Mode) != "" {
		base.Mode = override.Mode
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	return base
}

func mergeStorage(base StorageConfig, override StorageConfig) StorageConfig {
	if strings.TrimSpace(override.BaseDir) != "" {
		base.BaseDir = override.BaseDir
	}
	if strings.TrimSpace(override.LegacyStatePath) != "" {
		base.LegacyStatePath = override.LegacyStatePath
	}
	return base
}

func normalize(cfg *Config) error {
	cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/")
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = Default().Server.BaseURL
	}
	if strings.TrimSpace(cfg.Server.Mode) == "" {
		cfg.Server.Mode = Default().Server.Mode
	}
	if cfg.Server.TimeoutMS <= 0 {
		cfg.Server.TimeoutMS = Default().Server.TimeoutMS
	}

	switch strings.ToLower(strings.TrimSpace(cfg.UI.Theme)) {
	case "light":
		cfg.UI.Theme = "light"
	case "dark", "":
		cfg.UI.Theme = "dark"
	default:
		return fmt.Errorf("invalid ui.theme %q (want \"light\" or \"dark\")", cfg.UI.Theme)
	}
	if cfg.UI.TypewriterMS <= 0 {
		cfg.UI.TypewriterMS = Default().UI.TypewriterMS
	}

	baseDir, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return fmt.Errorf("expand storage.base_dir: %w", err)
	}
	if baseDir == "" {
		baseDir, err = expandPath(Default().Storage.BaseDir)
		if err != nil {
			return fmt.Errorf("expand default storage dir: %w", err)
		}
	}
	cfg.Storage.BaseDir = baseDir

	legacy, err := expandPath(cfg.Storage.LegacyStatePath)
	if err != nil {
		return fmt.Errorf("expand storage.legacy_state_path: %w", err)
	}
	cfg.Storage.LegacyStatePath = legacy

	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("SECPILOT_SERVER")); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SECPILOT_TOKEN")); v != "" {
		cfg.Server.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("SECPILOT_MODE")); v != "" {
		cfg.Server.Mode = v
	}
	if v := strings.TrimSpace(os.Getenv("SECPILOT_TIMEOUT_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid SECPILOT_TIMEOUT_MS: %q", v)
		}
		cfg.Server.TimeoutMS = n
	}
	if v := strings.TrimSpace(os.Getenv("SECPILOT_THEME")); v != "" {
		cfg.UI.Theme = v
	}
	if v := strings.TrimSpace(os.Getenv("SECPILOT_STORAGE_DIR")); v != "" {
		cfg.Storage.BaseDir = v
	}

	return cfg, normalize(&cfg)
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

// stripJSONComments 去除 // 与 /* */ 注释，字符串字面量内的内容保持不变
// stripJSONComments removes // and /* */ comments while leaving string
// literals untouched
func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case c == '"':
				state = stateString
				out.WriteByte(c)
			case c == '/' && next == '/':
				state = stateLineComment
				i++
			case c == '/' && next == '*':
				state = stateBlockComment
				i++
			default:
				out.WriteByte(c)
			}
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}
	return out.Bytes()
}
