package storage

// 键值表中的固定键。沿用网页端 localStorage 的键名，便于排查与迁移。
// Fixed keys in the kv table. The names match the web client's localStorage
// keys so debugging and migration stay straightforward.
const (
	// StateKey 全量应用状态的 JSON blob / JSON blob of the whole app state
	StateKey = "sec_copilot_state"
	// TokenKey 后端访问令牌 / backend access token
	TokenKey = "sec_token"
	// ThemeKey 持久化的主题偏好 / persisted theme preference
	ThemeKey = "sec_theme"
)
