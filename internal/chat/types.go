package chat

// 消息角色 / Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DefaultTitle 新会话的占位标题，首条用户消息会覆盖它
// DefaultTitle is the placeholder title of a fresh conversation; the first
// user prompt replaces it
const DefaultTitle = "New conversation"

// Message 单条聊天消息，同时保留原始文本与终端渲染缓存
// Message is one chat message, keeping both the raw text and the cached
// terminal rendering
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Rendered string `json:"rendered,omitempty"`
}

// ToolCall 后端推理过程中的一次工具调用描述
// ToolCall describes one tool invocation made by the backend agents
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// TraceStep 后端多智能体推理轨迹中的一步
// TraceStep is one unit of the backend's multi-agent reasoning trace
type TraceStep struct {
	StepID     string         `json:"step_id,omitempty"`
	Agent      string         `json:"agent"`
	Rationale  string         `json:"rationale"`
	Confidence float64        `json:"confidence"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	PolicyHits []string       `json:"policy_hits,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
}

// FinalDecision 后端为一轮对话给出的结构化处置建议
// FinalDecision is the structured recommendation returned for a chat turn
type FinalDecision struct {
	Summary         string   `json:"summary"`
	RiskScore       float64  `json:"risk_score"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// TurnResult 一次 /api/chat 调用的完整结果
// TurnResult is the full result of one /api/chat call
type TurnResult struct {
	ConversationID string        `json:"conversation_id"`
	Final          FinalDecision `json:"final"`
	Steps          []TraceStep   `json:"steps"`
}

// Conversation 一条调查会话及其本地已知的消息与最近决策
// Conversation is one investigation thread with its locally-known messages
// and the latest decision/trace
type Conversation struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Messages []Message      `json:"messages"`
	Final    *FinalDecision `json:"final,omitempty"`
	Steps    []TraceStep    `json:"steps,omitempty"`

	// UpdatedAt 服务端时间戳（RFC3339 UTC，可按字典序比较）
	// UpdatedAt is the server timestamp (RFC3339 UTC, lexicographically ordered)
	UpdatedAt string `json:"updated_at"`
	// Time 本地缓存新鲜度标记（Unix 毫秒）/ local cache freshness marker (unix ms)
	Time int64 `json:"time,omitempty"`
	// Version 本地单调版本号，协调“乐观更新 vs. 全量同步”竞态
	// Version is the local monotonic counter guarding optimistic updates
	// against stale full-replace reconciliations
	Version uint64 `json:"version,omitempty"`
}

// Folder 用户自定义的会话分组
// Folder is a user-defined grouping of conversations
type Folder struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	ChatIDs []string `json:"chatIds"`
}
