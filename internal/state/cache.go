package state

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"secpilot/internal/chat"
)

// Options 缓存行为配置 / cache behavior options
type Options struct {
	// Mode 随每轮对话发送给后端 / sent to the backend with every chat turn
	Mode string
}

// Cache 会话缓存：服务端数据的本地镜像，负责乐观更新与全量同步
// Cache mirrors server-side conversations/folders locally and owns the
// optimistic-update / full-replace reconciliation protocol
type Cache struct {
	gw    Gateway
	store Persister
	mode  string

	mu     sync.Mutex
	state  AppState
	active string
}

// New 从持久化存储加载状态并构建缓存
// New loads persisted state and builds the cache around it
func New(gw Gateway, store Persister, opts Options) *Cache {
	st := store.LoadState()
	st.Normalize()
	mode := strings.TrimSpace(opts.Mode)
	if mode == "" {
		mode = "assist"
	}
	return &Cache{gw: gw, store: store, mode: mode, state: st}
}

// persist 全量覆盖写入；本地存储失败不中断交互
// persist overwrites the whole blob; a local store failure never interrupts
// the interaction
func (c *Cache) persist() {
	_ = c.store.SaveState(c.state)
}

// --- 读取 / Read access ---

// ActiveID 当前活动会话 id，尚无会话时为空串
// ActiveID is the active conversation id, empty before the first conversation
func (c *Cache) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Active 当前活动会话，可能为 nil
// Active returns the active conversation, possibly nil
func (c *Cache) Active() *chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Conversations[c.active]
}

// Conversation 按 id 查找 / lookup by id
func (c *Cache) Conversation(id string) *chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Conversations[id]
}

// History 按显示顺序返回会话，悬空 id 跳过
// History returns conversations in display order, skipping dangling ids
func (c *Cache) History() []*chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*chat.Conversation, 0, len(c.state.Order))
	for _, id := range c.state.Order {
		if conv := c.state.Conversations[id]; conv != nil {
			out = append(out, conv)
		}
	}
	return out
}

// Folders 按创建顺序（新的在前）返回文件夹
// Folders returns folders newest-first
func (c *Cache) Folders() []*chat.Folder {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*chat.Folder, 0, len(c.state.FolderOrder))
	for _, id := range c.state.FolderOrder {
		if f := c.state.Folders[id]; f != nil {
			out = append(out, f)
		}
	}
	return out
}

// Snapshot 返回状态副本，仅用于持久化与测试断言
// Snapshot copies the state; for persistence round-trips and test assertions
func (c *Cache) Snapshot() AppState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := NewAppState()
	for id, conv := range c.state.Conversations {
		cc := *conv
		out.Conversations[id] = &cc
	}
	for id, f := range c.state.Folders {
		ff := *f
		out.Folders[id] = &ff
	}
	out.Order = append(out.Order[:0], c.state.Order...)
	out.FolderOrder = append(out.FolderOrder[:0], c.state.FolderOrder...)
	return out
}

// --- 会话操作 / Conversation operations ---

// Open 选择会话：未知 id 不做任何事；仅使用缓存数据，不访问网络
// Open selects a conversation: unknown ids are a no-op; cached data only,
// no network round trip
func (c *Cache) Open(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Conversations[id] == nil {
		return false
	}
	c.active = id
	return true
}

// NewConversation 在服务端创建会话，并立即以乐观记录安装为活动会话。
// 后台的历史刷新由调用方自行发起，其失败可以忽略。
// NewConversation creates the conversation server-side and immediately
// installs an optimistic local record as the active conversation. The
// follow-up history refresh is the caller's fire-and-forget concern.
func (c *Cache) NewConversation(ctx context.Context, folderID string) (*chat.Conversation, error) {
	created, err := c.gw.CreateConversation(ctx, chat.DefaultTitle, folderID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conv := c.state.Conversations[created.ID]
	if conv == nil {
		conv = &chat.Conversation{ID: created.ID}
		c.state.Conversations[created.ID] = conv
	}
	conv.Title = created.Title
	if strings.TrimSpace(conv.Title) == "" {
		conv.Title = chat.DefaultTitle
	}
	conv.Messages = []chat.Message{}
	conv.Final = nil
	conv.Steps = nil
	conv.UpdatedAt = created.UpdatedAt
	if conv.UpdatedAt == "" {
		conv.UpdatedAt = nowRFC3339()
	}
	conv.Time = time.Now().UnixMilli()

	c.active = created.ID
	if !containsID(c.state.Order, created.ID) {
		c.state.Order = append([]string{created.ID}, c.state.Order...)
	}
	c.persist()
	return conv, nil
}

// BeginTurn 乐观地追加用户消息并在需要时派生标题，返回这一轮所属的会话
// id。空白输入或无活动会话时返回空串，不做任何事。
// BeginTurn optimistically appends the user message, derives the title if
// still the placeholder, and returns the id of the conversation the turn
// belongs to. Blank input or no active conversation yields "" and no change.
func (c *Cache) BeginTurn(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	conv := c.state.Conversations[c.active]
	if conv == nil {
		return ""
	}

	conv.Messages = append(conv.Messages, chat.Message{Role: chat.RoleUser, Content: text})
	if conv.Title == chat.DefaultTitle || strings.TrimSpace(conv.Title) == "" {
		conv.Title = deriveTitle(text)
	}
	conv.Version++
	c.persist()
	return conv.ID
}

// CompleteTurn 记录成功一轮的助手消息、决策与轨迹，并把会话移到最前。
// 提交目标是发起这一轮的会话（result.ConversationID），而不是当前活动
// 会话：网络往返期间用户可能已经切换了线程。rendered 为该决策的终端渲染
// 缓存，可为空。
// CompleteTurn records a successful turn: assistant message, decision and
// trace, freshness bump, order front. The commit is keyed to the
// conversation the turn was begun on (result.ConversationID), not to the
// active one: the user may have switched threads during the round trip.
// rendered is the cached terminal rendering of the decision and may be
// empty.
func (c *Cache) CompleteTurn(result chat.TurnResult, rendered string) *chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := result.ConversationID
	if id == "" {
		id = c.active
	}
	conv := c.state.Conversations[id]
	if conv == nil {
		return nil
	}

	final := result.Final
	conv.Messages = append(conv.Messages, chat.Message{
		Role:     chat.RoleAssistant,
		Content:  final.Summary,
		Rendered: rendered,
	})
	conv.Final = &final
	conv.Steps = result.Steps
	conv.Time = time.Now().UnixMilli()
	conv.UpdatedAt = nowRFC3339()
	conv.Version++

	c.moveToFrontLocked(conv.ID)
	c.persist()
	return conv
}

// SendTurn 同步执行完整的一轮：必要时先建会话，乐观追加，网关调用，提交。
// 失败时乐观的用户消息保留，本轮不落任何助手状态，错误原样返回给调用方。
// SendTurn runs one full turn synchronously: ensure an active conversation,
// optimistic append, gateway call, commit. On failure the optimistic user
// message stays, nothing else is recorded, and the error surfaces as-is.
func (c *Cache) SendTurn(ctx context.Context, text string) (chat.TurnResult, bool, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return chat.TurnResult{}, false, nil
	}

	if c.ActiveID() == "" {
		if _, err := c.NewConversation(ctx, ""); err != nil {
			return chat.TurnResult{}, true, err
		}
	}
	convID := c.BeginTurn(trimmed)
	if convID == "" {
		return chat.TurnResult{}, false, nil
	}

	result, err := c.gw.SendChatTurn(ctx, convID, c.TurnMessages(trimmed), c.mode)
	if err != nil {
		return chat.TurnResult{}, true, err
	}
	if result.ConversationID == "" {
		result.ConversationID = convID
	}
	c.CompleteTurn(result, "")
	return result, true, nil
}

// Dispatch 只执行网关调用，不触碰缓存。convID 是 BeginTurn 返回的会话 id：
// 往返期间活动会话可能变化，发送与提交都必须钉在发起的那个会话上。
// Dispatch performs the gateway call only, without touching the cache.
// convID is the id BeginTurn returned: the active conversation can change
// during the round trip, and both the send and the commit must stay pinned
// to the conversation the turn was begun on.
func (c *Cache) Dispatch(ctx context.Context, convID, text string) (chat.TurnResult, error) {
	result, err := c.gw.SendChatTurn(ctx, convID, c.TurnMessages(text), c.mode)
	if err == nil && result.ConversationID == "" {
		result.ConversationID = convID
	}
	return result, err
}

// TurnMessages 一次网关调用携带的消息列表。后端按 conversation_id 维护自己
// 的上下文，历史助手消息不重发。
// TurnMessages is the message list for one gateway call. The backend keeps
// its own context per conversation_id; prior assistant turns are not resent.
func (c *Cache) TurnMessages(text string) []chat.Message {
	return []chat.Message{{Role: chat.RoleUser, Content: text}}
}

// Mode 每轮发送的后端模式 / backend mode sent with each turn
func (c *Cache) Mode() string {
	return c.mode
}

// --- 文件夹操作 / Folder operations ---

// CreateFolder 空白名称不做任何事；创建成功后全量刷新文件夹列表
// CreateFolder skips blank names; on success the folder list is fully
// reloaded from the gateway
func (c *Cache) CreateFolder(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if _, err := c.gw.CreateFolder(ctx, name); err != nil {
		return err
	}
	return c.RefreshFolders(ctx)
}

// MoveActiveToFolder 把活动会话移入唯一目标文件夹：先从所有文件夹移除
// MoveActiveToFolder moves the active conversation into exactly one folder,
// removing it from every folder first
func (c *Cache) MoveActiveToFolder(folderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == "" {
		return false
	}
	target := c.state.Folders[folderID]
	if target == nil {
		return false
	}

	for _, f := range c.state.Folders {
		kept := f.ChatIDs[:0]
		for _, id := range f.ChatIDs {
			if id != c.active {
				kept = append(kept, id)
			}
		}
		f.ChatIDs = kept
	}
	target.ChatIDs = append([]string{c.active}, target.ChatIDs...)
	c.persist()
	return true
}

// --- 同步 / Reconciliation ---

// VersionSnapshot 记录发起刷新时每个会话的本地版本
// VersionSnapshot captures each conversation's local version at refresh start
func (c *Cache) VersionSnapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := make(map[string]uint64, len(c.state.Conversations))
	for id, conv := range c.state.Conversations {
		snap[id] = conv.Version
	}
	return snap
}

// ApplyHistory 以服务端列表全量重建会话映射。自快照以来本地已推进的记录
// 保留原样（版本护栏）；其余记录的消息列表重置为空，消息正文只在本地会话
// 中存在。排序以 updated_at 降序为准，同值时保持服务端顺序。
// ApplyHistory rebuilds the conversation mapping from the authoritative
// server list. Records that advanced locally since the snapshot are kept
// as-is (version guard); all others get their message list reset, since
// bodies are only ever known locally. Ordering is descending updated_at with
// server order as the tie-break.
func (c *Cache) ApplyHistory(list []chat.Conversation, snapshot map[string]uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := make(map[string]*chat.Conversation, len(list))
	order := make([]string, 0, len(list))
	for _, in := range list {
		if in.ID == "" {
			continue
		}
		// 服务端列表重复出现同一 id 时只取首个，避免历史里渲染两次
		// A duplicated server id keeps its first row only, or history
		// would render the conversation twice
		if _, dup := fresh[in.ID]; dup {
			continue
		}
		old := c.state.Conversations[in.ID]
		if old != nil && old.Version > snapshot[in.ID] {
			fresh[in.ID] = old
		} else {
			nc := in
			nc.Messages = []chat.Message{}
			if old != nil {
				nc.Version = old.Version
				nc.Time = old.Time
			}
			fresh[in.ID] = &nc
		}
		order = append(order, in.ID)
	}

	// 乐观新建的活动会话可能尚未出现在服务端列表里，保留它避免悬空
	// An optimistic-new active conversation may not be listed yet; keep it
	// rather than dangling the active pointer
	if c.active != "" && fresh[c.active] == nil {
		if old := c.state.Conversations[c.active]; old != nil {
			fresh[c.active] = old
			order = append([]string{c.active}, order...)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return fresh[order[i]].UpdatedAt > fresh[order[j]].UpdatedAt
	})

	c.state.Conversations = fresh
	c.state.Order = order
	c.state.Normalize()
	c.persist()
}

// ApplyFolders 以服务端列表全量重建文件夹映射（新的在前）
// ApplyFolders rebuilds the folder mapping from the server list, newest first
func (c *Cache) ApplyFolders(list []chat.Folder) {
	c.mu.Lock()
	defer c.mu.Unlock()

	folders := make(map[string]*chat.Folder, len(list))
	order := make([]string, 0, len(list))
	for _, in := range list {
		if in.ID == "" {
			continue
		}
		nf := in
		if nf.ChatIDs == nil {
			nf.ChatIDs = []string{}
		}
		folders[in.ID] = &nf
		order = append([]string{in.ID}, order...)
	}

	c.state.Folders = folders
	c.state.FolderOrder = order
	c.state.Normalize()
	c.persist()
}

// RefreshHistory 同步执行一次历史刷新 / one synchronous history refresh
func (c *Cache) RefreshHistory(ctx context.Context) error {
	snap := c.VersionSnapshot()
	list, err := c.gw.FetchConversations(ctx)
	if err != nil {
		return err
	}
	c.ApplyHistory(list, snap)
	return nil
}

// RefreshFolders 同步执行一次文件夹刷新 / one synchronous folder refresh
func (c *Cache) RefreshFolders(ctx context.Context) error {
	list, err := c.gw.FetchFolders(ctx)
	if err != nil {
		return err
	}
	c.ApplyFolders(list)
	return nil
}

// --- 内部辅助 / Internal helpers ---

func (c *Cache) moveToFrontLocked(id string) {
	order := make([]string, 0, len(c.state.Order)+1)
	order = append(order, id)
	for _, existing := range c.state.Order {
		if existing != id {
			order = append(order, existing)
		}
	}
	c.state.Order = order
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func deriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) > 60 {
		return string(runes[:60])
	}
	return text
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
