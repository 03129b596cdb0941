package state

import (
	"context"

	"secpilot/internal/chat"
)

// AppState 客户端缓存的全部可持久化状态，形状与持久化 blob 一致
// AppState is the full persistable client cache, shaped like the stored blob
type AppState struct {
	Conversations map[string]*chat.Conversation `json:"conversations"`
	Order         []string                      `json:"order"`
	Folders       map[string]*chat.Folder       `json:"folders"`
	FolderOrder   []string                      `json:"folderOrder"`
}

// NewAppState 返回空但有效的初始状态
// NewAppState returns an empty but valid initial state
func NewAppState() AppState {
	return AppState{
		Conversations: map[string]*chat.Conversation{},
		Order:         []string{},
		Folders:       map[string]*chat.Folder{},
		FolderOrder:   []string{},
	}
}

// Normalize 修复从任意来源加载的状态：补齐 nil 容器，去除文件夹间的重复归属
// Normalize repairs state loaded from any source: fills nil containers and
// drops duplicate conversation membership across folders
func (s *AppState) Normalize() {
	if s.Conversations == nil {
		s.Conversations = map[string]*chat.Conversation{}
	}
	if s.Order == nil {
		s.Order = []string{}
	}
	if s.Folders == nil {
		s.Folders = map[string]*chat.Folder{}
	}
	if s.FolderOrder == nil {
		s.FolderOrder = []string{}
	}
	for _, c := range s.Conversations {
		if c != nil && c.Messages == nil {
			c.Messages = []chat.Message{}
		}
	}

	// 一个会话最多属于一个文件夹，folderOrder 靠前者优先
	// A conversation belongs to at most one folder; earlier folderOrder wins
	seen := map[string]struct{}{}
	for _, fid := range s.FolderOrder {
		f := s.Folders[fid]
		if f == nil {
			continue
		}
		kept := f.ChatIDs[:0]
		for _, cid := range f.ChatIDs {
			if _, dup := seen[cid]; dup {
				continue
			}
			seen[cid] = struct{}{}
			kept = append(kept, cid)
		}
		f.ChatIDs = kept
	}
}

// Persister 持久化适配器，加载永不失败（损坏数据返回空默认值）
// Persister is the persistent store adapter; loading never fails (corrupt
// data yields the empty default)
type Persister interface {
	LoadState() AppState
	SaveState(AppState) error
}

// Gateway 远端数据网关 / remote data gateway
type Gateway interface {
	FetchFolders(ctx context.Context) ([]chat.Folder, error)
	FetchConversations(ctx context.Context) ([]chat.Conversation, error)
	CreateFolder(ctx context.Context, name string) (chat.Folder, error)
	CreateConversation(ctx context.Context, title, folderID string) (chat.Conversation, error)
	SendChatTurn(ctx context.Context, conversationID string, messages []chat.Message, mode string) (chat.TurnResult, error)
}
