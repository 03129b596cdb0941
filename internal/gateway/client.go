package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"secpilot/internal/chat"
)

// ErrUnauthorized 后端拒绝当前凭证 / the backend rejected the current credential
var ErrUnauthorized = errors.New("unauthorized")

// APIError 后端返回的非 2xx 响应 / a non-2xx response from the backend
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %d: %s", e.Status, e.Detail)
}

// CredentialSource 提供并维护访问令牌 / provides and maintains the access token
type CredentialSource interface {
	Token() string
	ClearToken() error
}

// staticCreds 固定令牌（测试用） / fixed token, for tests
type staticCreds struct{ token string }

func (c *staticCreds) Token() string     { return c.token }
func (c *staticCreds) ClearToken() error { c.token = ""; return nil }

// StaticCredentials 包装一个固定令牌 / StaticCredentials wraps a fixed token
func StaticCredentials(token string) CredentialSource {
	return &staticCreds{token: token}
}

// Client 会话后端的 HTTP 客户端。401 会清除本地令牌并触发回调，之后的操作
// 由调用方决定（重新登录或退出）。
// Client is the HTTP client for the conversation backend. A 401 evicts the
// stored token and fires the callback; what happens next (re-login or exit)
// is the caller's call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialSource

	// OnAuthFailure 在 401 清除令牌后调用，可为 nil
	// OnAuthFailure runs after a 401 evicted the token; may be nil
	OnAuthFailure func()
}

// New 创建客户端；baseURL 末尾的斜杠会被去掉
// New builds a client; a trailing slash on baseURL is trimmed
func New(baseURL string, creds CredentialSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		creds:      creds,
	}
}

// --- Wire types ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages       []wireMessage `json:"messages"`
	Mode           string        `json:"mode"`
	ConversationID string        `json:"conversation_id,omitempty"`
}

type chatResponse struct {
	ConversationID string               `json:"conversation_id"`
	Steps          []chat.TraceStep     `json:"steps"`
	Final          chat.FinalDecision   `json:"final"`
}

type createConversationRequest struct {
	Title    string  `json:"title"`
	FolderID *string `json:"folder_id"`
}

type createFolderRequest struct {
	Name string `json:"name"`
}

// --- Operations ---

// Login 用邮箱密码换取访问令牌。令牌由调用方负责保存。
// Login exchanges email/password for an access token. Storing the token is
// the caller's responsibility.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return "", fmt.Errorf("login: empty access token")
	}
	return resp.AccessToken, nil
}

// FetchFolders 拉取全部文件夹 / fetch all folders
func (c *Client) FetchFolders(ctx context.Context) ([]chat.Folder, error) {
	var out []chat.Folder
	if err := c.do(ctx, http.MethodGet, "/data/folders", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchConversations 拉取全部会话元数据 / fetch all conversation metadata
func (c *Client) FetchConversations(ctx context.Context) ([]chat.Conversation, error) {
	var out []chat.Conversation
	if err := c.do(ctx, http.MethodGet, "/data/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateFolder 新建文件夹 / create a folder
func (c *Client) CreateFolder(ctx context.Context, name string) (chat.Folder, error) {
	var out chat.Folder
	if err := c.do(ctx, http.MethodPost, "/data/folders", createFolderRequest{Name: name}, &out); err != nil {
		return chat.Folder{}, err
	}
	return out, nil
}

// CreateConversation 新建会话；folderID 为空时 folder_id 发送 null
// CreateConversation creates a conversation; an empty folderID is sent as a
// null folder_id
func (c *Client) CreateConversation(ctx context.Context, title, folderID string) (chat.Conversation, error) {
	req := createConversationRequest{Title: title}
	if strings.TrimSpace(folderID) != "" {
		req.FolderID = &folderID
	}
	var out chat.Conversation
	if err := c.do(ctx, http.MethodPost, "/data/conversations", req, &out); err != nil {
		return chat.Conversation{}, err
	}
	return out, nil
}

// SendChatTurn 发送一轮对话。消息只带 role 和 content，本地渲染缓存等字段
// 不出网。
// SendChatTurn sends one chat turn. Messages carry role and content only;
// local fields like the render cache never go over the wire.
func (c *Client) SendChatTurn(ctx context.Context, conversationID string, messages []chat.Message, mode string) (chat.TurnResult, error) {
	req := chatRequest{
		Messages:       make([]wireMessage, 0, len(messages)),
		Mode:           mode,
		ConversationID: conversationID,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	var resp chatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &resp); err != nil {
		return chat.TurnResult{}, err
	}
	return chat.TurnResult{
		ConversationID: resp.ConversationID,
		Final:          resp.Final,
		Steps:          resp.Steps,
	}, nil
}

// --- Transport ---

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		_ = c.creds.ClearToken()
		if c.OnAuthFailure != nil {
			c.OnAuthFailure()
		}
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Detail: readDetail(resp)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readDetail 提取错误正文：优先 JSON 的 detail 字段，其次原始正文，最后是
// 状态码文本
// readDetail extracts the error body: the JSON detail field first, then the
// raw body, then the status text
func readDetail(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err == nil && len(data) > 0 {
		var payload struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &payload) == nil && strings.TrimSpace(payload.Detail) != "" {
			return payload.Detail
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			return text
		}
	}
	return http.StatusText(resp.StatusCode)
}
