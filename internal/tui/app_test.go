package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"secpilot/internal/chat"
	"secpilot/internal/gateway"
	"secpilot/internal/render"
	"secpilot/internal/state"
)

// stubGateway 离线网关桩 / offline gateway stub
type stubGateway struct {
	turn        chat.TurnResult
	createCalls int
	chatCalls   int
}

func (g *stubGateway) FetchFolders(ctx context.Context) ([]chat.Folder, error) {
	return nil, nil
}

func (g *stubGateway) FetchConversations(ctx context.Context) ([]chat.Conversation, error) {
	return nil, nil
}

func (g *stubGateway) CreateFolder(ctx context.Context, name string) (chat.Folder, error) {
	return chat.Folder{ID: "f1", Name: name, ChatIDs: []string{}}, nil
}

func (g *stubGateway) CreateConversation(ctx context.Context, title, folderID string) (chat.Conversation, error) {
	g.createCalls++
	return chat.Conversation{ID: fmt.Sprintf("c%d", g.createCalls), Title: title}, nil
}

func (g *stubGateway) SendChatTurn(ctx context.Context, conversationID string, messages []chat.Message, mode string) (chat.TurnResult, error) {
	g.chatCalls++
	res := g.turn
	res.ConversationID = conversationID
	return res, nil
}

// stubStore 内存持久化与偏好桩 / in-memory persister and preferences stub
type stubStore struct {
	state state.AppState
	theme string
	token string
}

func (s *stubStore) LoadState() state.AppState {
	if s.state.Conversations == nil {
		return state.NewAppState()
	}
	return s.state
}

func (s *stubStore) SaveState(st state.AppState) error { s.state = st; return nil }
func (s *stubStore) SetTheme(theme string) error       { s.theme = theme; return nil }
func (s *stubStore) ClearToken() error                 { s.token = ""; return nil }

func newTestApp(t *testing.T, gw *stubGateway) (App, *stubStore) {
	t.Helper()
	store := &stubStore{token: "tok"}
	cache := state.New(gw, store, state.Options{Mode: "assist"})
	app := NewApp(cache, store, Options{Theme: render.DarkTheme(), Timeout: time.Second})
	model, _ := app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return model.(App), store
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+n":
		return tea.KeyMsg{Type: tea.KeyCtrlN}
	case "ctrl+t":
		return tea.KeyMsg{Type: tea.KeyCtrlT}
	case "ctrl+d":
		return tea.KeyMsg{Type: tea.KeyCtrlD}
	case "ctrl+o":
		return tea.KeyMsg{Type: tea.KeyCtrlO}
	case "ctrl+q":
		return tea.KeyMsg{Type: tea.KeyCtrlQ}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestSubmitBlankIsNoOp(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)

	model, cmd := app.Update(keyMsg("enter"))
	app = model.(App)
	if app.sending || cmd != nil {
		t.Fatal("blank submit must be a complete no-op")
	}
	if gw.createCalls != 0 || gw.chatCalls != 0 {
		t.Fatal("blank submit hit the network")
	}
}

func TestSubmitWhileSendingIsIgnored(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)
	app.sending = true
	app.input.SetValue("second prompt")

	model, cmd := app.Update(keyMsg("enter"))
	app = model.(App)
	if cmd != nil {
		t.Fatal("submit while sending must not dispatch")
	}
	if app.input.Value() != "second prompt" {
		t.Fatal("draft must survive an ignored submit")
	}
}

func TestSubmitAppendsOptimisticUserMessage(t *testing.T) {
	gw := &stubGateway{turn: chat.TurnResult{Final: chat.FinalDecision{Summary: "Block it"}}}
	app, _ := newTestApp(t, gw)

	if _, err := app.cache.NewConversation(context.Background(), ""); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	app.input.SetValue("check this sender")

	model, cmd := app.Update(keyMsg("enter"))
	app = model.(App)
	if !app.sending || cmd == nil {
		t.Fatal("submit must enter sending state and dispatch")
	}
	conv := app.cache.Active()
	if len(conv.Messages) != 1 || conv.Messages[0].Role != chat.RoleUser {
		t.Fatalf("optimistic append missing: %+v", conv.Messages)
	}
	if app.input.Value() != "" {
		t.Fatal("input not cleared on submit")
	}
}

func TestTurnDoneCommitsAndStartsReveal(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)

	if _, err := app.cache.NewConversation(context.Background(), ""); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	app.cache.BeginTurn("check this sender")
	app.sending = true

	result := chat.TurnResult{
		Final: chat.FinalDecision{Summary: "Block the sender domain", RiskScore: 0.82},
		Steps: []chat.TraceStep{{Agent: "triage"}},
	}
	model, cmd := app.Update(turnDoneMsg{result: result})
	app = model.(App)

	if app.sending {
		t.Fatal("sending must clear on completion")
	}
	conv := app.cache.Active()
	if len(conv.Messages) != 2 || conv.Messages[1].Role != chat.RoleAssistant {
		t.Fatalf("assistant message missing: %+v", conv.Messages)
	}
	if !app.anim.active() || app.anim.convID != conv.ID {
		t.Fatal("typewriter reveal not started")
	}
	if cmd == nil {
		t.Fatal("completion must schedule the reveal tick and refresh")
	}
}

func TestTurnDoneAfterSwitchCommitsToOrigin(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)
	ctx := context.Background()

	if _, err := app.cache.NewConversation(ctx, ""); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	origin := app.cache.BeginTurn("triage this alert")
	app.sending = true

	// 回包到达前切到另一个会话 / switch threads before the reply lands
	if _, err := app.cache.NewConversation(ctx, ""); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	other := app.cache.ActiveID()

	result := chat.TurnResult{
		ConversationID: origin,
		Final:          chat.FinalDecision{Summary: "Block the sender domain"},
	}
	model, _ := app.Update(turnDoneMsg{result: result})
	app = model.(App)

	if got := len(app.cache.Conversation(origin).Messages); got != 2 {
		t.Fatalf("origin messages = %d, want 2 (user+assistant)", got)
	}
	if got := len(app.cache.Conversation(other).Messages); got != 0 {
		t.Fatalf("reply misrouted: open conversation has %d messages, want 0", got)
	}
	if app.anim.active() {
		t.Fatal("reveal must not play over a different open conversation")
	}
}

func TestTurnDoneFailureShowsNoticeAndKeepsDraftState(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)

	if _, err := app.cache.NewConversation(context.Background(), ""); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	app.cache.BeginTurn("hello")
	app.sending = true

	model, _ := app.Update(turnDoneMsg{err: fmt.Errorf("boom")})
	app = model.(App)

	if app.sending {
		t.Fatal("sending must clear on failure")
	}
	if app.failure == "" {
		t.Fatal("failure notice missing")
	}
	conv := app.cache.Active()
	if len(conv.Messages) != 1 || conv.Final != nil {
		t.Fatalf("failed turn must leave only the user message: %+v", conv)
	}
}

func TestStaleRevealTickIsDropped(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)
	app.anim.start("c1", "some answer text")
	stale := app.anim.seq - 1

	model, cmd := app.Update(revealTickMsg{seq: stale})
	app = model.(App)
	if cmd != nil || app.anim.pos != 0 {
		t.Fatal("stale frame must be dropped without side effects")
	}

	model, cmd = app.Update(revealTickMsg{seq: app.anim.seq})
	app = model.(App)
	if app.anim.pos == 0 {
		t.Fatal("matching frame must advance the reveal")
	}
	if cmd == nil && app.anim.active() {
		t.Fatal("active reveal must schedule the next frame")
	}
}

func TestOpenConversationCancelsReveal(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)
	ctx := context.Background()

	if _, err := app.cache.NewConversation(ctx, ""); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	first := app.cache.ActiveID()
	if _, err := app.cache.NewConversation(ctx, ""); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	app.anim.start(app.cache.ActiveID(), "long answer being typed")

	model, _ := app.Update(keyMsg("tab"))
	app = model.(App)
	app.selIdx = 1 // 列表第二行是更早的会话 / second row is the older conversation
	model, _ = app.Update(keyMsg("enter"))
	app = model.(App)

	if app.cache.ActiveID() != first {
		t.Fatalf("active = %q, want %q", app.cache.ActiveID(), first)
	}
	if app.anim.active() {
		t.Fatal("switching conversations must cancel the reveal")
	}
}

func TestThemeTogglePersists(t *testing.T) {
	gw := &stubGateway{}
	app, store := newTestApp(t, gw)

	model, _ := app.Update(keyMsg("ctrl+d"))
	app = model.(App)
	if app.theme.Name != "light" || store.theme != "light" {
		t.Fatalf("theme = %q persisted %q, want light", app.theme.Name, store.theme)
	}

	model, _ = app.Update(keyMsg("ctrl+d"))
	app = model.(App)
	if app.theme.Name != "dark" || store.theme != "dark" {
		t.Fatalf("theme = %q persisted %q, want dark", app.theme.Name, store.theme)
	}
}

func TestTraceToggle(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)

	model, _ := app.Update(keyMsg("ctrl+t"))
	app = model.(App)
	if !app.showTrace {
		t.Fatal("ctrl+t must open the trace panel")
	}
	model, _ = app.Update(keyMsg("ctrl+t"))
	app = model.(App)
	if app.showTrace {
		t.Fatal("ctrl+t must toggle back")
	}
}

func TestMoveModeDigitMovesActiveConversation(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)
	ctx := context.Background()

	if _, err := app.cache.NewConversation(ctx, ""); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	id := app.cache.ActiveID()
	app.cache.ApplyFolders([]chat.Folder{
		{ID: "fb", Name: "Later"},
		{ID: "fa", Name: "Phishing"},
	})

	model, _ := app.Update(keyMsg("ctrl+o"))
	app = model.(App)
	if !app.moveMode {
		t.Fatal("ctrl+o must enter move mode")
	}

	model, _ = app.Update(keyMsg("1"))
	app = model.(App)
	if app.moveMode {
		t.Fatal("digit must leave move mode")
	}

	first := app.cache.Folders()[0]
	found := false
	for _, cid := range first.ChatIDs {
		if cid == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("conversation not in folder %q: %+v", first.Name, first.ChatIDs)
	}
}

func TestLogoutClearsTokenAndQuits(t *testing.T) {
	gw := &stubGateway{}
	app, store := newTestApp(t, gw)

	model, cmd := app.Update(keyMsg("ctrl+q"))
	app = model.(App)
	if store.token != "" {
		t.Fatal("logout must clear the token")
	}
	if app.ExitReason() != ExitLoggedOut || cmd == nil {
		t.Fatal("logout must quit with the flag set")
	}
}

func TestAuthExpiryQuitsToLoginBoundary(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)

	if _, err := app.cache.NewConversation(context.Background(), ""); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	app.cache.BeginTurn("hello")
	app.sending = true

	model, cmd := app.Update(turnDoneMsg{err: fmt.Errorf("send chat: %w", gateway.ErrUnauthorized)})
	app = model.(App)

	if app.ExitReason() != ExitAuthExpired {
		t.Fatalf("exit reason = %v, want ExitAuthExpired", app.ExitReason())
	}
	if cmd == nil {
		t.Fatal("credential failure must quit the loop")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("credential failure must issue a quit")
	}

	// 后台刷新遇到 401 同样退出 / a 401 on a quiet refresh also exits
	app2, _ := newTestApp(t, gw)
	model, cmd = app2.Update(historyMsg{err: gateway.ErrUnauthorized})
	app2 = model.(App)
	if app2.ExitReason() != ExitAuthExpired || cmd == nil {
		t.Fatal("background refresh 401 must also quit to login")
	}
}

func TestSearchDebounceAppliesLatestQuery(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)
	ctx := context.Background()
	if _, err := app.cache.NewConversation(ctx, ""); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	app.cache.BeginTurn("phishing wave against finance")

	app.promptMode = promptSearch
	app.prompt.Focus()
	app.prompt.SetValue("phish")
	app.searchSeq = 5

	// 过期的静默期信号被丢弃 / an outdated quiet-period signal is dropped
	model, _ := app.Update(searchDebounceMsg{seq: 4})
	app = model.(App)
	if app.query != "" {
		t.Fatalf("stale debounce applied: %q", app.query)
	}

	model, _ = app.Update(searchDebounceMsg{seq: 5})
	app = model.(App)
	if app.query != "phish" {
		t.Fatalf("query = %q, want phish", app.query)
	}
	if len(app.visibleHistory()) != 1 {
		t.Fatalf("filter result wrong: %+v", app.visibleHistory())
	}

	app.query = "zzz"
	if len(app.visibleHistory()) != 0 {
		t.Fatal("non-matching filter must hide everything")
	}
}

func TestTranscriptShowsPartialReveal(t *testing.T) {
	gw := &stubGateway{}
	app, _ := newTestApp(t, gw)
	ctx := context.Background()
	if _, err := app.cache.NewConversation(ctx, ""); err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	app.cache.BeginTurn("check")
	app.cache.CompleteTurn(chat.TurnResult{
		Final: chat.FinalDecision{Summary: strings.Repeat("x", 300)},
	}, "")

	app.anim.start(app.cache.ActiveID(), strings.Repeat("x", 300))
	app.anim.advance()

	got := app.transcriptContent()
	if strings.Contains(got, strings.Repeat("x", 300)) {
		t.Fatal("full answer visible before the reveal finished")
	}
	if !strings.Contains(got, strings.Repeat("x", 5)) {
		t.Fatalf("revealed prefix missing: %q", got)
	}
}
