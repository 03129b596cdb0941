package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"secpilot/internal/chat"
	"secpilot/internal/gateway"
	"secpilot/internal/i18n"
	"secpilot/internal/render"
	"secpilot/internal/state"
	"secpilot/internal/tokens"
)

// searchDebounce 搜索输入静默期 / quiet period before a search takes effect
const searchDebounce = 120 * time.Millisecond

// Preferences 交互层需要的持久化偏好 / persisted preferences the TUI touches
type Preferences interface {
	SetTheme(theme string) error
	ClearToken() error
}

// PanelID 面板标识
// PanelID identifies a panel
type PanelID int

const (
	PanelInput PanelID = iota
	PanelHistory
)

// promptKind 底部提示行当前采集的内容 / what the prompt line is collecting
type promptKind int

const (
	promptNone promptKind = iota
	promptSearch
	promptFolder
)

// --- Tea Messages ---

// turnReadyMsg 按需建会话完成 / the on-demand conversation create finished
type turnReadyMsg struct{ err error }

// turnDoneMsg 一轮对话的网关往返完成 / the gateway round trip of a turn finished
type turnDoneMsg struct {
	result chat.TurnResult
	err    error
}

// convCreatedMsg ctrl+n 新建会话完成 / an explicit new-conversation finished
type convCreatedMsg struct{ err error }

// historyMsg 后台历史刷新完成 / a background history refresh finished
type historyMsg struct{ err error }

// foldersMsg 后台文件夹刷新完成 / a background folder refresh finished
type foldersMsg struct{ err error }

// folderCreatedMsg 新建文件夹完成 / the folder create finished
type folderCreatedMsg struct{ err error }

// searchDebounceMsg 搜索静默期到达 / the search quiet period elapsed
type searchDebounceMsg struct{ seq int }

// Exit 交互循环的退出原因 / why the interaction loop returned
type Exit int

const (
	// ExitQuit 普通退出 / a plain quit
	ExitQuit Exit = iota
	// ExitLoggedOut 用户登出，凭证已清除 / user logged out, credential cleared
	ExitLoggedOut
	// ExitAuthExpired 凭证失效，需要回到登录界面
	// ExitAuthExpired means the credential expired and the caller must
	// return to the login boundary
	ExitAuthExpired
)

// Options 交互层的启动参数 / startup parameters of the interaction layer
type Options struct {
	Theme render.Theme
	// Timeout 单次网关往返的上限 / ceiling for one gateway round trip
	Timeout time.Duration
	// RevealInterval 打字机帧间隔，零值用默认
	// RevealInterval is the typewriter frame interval, zero means default
	RevealInterval time.Duration
}

// App Bubble Tea 主 Model
// App is the main Bubble Tea model
type App struct {
	cache       *state.Cache
	prefs       Preferences
	timeout     time.Duration
	revealEvery time.Duration

	// 布局 / Layout
	width  int
	height int

	// 组件 / Components
	chatView  viewport.Model
	traceView viewport.Model
	input     textarea.Model
	prompt    textinput.Model
	spin      spinner.Model

	// 状态 / State
	focus          PanelID
	promptMode     promptKind
	sending        bool
	pending        string
	showTrace      bool
	moveMode       bool
	selIdx         int
	query          string
	searchSeq      int
	anim           reveal
	failure        string
	notice         string
	loggedOut      bool
	sessionExpired bool

	// 配置 / Config
	theme  render.Theme
	keys   KeyMap
	locale *i18n.I18n
	tok    *tokens.Tokenizer
}

// NewApp 创建 TUI 应用
// NewApp creates a new TUI application
func NewApp(cache *state.Cache, prefs Preferences, opts Options) App {
	ta := textarea.New()
	ta.Placeholder = i18n.T("input.placeholder")
	ta.CharLimit = 8192
	ta.SetHeight(3)
	ta.Focus()

	ti := textinput.New()
	ti.CharLimit = 256

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(opts.Theme.Primary)

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RevealInterval <= 0 {
		opts.RevealInterval = defaultRevealInterval
	}

	return App{
		cache:       cache,
		prefs:       prefs,
		timeout:     opts.Timeout,
		revealEvery: opts.RevealInterval,
		input:       ta,
		prompt:      ti,
		spin:        sp,
		focus:       PanelInput,
		theme:       opts.Theme,
		keys:        DefaultKeyMap(),
		locale:      i18n.Global(),
		tok:         tokens.Default(),
	}
}

// Run 启动交互循环并返回退出原因
// Run starts the interaction loop and returns why it ended
func Run(cache *state.Cache, prefs Preferences, opts Options) (Exit, error) {
	app := NewApp(cache, prefs, opts)
	p := tea.NewProgram(app, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return ExitQuit, err
	}
	if out, ok := final.(App); ok {
		return out.ExitReason(), nil
	}
	return ExitQuit, nil
}

func (a App) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, a.refreshHistoryCmd(), a.refreshFoldersCmd())
}

// --- Commands ---

func (a App) refreshHistoryCmd() tea.Cmd {
	cache, timeout := a.cache, a.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return historyMsg{err: cache.RefreshHistory(ctx)}
	}
}

func (a App) refreshFoldersCmd() tea.Cmd {
	cache, timeout := a.cache, a.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return foldersMsg{err: cache.RefreshFolders(ctx)}
	}
}

func (a App) createConversationCmd(forTurn bool) tea.Cmd {
	cache, timeout := a.cache, a.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := cache.NewConversation(ctx, "")
		if forTurn {
			return turnReadyMsg{err: err}
		}
		return convCreatedMsg{err: err}
	}
}

func (a App) dispatchCmd(convID, text string) tea.Cmd {
	cache, timeout := a.cache, a.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		result, err := cache.Dispatch(ctx, convID, text)
		return turnDoneMsg{result: result, err: err}
	}
}

func (a App) createFolderCmd(name string) tea.Cmd {
	cache, timeout := a.cache, a.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return folderCreatedMsg{err: cache.CreateFolder(ctx, name)}
	}
}

func searchDebounceCmd(seq int) tea.Cmd {
	return tea.Tick(searchDebounce, func(time.Time) tea.Msg {
		return searchDebounceMsg{seq: seq}
	})
}

// --- Update ---

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		a.refreshViews()
		return a, nil

	case turnReadyMsg:
		if msg.err != nil {
			a.sending = false
			a.pending = ""
			if a.authExpired(msg.err) {
				return a, tea.Quit
			}
			a.failure = a.locale.T("error.generic")
			a.refreshViews()
			return a, nil
		}
		text := a.pending
		convID := a.cache.BeginTurn(text)
		a.refreshViews()
		return a, a.dispatchCmd(convID, text)

	case turnDoneMsg:
		a.sending = false
		a.pending = ""
		if msg.err != nil {
			if a.authExpired(msg.err) {
				return a, tea.Quit
			}
			a.failure = a.locale.T("error.generic")
			a.refreshViews()
			return a, nil
		}
		rendered := render.Decision(msg.result.Final, a.theme, a.chatWidth())
		conv := a.cache.CompleteTurn(msg.result, rendered)
		// 往返期间用户可能切换了线程，只在目标会话仍然打开时播放揭示动画
		// The user may have switched threads during the round trip; the
		// reveal only plays when the committed conversation is still open
		if conv != nil && conv.ID == a.cache.ActiveID() {
			a.anim.start(conv.ID, render.DecisionPlainText(msg.result.Final))
			cmds = append(cmds, revealTick(a.anim.seq, a.revealEvery))
		}
		a.refreshViews()
		cmds = append(cmds, a.refreshHistoryCmd())
		return a, tea.Batch(cmds...)

	case convCreatedMsg:
		if msg.err != nil {
			if a.authExpired(msg.err) {
				return a, tea.Quit
			}
			a.failure = a.locale.T("error.generic")
		} else {
			a.anim.cancel()
			a.failure = ""
		}
		a.refreshViews()
		return a, a.refreshHistoryCmd()

	case historyMsg:
		if a.authExpired(msg.err) {
			return a, tea.Quit
		}
		// 后台刷新失败保持本地缓存展示 / a failed quiet refresh keeps local data
		if msg.err == nil {
			a.clampSelection()
		}
		a.refreshViews()
		return a, nil

	case foldersMsg:
		if a.authExpired(msg.err) {
			return a, tea.Quit
		}
		a.refreshViews()
		return a, nil

	case folderCreatedMsg:
		if msg.err != nil {
			if a.authExpired(msg.err) {
				return a, tea.Quit
			}
			a.notice = a.locale.T("folder.create.err", msg.err.Error())
		}
		a.refreshViews()
		return a, nil

	case revealTickMsg:
		if msg.seq != a.anim.seq {
			return a, nil
		}
		a.anim.advance()
		a.refreshViews()
		if a.anim.active() {
			return a, revealTick(a.anim.seq, a.revealEvery)
		}
		a.anim.cancel()
		a.refreshViews()
		return a, nil

	case searchDebounceMsg:
		if msg.seq != a.searchSeq {
			return a, nil
		}
		a.query = a.prompt.Value()
		a.clampSelection()
		a.refreshViews()
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		if a.sending {
			return a, cmd
		}
		return a, nil
	}

	if a.promptMode != promptNone {
		var cmd tea.Cmd
		a.prompt, cmd = a.prompt.Update(msg)
		cmds = append(cmds, cmd)
	} else if a.focus == PanelInput {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// 全局键优先 / global keys first
	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit
	case "ctrl+q":
		_ = a.prefs.ClearToken()
		a.loggedOut = true
		return a, tea.Quit
	}

	if a.promptMode != promptNone {
		return a.handlePromptKey(msg)
	}
	if a.moveMode {
		return a.handleMoveKey(msg)
	}

	switch msg.String() {
	case "tab":
		if a.focus == PanelInput {
			a.focus = PanelHistory
			a.input.Blur()
			a.clampSelection()
		} else {
			a.focus = PanelInput
			a.input.Focus()
		}
		a.refreshViews()
		return a, nil

	case "ctrl+n":
		a.failure = ""
		return a, a.createConversationCmd(false)

	case "ctrl+t":
		a.showTrace = !a.showTrace
		a.refreshViews()
		return a, nil

	case "ctrl+d":
		if a.theme.Name == "dark" {
			a.theme = render.LightTheme()
		} else {
			a.theme = render.DarkTheme()
		}
		_ = a.prefs.SetTheme(a.theme.Name)
		a.refreshViews()
		return a, nil

	case "ctrl+f":
		a.promptMode = promptSearch
		a.prompt.Placeholder = ""
		a.prompt.SetValue(a.query)
		a.prompt.Focus()
		a.input.Blur()
		return a, textinput.Blink

	case "ctrl+g":
		a.promptMode = promptFolder
		a.prompt.Placeholder = a.locale.T("folder.prompt")
		a.prompt.SetValue("")
		a.prompt.Focus()
		a.input.Blur()
		return a, textinput.Blink

	case "ctrl+o":
		if len(a.cache.Folders()) == 0 {
			a.notice = a.locale.T("folder.move.none")
			return a, nil
		}
		if a.cache.ActiveID() == "" {
			return a, nil
		}
		a.moveMode = true
		a.notice = a.locale.T("folder.move.hint")
		return a, nil

	case "esc":
		a.notice = ""
		a.failure = ""
		a.refreshViews()
		return a, nil
	}

	if a.focus == PanelHistory {
		return a.handleHistoryKey(msg)
	}

	if msg.String() == "enter" {
		return a.submit()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a App) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if a.promptMode == promptSearch {
			a.query = ""
			a.searchSeq++
		}
		return a.closePrompt(), nil

	case "enter":
		if a.promptMode == promptFolder {
			name := a.prompt.Value()
			next := a.closePrompt()
			return next, next.createFolderCmd(name)
		}
		a.query = a.prompt.Value()
		return a.closePrompt(), nil
	}

	var cmd tea.Cmd
	a.prompt, cmd = a.prompt.Update(msg)
	if a.promptMode == promptSearch {
		a.searchSeq++
		return a, tea.Batch(cmd, searchDebounceCmd(a.searchSeq))
	}
	return a, cmd
}

func (a App) handleMoveKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a.moveMode = false
	a.notice = ""

	s := msg.String()
	if len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
		idx := int(s[0] - '1')
		folders := a.cache.Folders()
		if idx < len(folders) {
			if a.cache.MoveActiveToFolder(folders[idx].ID) {
				a.notice = a.locale.T("folder.move.done", folders[idx].Name)
			}
		}
	}
	a.refreshViews()
	return a, nil
}

func (a App) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := a.visibleHistory()
	switch msg.String() {
	case "up", "k":
		if a.selIdx > 0 {
			a.selIdx--
		}
	case "down", "j":
		if a.selIdx < len(visible)-1 {
			a.selIdx++
		}
	case "enter":
		if a.selIdx >= 0 && a.selIdx < len(visible) {
			a.cache.Open(visible[a.selIdx].ID)
			a.anim.cancel()
			a.failure = ""
			a.focus = PanelInput
			a.input.Focus()
		}
	}
	a.refreshViews()
	return a, nil
}

// submit 发送当前输入。空白输入和发送中都直接忽略。
// submit sends the current input. Blank input and an in-flight turn are both
// ignored.
func (a App) submit() (tea.Model, tea.Cmd) {
	if a.sending {
		return a, nil
	}
	text := strings.TrimSpace(a.input.Value())
	if text == "" {
		return a, nil
	}

	a.sending = true
	a.pending = text
	a.failure = ""
	a.input.Reset()
	a.anim.cancel()

	if a.cache.ActiveID() == "" {
		return a, tea.Batch(a.spin.Tick, a.createConversationCmd(true))
	}
	convID := a.cache.BeginTurn(text)
	a.refreshViews()
	return a, tea.Batch(a.spin.Tick, a.dispatchCmd(convID, text))
}

func (a App) closePrompt() App {
	a.promptMode = promptNone
	a.prompt.Blur()
	a.prompt.SetValue("")
	if a.focus == PanelInput {
		a.input.Focus()
	}
	a.clampSelection()
	a.refreshViews()
	return a
}

// authExpired 凭证失效时标记退出原因；调用方随即 Quit 回登录界面
// authExpired marks the exit reason on a credential failure; the caller
// then quits back to the login boundary
func (a *App) authExpired(err error) bool {
	if err == nil || !errors.Is(err, gateway.ErrUnauthorized) {
		return false
	}
	a.sessionExpired = true
	return true
}

// --- Data helpers ---

// visibleHistory 过滤后的历史列表 / the filtered history list
func (a App) visibleHistory() []*chat.Conversation {
	all := a.cache.History()
	out := make([]*chat.Conversation, 0, len(all))
	for _, conv := range all {
		if render.MatchesFilter(conv.Title, a.query) {
			out = append(out, conv)
		}
	}
	return out
}

func (a *App) clampSelection() {
	n := len(a.visibleHistory())
	if a.selIdx >= n {
		a.selIdx = n - 1
	}
	if a.selIdx < 0 {
		a.selIdx = 0
	}
}

// ExitReason 本次退出的原因 / why this exit happened
func (a App) ExitReason() Exit {
	switch {
	case a.loggedOut:
		return ExitLoggedOut
	case a.sessionExpired:
		return ExitAuthExpired
	}
	return ExitQuit
}

// --- Layout and views ---

func (a *App) relayout() {
	chatW := a.chatWidth()
	chatH := a.height - 8
	if chatH < 3 {
		chatH = 3
	}
	a.chatView = viewport.New(chatW, chatH)
	a.traceView = viewport.New(chatW, chatH)
	a.input.SetWidth(chatW - 2)
}

func (a App) sidebarWidth() int {
	w := a.width * 28 / 100
	if w < 24 {
		w = 24
	}
	if w > 44 {
		w = 44
	}
	if a.width < 80 {
		w = 0
	}
	return w
}

func (a App) chatWidth() int {
	w := a.width - a.sidebarWidth()
	if a.sidebarWidth() > 0 {
		w--
	}
	if w < 20 {
		w = 20
	}
	return w
}

// refreshViews 从缓存重建可见内容 / rebuild visible content from the cache
func (a *App) refreshViews() {
	if a.width == 0 {
		return
	}
	a.chatView.SetContent(a.transcriptContent())
	a.chatView.GotoBottom()

	if a.showTrace {
		conv := a.cache.Active()
		var steps []chat.TraceStep
		if conv != nil {
			steps = conv.Steps
		}
		a.traceView.SetContent(render.TraceSteps(steps, a.theme, a.chatWidth()))
	}
}

// transcriptContent 当前会话的消息流，动画进行中时末尾的助手消息只显示
// 已揭示的前缀
// transcriptContent is the active message stream; while the animation runs,
// the trailing assistant message shows only the revealed prefix
func (a App) transcriptContent() string {
	conv := a.cache.Active()
	var msgs []chat.Message
	if conv != nil {
		msgs = conv.Messages
	}

	if a.anim.active() && conv != nil && conv.ID == a.anim.convID && len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		if last.Role == chat.RoleAssistant {
			trimmed := make([]chat.Message, len(msgs))
			copy(trimmed, msgs)
			trimmed[len(trimmed)-1] = chat.Message{
				Role:    chat.RoleAssistant,
				Content: a.anim.visible(),
			}
			msgs = trimmed
		}
	}

	out := render.Transcript(msgs, a.theme, a.chatWidth())
	if a.sending {
		out += "\n\n" + a.theme.MutedStyle.Render(a.spin.View()+" "+a.locale.T("status.sending"))
	}
	if a.failure != "" {
		out += "\n\n" + a.theme.ErrorStyle.Render(a.failure)
	}
	return out
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	chatW := a.chatWidth()
	var panel string
	if a.showTrace {
		panel = a.traceView.View()
	} else {
		panel = a.chatView.View()
	}
	panelTitle := a.theme.TitleStyle.Render(" SEC-COPILOT")
	if a.showTrace {
		panelTitle = a.theme.TitleStyle.Render(" " + a.locale.T("panel.trace"))
	}

	inputBox := a.theme.InputStyle.Width(chatW).Render(a.renderInputLine())
	statusBar := a.renderStatusBar()

	main := lipgloss.JoinVertical(lipgloss.Left, panelTitle, panel, inputBox)

	if w := a.sidebarWidth(); w > 0 {
		sidebar := a.renderSidebar(w, a.height-1)
		main = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
	}

	return lipgloss.JoinVertical(lipgloss.Left, main, statusBar)
}

func (a App) renderInputLine() string {
	switch a.promptMode {
	case promptSearch:
		return a.locale.T("panel.search", a.prompt.View())
	case promptFolder:
		return a.locale.T("folder.prompt") + a.prompt.View()
	default:
		return a.input.View()
	}
}

func (a App) renderSidebar(width, height int) string {
	var parts []string

	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("panel.history")))
	activeID := a.cache.ActiveID()
	selected := -1
	if a.focus == PanelHistory {
		selected = a.selIdx
	}
	parts = append(parts, render.HistoryList(a.cache.History(), activeID, a.query, selected, width, a.theme))

	parts = append(parts, "")
	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("panel.folders")))
	parts = append(parts, render.FolderList(a.cache.Folders(), a.cache.Conversation, activeID, a.theme))

	if a.notice != "" {
		parts = append(parts, "")
		parts = append(parts, a.theme.MutedStyle.Render(" "+a.notice))
	}

	content := strings.Join(parts, "\n")
	return a.theme.SidebarStyle.Width(width).Height(height).Render(content)
}

func (a App) renderStatusBar() string {
	var parts []string
	parts = append(parts, a.locale.T("status.mode", a.cache.Mode()))
	parts = append(parts, a.locale.T("status.theme", a.theme.Name))
	if conv := a.cache.Active(); conv != nil {
		parts = append(parts, a.locale.T("status.tokens", a.tok.CountMessages(conv.Messages)))
	}
	if a.sending {
		parts = append(parts, a.locale.T("status.sending"))
	}
	left := strings.Join(parts, " · ")
	help := a.locale.T("help.keys")

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(help) - 2
	if gap < 1 {
		return a.theme.StatusBarStyle.Render(" " + left)
	}
	return a.theme.StatusBarStyle.Render(
		fmt.Sprintf(" %s%s%s ", left, strings.Repeat(" ", gap), help))
}
