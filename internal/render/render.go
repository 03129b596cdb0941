package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"secpilot/internal/chat"
)

// IntroText 新会话的开场白 / opening line of a fresh conversation
const IntroText = "Hi, I'm SEC-COPILOT. Describe the alert, email or event you are investigating and I'll walk the triage with you."

// Markdown 使用 Glamour 渲染 markdown 文本
// Markdown renders markdown text using Glamour
func Markdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimRight(rendered, "\n")
}

// Decision 渲染最终决策块：结论经 markdown 渲染后加粗、风险分、编号建议。
// 后端的结论文本是 markdown，经 Glamour 排版后再套用样式。
// Decision renders the final decision block: markdown-rendered bold summary,
// risk score, numbered recommendations. The backend's summary text is
// markdown and goes through Glamour before styling.
func Decision(final chat.FinalDecision, theme Theme, width int) string {
	var b strings.Builder
	summary := Markdown(Sanitize(final.Summary), width)
	if summary == "" {
		summary = Sanitize(final.Summary)
	}
	b.WriteString(theme.DecisionStyle.Render(summary))
	b.WriteString("\n")
	b.WriteString(theme.RiskStyle.Render(fmt.Sprintf("Risk score: %.2f", final.RiskScore)))
	for i, rec := range final.Recommendations {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, Sanitize(rec)))
	}
	return b.String()
}

// DecisionPlainText 决策的纯文本形式，供打字机动画逐字显示
// DecisionPlainText is the plain-text form of the decision, used by the
// typewriter animation
func DecisionPlainText(final chat.FinalDecision) string {
	var b strings.Builder
	b.WriteString(Sanitize(final.Summary))
	for i, rec := range final.Recommendations {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, Sanitize(rec)))
	}
	b.WriteString(fmt.Sprintf("\nRisk score: %.2f", final.RiskScore))
	return b.String()
}

// Transcript 渲染会话消息流。助手消息优先使用渲染缓存，其余按纯文本处理。
// Transcript renders the message stream. Assistant messages prefer their
// render cache; everything else is treated as plain text.
func Transcript(msgs []chat.Message, theme Theme, width int) string {
	if len(msgs) == 0 {
		return theme.MutedStyle.Render(IntroText)
	}

	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		var badge, body string
		switch m.Role {
		case chat.RoleUser:
			badge = theme.UserBadge.Render("🧑 You")
			body = Sanitize(m.Content)
		case chat.RoleAssistant:
			badge = theme.BotBadge.Render("🛡️ SEC-COPILOT")
			if m.Rendered != "" {
				body = m.Rendered
			} else {
				body = Sanitize(m.Content)
			}
		default:
			badge = theme.SystemBadge.Render("⚙️ System")
			body = Sanitize(m.Content)
		}
		parts = append(parts, badge+"\n"+body)
	}
	return strings.Join(parts, "\n\n")
}

// TraceSteps 渲染智能体轨迹：名称与置信度、推理、工具胶囊、策略命中、输出
// TraceSteps renders the agent trace: agent with confidence, rationale, tool
// pills, policy hits, outputs
func TraceSteps(steps []chat.TraceStep, theme Theme, width int) string {
	if len(steps) == 0 {
		return theme.MutedStyle.Render("No trace recorded for this turn.")
	}

	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		var b strings.Builder
		b.WriteString(theme.AgentStyle.Render(Sanitize(step.Agent)))
		b.WriteString(theme.MutedStyle.Render(fmt.Sprintf("  conf %.2f", step.Confidence)))
		if strings.TrimSpace(step.Rationale) != "" {
			b.WriteString("\n")
			b.WriteString(Sanitize(step.Rationale))
		}
		for _, call := range step.ToolCalls {
			b.WriteString("\n")
			b.WriteString(theme.ToolPillStyle.Render(Sanitize(call.Name)))
		}
		for _, hit := range step.PolicyHits {
			b.WriteString("\n")
			b.WriteString(theme.PolicyStyle.Render("⚠ " + Sanitize(hit)))
		}
		if len(step.Outputs) > 0 {
			if data, err := json.MarshalIndent(step.Outputs, "", "  "); err == nil {
				b.WriteString("\n")
				b.WriteString(theme.MutedStyle.Render(Sanitize(string(data))))
			}
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}

// MatchesFilter 标题过滤：大小写无关的子串匹配，空过滤词放行一切
// MatchesFilter is case-insensitive substring title matching; a blank filter
// passes everything
func MatchesFilter(title, filter string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(filter))
}

// HistoryList 渲染历史侧栏。activeID 高亮，filter 过滤标题；selected 为
// 过滤后列表里光标所在行（-1 表示无光标），width>0 时长标题按符文截断。
// HistoryList renders the history sidebar: the active row is highlighted,
// titles are filtered, selected is the cursor row within the filtered list
// (-1 for none), and width > 0 truncates long titles on rune boundaries.
func HistoryList(convs []*chat.Conversation, activeID, filter string, selected, width int, theme Theme) string {
	var b strings.Builder
	shown := 0
	for _, conv := range convs {
		if !MatchesFilter(conv.Title, filter) {
			continue
		}
		title := Sanitize(conv.Title)
		if title == "" {
			title = chat.DefaultTitle
		}
		if width > 5 {
			if runes := []rune(title); len(runes) > width-4 {
				title = string(runes[:width-5]) + "…"
			}
		}
		if shown > 0 {
			b.WriteString("\n")
		}
		switch {
		case shown == selected:
			b.WriteString(theme.TitleStyle.Render("> " + title))
		case conv.ID == activeID:
			b.WriteString(theme.ActiveRowStyle.Render("▸ " + title))
		default:
			b.WriteString("  " + title)
		}
		shown++
	}
	if shown == 0 {
		return theme.MutedStyle.Render("  No conversations")
	}
	return b.String()
}

// FolderList 渲染文件夹分组。lookup 为 nil 或找不到的会话 id 直接跳过。
// FolderList renders the folder groups. Conversation ids with no lookup hit
// are skipped.
func FolderList(folders []*chat.Folder, lookup func(string) *chat.Conversation, activeID string, theme Theme) string {
	if len(folders) == 0 {
		return theme.MutedStyle.Render("No folders")
	}

	parts := make([]string, 0, len(folders))
	for i, folder := range folders {
		var b strings.Builder
		b.WriteString(theme.TitleStyle.Render(fmt.Sprintf("[%d] %s", i+1, Sanitize(folder.Name))))
		count := 0
		for _, id := range folder.ChatIDs {
			if lookup == nil {
				break
			}
			conv := lookup(id)
			if conv == nil {
				continue
			}
			title := Sanitize(conv.Title)
			if title == "" {
				title = chat.DefaultTitle
			}
			b.WriteString("\n")
			if conv.ID == activeID {
				b.WriteString(theme.ActiveRowStyle.Render("  ▸ " + title))
			} else {
				b.WriteString("    " + title)
			}
			count++
		}
		if count == 0 {
			b.WriteString("\n")
			b.WriteString(theme.MutedStyle.Render("    (empty)"))
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n")
}
