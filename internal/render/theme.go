package render

import "github.com/charmbracelet/lipgloss"

// Theme 定义终端主题色彩和样式
// Theme defines terminal colors and styles
type Theme struct {
	// Name 为 "dark" 或 "light"，用于持久化偏好
	// Name is "dark" or "light", used for the persisted preference
	Name string

	// 基础色 / Base colors
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Danger  lipgloss.Color
	Warning lipgloss.Color
	Success lipgloss.Color
	Muted   lipgloss.Color
	Text    lipgloss.Color
	TextDim lipgloss.Color
	Border  lipgloss.Color

	// 预构建样式 / Pre-built styles
	TitleStyle     lipgloss.Style
	UserBadge      lipgloss.Style
	BotBadge       lipgloss.Style
	SystemBadge    lipgloss.Style
	DecisionStyle  lipgloss.Style
	RiskStyle      lipgloss.Style
	AgentStyle     lipgloss.Style
	ToolPillStyle  lipgloss.Style
	PolicyStyle    lipgloss.Style
	ActiveRowStyle lipgloss.Style
	StatusBarStyle lipgloss.Style
	SidebarStyle   lipgloss.Style
	InputStyle     lipgloss.Style
	ErrorStyle     lipgloss.Style
	MutedStyle     lipgloss.Style
}

func (t Theme) build() Theme {
	t.TitleStyle = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	t.UserBadge = lipgloss.NewStyle().
		Foreground(t.Accent).
		Bold(true)

	t.BotBadge = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)

	t.SystemBadge = lipgloss.NewStyle().
		Foreground(t.Muted).
		Bold(true)

	t.DecisionStyle = lipgloss.NewStyle().
		Foreground(t.Text).
		Bold(true)

	t.RiskStyle = lipgloss.NewStyle().
		Foreground(t.Warning).
		Bold(true)

	t.AgentStyle = lipgloss.NewStyle().
		Foreground(t.Success).
		Bold(true)

	t.ToolPillStyle = lipgloss.NewStyle().
		Foreground(t.TextDim).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1)

	t.PolicyStyle = lipgloss.NewStyle().
		Foreground(t.Danger).
		Bold(true)

	t.ActiveRowStyle = lipgloss.NewStyle().
		Foreground(t.Text).
		Background(t.Primary).
		Bold(true)

	t.StatusBarStyle = lipgloss.NewStyle().
		Foreground(t.TextDim)

	t.SidebarStyle = lipgloss.NewStyle().
		Foreground(t.Text).
		BorderRight(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.Border)

	t.InputStyle = lipgloss.NewStyle().
		Foreground(t.Text).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.Border)

	t.ErrorStyle = lipgloss.NewStyle().
		Foreground(t.Danger).
		Bold(true)

	t.MutedStyle = lipgloss.NewStyle().
		Foreground(t.Muted)

	return t
}

// DarkTheme 暗色主题（默认）
// DarkTheme is the default dark theme
func DarkTheme() Theme {
	return Theme{
		Name:    "dark",
		Primary: lipgloss.Color("#38BDF8"),
		Accent:  lipgloss.Color("#A78BFA"),
		Danger:  lipgloss.Color("#EF4444"),
		Warning: lipgloss.Color("#F59E0B"),
		Success: lipgloss.Color("#10B981"),
		Muted:   lipgloss.Color("#6B7280"),
		Text:    lipgloss.Color("#E5E7EB"),
		TextDim: lipgloss.Color("#9CA3AF"),
		Border:  lipgloss.Color("#374151"),
	}.build()
}

// LightTheme 亮色主题
// LightTheme is the light theme
func LightTheme() Theme {
	return Theme{
		Name:    "light",
		Primary: lipgloss.Color("#0369A1"),
		Accent:  lipgloss.Color("#6D28D9"),
		Danger:  lipgloss.Color("#B91C1C"),
		Warning: lipgloss.Color("#B45309"),
		Success: lipgloss.Color("#047857"),
		Muted:   lipgloss.Color("#6B7280"),
		Text:    lipgloss.Color("#111827"),
		TextDim: lipgloss.Color("#4B5563"),
		Border:  lipgloss.Color("#D1D5DB"),
	}.build()
}

// ThemeByName 按持久化的名字选择主题，未知名字回落到暗色
// ThemeByName picks a theme by its persisted name, falling back to dark
func ThemeByName(name string) Theme {
	if name == "light" {
		return LightTheme()
	}
	return DarkTheme()
}
