package i18n

// EnMessages 英文消息 / English messages
var EnMessages = map[string]string{
	// 输入区 / Input area
	"input.placeholder": "Describe the alert, email or event you are investigating...",

	// 状态栏 / Status bar
	"status.sending": "Consulting SEC-COPILOT...",
	"status.tokens":  "%d tokens",
	"status.mode":    "mode %s",
	"status.theme":   "theme %s",

	// 面板 / Panels
	"panel.history": "History",
	"panel.folders": "Folders",
	"panel.trace":   "Agent trace",
	"panel.search":  "Search: %s",

	// 错误 / Errors
	"error.generic":      "Something went wrong. Please try again.",
	"error.unauthorized": "Session expired. Please sign in again.",

	// 登录 / Login
	"login.email":    "Email: ",
	"login.password": "Password: ",
	"login.failed":   "Sign-in failed: %s",
	"login.success":  "Signed in.",

	// 文件夹 / Folders
	"folder.prompt":     "Folder name: ",
	"folder.move.hint":  "Move to folder: press 1-9, esc to cancel",
	"folder.move.done":  "Moved to %s",
	"folder.move.none":  "No folders yet. Create one with ctrl+g.",
	"folder.create.err": "Could not create the folder: %s",

	// 快捷键 / Key help
	"help.keys": "enter send · ctrl+n new · ctrl+t trace · ctrl+f search · ctrl+d theme · ctrl+o move · ctrl+g folder · ctrl+q logout · ctrl+c quit",
}
