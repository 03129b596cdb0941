package i18n

// ZhCNMessages 简体中文消息 / Simplified Chinese messages
var ZhCNMessages = map[string]string{
	// 输入区 / Input area
	"input.placeholder": "描述你正在调查的告警、邮件或事件...",

	// 状态栏 / Status bar
	"status.sending": "正在咨询 SEC-COPILOT...",
	"status.tokens":  "%d tokens",
	"status.mode":    "模式 %s",
	"status.theme":   "主题 %s",

	// 面板 / Panels
	"panel.history": "历史会话",
	"panel.folders": "文件夹",
	"panel.trace":   "智能体轨迹",
	"panel.search":  "搜索: %s",

	// 错误 / Errors
	"error.generic":      "出错了，请重试。",
	"error.unauthorized": "登录已过期，请重新登录。",

	// 登录 / Login
	"login.email":    "邮箱: ",
	"login.password": "密码: ",
	"login.failed":   "登录失败: %s",
	"login.success":  "登录成功。",

	// 文件夹 / Folders
	"folder.prompt":     "文件夹名称: ",
	"folder.move.hint":  "移动到文件夹: 按 1-9 选择，esc 取消",
	"folder.move.done":  "已移动到 %s",
	"folder.move.none":  "还没有文件夹，按 ctrl+g 创建。",
	"folder.create.err": "创建文件夹失败: %s",

	// 快捷键 / Key help
	"help.keys": "enter 发送 · ctrl+n 新会话 · ctrl+t 轨迹 · ctrl+f 搜索 · ctrl+d 主题 · ctrl+o 移动 · ctrl+g 文件夹 · ctrl+q 退出登录 · ctrl+c 退出",
}
