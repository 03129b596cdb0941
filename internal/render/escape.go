package render

import "strings"

// Sanitize 清除文本里的终端控制序列。后端与用户输入都当作不可信内容：
// ESC 引导的 CSI/OSC 序列整段丢弃，其余 C0 控制字符除换行和制表符外删除。
// Sanitize strips terminal control sequences from text. Backend and user
// input are both treated as untrusted: ESC-led CSI/OSC sequences are dropped
// whole, and remaining C0 control characters other than newline and tab are
// removed.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == 0x1b {
			i = skipEscape(runes, i)
			continue
		}
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		if r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// skipEscape 返回转义序列最后一个字符的下标
// skipEscape returns the index of the escape sequence's final character
func skipEscape(runes []rune, start int) int {
	i := start + 1
	if i >= len(runes) {
		return i
	}

	switch runes[i] {
	case '[': // CSI: 参数与中间字节后跟终结字节 / params then a final byte
		for i++; i < len(runes); i++ {
			if runes[i] >= 0x40 && runes[i] <= 0x7e {
				return i
			}
		}
		return i
	case ']': // OSC: 以 BEL 或 ST 结束 / terminated by BEL or ST
		for i++; i < len(runes); i++ {
			if runes[i] == 0x07 {
				return i
			}
			if runes[i] == 0x1b && i+1 < len(runes) && runes[i+1] == '\\' {
				return i + 1
			}
		}
		return i
	default:
		return i
	}
}
