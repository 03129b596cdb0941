package tokens

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"secpilot/internal/chat"
)

// Tokenizer 状态栏用的 token 计数器，tiktoken 不可用时回退到启发式估算
// Tokenizer counts tokens for the status bar, with a heuristic fallback when
// tiktoken is unavailable
type Tokenizer struct {
	encoder  *tiktoken.Tiktoken
	fallback bool
	mu       sync.RWMutex
}

var (
	defaultTokenizer     *Tokenizer
	defaultTokenizerOnce sync.Once
)

// Default 返回全局默认的 tokenizer 实例
// Default returns the global default tokenizer instance
func Default() *Tokenizer {
	defaultTokenizerOnce.Do(func() {
		defaultTokenizer = New()
	})
	return defaultTokenizer
}

// New 创建 tokenizer，tiktoken 初始化失败时回退到启发式
// New creates a tokenizer, falling back to the heuristic when tiktoken
// cannot initialize
func New() *Tokenizer {
	t := &Tokenizer{}

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		// 离线环境可能没有 BPE 缓存 / offline environments may lack the BPE cache
		t.fallback = true
		return t
	}
	t.encoder = enc
	return t
}

// CountText 计算单个文本的 token 数
// CountText counts tokens for a single text string
func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback {
		return heuristicTokenCount(text)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// CountMessages 计算会话消息流的总 token 数
// CountMessages counts tokens across a conversation's message stream
func (t *Tokenizer) CountMessages(messages []chat.Message) int {
	total := 0
	for _, msg := range messages {
		// 每条消息的结构开销约 4 token / ~4 tokens of per-message overhead
		total += 4
		total += t.CountText(msg.Role)
		total += t.CountText(msg.Content)
	}
	return total
}

// IsPrecise 返回是否使用精确计数
// IsPrecise returns whether precise counting is available
func (t *Tokenizer) IsPrecise() bool {
	return !t.fallback
}

// heuristicTokenCount 启发式估算：CJK 约 1.5 token/字，ASCII 约 4 字符/token
// heuristicTokenCount estimates ~1.5 tokens per CJK character and ~4 ASCII
// characters per token
func heuristicTokenCount(text string) int {
	if text == "" {
		return 0
	}
	cjkCount := 0
	asciiCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		} else {
			asciiCount++
		}
	}
	estimate := int(float64(cjkCount)*1.5 + float64(asciiCount)*0.25)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols
		(r >= 0xFF00 && r <= 0xFFEF) || // Fullwidth Forms
		(r >= 0xAC00 && r <= 0xD7AF) // Korean Hangul
}
