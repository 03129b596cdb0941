package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// defaultRevealInterval 打字机动画的默认帧间隔
// defaultRevealInterval is the default frame interval of the typewriter reveal
const defaultRevealInterval = 30 * time.Millisecond

// revealTickMsg 打字机帧。seq 与当前动画不一致的帧直接丢弃，切换会话或
// 新一轮回答开始时旧动画因此自然终止。
// revealTickMsg is one typewriter frame. Frames whose seq no longer matches
// the running animation are dropped, which is how switching conversations or
// starting a new turn cancels the old reveal.
type revealTickMsg struct{ seq int }

// reveal 正在进行的打字机动画 / an in-flight typewriter animation
type reveal struct {
	seq    int
	convID string
	full   []rune
	pos    int
}

func (r *reveal) active() bool {
	return r.convID != "" && r.pos < len(r.full)
}

// start 开始新动画并作废所有旧帧 / start a new animation, invalidating old frames
func (r *reveal) start(convID, text string) {
	r.seq++
	r.convID = convID
	r.full = []rune(text)
	r.pos = 0
}

// cancel 终止动画 / cancel the animation
func (r *reveal) cancel() {
	r.seq++
	r.convID = ""
	r.full = nil
	r.pos = 0
}

// advance 前进一帧，步长随文本长度缩放使总时长大致恒定
// advance moves one frame; the step scales with text length so the total
// duration stays roughly constant
func (r *reveal) advance() {
	step := len(r.full) / 60
	if step < 1 {
		step = 1
	}
	r.pos += step
	if r.pos > len(r.full) {
		r.pos = len(r.full)
	}
}

// visible 当前可见的前缀 / the currently visible prefix
func (r *reveal) visible() string {
	if r.pos >= len(r.full) {
		return string(r.full)
	}
	return string(r.full[:r.pos])
}

func revealTick(seq int, every time.Duration) tea.Cmd {
	if every <= 0 {
		every = defaultRevealInterval
	}
	return tea.Tick(every, func(time.Time) tea.Msg {
		return revealTickMsg{seq: seq}
	})
}
