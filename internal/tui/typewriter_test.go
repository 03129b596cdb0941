package tui

import (
	"strings"
	"testing"
)

func TestRevealAdvancesToCompletion(t *testing.T) {
	var r reveal
	r.start("c1", "short")

	steps := 0
	for r.active() {
		r.advance()
		steps++
		if steps > 10 {
			t.Fatal("short text must reveal within a few frames")
		}
	}
	if r.visible() != "short" {
		t.Fatalf("visible = %q", r.visible())
	}
}

func TestRevealStepScalesWithLength(t *testing.T) {
	long := strings.Repeat("a", 600)
	var r reveal
	r.start("c1", long)

	r.advance()
	if r.pos != 10 {
		t.Fatalf("step = %d, want 10 for 600 runes", r.pos)
	}

	frames := 1
	for r.active() {
		r.advance()
		frames++
	}
	// 步长 len/60 意味着总帧数大致恒定 / len/60 keeps the frame count flat
	if frames != 60 {
		t.Fatalf("frames = %d, want 60", frames)
	}
}

func TestRevealCancelInvalidatesOldFrames(t *testing.T) {
	var r reveal
	r.start("c1", "some answer")
	oldSeq := r.seq

	r.cancel()
	if r.active() {
		t.Fatal("cancelled reveal must not be active")
	}
	if r.seq == oldSeq {
		t.Fatal("cancel must bump the sequence so stale frames drop")
	}

	r.start("c2", "next answer")
	if r.seq == oldSeq {
		t.Fatal("restart must bump the sequence")
	}
	if r.convID != "c2" || r.pos != 0 {
		t.Fatalf("restart state wrong: %+v", r)
	}
}

func TestRevealUnicodeSafety(t *testing.T) {
	var r reveal
	r.start("c1", "风险评分 0.82")
	r.advance()
	// 前缀必须落在 rune 边界上 / the prefix must cut on rune boundaries
	if !strings.HasPrefix("风险评分 0.82", r.visible()) {
		t.Fatalf("visible prefix broke a rune: %q", r.visible())
	}
}
