package render

import (
	"strings"
	"testing"

	"secpilot/internal/chat"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"csi color", "\x1b[31mred\x1b[0m text", "red text"},
		{"osc title", "\x1b]0;owned\x07after", "after"},
		{"osc st terminated", "\x1b]8;;http://x\x1b\\link", "link"},
		{"bare escape", "a\x1bZb", "ab"},
		{"control chars", "a\x00b\x08c\x7fd", "abcd"},
		{"keeps newline and tab", "line1\n\tline2", "line1\n\tline2"},
		{"html is literal text", "<script>alert(1)</script>", "<script>alert(1)</script>"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sanitize(tc.in); got != tc.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecisionPlainTextOrdering(t *testing.T) {
	final := chat.FinalDecision{
		Summary:         "Block the sender domain",
		RiskScore:       0.82,
		Recommendations: []string{"Quarantine the message", "Notify the user"},
	}

	got := DecisionPlainText(final)
	want := "Block the sender domain\n1. Quarantine the message\n2. Notify the user\nRisk score: 0.82"
	if got != want {
		t.Fatalf("DecisionPlainText = %q, want %q", got, want)
	}
}

func TestDecisionContainsAllParts(t *testing.T) {
	final := chat.FinalDecision{
		Summary:         "Escalate to IR",
		RiskScore:       0.97,
		Recommendations: []string{"Isolate the host"},
	}

	got := Decision(final, DarkTheme(), 80)
	for _, part := range []string{"Escalate to IR", "Risk score: 0.97", "1. Isolate the host"} {
		if !strings.Contains(got, part) {
			t.Fatalf("decision missing %q in %q", part, got)
		}
	}
}

func TestDecisionRendersSummaryMarkdown(t *testing.T) {
	final := chat.FinalDecision{
		Summary:         "Isolate **host X** and rotate credentials",
		RiskScore:       0.66,
		Recommendations: []string{"Open an incident"},
	}

	got := Decision(final, DarkTheme(), 80)
	if !strings.Contains(got, "host X") {
		t.Fatalf("summary text missing: %q", got)
	}
	if strings.Contains(got, "**") {
		t.Fatalf("markdown emphasis markers must not leak: %q", got)
	}
}

func TestTranscriptEmptyShowsIntro(t *testing.T) {
	got := Transcript(nil, DarkTheme(), 80)
	if !strings.Contains(got, "SEC-COPILOT") {
		t.Fatalf("empty transcript missing intro: %q", got)
	}
}

func TestTranscriptBadgesAndSanitization(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "check \x1b[31mthis\x1b[0m sender"},
		{Role: chat.RoleAssistant, Content: "Block it"},
		{Role: chat.RoleSystem, Content: "Something went wrong. Please try again."},
	}

	got := Transcript(msgs, DarkTheme(), 80)
	for _, part := range []string{"🧑 You", "🛡️ SEC-COPILOT", "⚙️ System", "check this sender", "Block it"} {
		if !strings.Contains(got, part) {
			t.Fatalf("transcript missing %q in %q", part, got)
		}
	}
	if strings.Contains(got, "\x1b[31m") {
		t.Fatal("untrusted escape sequence leaked into the transcript")
	}
}

func TestTranscriptPrefersRenderCache(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleAssistant, Content: "raw summary", Rendered: "FORMATTED BLOCK"},
	}
	got := Transcript(msgs, DarkTheme(), 80)
	if !strings.Contains(got, "FORMATTED BLOCK") || strings.Contains(got, "raw summary") {
		t.Fatalf("render cache not preferred: %q", got)
	}
}

func TestTraceSteps(t *testing.T) {
	steps := []chat.TraceStep{
		{
			Agent:      "triage",
			Rationale:  "SPF fails for the sending domain",
			Confidence: 0.91,
			ToolCalls:  []chat.ToolCall{{Name: "dns_lookup"}},
			PolicyHits: []string{"external-sender"},
			Outputs:    map[string]any{"spf": "fail"},
		},
	}

	got := TraceSteps(steps, DarkTheme(), 80)
	for _, part := range []string{"triage", "conf 0.91", "SPF fails", "dns_lookup", "external-sender", "spf"} {
		if !strings.Contains(got, part) {
			t.Fatalf("trace missing %q in %q", part, got)
		}
	}

	if got := TraceSteps(nil, DarkTheme(), 80); !strings.Contains(got, "No trace") {
		t.Fatalf("empty trace placeholder wrong: %q", got)
	}
}

func TestMatchesFilter(t *testing.T) {
	if !MatchesFilter("Suspicious Login", "") {
		t.Fatal("blank filter must pass everything")
	}
	if !MatchesFilter("Suspicious Login", "LOGIN") {
		t.Fatal("filter must be case-insensitive")
	}
	if MatchesFilter("Suspicious Login", "malware") {
		t.Fatal("non-matching filter must reject")
	}
}

func TestHistoryListFilterAndActive(t *testing.T) {
	convs := []*chat.Conversation{
		{ID: "a", Title: "Phishing wave"},
		{ID: "b", Title: "Malware sample"},
	}

	got := HistoryList(convs, "b", "mal", -1, 0, DarkTheme())
	if strings.Contains(got, "Phishing wave") {
		t.Fatalf("filter leaked a non-match: %q", got)
	}
	if !strings.Contains(got, "Malware sample") || !strings.Contains(got, "▸") {
		t.Fatalf("active match missing: %q", got)
	}

	if got := HistoryList(convs, "", "zzz", -1, 0, DarkTheme()); !strings.Contains(got, "No conversations") {
		t.Fatalf("empty result placeholder wrong: %q", got)
	}
}

func TestHistoryListSelectionAndTruncation(t *testing.T) {
	convs := []*chat.Conversation{
		{ID: "a", Title: "Phishing wave"},
		{ID: "b", Title: "A very long malware triage conversation title"},
	}

	got := HistoryList(convs, "a", "", 1, 0, DarkTheme())
	if !strings.Contains(got, "> A very long") {
		t.Fatalf("cursor row missing: %q", got)
	}
	if !strings.Contains(got, "▸ Phishing wave") {
		t.Fatalf("active row missing alongside cursor: %q", got)
	}

	got = HistoryList(convs, "", "", -1, 20, DarkTheme())
	if !strings.Contains(got, "…") {
		t.Fatalf("long title not truncated: %q", got)
	}
	if strings.Contains(got, "conversation title") {
		t.Fatalf("truncation kept the full title: %q", got)
	}
}

func TestFolderListSkipsDanglingIDs(t *testing.T) {
	convs := map[string]*chat.Conversation{
		"c1": {ID: "c1", Title: "Suspicious sender"},
	}
	folders := []*chat.Folder{
		{ID: "f1", Name: "Phishing", ChatIDs: []string{"c1", "gone"}},
		{ID: "f2", Name: "Malware", ChatIDs: []string{"also-gone"}},
	}

	got := FolderList(folders, func(id string) *chat.Conversation { return convs[id] }, "c1", DarkTheme())
	if !strings.Contains(got, "Phishing") || !strings.Contains(got, "Suspicious sender") {
		t.Fatalf("folder content missing: %q", got)
	}
	if strings.Contains(got, "gone") {
		t.Fatalf("dangling id leaked: %q", got)
	}
	if !strings.Contains(got, "(empty)") {
		t.Fatalf("all-dangling folder must render empty: %q", got)
	}
}
