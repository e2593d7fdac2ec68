package render

import (
	"strings"
	"testing"

	"github.com/johns/chatlog/internal/envelope"
	"github.com/johns/chatlog/internal/replay"
)

func sampleResult() *replay.Result {
	return &replay.Result{
		Metadata: replay.Metadata{
			SessionID:     "abcdef1234567890",
			Provider:      "anthropic",
			Model:         "m1",
			StartedAt:     "2026-08-23T10:00:00Z",
			WorkspaceDirs: []string{"/work/app"},
		},
		History: []envelope.ContentItem{
			{Speaker: "user", Blocks: []envelope.Block{
				{Type: "text", Text: "fix the bug"},
			}},
			{Speaker: "assistant", Blocks: []envelope.Block{
				{Type: "thinking", Thinking: "the bug is in the parser"},
				{Type: "text", Text: "found it"},
				{Type: "tool_use", Name: "edit"},
			}},
		},
	}
}

func TestTranscriptFrontmatter(t *testing.T) {
	out := Transcript(sampleResult(), Options{})

	for _, want := range []string{
		`session_id: "abcdef1234567890"`,
		"provider: anthropic",
		"model: m1",
		"started: 2026-08-23T10:00:00Z",
		"workspaces: [/work/app]",
		"turns: 2",
		"# Session abcdef12",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q:\n%s", want, out)
		}
	}
}

func TestTranscriptBody(t *testing.T) {
	out := Transcript(sampleResult(), Options{})

	if !strings.Contains(out, "## User") || !strings.Contains(out, "## Assistant") {
		t.Error("speaker headings missing")
	}
	if !strings.Contains(out, "fix the bug") || !strings.Contains(out, "found it") {
		t.Error("text blocks missing")
	}
	if !strings.Contains(out, "*tool: edit*") {
		t.Error("tool use marker missing")
	}
	if strings.Contains(out, "the bug is in the parser") {
		t.Error("thinking included without opt-in")
	}
}

func TestTranscriptIncludeThinking(t *testing.T) {
	out := Transcript(sampleResult(), Options{IncludeThinking: true})
	if !strings.Contains(out, "> the bug is in the parser") {
		t.Errorf("thinking block missing:\n%s", out)
	}
}

func TestTranscriptRedacts(t *testing.T) {
	result := sampleResult()
	result.History[0].Blocks[0].Text = "key is sk-abcdefghijklmnopqrstuvwxyz123456"

	out := Transcript(result, Options{Redact: true})
	if strings.Contains(out, "sk-abcdefghijklmnop") {
		t.Error("secret not redacted")
	}
	if !strings.Contains(out, "[redacted]") {
		t.Error("redaction marker missing")
	}

	plain := Transcript(result, Options{})
	if !strings.Contains(plain, "sk-abcdefghijklmnop") {
		t.Error("redaction applied without opt-in")
	}
}

func TestTranscriptWarnings(t *testing.T) {
	result := sampleResult()
	result.Warnings = []string{"line 7: unparseable record skipped"}

	out := Transcript(result, Options{})
	if !strings.Contains(out, "> line 7: unparseable record skipped") {
		t.Errorf("warnings not rendered:\n%s", out)
	}
}
