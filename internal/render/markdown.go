// Package render turns a replayed session into a markdown transcript.
package render

import (
	"fmt"
	"strings"

	"github.com/johns/chatlog/internal/envelope"
	"github.com/johns/chatlog/internal/replay"
	"github.com/johns/chatlog/internal/sanitize"
)

// Options controls transcript rendering.
type Options struct {
	Redact          bool // mask credential-shaped strings
	IncludeThinking bool // include reasoning blocks, off by default
}

// Transcript renders a full markdown transcript from a replay result.
func Transcript(result *replay.Result, opts Options) string {
	var b strings.Builder

	meta := result.Metadata

	// Frontmatter
	b.WriteString("---\n")
	fmt.Fprintf(&b, "session_id: \"%s\"\n", meta.SessionID)
	if meta.Provider != "" {
		fmt.Fprintf(&b, "provider: %s\n", meta.Provider)
	}
	if meta.Model != "" {
		fmt.Fprintf(&b, "model: %s\n", meta.Model)
	}
	if meta.StartedAt != "" {
		fmt.Fprintf(&b, "started: %s\n", meta.StartedAt)
	}
	if len(meta.WorkspaceDirs) > 0 {
		fmt.Fprintf(&b, "workspaces: [%s]\n", strings.Join(meta.WorkspaceDirs, ", "))
	}
	fmt.Fprintf(&b, "turns: %d\n", len(result.History))
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# Session %s\n\n", shortID(meta.SessionID))

	for _, warning := range result.Warnings {
		fmt.Fprintf(&b, "> %s\n", warning)
	}
	if len(result.Warnings) > 0 {
		b.WriteString("\n")
	}

	for _, item := range result.History {
		renderItem(&b, item, opts)
	}

	return b.String()
}

func renderItem(b *strings.Builder, item envelope.ContentItem, opts Options) {
	fmt.Fprintf(b, "## %s\n\n", speakerHeading(item.Speaker))

	for _, block := range item.Blocks {
		switch block.Type {
		case "text":
			text := sanitize.StripTags(block.Text)
			if opts.Redact {
				text = sanitize.RedactSecrets(text)
			}
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n\n")
			}
		case "thinking":
			if opts.IncludeThinking && block.Thinking != "" {
				b.WriteString("> [!note] thinking\n")
				for _, line := range strings.Split(strings.TrimSpace(block.Thinking), "\n") {
					fmt.Fprintf(b, "> %s\n", line)
				}
				b.WriteString("\n")
			}
		case "tool_use":
			fmt.Fprintf(b, "*tool: %s*\n\n", block.Name)
		case "tool_result":
			// Tool output is omitted; it is bulky and rarely readable.
		}
	}
}

func speakerHeading(speaker string) string {
	switch speaker {
	case "user":
		return "User"
	case "assistant":
		return "Assistant"
	default:
		if speaker == "" {
			return "Unknown"
		}
		return strings.ToUpper(speaker[:1]) + speaker[1:]
	}
}

func shortID(sessionID string) string {
	if len(sessionID) > 8 {
		return sessionID[:8]
	}
	return sessionID
}
