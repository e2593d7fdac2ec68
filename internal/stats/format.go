package stats

import (
	"fmt"
	"strings"

	"github.com/johns/chatlog/internal/envelope"
)

// Format renders a summary as aligned plain text.
func (s Summary) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "session %s\n", s.SessionID)
	if s.Provider != "" {
		fmt.Fprintf(&b, "  provider     %s/%s\n", s.Provider, s.Model)
	}
	fmt.Fprintf(&b, "  records      %d\n", s.Records)
	fmt.Fprintf(&b, "  turns        %d (%d user, %d assistant)\n", s.Turns, s.UserTurns, s.NonUserTurns)
	fmt.Fprintf(&b, "  text blocks  %d\n", s.TextBlocks)
	fmt.Fprintf(&b, "  tool uses    %d\n", s.ToolUses)
	if s.Warnings > 0 {
		fmt.Fprintf(&b, "  warnings     %d\n", s.Warnings)
	}

	if len(s.Events) > 0 {
		fmt.Fprintf(&b, "  events       %s\n", formatEvents(s.Events))
	}

	if len(s.Tools) > 0 {
		b.WriteString("\n  tools:\n")
		for _, t := range s.Tools {
			fmt.Fprintf(&b, "    %-20s %d\n", t.Name, t.Count)
		}
	}

	return b.String()
}

func formatEvents(events map[envelope.Severity]int) string {
	order := []envelope.Severity{envelope.SeverityError, envelope.SeverityWarning, envelope.SeverityInfo}
	var parts []string
	for _, sev := range order {
		if n := events[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	return strings.Join(parts, ", ")
}
