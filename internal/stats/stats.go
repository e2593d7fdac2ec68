// Package stats computes aggregate metrics over replayed sessions.
package stats

import (
	"sort"
	"strings"

	"github.com/johns/chatlog/internal/envelope"
	"github.com/johns/chatlog/internal/replay"
)

// Summary holds aggregate metrics for one replayed session.
type Summary struct {
	SessionID    string
	Provider     string
	Model        string
	Records      int
	Turns        int
	UserTurns    int
	NonUserTurns int
	TextBlocks   int
	ToolUses     int
	Warnings     int
	Events       map[envelope.Severity]int

	Tools []ToolStats
}

// ToolStats holds per-tool invocation counts.
type ToolStats struct {
	Name  string
	Count int
}

// Compute builds a Summary from a replay result.
func Compute(result *replay.Result) Summary {
	s := Summary{
		SessionID: result.Metadata.SessionID,
		Provider:  result.Metadata.Provider,
		Model:     result.Metadata.Model,
		Records:   result.EventCount,
		Turns:     len(result.History),
		Warnings:  len(result.Warnings),
		Events:    make(map[envelope.Severity]int),
	}

	toolMap := make(map[string]int)
	for _, item := range result.History {
		if item.Speaker == "user" {
			s.UserTurns++
		} else {
			s.NonUserTurns++
		}
		for _, block := range item.Blocks {
			switch block.Type {
			case "text":
				s.TextBlocks++
			case "tool_use":
				s.ToolUses++
				name := block.Name
				if name == "" {
					name = "unknown"
				}
				toolMap[name]++
			}
		}
	}

	for _, ev := range result.SessionEvents {
		s.Events[ev.Severity]++
	}

	for name, count := range toolMap {
		s.Tools = append(s.Tools, ToolStats{Name: name, Count: count})
	}
	sort.Slice(s.Tools, func(i, j int) bool {
		if s.Tools[i].Count != s.Tools[j].Count {
			return s.Tools[i].Count > s.Tools[j].Count
		}
		return strings.ToLower(s.Tools[i].Name) < strings.ToLower(s.Tools[j].Name)
	})

	return s
}
