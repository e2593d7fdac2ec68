// Package envelope defines the wire format shared by the session writer and
// the replay engine: every log line is one JSON envelope wrapping exactly one
// of seven event payloads.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SchemaVersion is carried in the envelope only, never inside payloads.
const SchemaVersion = 1

// Kind discriminates the seven record types.
type Kind string

const (
	KindSessionStart       Kind = "session_start"
	KindContent            Kind = "content"
	KindCompressed         Kind = "compressed"
	KindRewind             Kind = "rewind"
	KindProviderSwitch     Kind = "provider_switch"
	KindDirectoriesChanged Kind = "directories_changed"
	KindSessionEvent       Kind = "session_event"
)

var (
	// ErrUnknownKind marks a record whose type is not one of the seven
	// kinds. Unknown kinds are forward-compatible, not malformed.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrMalformedPayload marks a record of a known kind whose payload
	// could not be decoded.
	ErrMalformedPayload = errors.New("malformed event payload")
)

// Event is the closed set of payloads that can travel in an envelope.
// Both the writer's serialization and the replay engine's dispatch switch
// over Kind exhaustively; adding an eighth kind means touching both.
type Event interface {
	Kind() Kind
	isEvent()
}

// Envelope wraps one event for the log. Seq is session-scoped, starts at 1,
// and is strictly increasing within a file.
type Envelope struct {
	V       int    `json:"v"`
	Seq     uint64 `json:"seq"`
	TS      string `json:"ts"`
	Type    Kind   `json:"type"`
	Payload Event  `json:"payload"`
}

// SessionStart is always the first record of a session file.
type SessionStart struct {
	SessionID     string   `json:"sessionId"`
	ProjectHash   string   `json:"projectHash"`
	WorkspaceDirs []string `json:"workspaceDirs"`
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	StartTime     string   `json:"startTime"`
}

// Content records one conversation turn item.
type Content struct {
	Item *ContentItem `json:"item"`
}

// Compressed replaces all prior history with a single summary item.
type Compressed struct {
	Summary         *ContentItem `json:"summary"`
	CompressedCount *int         `json:"compressedCount"`
}

// Rewind discards the trailing Count content items.
type Rewind struct {
	Count *int `json:"count"`
}

// ProviderSwitch updates the session's provider and, optionally, model.
type ProviderSwitch struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// DirectoriesChanged replaces the workspace directory list.
type DirectoriesChanged struct {
	WorkspaceDirs []string `json:"workspaceDirs"`
}

// SessionEvent is an operational notice. It is collected separately during
// replay and never re-enters conversation history.
type SessionEvent struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Severity classifies a SessionEvent.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (*SessionStart) Kind() Kind       { return KindSessionStart }
func (*Content) Kind() Kind            { return KindContent }
func (*Compressed) Kind() Kind         { return KindCompressed }
func (*Rewind) Kind() Kind             { return KindRewind }
func (*ProviderSwitch) Kind() Kind     { return KindProviderSwitch }
func (*DirectoriesChanged) Kind() Kind { return KindDirectoriesChanged }
func (*SessionEvent) Kind() Kind       { return KindSessionEvent }

func (*SessionStart) isEvent()       {}
func (*Content) isEvent()            {}
func (*Compressed) isEvent()         {}
func (*Rewind) isEvent()             {}
func (*ProviderSwitch) isEvent()     {}
func (*DirectoriesChanged) isEvent() {}
func (*SessionEvent) isEvent()       {}

// Encode serializes one event as a single log line (no trailing newline).
func Encode(seq uint64, ts string, ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("encode envelope: nil event")
	}
	env := Envelope{
		V:       SchemaVersion,
		Seq:     seq,
		TS:      ts,
		Type:    ev.Kind(),
		Payload: ev,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

type wireEnvelope struct {
	V       int             `json:"v"`
	Seq     uint64          `json:"seq"`
	TS      string          `json:"ts"`
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses one log line. An unparseable line returns a plain error.
// A parseable envelope of unknown type returns the envelope (Payload nil)
// together with ErrUnknownKind; a known type with an undecodable payload
// returns the envelope together with ErrMalformedPayload. Callers can
// therefore still read Seq and Type off a partially bad record.
func Decode(line []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(line, &wire); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}

	env := Envelope{V: wire.V, Seq: wire.Seq, TS: wire.TS, Type: wire.Type}

	var payload Event
	switch wire.Type {
	case KindSessionStart:
		payload = &SessionStart{}
	case KindContent:
		payload = &Content{}
	case KindCompressed:
		payload = &Compressed{}
	case KindRewind:
		payload = &Rewind{}
	case KindProviderSwitch:
		payload = &ProviderSwitch{}
	case KindDirectoriesChanged:
		payload = &DirectoriesChanged{}
	case KindSessionEvent:
		payload = &SessionEvent{}
	default:
		return env, fmt.Errorf("%w: %q", ErrUnknownKind, wire.Type)
	}

	if err := json.Unmarshal(wire.Payload, payload); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	env.Payload = payload
	return env, nil
}
