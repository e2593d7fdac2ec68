package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound means no session matched the reference.
	ErrNotFound = errors.New("session not found")

	// ErrAmbiguousRef means a prefix matched more than one session.
	ErrAmbiguousRef = errors.New("ambiguous session reference")
)

// ResolveRef maps a user-supplied reference onto one summary. A purely
// numeric ref is always a 1-based index into the newest-first list — index
// resolution takes precedence over prefix matching, so "1" never means "a
// session id starting with 1". Otherwise an exact session id wins, then an
// unambiguous prefix.
func ResolveRef(ref string, summaries []Summary) (*Summary, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrNotFound)
	}

	if idx, err := strconv.Atoi(ref); err == nil {
		if idx < 1 || idx > len(summaries) {
			return nil, fmt.Errorf("%w: index %d out of range (have %d sessions)", ErrNotFound, idx, len(summaries))
		}
		return &summaries[idx-1], nil
	}

	for i := range summaries {
		if summaries[i].SessionID == ref {
			return &summaries[i], nil
		}
	}

	var matches []int
	for i := range summaries {
		if strings.HasPrefix(summaries[i].SessionID, ref) {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrNotFound, ref)
	case 1:
		return &summaries[matches[0]], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = summaries[m].SessionID
		}
		return nil, fmt.Errorf("%w: %q matches %s", ErrAmbiguousRef, ref, strings.Join(ids, ", "))
	}
}
