package calendar

import (
	"sort"
	"strings"
)

// ServiceCalendars maps service display names to upstream calendar ids. It is
// built once at startup from configuration and handed to whoever needs it; no
// package-level lookup tables.
type ServiceCalendars map[string]string

// CalendarFor resolves a service name to its calendar id. Matching is
// whitespace- and case-insensitive to survive voice transcription quirks.
func (s ServiceCalendars) CalendarFor(service string) (string, bool) {
	want := strings.TrimSpace(service)
	if id, ok := s[want]; ok {
		return id, true
	}
	for name, id := range s {
		if strings.EqualFold(strings.TrimSpace(name), want) {
			return id, true
		}
	}
	return "", false
}

// IDs returns the distinct calendar ids in deterministic order for batch
// sweeps. Services sharing a calendar contribute it once.
func (s ServiceCalendars) IDs() []string {
	seen := make(map[string]bool, len(s))
	out := make([]string, 0, len(s))
	for _, id := range s {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
