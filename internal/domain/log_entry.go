package domain

import "strings"

// Verb names the action a LogEntry records.
type Verb string

const (
	VerbSerialized   Verb = "Serialized"
	VerbDeserialized Verb = "Deserialized"
)

// LogEntry is one line of the operation log.
type LogEntry struct {
	Verb Verb   `json:"verb" yaml:"verb"`
	Path string `json:"path" yaml:"path"`
	// Line is the 1-based line number the entry was read from; zero for new entries.
	Line int `json:"line,omitempty" yaml:"line,omitempty"`
}

// ParseVerb matches a verb name case-insensitively.
func ParseVerb(raw string) (Verb, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "serialized":
		return VerbSerialized, true
	case "deserialized":
		return VerbDeserialized, true
	default:
		return "", false
	}
}
