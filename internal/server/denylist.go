package server

import "strings"

// Denylist refuses commands containing any of a set of substrings,
// compared case-insensitively.
//
// Substring containment is trivially bypassed with quoting, variables, or
// extra whitespace. It stops obvious accidents and nothing more.
type Denylist struct {
	patterns []string
}

// NewDenylist creates a denylist from patterns. Empty patterns are ignored.
func NewDenylist(patterns []string) *Denylist {
	d := &Denylist{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		d.patterns = append(d.patterns, strings.ToLower(p))
	}
	return d
}

// Match returns the first pattern contained in command, if any.
func (d *Denylist) Match(command string) (string, bool) {
	lower := strings.ToLower(command)
	for _, p := range d.patterns {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

// Len returns the number of patterns.
func (d *Denylist) Len() int {
	return len(d.patterns)
}
