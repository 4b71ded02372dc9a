// SPDX-License-Identifier: AGPL-3.0-or-later
package types

import "strings"

// Labels identifies an acquisition in the dataset layout. Empty fields are absent.
type Labels struct {
	Subject     string `yaml:"subject,omitempty" json:"subject,omitempty"`
	Session     string `yaml:"session,omitempty" json:"session,omitempty"`
	Acquisition string `yaml:"acquisition,omitempty" json:"acquisition,omitempty"`
	Run         string `yaml:"run,omitempty" json:"run,omitempty"`
}

// Filter narrows a dataset query. It is a value type; copies never alias.
type Filter struct {
	Subject     string `json:"subject,omitempty"`
	Session     string `json:"session,omitempty"`
	Acquisition string `json:"acquisition,omitempty"`
	Run         string `json:"run,omitempty"`
}

// String renders the populated fields in BIDS entity order, e.g. "sub=01 ses=A".
func (f Filter) String() string {
	parts := make([]string, 0, 4)
	if f.Subject != "" {
		parts = append(parts, "sub="+f.Subject)
	}
	if f.Session != "" {
		parts = append(parts, "ses="+f.Session)
	}
	if f.Acquisition != "" {
		parts = append(parts, "acq="+f.Acquisition)
	}
	if f.Run != "" {
		parts = append(parts, "run="+f.Run)
	}
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, " ")
}

// Candidate is one anatomical image plus the labels that selected it.
type Candidate struct {
	Path   string `json:"path"`
	Labels Labels `json:"labels"`
	// Manual is set when the image was supplied directly instead of queried.
	Manual bool `json:"manual,omitempty"`
}

// Resolution is the successful outcome of candidate resolution.
type Resolution struct {
	Candidate Candidate `json:"candidate"`
	Prefix    string    `json:"prefix"`
}

// MatchCount classifies the size of a query result.
type MatchCount int

const (
	MatchNone MatchCount = iota
	MatchOne
	MatchMany
)

// CountMatches maps a result length onto a MatchCount.
func CountMatches(n int) MatchCount {
	switch {
	case n <= 0:
		return MatchNone
	case n == 1:
		return MatchOne
	default:
		return MatchMany
	}
}

func (m MatchCount) String() string {
	switch m {
	case MatchNone:
		return "none"
	case MatchOne:
		return "one"
	case MatchMany:
		return "many"
	default:
		return "unknown"
	}
}
