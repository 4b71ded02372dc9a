// SPDX-License-Identifier: AGPL-3.0-or-later

// Package resolve selects the single anatomical image a job analyses and
// derives the output-file-root used for every derivative it produces.
package resolve

import (
	"strings"

	"github.com/neurogears/antsct-prep/internal/types"
)

// BuildFilter merges job-derived defaults with explicit overrides. Each field
// is decided independently: a non-empty override wins, otherwise the default.
func BuildFilter(defaults, overrides types.Labels) types.Filter {
	return types.Filter{
		Subject:     pick(overrides.Subject, defaults.Subject),
		Session:     pick(overrides.Session, defaults.Session),
		Acquisition: pick(overrides.Acquisition, defaults.Acquisition),
		Run:         pick(overrides.Run, defaults.Run),
	}
}

func pick(override, def string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return strings.TrimSpace(def)
}
