// SPDX-License-Identifier: AGPL-3.0-or-later
package resolve

import (
	"path/filepath"
	"strings"

	"github.com/neurogears/antsct-prep/internal/types"
)

const (
	// FieldSeparator joins BIDS entities; every prefix ends with it.
	FieldSeparator = "_"
	// labelSeparator stands in for underscores inside manual labels.
	labelSeparator = "x"
	modalitySuffix = "_T1w"
)

// SanitizeLabel replaces underscores so a label cannot be mistaken for an
// entity boundary. Already-sanitized labels are returned unchanged.
func SanitizeLabel(label string) string {
	return strings.ReplaceAll(label, FieldSeparator, labelSeparator)
}

// DerivePrefix returns the output-file-root for a candidate.
//
// Manual images get "sub-<S>_ses-<T>_" from the sanitized job labels. Dataset
// images keep their own naming: extension and the "_T1w" suffix are dropped,
// which preserves acq/run qualifiers the job labels do not know about.
func DerivePrefix(c types.Candidate) string {
	if c.Manual {
		return "sub-" + SanitizeLabel(c.Labels.Subject) + FieldSeparator +
			"ses-" + SanitizeLabel(c.Labels.Session) + FieldSeparator
	}
	base := filepath.Base(c.Path)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	base = strings.ReplaceAll(base, modalitySuffix, "")
	if !strings.HasSuffix(base, FieldSeparator) {
		base += FieldSeparator
	}
	return base
}
