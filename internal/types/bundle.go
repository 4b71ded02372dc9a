// SPDX-License-Identifier: AGPL-3.0-or-later
package types

import "fmt"

// MinTissuePriors is the smallest number of tissue probability maps a bundle may carry.
const MinTissuePriors = 7

// Bundle is the set of template files staged for the pipeline.
type Bundle struct {
	// Original is the plain T1w template. It may be empty; the pipeline only
	// requires the brain-extracted variant.
	Original string   `json:"original,omitempty"`
	Brain    string   `json:"brain"`
	Mask     string   `json:"mask"`
	Probseg  []string `json:"probseg"`
}

// Files lists every populated path in staging order.
func (b Bundle) Files() []string {
	out := make([]string, 0, 3+len(b.Probseg))
	if b.Original != "" {
		out = append(out, b.Original)
	}
	out = append(out, b.Brain, b.Mask)
	out = append(out, b.Probseg...)
	return out
}

// Validate checks the mandatory components.
func (b Bundle) Validate() error {
	if b.Brain == "" {
		return fmt.Errorf("brain-extracted T1w missing")
	}
	if b.Mask == "" {
		return fmt.Errorf("registration mask missing")
	}
	if len(b.Probseg) < MinTissuePriors {
		return fmt.Errorf("found %d tissue probability maps, need at least %d", len(b.Probseg), MinTissuePriors)
	}
	return nil
}
