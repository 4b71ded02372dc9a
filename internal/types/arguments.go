// SPDX-License-Identifier: AGPL-3.0-or-later
package types

// Option declares one job setting that can come from the job file, the
// environment or a CLI flag.
// Types: string | integer | boolean | array
// Formats: path | secret
type Option struct {
	Name        string      `yaml:"name" json:"name"`
	Type        string      `yaml:"type" json:"type"`
	Format      string      `yaml:"format,omitempty" json:"format,omitempty"`
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	// Input marks options that map onto job-file inputs rather than config keys.
	Input string `yaml:"input,omitempty" json:"input,omitempty"`
}
