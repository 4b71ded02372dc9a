// SPDX-License-Identifier: AGPL-3.0-or-later
package types

// JobFile mirrors the job description handed to the gear (config.json or its
// YAML equivalent). JSON decodes through the YAML decoder unchanged.
type JobFile struct {
	Config      map[string]interface{} `yaml:"config,omitempty"`
	Inputs      map[string]JobInput    `yaml:"inputs,omitempty"`
	Destination Destination            `yaml:"destination,omitempty"`
	// Labels carries the container-derived subject/session of the analysis.
	Labels Labels `yaml:"labels,omitempty"`
}

// JobInput is one named input of the job. File inputs carry a location;
// api-key inputs carry a key.
type JobInput struct {
	Base     string        `yaml:"base,omitempty"`
	Key      string        `yaml:"key,omitempty"`
	Location InputLocation `yaml:"location,omitempty"`
}

type InputLocation struct {
	Path string `yaml:"path,omitempty"`
	Name string `yaml:"name,omitempty"`
}

// Destination identifies the analysis container the job writes into.
type Destination struct {
	ID   string `yaml:"id,omitempty"`
	Type string `yaml:"type,omitempty"`
}

// InputPath returns the local path of a file input, or "" when absent.
func (j *JobFile) InputPath(name string) string {
	if j == nil || j.Inputs == nil {
		return ""
	}
	in, ok := j.Inputs[name]
	if !ok {
		return ""
	}
	return in.Location.Path
}

// SecretValues lists every api-key value so callers can redact it.
func (j *JobFile) SecretValues() []string {
	if j == nil {
		return nil
	}
	var out []string
	for _, in := range j.Inputs {
		if in.Key != "" {
			out = append(out, in.Key)
		}
	}
	return out
}

// Settings is the validated, explicit context for one job. It is threaded
// through every preparation step instead of process-wide state.
type Settings struct {
	JobID      string `json:"job_id,omitempty" yaml:"job_id,omitempty"`
	Executable string `json:"executable" yaml:"executable"`
	BIDSDir    string `json:"bids_dir" yaml:"bids_dir"`
	OutputDir  string `json:"output_dir" yaml:"output_dir"`
	WorkDir    string `json:"work_dir" yaml:"work_dir"`

	ManualT1         string `json:"t1_anatomy,omitempty" yaml:"t1_anatomy,omitempty"`
	TemplateArchive  string `json:"template_archive,omitempty" yaml:"template_archive,omitempty"`
	TemplateName     string `json:"template_name,omitempty" yaml:"template_name,omitempty"`
	TemplateFlowHome string `json:"templateflow_home,omitempty" yaml:"templateflow_home,omitempty"`

	// Defaults are the container-derived labels; Overrides win per field.
	Defaults  Labels `json:"defaults" yaml:"defaults"`
	Overrides Labels `json:"overrides" yaml:"overrides"`

	Denoise    bool `json:"denoise" yaml:"denoise"`
	NumThreads int  `json:"num_threads" yaml:"num_threads"`
	RunQuick   bool `json:"run_quick" yaml:"run_quick"`
	TrimNeck   bool `json:"trim_neck" yaml:"trim_neck"`

	ForceMultiple bool `json:"force_multiple" yaml:"force_multiple"`
	// PickIndex selects one of several matches explicitly; negative means unset.
	PickIndex int `json:"pick_index" yaml:"pick_index"`

	MNICorticalLabels []string `json:"mni_cortical_labels,omitempty" yaml:"mni_cortical_labels,omitempty"`
	MNILabels         []string `json:"mni_labels,omitempty" yaml:"mni_labels,omitempty"`

	Secrets []string `json:"-" yaml:"-"`
}

// WantsTemplate reports whether a custom template bundle was requested.
func (s Settings) WantsTemplate() bool {
	return s.TemplateArchive != "" || s.TemplateName != ""
}
