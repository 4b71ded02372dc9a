// SPDX-License-Identifier: AGPL-3.0-or-later
package types

// RunSpec fully describes one pipeline invocation. The invocation fields are
// fixed once built; RunID and ArtifactPath record where it went.
type RunSpec struct {
	RunID             string   `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Executable        string   `json:"executable" yaml:"executable"`
	AnatomicalImage   string   `json:"anatomical_image" yaml:"anatomical_image"`
	OutputDir         string   `json:"output_dir" yaml:"output_dir"`
	OutputFileRoot    string   `json:"output_file_root" yaml:"output_file_root"`
	TemplateDir       string   `json:"template_dir,omitempty" yaml:"template_dir,omitempty"`
	Denoise           int      `json:"denoise" yaml:"denoise"`
	NumThreads        int      `json:"num_threads" yaml:"num_threads"`
	RunQuick          int      `json:"run_quick" yaml:"run_quick"`
	TrimNeck          int      `json:"trim_neck" yaml:"trim_neck"`
	MNICorticalLabels []string `json:"mni_cortical_labels,omitempty" yaml:"mni_cortical_labels,omitempty"`
	MNILabels         []string `json:"mni_labels,omitempty" yaml:"mni_labels,omitempty"`
	Command           string   `json:"command,omitempty" yaml:"command,omitempty"`
	ArtifactPath      string   `json:"artifact_path,omitempty" yaml:"artifact_path,omitempty"`
}

// BoolFlag renders a boolean the way the pipeline expects it (0 or 1).
func BoolFlag(v bool) int {
	if v {
		return 1
	}
	return 0
}
