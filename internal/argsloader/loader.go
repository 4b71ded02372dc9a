// SPDX-License-Identifier: AGPL-3.0-or-later
package argsloader

import (
	"fmt"
	"strings"

	"github.com/neurogears/antsct-prep/internal/paths"
	"github.com/neurogears/antsct-prep/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options is the job option table shared by flags, environment and job file.
var Options = []types.Option{
	{Name: "job-file", Type: "string", Format: "path", Default: "/flywheel/v0/config.json", Description: "Job description (config.json or YAML)"},
	{Name: "bids-dir", Type: "string", Format: "path", Default: "/flywheel/v0/input/" + paths.DefaultBIDSDirName, Description: "Materialized BIDS dataset"},
	{Name: "output-dir", Type: "string", Format: "path", Default: "/flywheel/v0/output", Description: "Pipeline output directory; the command script is written here"},
	{Name: "executable", Type: "string", Format: "path", Default: paths.DefaultExecutable, Description: "Pipeline entry point"},
	{Name: "t1-anatomy", Type: "string", Format: "path", Input: "t1_anatomy", Description: "Manually selected T1w image; bypasses the dataset query"},
	{Name: "template-archive", Type: "string", Format: "path", Input: "template_archive", Description: "Zip or tar(.gz) archive holding a custom template"},
	{Name: "template-name", Type: "string", Description: "Catalog template identifier, e.g. MNI152NLin2009cAsym"},
	{Name: "templateflow-home", Type: "string", Format: "path", Default: "/opt/templateflow", Description: "Local template catalog root"},
	{Name: "subject", Type: "string", Description: "Override the subject label"},
	{Name: "session", Type: "string", Description: "Override the session label"},
	{Name: "acquisition", Type: "string", Description: "Restrict to an acquisition label"},
	{Name: "run", Type: "string", Description: "Restrict to a run label"},
	{Name: "denoise", Type: "boolean", Default: true, Description: "Denoise the anatomical image"},
	{Name: "num-threads", Type: "integer", Default: 1, Description: "Threads for the pipeline"},
	{Name: "run-quick", Type: "boolean", Default: false, Description: "Use quick registration"},
	{Name: "trim-neck", Type: "boolean", Default: true, Description: "Trim the neck before processing"},
	{Name: "force-multiple", Type: "boolean", Default: false, Description: "Use the first image when several match (best effort)"},
	{Name: "pick-index", Type: "integer", Default: -1, Description: "Use the image at this index when several match"},
	{Name: "mni-cortical-labels", Type: "array", Format: "path", Description: "Cortical label images in MNI space"},
	{Name: "mni-labels", Type: "array", Format: "path", Description: "Label images in MNI space"},
}

// Lookup returns the option with the given name in either spelling.
func Lookup(name string) (types.Option, bool) {
	name = NormalizeName(name)
	for _, o := range Options {
		if o.Name == name {
			return o, true
		}
	}
	return types.Option{}, false
}

// NormalizeName maps option spellings onto the canonical dashed form, so
// "num_threads" and "num-threads" name the same option.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

func normalizeFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(NormalizeName(name))
}

// AttachFlags registers a flag per option on cmd and binds each one into v,
// together with its ANTSCT_* environment variable and default.
func AttachFlags(cmd *cobra.Command, v *viper.Viper, opts []types.Option) error {
	v.SetEnvPrefix("ANTSCT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalizeFlag)
	for _, o := range opts {
		if err := registerFlag(fs, o); err != nil {
			return err
		}
		if o.Format == "path" && o.Type == "string" {
			_ = cmd.MarkFlagFilename(o.Name)
		}
		if o.Default != nil {
			v.SetDefault(o.Name, o.Default)
		}
		if err := v.BindPFlag(o.Name, fs.Lookup(o.Name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", o.Name, err)
		}
	}
	if err := v.BindEnv("templateflow-home", "ANTSCT_TEMPLATEFLOW_HOME", "TEMPLATEFLOW_HOME"); err != nil {
		return fmt.Errorf("bind env templateflow-home: %w", err)
	}
	return nil
}

func registerFlag(fs *pflag.FlagSet, o types.Option) error {
	switch o.Type {
	case "string":
		def, _ := o.Default.(string)
		fs.String(o.Name, def, o.Description)
	case "boolean":
		def, _ := o.Default.(bool)
		fs.Bool(o.Name, def, o.Description)
	case "integer":
		def, _ := o.Default.(int)
		fs.Int(o.Name, def, o.Description)
	case "array":
		fs.StringSlice(o.Name, nil, o.Description)
	default:
		return fmt.Errorf("unsupported option type %q for %s", o.Type, o.Name)
	}
	return nil
}
