// SPDX-License-Identifier: AGPL-3.0-or-later

package configloader

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/neurogears/antsct-prep/internal/argsloader"
	"github.com/neurogears/antsct-prep/internal/events"
	"github.com/neurogears/antsct-prep/internal/paths"
	"github.com/neurogears/antsct-prep/internal/types"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LoadJobFile decodes a job description. config.json decodes through the
// YAML decoder as JSON is valid YAML. A missing file yields (nil, nil) unless
// required is set.
func LoadJobFile(path string, required bool) (*types.JobFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil, nil
		}
		return nil, fmt.Errorf("open job file: %w", err)
	}
	defer f.Close()

	var job types.JobFile
	if err := yaml.NewDecoder(f).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode job file %s: %w", path, err)
	}
	job.Labels.Subject = strings.TrimSpace(job.Labels.Subject)
	job.Labels.Session = strings.TrimSpace(job.Labels.Session)
	return &job, nil
}

// Merge feeds the job file into v as its config layer, below flags and env.
// Config keys use option names; file inputs map onto their options.
func Merge(v *viper.Viper, job *types.JobFile) error {
	if job == nil {
		return nil
	}
	layer := make(map[string]interface{}, len(job.Config)+2)
	for k, val := range job.Config {
		o, ok := argsloader.Lookup(k)
		if !ok {
			continue
		}
		layer[o.Name] = val
	}
	for _, o := range argsloader.Options {
		if o.Input == "" {
			continue
		}
		if p := job.InputPath(o.Input); p != "" {
			layer[o.Name] = p
		}
	}
	if err := v.MergeConfigMap(layer); err != nil {
		return fmt.Errorf("merge job config: %w", err)
	}
	return nil
}

// Resolve reads the effective option values from v into validated Settings.
func Resolve(v *viper.Viper, job *types.JobFile) (types.Settings, error) {
	s := types.Settings{
		Executable:        strings.TrimSpace(v.GetString("executable")),
		BIDSDir:           strings.TrimSpace(v.GetString("bids-dir")),
		OutputDir:         strings.TrimSpace(v.GetString("output-dir")),
		ManualT1:          strings.TrimSpace(v.GetString("t1-anatomy")),
		TemplateArchive:   strings.TrimSpace(v.GetString("template-archive")),
		TemplateName:      strings.TrimSpace(v.GetString("template-name")),
		TemplateFlowHome:  strings.TrimSpace(v.GetString("templateflow-home")),
		Denoise:           v.GetBool("denoise"),
		NumThreads:        v.GetInt("num-threads"),
		RunQuick:          v.GetBool("run-quick"),
		TrimNeck:          v.GetBool("trim-neck"),
		ForceMultiple:     v.GetBool("force-multiple"),
		PickIndex:         v.GetInt("pick-index"),
		MNICorticalLabels: v.GetStringSlice("mni-cortical-labels"),
		MNILabels:         v.GetStringSlice("mni-labels"),
		Overrides: types.Labels{
			Subject:     strings.TrimSpace(v.GetString("subject")),
			Session:     strings.TrimSpace(v.GetString("session")),
			Acquisition: strings.TrimSpace(v.GetString("acquisition")),
			Run:         strings.TrimSpace(v.GetString("run")),
		},
	}
	if job != nil {
		s.JobID = strings.TrimSpace(job.Destination.ID)
		s.Defaults = job.Labels
		s.Secrets = job.SecretValues()
	}
	if s.Executable == "" {
		s.Executable = paths.DefaultExecutable
	}
	if s.OutputDir == "" {
		return s, types.Fail(types.ReasonInvalidConfig, nil, "output-dir is required")
	}
	if s.NumThreads <= 0 {
		return s, types.Fail(types.ReasonInvalidConfig, nil, "num-threads must be positive, got %d", s.NumThreads)
	}
	if s.ManualT1 == "" && s.BIDSDir == "" {
		return s, types.Fail(types.ReasonInvalidConfig, nil, "bids-dir is required without t1-anatomy")
	}
	s.WorkDir = paths.WorkDir(s.OutputDir, s.JobID)
	return s, nil
}

var secretConfigKeys = map[string]struct{}{"api_key": {}, "api-key": {}, "gear-api-key": {}}

// ConfigView returns the job config with secret keys redacted, for logging.
func ConfigView(job *types.JobFile) map[string]interface{} {
	if job == nil {
		return nil
	}
	return events.RedactSecrets(job.Config, secretConfigKeys)
}
