// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runspec assembles the pipeline invocation and persists it as the
// command artifact.
package runspec

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/neurogears/antsct-prep/internal/paths"
	"github.com/neurogears/antsct-prep/internal/types"
	"github.com/spf13/afero"
)

// Build merges the resolved input, the optional template directory and the
// job settings into a RunSpec. It does not touch the filesystem.
func Build(s types.Settings, res types.Resolution, templateDir string) (types.RunSpec, error) {
	if s.NumThreads <= 0 {
		return types.RunSpec{}, types.Fail(types.ReasonInvalidConfig, nil, "num-threads must be positive, got %d", s.NumThreads)
	}
	if res.Candidate.Path == "" || res.Prefix == "" {
		return types.RunSpec{}, fmt.Errorf("build run spec: unresolved anatomical input")
	}
	exe := s.Executable
	if exe == "" {
		exe = paths.DefaultExecutable
	}
	spec := types.RunSpec{
		Executable:        exe,
		AnatomicalImage:   res.Candidate.Path,
		OutputDir:         s.OutputDir,
		OutputFileRoot:    res.Prefix,
		TemplateDir:       templateDir,
		Denoise:           types.BoolFlag(s.Denoise),
		NumThreads:        s.NumThreads,
		RunQuick:          types.BoolFlag(s.RunQuick),
		TrimNeck:          types.BoolFlag(s.TrimNeck),
		MNICorticalLabels: nonEmpty(s.MNICorticalLabels),
		MNILabels:         nonEmpty(s.MNILabels),
	}
	spec.Command = Command(spec)
	return spec, nil
}

// Command serializes spec into one line. The flag order is fixed; optional
// flags are emitted only when they carry a value.
func Command(spec types.RunSpec) string {
	words := []string{spec.Executable,
		"--anatomical-image", spec.AnatomicalImage,
		"--output-dir", spec.OutputDir,
		"--output-file-root", spec.OutputFileRoot,
		"--denoise", strconv.Itoa(spec.Denoise),
		"--num-threads", strconv.Itoa(spec.NumThreads),
		"--run-quick", strconv.Itoa(spec.RunQuick),
		"--trim-neck", strconv.Itoa(spec.TrimNeck),
	}
	if len(spec.MNICorticalLabels) > 0 {
		words = append(words, "--mni-cortical-labels")
		words = append(words, spec.MNICorticalLabels...)
	}
	if len(spec.MNILabels) > 0 {
		words = append(words, "--mni-labels")
		words = append(words, spec.MNILabels...)
	}
	if spec.TemplateDir != "" {
		words = append(words, "--template-dir", spec.TemplateDir)
	}
	return shellquote.Join(words...)
}

// Write persists the command line at the fixed artifact path under the
// output directory. The file is written beside its destination and renamed
// into place, so a failed write never leaves a partial artifact.
func Write(fsys afero.Fs, spec *types.RunSpec) (string, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if spec.Command == "" {
		spec.Command = Command(*spec)
	}
	target := paths.ArtifactPath(spec.OutputDir)
	fail := func(err error) (string, error) {
		return "", types.Fail(types.ReasonArtifactWriteFailure, err, "%s", target)
	}
	if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fail(err)
	}
	tmp, err := afero.TempFile(fsys, filepath.Dir(target), "."+paths.ArtifactName+".*")
	if err != nil {
		return fail(err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.WriteString(spec.Command)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = fsys.Remove(tmpName)
		if werr == nil {
			werr = cerr
		}
		return fail(werr)
	}
	if err := fsys.Chmod(tmpName, 0o755); err != nil {
		_ = fsys.Remove(tmpName)
		return fail(err)
	}
	if err := fsys.Rename(tmpName, target); err != nil {
		_ = fsys.Remove(tmpName)
		return fail(err)
	}
	if ok, err := afero.Exists(fsys, target); err != nil || !ok {
		if err == nil {
			err = os.ErrNotExist
		}
		return fail(err)
	}
	spec.ArtifactPath = target
	return target, nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
