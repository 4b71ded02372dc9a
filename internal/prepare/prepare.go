// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prepare runs the preparation steps for one job: build the filter,
// resolve the anatomical image, stage the template bundle when one is
// requested, then assemble and persist the pipeline command.
package prepare

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/neurogears/antsct-prep/internal/bids"
	"github.com/neurogears/antsct-prep/internal/events"
	"github.com/neurogears/antsct-prep/internal/paths"
	"github.com/neurogears/antsct-prep/internal/resolve"
	"github.com/neurogears/antsct-prep/internal/runspec"
	"github.com/neurogears/antsct-prep/internal/templates"
	"github.com/neurogears/antsct-prep/internal/types"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Step names as they appear in progress events.
const (
	StepLabels   = "labels"
	StepResolve  = "resolve"
	StepTemplate = "template"
	StepAssemble = "assemble"
	StepWrite    = "write"
)

const (
	statusCompleted = "completed"
	statusFailed    = "failed"
	templateSubdir  = "templates"
)

// Preparer wires the collaborators for a run. Zero-valued fields fall back
// to the OS filesystem, a layout over Settings.BIDSDir and a catalog over
// Settings.TemplateFlowHome.
type Preparer struct {
	FS      afero.Fs
	Dataset resolve.Querier
	Catalog templates.Catalog
	Sink    events.Sink
	Logger  *zap.Logger
	// NewRunID overrides run identifier generation.
	NewRunID func() string
}

// Result is everything a successful run produced.
type Result struct {
	RunID      string
	Filter     types.Filter
	Resolution types.Resolution
	Template   templates.Staged
	Spec       types.RunSpec
}

// Run executes every step in order and stops at the first failure.
func (p *Preparer) Run(ctx context.Context, s types.Settings) (res Result, err error) {
	res.RunID = p.runID()
	log := p.logger().With(zap.String("run_id", res.RunID))
	sink := p.sink()

	sink.EmitRunStart(res.RunID, s.JobID)
	defer func() {
		status := statusCompleted
		if err != nil {
			status = statusFailed
		}
		sink.EmitRunFinish(res.RunID, status, err)
	}()

	fsys := p.fs()
	if err = clearArtifact(fsys, s.OutputDir, log); err != nil {
		return res, err
	}

	// The layout also supplies missing labels for a manual image, but a
	// manual image is never looked up in it.
	layout, _ := p.Dataset.(*bids.Layout)
	if layout == nil && p.Dataset == nil && (s.ManualT1 == "" || s.BIDSDir != "") {
		layout = bids.NewLayout(fsys, s.BIDSDir)
	}
	var dataset resolve.Querier
	if s.ManualT1 == "" {
		dataset = p.Dataset
		if dataset == nil {
			dataset = layout
		}
	}

	// labels
	sink.EmitStepStart(res.RunID, StepLabels)
	defaults := s.Defaults
	if layout != nil && (defaults.Subject == "" || defaults.Session == "") {
		defaults = fillFromLayout(ctx, layout, defaults, log)
	}
	res.Filter = resolve.BuildFilter(defaults, s.Overrides)
	sink.EmitStepLog(res.RunID, StepLabels, "filter "+res.Filter.String())
	sink.EmitStepFinish(res.RunID, StepLabels, map[string]interface{}{"filter": res.Filter.String()}, nil)

	// resolve
	sink.EmitStepStart(res.RunID, StepResolve)
	resolver := &resolve.Resolver{
		Dataset:   dataset,
		Selection: resolve.SelectionFor(s.ForceMultiple, s.PickIndex),
		Logger:    log,
	}
	res.Resolution, err = resolver.Resolve(ctx, resolve.Request{ManualImage: s.ManualT1, Filter: res.Filter})
	if err != nil {
		sink.EmitStepFinish(res.RunID, StepResolve, nil, err)
		return res, err
	}
	sink.EmitStepFinish(res.RunID, StepResolve, map[string]interface{}{
		"path":   res.Resolution.Candidate.Path,
		"prefix": res.Resolution.Prefix,
		"manual": res.Resolution.Candidate.Manual,
	}, nil)

	// template
	if s.WantsTemplate() {
		sink.EmitStepStart(res.RunID, StepTemplate)
		catalog := p.Catalog
		if catalog == nil && s.TemplateArchive == "" {
			catalog = templates.NewFSCatalog(fsys, s.TemplateFlowHome)
		}
		tr := &templates.Resolver{
			FS:        fsys,
			Catalog:   catalog,
			StageRoot: filepath.Join(s.WorkDir, templateSubdir),
			Logger:    log,
		}
		res.Template, err = tr.Resolve(ctx, s.TemplateArchive, s.TemplateName)
		if err != nil {
			sink.EmitStepFinish(res.RunID, StepTemplate, nil, err)
			return res, err
		}
		data := map[string]interface{}{"dir": res.Template.Dir}
		if res.Template.Bundle != nil {
			data["files"] = len(res.Template.Bundle.Files())
		}
		sink.EmitStepFinish(res.RunID, StepTemplate, data, nil)
	}

	// assemble
	sink.EmitStepStart(res.RunID, StepAssemble)
	res.Spec, err = runspec.Build(s, res.Resolution, res.Template.Dir)
	if err != nil {
		sink.EmitStepFinish(res.RunID, StepAssemble, nil, err)
		return res, err
	}
	res.Spec.RunID = res.RunID
	sink.EmitStepLog(res.RunID, StepAssemble, res.Spec.Command)
	sink.EmitStepFinish(res.RunID, StepAssemble, nil, nil)

	// write
	sink.EmitStepStart(res.RunID, StepWrite)
	artifact, err := runspec.Write(fsys, &res.Spec)
	if err != nil {
		log.Error("command artifact not written", zap.Error(err))
		sink.EmitStepFinish(res.RunID, StepWrite, nil, err)
		return res, err
	}
	log.Info("command artifact written", zap.String("path", artifact))
	sink.EmitStepFinish(res.RunID, StepWrite, map[string]interface{}{"artifact": artifact}, nil)
	return res, nil
}

// fillFromLayout completes missing subject/session defaults when the dataset
// holds exactly one of each.
func fillFromLayout(ctx context.Context, layout *bids.Layout, defaults types.Labels, log *zap.Logger) types.Labels {
	if defaults.Subject == "" {
		subjects, err := layout.Subjects(ctx)
		if err != nil {
			log.Debug("subject listing failed", zap.Error(err))
			return defaults
		}
		if len(subjects) != 1 {
			return defaults
		}
		defaults.Subject = subjects[0]
		log.Info("subject taken from dataset", zap.String("subject", defaults.Subject))
	}
	if defaults.Session == "" {
		sessions, err := layout.Sessions(ctx, defaults.Subject)
		if err != nil {
			log.Debug("session listing failed", zap.Error(err))
			return defaults
		}
		if len(sessions) == 1 {
			defaults.Session = sessions[0]
			log.Info("session taken from dataset", zap.String("session", defaults.Session))
		}
	}
	return defaults
}

// clearArtifact removes a command script left by an earlier invocation so a
// failed run cannot be mistaken for a successful one.
func clearArtifact(fsys afero.Fs, outputDir string, log *zap.Logger) error {
	target := paths.ArtifactPath(outputDir)
	err := fsys.Remove(target)
	switch {
	case err == nil:
		log.Info("removed command artifact from an earlier run", zap.String("path", target))
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return types.Fail(types.ReasonArtifactWriteFailure, err, "remove stale %s", target)
	}
}

func (p *Preparer) runID() string {
	if p.NewRunID != nil {
		if id := p.NewRunID(); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

func (p *Preparer) fs() afero.Fs {
	if p.FS == nil {
		return afero.NewOsFs()
	}
	return p.FS
}

func (p *Preparer) sink() events.Sink {
	if p.Sink == nil {
		return events.Discard
	}
	return p.Sink
}

func (p *Preparer) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Describe renders a one-line summary of a finished run.
func Describe(res Result) string {
	if res.Template.Dir != "" {
		return fmt.Sprintf("%s -> %s (template %s)", res.Resolution.Candidate.Path, res.Spec.ArtifactPath, res.Template.Dir)
	}
	return fmt.Sprintf("%s -> %s", res.Resolution.Candidate.Path, res.Spec.ArtifactPath)
}
