// SPDX-License-Identifier: AGPL-3.0-or-later
package resolve

import (
	"context"
	"fmt"

	"github.com/neurogears/antsct-prep/internal/bids"
	"github.com/neurogears/antsct-prep/internal/types"
	"go.uber.org/zap"
)

// AnatomicalSuffix is the BIDS suffix of the images this resolver looks for.
const AnatomicalSuffix = "T1w"

// Querier is the dataset collaborator. bids.Layout satisfies it.
type Querier interface {
	Query(ctx context.Context, f types.Filter, suffix string, exts []string) ([]bids.File, error)
	Root() string
}

// Policy decides what happens when a query yields more than one image.
type Policy int

const (
	// SelectUnique fails with AmbiguousMatch on more than one image.
	SelectUnique Policy = iota
	// SelectFirst takes the first image in query order. Best-effort only:
	// which image is first depends on dataset naming, not on content.
	SelectFirst
	// SelectIndex takes the image at an index the caller chose.
	SelectIndex
)

// Selection pairs a Policy with the index used by SelectIndex.
type Selection struct {
	Policy Policy
	Index  int
}

// SelectionFor maps the job options onto a Selection. An explicit index
// (>= 0) takes precedence over force-multiple.
func SelectionFor(forceMultiple bool, pickIndex int) Selection {
	switch {
	case pickIndex >= 0:
		return Selection{Policy: SelectIndex, Index: pickIndex}
	case forceMultiple:
		return Selection{Policy: SelectFirst}
	default:
		return Selection{Policy: SelectUnique}
	}
}

// Request is the input to Resolve.
type Request struct {
	// ManualImage, when set, bypasses the dataset entirely.
	ManualImage string
	Filter      types.Filter
}

// Resolver picks exactly one anatomical image for a job.
type Resolver struct {
	Dataset   Querier
	Selection Selection
	Logger    *zap.Logger
}

// Resolve returns the chosen candidate and its prefix, or a *types.Failure
// tagged NoMatch or AmbiguousMatch. A failed query is reported once.
func (r *Resolver) Resolve(ctx context.Context, req Request) (types.Resolution, error) {
	log := r.logger()
	if req.ManualImage != "" {
		return r.resolveManual(req)
	}
	if r.Dataset == nil {
		return types.Resolution{}, fmt.Errorf("resolve: no dataset configured")
	}

	files, err := r.Dataset.Query(ctx, req.Filter, AnatomicalSuffix, bids.NiftiExtensions)
	if err != nil {
		log.Error("dataset query failed",
			zap.String("dataset", r.Dataset.Root()),
			zap.Stringer("filter", req.Filter),
			zap.Error(err))
		return types.Resolution{}, fmt.Errorf("query dataset %s: %w", r.Dataset.Root(), err)
	}

	var chosen bids.File
	switch types.CountMatches(len(files)) {
	case types.MatchNone:
		log.Warn("no anatomical files found",
			zap.String("dataset", r.Dataset.Root()),
			zap.Stringer("filter", req.Filter))
		return types.Resolution{}, types.Fail(types.ReasonNoMatch, nil,
			"no %s image in %s for %s", AnatomicalSuffix, r.Dataset.Root(), req.Filter)
	case types.MatchOne:
		chosen = files[0]
	case types.MatchMany:
		chosen, err = r.choose(files, req.Filter)
		if err != nil {
			return types.Resolution{}, err
		}
	}

	c := types.Candidate{
		Path: chosen.Path,
		Labels: types.Labels{
			Subject:     chosen.Entities.Subject,
			Session:     chosen.Entities.Session,
			Acquisition: chosen.Entities.Acquisition,
			Run:         chosen.Entities.Run,
		},
	}
	res := types.Resolution{Candidate: c, Prefix: DerivePrefix(c)}
	log.Info("anatomical image resolved",
		zap.String("path", c.Path),
		zap.String("prefix", res.Prefix))
	return res, nil
}

func (r *Resolver) choose(files []bids.File, f types.Filter) (bids.File, error) {
	log := r.logger()
	rels := make([]string, len(files))
	for i, file := range files {
		rels[i] = file.Rel
	}
	switch r.Selection.Policy {
	case SelectFirst:
		log.Warn("multiple anatomical files found, using the first in query order",
			zap.String("dataset", r.Dataset.Root()),
			zap.Stringer("filter", f),
			zap.Strings("candidates", rels))
		return files[0], nil
	case SelectIndex:
		if r.Selection.Index < len(files) {
			log.Info("multiple anatomical files found, using the selected index",
				zap.Int("index", r.Selection.Index),
				zap.Strings("candidates", rels))
			return files[r.Selection.Index], nil
		}
		log.Warn("selected index out of range",
			zap.Int("index", r.Selection.Index),
			zap.Strings("candidates", rels))
		return bids.File{}, types.Fail(types.ReasonAmbiguousMatch, nil,
			"index %d out of range for %d images in %s", r.Selection.Index, len(files), r.Dataset.Root())
	default:
		log.Warn("multiple anatomical files found; set force-multiple or pick-index to choose one",
			zap.String("dataset", r.Dataset.Root()),
			zap.Stringer("filter", f),
			zap.Strings("candidates", rels))
		return bids.File{}, types.Fail(types.ReasonAmbiguousMatch, nil,
			"%d %s images in %s for %s", len(files), AnatomicalSuffix, r.Dataset.Root(), f)
	}
}

func (r *Resolver) resolveManual(req Request) (types.Resolution, error) {
	if req.Filter.Subject == "" || req.Filter.Session == "" {
		return types.Resolution{}, types.Fail(types.ReasonInvalidConfig, nil,
			"manual image %s needs subject and session labels", req.ManualImage)
	}
	c := types.Candidate{
		Path:   req.ManualImage,
		Manual: true,
		Labels: types.Labels{
			Subject: SanitizeLabel(req.Filter.Subject),
			Session: SanitizeLabel(req.Filter.Session),
		},
	}
	res := types.Resolution{Candidate: c, Prefix: DerivePrefix(c)}
	r.logger().Info("using manually supplied anatomical image",
		zap.String("path", c.Path),
		zap.String("prefix", res.Prefix))
	return res, nil
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
