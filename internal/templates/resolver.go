// SPDX-License-Identifier: AGPL-3.0-or-later

// Package templates stages the template bundle handed to the pipeline, either
// by unpacking a supplied archive or by assembling it from a catalog.
package templates

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/neurogears/antsct-prep/internal/paths"
	"github.com/neurogears/antsct-prep/internal/types"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	DefaultResolution = "01"
	brainDesc         = "brain"
	maskDesc          = "BrainCerebellumExtraction"
)

// Staged is a template directory ready for the pipeline. Bundle is nil for
// archives, whose contents are not inspected.
type Staged struct {
	Dir    string
	Bundle *types.Bundle
}

// Resolver builds template directories under StageRoot.
type Resolver struct {
	// FS holds the archive, the catalog files and the staging area.
	FS        afero.Fs
	Catalog   Catalog
	StageRoot string
	Logger    *zap.Logger
}

// Resolve stages the archive when one is given, otherwise the catalog template.
func (r *Resolver) Resolve(ctx context.Context, archive, templateID string) (Staged, error) {
	if archive != "" {
		return r.FromArchive(ctx, archive)
	}
	return r.FromCatalog(ctx, templateID)
}

// FromArchive extracts archive into StageRoot/<archive stem>.
func (r *Resolver) FromArchive(ctx context.Context, archive string) (Staged, error) {
	if err := ctx.Err(); err != nil {
		return Staged{}, err
	}
	stem := paths.ArchiveStem(archive)
	if stem == "" || stem == "." || stem == ".." {
		return Staged{}, types.Fail(types.ReasonInvalidConfig, nil, "template archive %s has no usable name", archive)
	}
	fsys := r.fs()
	dest := filepath.Join(r.StageRoot, stem)
	if err := r.freshDir(fsys, dest); err != nil {
		return Staged{}, err
	}
	n, err := extract(fsys, archive, dest)
	if err != nil {
		_ = fsys.RemoveAll(dest)
		return Staged{}, fmt.Errorf("extract template archive %s: %w", archive, err)
	}
	r.logger().Info("template archive extracted",
		zap.String("archive", archive),
		zap.String("dir", dest),
		zap.Int("files", n))
	return Staged{Dir: dest}, nil
}

// FromCatalog looks up every bundle component for templateID and copies the
// files into StageRoot/<templateID>. Nothing is staged unless the bundle is
// complete.
func (r *Resolver) FromCatalog(ctx context.Context, templateID string) (Staged, error) {
	if r.Catalog == nil {
		return Staged{}, fmt.Errorf("no template catalog configured")
	}
	if !templateIDPattern.MatchString(templateID) {
		return Staged{}, types.Fail(types.ReasonInvalidConfig, nil, "invalid template identifier %q", templateID)
	}
	bundle, err := r.lookup(ctx, templateID)
	if err != nil {
		return Staged{}, err
	}
	if err := bundle.Validate(); err != nil {
		return Staged{}, types.Fail(types.ReasonIncompleteTemplate, err, "template %s", templateID)
	}

	fsys := r.fs()
	dest := filepath.Join(r.StageRoot, templateID)
	if err := r.freshDir(fsys, dest); err != nil {
		return Staged{}, err
	}
	staged := types.Bundle{}
	stage := func(src string) (string, error) {
		dst := filepath.Join(dest, filepath.Base(src))
		if err := copyFile(fsys, src, dst); err != nil {
			return "", err
		}
		return dst, nil
	}
	err = func() error {
		var err error
		if bundle.Original != "" {
			if staged.Original, err = stage(bundle.Original); err != nil {
				return err
			}
		}
		if staged.Brain, err = stage(bundle.Brain); err != nil {
			return err
		}
		if staged.Mask, err = stage(bundle.Mask); err != nil {
			return err
		}
		for _, p := range bundle.Probseg {
			dst, err := stage(p)
			if err != nil {
				return err
			}
			staged.Probseg = append(staged.Probseg, dst)
		}
		return nil
	}()
	if err != nil {
		_ = fsys.RemoveAll(dest)
		return Staged{}, fmt.Errorf("stage template %s: %w", templateID, err)
	}
	r.logger().Info("template bundle staged",
		zap.String("template", templateID),
		zap.String("dir", dest),
		zap.Int("probseg", len(staged.Probseg)))
	return Staged{Dir: dest, Bundle: &staged}, nil
}

func (r *Resolver) lookup(ctx context.Context, templateID string) (types.Bundle, error) {
	log := r.logger().With(zap.String("template", templateID))
	var b types.Bundle

	get := func(q Query) ([]string, error) {
		files, err := r.Catalog.Get(ctx, templateID, q)
		if err != nil {
			return nil, fmt.Errorf("template catalog %s (%s): %w", templateID, q, err)
		}
		return files, nil
	}

	original := Query{Resolution: DefaultResolution, NoDesc: true, Suffix: "T1w"}
	files, err := get(original)
	if err != nil {
		return b, err
	}
	switch types.CountMatches(len(files)) {
	case types.MatchNone:
		log.Warn("no plain T1w template found, continuing without it")
	case types.MatchOne:
		b.Original = files[0]
	case types.MatchMany:
		log.Warn("multiple plain T1w templates found, continuing without one", zap.Strings("files", files))
	}

	brain := Query{Resolution: DefaultResolution, Desc: brainDesc, Suffix: "T1w"}
	if b.Brain, err = r.exactlyOne(get, templateID, brain, "brain-extracted T1w"); err != nil {
		return b, err
	}
	mask := Query{Resolution: DefaultResolution, Desc: maskDesc, Suffix: "mask"}
	if b.Mask, err = r.exactlyOne(get, templateID, mask, "registration mask"); err != nil {
		return b, err
	}

	probseg, err := get(Query{Resolution: DefaultResolution, Suffix: "probseg"})
	if err != nil {
		return b, err
	}
	if len(probseg) < types.MinTissuePriors {
		log.Error("not enough tissue probability maps",
			zap.Int("found", len(probseg)),
			zap.Int("required", types.MinTissuePriors))
		return b, types.Fail(types.ReasonIncompleteTemplate, nil,
			"template %s has %d tissue probability maps, need at least %d", templateID, len(probseg), types.MinTissuePriors)
	}
	b.Probseg = probseg
	return b, nil
}

func (r *Resolver) exactlyOne(get func(Query) ([]string, error), templateID string, q Query, what string) (string, error) {
	files, err := get(q)
	if err != nil {
		return "", err
	}
	switch types.CountMatches(len(files)) {
	case types.MatchOne:
		return files[0], nil
	case types.MatchNone:
		r.logger().Error("template component missing", zap.String("template", templateID), zap.String("component", what))
		return "", types.Fail(types.ReasonIncompleteTemplate, nil, "template %s: no %s (%s)", templateID, what, q)
	default:
		r.logger().Error("template component ambiguous", zap.String("template", templateID),
			zap.String("component", what), zap.Strings("files", files))
		return "", types.Fail(types.ReasonIncompleteTemplate, nil, "template %s: %d files for %s (%s)", templateID, len(files), what, q)
	}
}

// freshDir replaces whatever an earlier run left at dir with an empty
// directory, so a staged template never mixes two sources.
func (r *Resolver) freshDir(fsys afero.Fs, dir string) error {
	exists, err := afero.Exists(fsys, dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if exists {
		r.logger().Info("replacing previously staged template", zap.String("dir", dir))
		if err := fsys.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func copyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := fsys.OpenFile(dst, osCreateTrunc, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

func (r *Resolver) fs() afero.Fs {
	if r.FS == nil {
		return afero.NewOsFs()
	}
	return r.FS
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
