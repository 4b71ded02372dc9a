// SPDX-License-Identifier: AGPL-3.0-or-later
package bids

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/neurogears/antsct-prep/internal/types"
	"github.com/spf13/afero"
)

// NiftiExtensions are the image extensions accepted for anatomical input.
var NiftiExtensions = []string{".nii", ".nii.gz"}

// File is one dataset file matched by a query.
type File struct {
	// Path is the file location on the layout's filesystem.
	Path string
	// Rel is Path relative to the dataset root, slash separated.
	Rel      string
	Entities Entities
}

// Filename returns the file's base name.
func (f File) Filename() string { return path.Base(f.Rel) }

// Layout queries a dataset that is already materialized on fs under root.
type Layout struct {
	fs   afero.Fs
	root string
}

// NewLayout returns a Layout rooted at root. A nil fs means the OS filesystem.
func NewLayout(fsys afero.Fs, root string) *Layout {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Layout{fs: fsys, root: filepath.Clean(root)}
}

// Root returns the dataset root directory.
func (l *Layout) Root() string { return l.root }

func (l *Layout) iofs() fs.FS {
	return afero.NewIOFS(afero.NewBasePathFs(l.fs, l.root))
}

// Query returns anatomical-folder files with the given suffix and one of exts,
// narrowed by every populated field of f. Results are ordered by relative
// path, which is the dataset-query order callers may rely on.
func (l *Layout) Query(ctx context.Context, f types.Filter, suffix string, exts []string) ([]File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok, err := afero.DirExists(l.fs, l.root); err != nil {
		return nil, fmt.Errorf("stat dataset root %s: %w", l.root, err)
	} else if !ok {
		return nil, fmt.Errorf("dataset root %s does not exist", l.root)
	}

	pattern := "sub-*/**/anat/*_" + suffix + ".*"
	matches, err := doublestar.Glob(l.iofs(), pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)

	out := make([]File, 0, len(matches))
	for _, rel := range matches {
		ent, ok := ParseFilename(rel)
		if !ok || ent.Suffix != suffix || !ent.HasExtension(exts) {
			continue
		}
		if !matchFilter(ent, f) {
			continue
		}
		out = append(out, File{
			Path:     filepath.Join(l.root, filepath.FromSlash(rel)),
			Rel:      rel,
			Entities: ent,
		})
	}
	return out, nil
}

func matchFilter(ent Entities, f types.Filter) bool {
	if f.Subject != "" && ent.Subject != f.Subject {
		return false
	}
	if f.Session != "" && ent.Session != f.Session {
		return false
	}
	if f.Acquisition != "" && ent.Acquisition != f.Acquisition {
		return false
	}
	if f.Run != "" && ent.Run != f.Run {
		return false
	}
	return true
}

// Subjects lists subject labels present at the dataset root, sorted.
func (l *Layout) Subjects(ctx context.Context) ([]string, error) {
	return l.labelDirs(ctx, l.root, "sub-")
}

// Sessions lists session labels for one subject, sorted.
func (l *Layout) Sessions(ctx context.Context, subject string) ([]string, error) {
	return l.labelDirs(ctx, filepath.Join(l.root, "sub-"+subject), "ses-")
}

func (l *Layout) labelDirs(ctx context.Context, dir, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if label := strings.TrimPrefix(e.Name(), prefix); label != "" {
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out, nil
}
