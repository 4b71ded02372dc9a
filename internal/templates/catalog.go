// SPDX-License-Identifier: AGPL-3.0-or-later
package templates

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/neurogears/antsct-prep/internal/bids"
	"github.com/spf13/afero"
)

// Query selects template files by their descriptor entities.
type Query struct {
	Resolution string
	Desc       string
	// NoDesc requires the desc entity to be absent; Desc is ignored when set.
	NoDesc bool
	Suffix string
}

func (q Query) String() string {
	desc := q.Desc
	if q.NoDesc {
		desc = "(none)"
	}
	if desc == "" {
		desc = "*"
	}
	return fmt.Sprintf("res=%s desc=%s suffix=%s", q.Resolution, desc, q.Suffix)
}

// Catalog is the remote template collaborator. It returns zero, one or many
// local paths for a template identifier and query.
type Catalog interface {
	Get(ctx context.Context, templateID string, q Query) ([]string, error)
}

var templateIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// FSCatalog serves a TemplateFlow-style tree that has been mirrored locally:
// <home>/tpl-<ID>/tpl-<ID>_res-01_desc-brain_T1w.nii.gz and so on.
type FSCatalog struct {
	FS   afero.Fs
	Home string
}

// NewFSCatalog returns a catalog rooted at home. A nil fs means the OS filesystem.
func NewFSCatalog(fsys afero.Fs, home string) *FSCatalog {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &FSCatalog{FS: fsys, Home: filepath.Clean(home)}
}

// Get returns matching NIfTI files ordered by name.
func (c *FSCatalog) Get(ctx context.Context, templateID string, q Query) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !templateIDPattern.MatchString(templateID) {
		return nil, fmt.Errorf("invalid template identifier %q", templateID)
	}
	tplDir := "tpl-" + templateID
	if ok, err := afero.DirExists(c.FS, filepath.Join(c.Home, tplDir)); err != nil {
		return nil, fmt.Errorf("stat template %s: %w", templateID, err)
	} else if !ok {
		return nil, nil
	}

	iofs := afero.NewIOFS(afero.NewBasePathFs(c.FS, c.Home))
	pattern := tplDir + "/**/" + tplDir + "_*"
	matches, err := doublestar.Glob(iofs, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)

	var out []string
	for _, rel := range matches {
		ent, ok := bids.ParseFilename(rel)
		if !ok || ent.Template != templateID || !ent.HasExtension(bids.NiftiExtensions) {
			continue
		}
		if !q.matches(ent) {
			continue
		}
		out = append(out, filepath.Join(c.Home, filepath.FromSlash(rel)))
	}
	return out, nil
}

func (q Query) matches(ent bids.Entities) bool {
	if q.Suffix != "" && ent.Suffix != q.Suffix {
		return false
	}
	if q.Resolution != "" && normRes(ent.Resolution) != normRes(q.Resolution) {
		return false
	}
	switch {
	case q.NoDesc:
		return ent.Desc == ""
	case q.Desc != "":
		return ent.Desc == q.Desc
	}
	return true
}

func normRes(r string) string {
	trimmed := strings.TrimLeft(r, "0")
	if trimmed == "" && r != "" {
		return "0"
	}
	return trimmed
}
