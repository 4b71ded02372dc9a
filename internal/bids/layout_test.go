package bids

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/neurogears/antsct-prep/internal/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, fsys afero.Fs, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, fsys.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, afero.WriteFile(fsys, p, []byte("nifti"), 0o644))
	}
}

func TestParseFilename(t *testing.T) {
	ent, ok := ParseFilename("/data/sub-01/ses-A/anat/sub-01_ses-A_acq-mprage_run-2_T1w.nii.gz")
	require.True(t, ok)
	assert.Equal(t, "01", ent.Subject)
	assert.Equal(t, "A", ent.Session)
	assert.Equal(t, "mprage", ent.Acquisition)
	assert.Equal(t, "2", ent.Run)
	assert.Equal(t, "T1w", ent.Suffix)
	assert.Equal(t, ".nii.gz", ent.Extension)

	tpl, ok := ParseFilename("tpl-OASIS_res-01_label-CSF_probseg.nii.gz")
	require.True(t, ok)
	assert.Equal(t, "OASIS", tpl.Template)
	assert.Equal(t, "01", tpl.Resolution)
	assert.Equal(t, "CSF", tpl.Label)
	assert.Equal(t, "probseg", tpl.Suffix)

	_, ok = ParseFilename("sub-01_ses-A.nii")
	assert.False(t, ok, "stem without suffix")
	_, ok = ParseFilename("sub_T1w.nii")
	assert.False(t, ok, "malformed pair")
}

func TestLayoutQueryFiltersAndOrders(t *testing.T) {
	fsys := afero.NewMemMapFs()
	root := "/bids"
	writeFiles(t, fsys, root,
		"sub-01/ses-A/anat/sub-01_ses-A_run-2_T1w.nii.gz",
		"sub-01/ses-A/anat/sub-01_ses-A_run-1_T1w.nii.gz",
		"sub-01/ses-A/anat/sub-01_ses-A_run-1_T1w.json",
		"sub-01/ses-A/anat/sub-01_ses-A_T2w.nii.gz",
		"sub-01/ses-B/anat/sub-01_ses-B_T1w.nii",
		"sub-02/anat/sub-02_T1w.nii.gz",
		"sub-01/ses-A/func/sub-01_ses-A_task-rest_bold.nii.gz",
	)
	layout := NewLayout(fsys, root)
	ctx := context.Background()

	files, err := layout.Query(ctx, types.Filter{Subject: "01", Session: "A"}, "T1w", NiftiExtensions)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "sub-01_ses-A_run-1_T1w.nii.gz", files[0].Filename())
	assert.Equal(t, "sub-01_ses-A_run-2_T1w.nii.gz", files[1].Filename())
	assert.Equal(t, filepath.Join(root, "sub-01", "ses-A", "anat", "sub-01_ses-A_run-1_T1w.nii.gz"), files[0].Path)

	files, err = layout.Query(ctx, types.Filter{Subject: "01", Session: "A", Run: "2"}, "T1w", NiftiExtensions)
	require.NoError(t, err)
	require.Len(t, files, 1)

	files, err = layout.Query(ctx, types.Filter{Subject: "02"}, "T1w", NiftiExtensions)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "sub-02/anat/sub-02_T1w.nii.gz", files[0].Rel)

	files, err = layout.Query(ctx, types.Filter{Subject: "03"}, "T1w", NiftiExtensions)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLayoutMissingRoot(t *testing.T) {
	layout := NewLayout(afero.NewMemMapFs(), "/nowhere")
	_, err := layout.Query(context.Background(), types.Filter{}, "T1w", NiftiExtensions)
	require.Error(t, err)
}

func TestLayoutSubjectsAndSessions(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, "/bids",
		"sub-02/ses-B/anat/sub-02_ses-B_T1w.nii.gz",
		"sub-01/ses-A/anat/sub-01_ses-A_T1w.nii.gz",
		"dataset_description.json",
	)
	layout := NewLayout(fsys, "/bids")
	subs, err := layout.Subjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02"}, subs)

	sessions, err := layout.Sessions(context.Background(), "02")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, sessions)
}
