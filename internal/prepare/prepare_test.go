package prepare

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neurogears/antsct-prep/internal/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []string
	status string
}

func (r *recordingSink) EmitRunStart(runID, jobID string) {
	r.events = append(r.events, "start")
}

func (r *recordingSink) EmitRunFinish(runID, status string, err error) {
	r.status = status
	r.events = append(r.events, "finish")
}

func (r *recordingSink) EmitStepStart(runID, step string) {
	r.events = append(r.events, step+":start")
}

func (r *recordingSink) EmitStepLog(runID, step, message string) {}

func (r *recordingSink) EmitStepFinish(runID, step string, data map[string]interface{}, err error) {
	if err != nil {
		r.events = append(r.events, step+":failed")
		return
	}
	r.events = append(r.events, step+":done")
}

func touch(t *testing.T, fsys afero.Fs, path string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, []byte("x"), 0o644))
}

func baseSettings() types.Settings {
	return types.Settings{
		JobID:      "job1",
		Executable: "/opt/scripts/runAntsCT_nonBIDS.pl",
		BIDSDir:    "/bids",
		OutputDir:  "/out",
		WorkDir:    "/out/job1_work",
		Denoise:    true,
		NumThreads: 2,
		TrimNeck:   true,
		PickIndex:  -1,
	}
}

func seedCatalog(t *testing.T, fsys afero.Fs, id string, probsegs int) {
	t.Helper()
	dir := filepath.Join("/templateflow", "tpl-"+id)
	names := []string{
		fmt.Sprintf("tpl-%s_res-01_T1w.nii.gz", id),
		fmt.Sprintf("tpl-%s_res-01_desc-brain_T1w.nii.gz", id),
		fmt.Sprintf("tpl-%s_res-01_desc-BrainCerebellumExtraction_mask.nii.gz", id),
	}
	for i := 1; i <= probsegs; i++ {
		names = append(names, fmt.Sprintf("tpl-%s_res-01_label-%02d_probseg.nii.gz", id, i))
	}
	for _, n := range names {
		touch(t, fsys, filepath.Join(dir, n))
	}
}

func TestRunFromDatasetWithLayoutLabels(t *testing.T) {
	fsys := afero.NewMemMapFs()
	touch(t, fsys, "/bids/sub-01/ses-A/anat/sub-01_ses-A_T1w.nii.gz")
	touch(t, fsys, "/bids/sub-01/ses-A/anat/sub-01_ses-A_T2w.nii.gz")
	sink := &recordingSink{}
	p := &Preparer{FS: fsys, Sink: sink, NewRunID: func() string { return "run-1" }}

	res, err := p.Run(context.Background(), baseSettings())
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, types.Filter{Subject: "01", Session: "A"}, res.Filter)
	assert.Equal(t, "sub-01_ses-A_", res.Resolution.Prefix)

	body, err := afero.ReadFile(fsys, "/out/antsct_run.sh")
	require.NoError(t, err)
	assert.Equal(t,
		"/opt/scripts/runAntsCT_nonBIDS.pl --anatomical-image /bids/sub-01/ses-A/anat/sub-01_ses-A_T1w.nii.gz --output-dir /out --output-file-root sub-01_ses-A_ --denoise 1 --num-threads 2 --run-quick 0 --trim-neck 1",
		string(body))
	assert.Equal(t, "/out/antsct_run.sh", res.Spec.ArtifactPath)
	assert.Equal(t, "run-1", res.Spec.RunID)

	assert.Equal(t, []string{
		"start",
		"labels:start", "labels:done",
		"resolve:start", "resolve:done",
		"assemble:start", "assemble:done",
		"write:start", "write:done",
		"finish",
	}, sink.events)
	assert.Equal(t, "completed", sink.status)

	_, err = p.Run(context.Background(), baseSettings())
	require.NoError(t, err)
	again, err := afero.ReadFile(fsys, "/out/antsct_run.sh")
	require.NoError(t, err)
	assert.Equal(t, body, again, "identical inputs give a byte-identical artifact")
}

func TestRunAmbiguousLeavesNoArtifact(t *testing.T) {
	fsys := afero.NewMemMapFs()
	touch(t, fsys, "/bids/sub-01/ses-A/anat/sub-01_ses-A_run-1_T1w.nii.gz")
	touch(t, fsys, "/bids/sub-01/ses-A/anat/sub-01_ses-A_run-2_T1w.nii.gz")
	sink := &recordingSink{}
	p := &Preparer{FS: fsys, Sink: sink}

	s := baseSettings()
	s.Defaults = types.Labels{Subject: "01", Session: "A"}
	_, err := p.Run(context.Background(), s)
	require.ErrorIs(t, err, types.ErrAmbiguousMatch)
	assert.Equal(t, "failed", sink.status)
	assert.Contains(t, sink.events, "resolve:failed")

	ok, err := afero.Exists(fsys, "/out/antsct_run.sh")
	require.NoError(t, err)
	assert.False(t, ok)

	s.ForceMultiple = true
	res, err := p.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "sub-01_ses-A_run-1_", res.Resolution.Prefix)

	s.PickIndex = 1
	res, err = p.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "sub-01_ses-A_run-2_", res.Resolution.Prefix)
}

func TestRunNoMatch(t *testing.T) {
	fsys := afero.NewMemMapFs()
	touch(t, fsys, "/bids/sub-01/ses-A/anat/sub-01_ses-A_T1w.nii.gz")
	s := baseSettings()
	s.Defaults = types.Labels{Subject: "01", Session: "B"}

	_, err := (&Preparer{FS: fsys}).Run(context.Background(), s)
	require.ErrorIs(t, err, types.ErrNoMatch)
}

func TestRunManualWithCatalogTemplate(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seedCatalog(t, fsys, "OASIS", 7)
	s := baseSettings()
	s.ManualT1 = "/in/t1 scan.nii.gz"
	s.Defaults = types.Labels{Subject: "pt_01", Session: "A"}
	s.TemplateName = "OASIS"
	s.TemplateFlowHome = "/templateflow"
	s.MNILabels = []string{"/labels/a.nii.gz"}

	sink := &recordingSink{}
	res, err := (&Preparer{FS: fsys, Sink: sink}).Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, res.Resolution.Candidate.Manual)
	assert.Equal(t, "sub-ptx01_ses-A_", res.Resolution.Prefix)
	assert.Equal(t, "/out/job1_work/templates/OASIS", res.Template.Dir)
	require.NotNil(t, res.Template.Bundle)
	assert.Len(t, res.Template.Bundle.Probseg, 7)
	assert.Contains(t, sink.events, "template:done")

	body, err := afero.ReadFile(fsys, "/out/antsct_run.sh")
	require.NoError(t, err)
	line := string(body)
	assert.Contains(t, line, "--anatomical-image '/in/t1 scan.nii.gz'")
	assert.True(t, strings.HasSuffix(line, "--mni-labels /labels/a.nii.gz --template-dir /out/job1_work/templates/OASIS"), line)
	assert.Contains(t, Describe(res), "template /out/job1_work/templates/OASIS")
}

func TestRunIncompleteTemplate(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seedCatalog(t, fsys, "OASIS", 5)
	touch(t, fsys, "/bids/sub-01/ses-A/anat/sub-01_ses-A_T1w.nii.gz")
	s := baseSettings()
	s.TemplateName = "OASIS"
	s.TemplateFlowHome = "/templateflow"

	_, err := (&Preparer{FS: fsys}).Run(context.Background(), s)
	require.ErrorIs(t, err, types.ErrIncompleteTemplate)

	staged, err := afero.Exists(fsys, "/out/job1_work/templates/OASIS")
	require.NoError(t, err)
	assert.False(t, staged)
	written, err := afero.Exists(fsys, "/out/antsct_run.sh")
	require.NoError(t, err)
	assert.False(t, written)
}

func TestRunManualTakesLabelsFromDataset(t *testing.T) {
	fsys := afero.NewMemMapFs()
	touch(t, fsys, "/bids/sub-01/ses-A/anat/sub-01_ses-A_run-1_T1w.nii.gz")
	touch(t, fsys, "/bids/sub-01/ses-A/anat/sub-01_ses-A_run-2_T1w.nii.gz")
	s := baseSettings()
	s.ManualT1 = "/input/t1_anatomy/scan.nii.gz"

	res, err := (&Preparer{FS: fsys}).Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, res.Resolution.Candidate.Manual)
	assert.Equal(t, "/input/t1_anatomy/scan.nii.gz", res.Resolution.Candidate.Path)
	assert.Equal(t, "sub-01_ses-A_", res.Resolution.Prefix)

	body, err := afero.ReadFile(fsys, "/out/antsct_run.sh")
	require.NoError(t, err)
	assert.Contains(t, string(body), "--anatomical-image /input/t1_anatomy/scan.nii.gz ")
}

func TestRunRemovesArtifactFromEarlierRun(t *testing.T) {
	fsys := afero.NewMemMapFs()
	touch(t, fsys, "/bids/sub-01/ses-A/anat/sub-01_ses-A_T1w.nii.gz")
	s := baseSettings()
	p := &Preparer{FS: fsys}

	_, err := p.Run(context.Background(), s)
	require.NoError(t, err)
	ok, err := afero.Exists(fsys, "/out/antsct_run.sh")
	require.NoError(t, err)
	require.True(t, ok)

	s.Defaults = types.Labels{Subject: "01", Session: "B"}
	_, err = p.Run(context.Background(), s)
	require.ErrorIs(t, err, types.ErrNoMatch)
	ok, err = afero.Exists(fsys, "/out/antsct_run.sh")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunFailsWhenArtifactCannotBeCleared(t *testing.T) {
	base := afero.NewMemMapFs()
	touch(t, base, "/bids/sub-01/ses-A/anat/sub-01_ses-A_T1w.nii.gz")
	touch(t, base, "/out/antsct_run.sh")

	_, err := (&Preparer{FS: afero.NewReadOnlyFs(base)}).Run(context.Background(), baseSettings())
	require.ErrorIs(t, err, types.ErrArtifactWriteFailure)
}
