// SPDX-License-Identifier: AGPL-3.0-or-later

// Package paths centralises antsct-prep directory and artifact naming.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
)

const (
	appDirName      = "antsct-prep"
	envDataDir      = "DATA_DIR"
	envXDGDataHome  = "XDG_DATA_HOME"
	envProgramData  = "PROGRAMDATA"
	windowsVendor   = "AntsctPrep"
	windowsDataLeaf = "data"

	// ArtifactName is the command script written into the output directory.
	ArtifactName = "antsct_run.sh"
	// DefaultExecutable is the pipeline entry point inside the gear image.
	DefaultExecutable = "/opt/scripts/runAntsCT_nonBIDS.pl"
	// DefaultBIDSDirName is the dataset directory under the gear input dir.
	DefaultBIDSDirName = "bids_dataset"
)

var override atomic.Pointer[string]

// SetDataDirOverride pins the data directory to an explicit location.
// Passing an empty string clears the override.
func SetDataDirOverride(dir string) {
	if dir == "" {
		override.Store(nil)
		return
	}
	clean := filepath.Clean(dir)
	override.Store(&clean)
}

// DataDir returns the directory holding the preparation journal.
// Order of precedence:
//  1. Explicit override provided via SetDataDirOverride.
//  2. DATA_DIR environment variable.
//  3. Platform defaults:
//     * POSIX: $XDG_DATA_HOME/antsct-prep, or ~/.local/share/antsct-prep
//     * Windows: %ProgramData%\AntsctPrep\data
//  4. Fallback: current working directory ./antsct-prep
func DataDir() string {
	if ptr := override.Load(); ptr != nil && *ptr != "" {
		return *ptr
	}

	if dir := os.Getenv(envDataDir); dir != "" {
		return filepath.Clean(dir)
	}

	if runtime.GOOS == "windows" {
		if base := os.Getenv(envProgramData); base != "" {
			return filepath.Join(base, windowsVendor, windowsDataLeaf)
		}
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			return filepath.Join(home, "AppData", "Local", windowsVendor, windowsDataLeaf)
		}
	}

	if xdg := os.Getenv(envXDGDataHome); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", appDirName)
	}

	if cwd, err := os.Getwd(); err == nil && cwd != "" {
		return filepath.Join(cwd, appDirName)
	}

	return filepath.Join(os.TempDir(), appDirName)
}

// ArtifactPath returns the fixed command-script location for an output dir.
func ArtifactPath(outputDir string) string {
	return filepath.Join(outputDir, ArtifactName)
}

// WorkDir returns the scratch directory for a job, "<output>/<job>_work",
// or "<output>/work" when the job has no identifier.
func WorkDir(outputDir, jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return filepath.Join(outputDir, "work")
	}
	return filepath.Join(outputDir, jobID+"_work")
}

// ArchiveStem strips known archive extensions from a path's base name.
func ArchiveStem(archive string) string {
	base := filepath.Base(archive)
	for _, ext := range []string{".tar.gz", ".tgz", ".tar", ".zip"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
