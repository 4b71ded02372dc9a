// SPDX-License-Identifier: AGPL-3.0-or-later
package templates

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const osCreateTrunc = os.O_CREATE | os.O_WRONLY | os.O_TRUNC

// extract unpacks a zip or tar(.gz) archive into dest and returns the number
// of regular files written. Entries resolving outside dest are rejected.
func extract(fsys afero.Fs, archive, dest string) (int, error) {
	lower := strings.ToLower(archive)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(fsys, archive, dest)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return extractTar(fsys, archive, dest, true)
	case strings.HasSuffix(lower, ".tar"):
		return extractTar(fsys, archive, dest, false)
	default:
		return 0, fmt.Errorf("unsupported archive format %q", filepath.Base(archive))
	}
}

func extractZip(fsys afero.Fs, archive, dest string) (int, error) {
	f, err := fsys.Open(archive)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, zf := range zr.File {
		target, err := entryPath(dest, zf.Name)
		if err != nil {
			return n, err
		}
		if zf.FileInfo().IsDir() {
			if err := fsys.MkdirAll(target, 0o755); err != nil {
				return n, err
			}
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return n, err
		}
		err = writeEntry(fsys, target, rc)
		rc.Close()
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func extractTar(fsys afero.Fs, archive, dest string, gz bool) (int, error) {
	f, err := fsys.Open(archive)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var r io.Reader = f
	if gz {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return 0, err
		}
		defer zr.Close()
		r = zr
	}
	tr := tar.NewReader(r)
	n := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		target, err := entryPath(dest, hdr.Name)
		if err != nil {
			return n, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fsys.MkdirAll(target, 0o755); err != nil {
				return n, err
			}
		case tar.TypeReg:
			if err := writeEntry(fsys, target, tr); err != nil {
				return n, err
			}
			n++
		}
	}
}

func entryPath(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}

func writeEntry(fsys afero.Fs, target string, r io.Reader) error {
	if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := fsys.OpenFile(target, osCreateTrunc, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
