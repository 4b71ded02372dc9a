// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bids reads the subset of the BIDS naming convention needed to
// locate anatomical images and template files.
package bids

import (
	"path/filepath"
	"strings"
)

// Entities are the key-value pairs and suffix encoded in a BIDS filename.
type Entities struct {
	Template    string
	Subject     string
	Session     string
	Acquisition string
	Run         string
	Resolution  string
	Desc        string
	Label       string
	Suffix      string
	Extension   string
	Other       map[string]string
}

// ParseFilename splits a BIDS-style basename into entities. The extension is
// everything from the first dot, so "x_T1w.nii.gz" has extension ".nii.gz".
// ok is false when the stem has no suffix or a malformed key-value pair.
func ParseFilename(name string) (ent Entities, ok bool) {
	base := filepath.Base(name)
	stem := base
	if i := strings.Index(base, "."); i >= 0 {
		stem = base[:i]
		ent.Extension = base[i:]
	}
	if stem == "" {
		return ent, false
	}
	parts := strings.Split(stem, "_")
	last := parts[len(parts)-1]
	if strings.Contains(last, "-") {
		return ent, false
	}
	ent.Suffix = last
	for _, p := range parts[:len(parts)-1] {
		k, v, found := strings.Cut(p, "-")
		if !found || k == "" || v == "" {
			return ent, false
		}
		switch k {
		case "tpl":
			ent.Template = v
		case "sub":
			ent.Subject = v
		case "ses":
			ent.Session = v
		case "acq":
			ent.Acquisition = v
		case "run":
			ent.Run = v
		case "res":
			ent.Resolution = v
		case "desc":
			ent.Desc = v
		case "label":
			ent.Label = v
		default:
			if ent.Other == nil {
				ent.Other = map[string]string{}
			}
			ent.Other[k] = v
		}
	}
	return ent, true
}

// HasExtension reports whether the entity extension is one of exts.
func (e Entities) HasExtension(exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	for _, x := range exts {
		if strings.EqualFold(e.Extension, x) {
			return true
		}
	}
	return false
}
