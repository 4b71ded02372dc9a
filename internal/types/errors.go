// SPDX-License-Identifier: AGPL-3.0-or-later
package types

import (
	"errors"
	"fmt"
)

// Reason tags a terminal job failure.
type Reason string

const (
	ReasonNoMatch              Reason = "NoMatch"
	ReasonAmbiguousMatch       Reason = "AmbiguousMatch"
	ReasonIncompleteTemplate   Reason = "IncompleteTemplate"
	ReasonArtifactWriteFailure Reason = "ArtifactWriteFailure"
	ReasonInvalidConfig        Reason = "InvalidConfig"
)

var (
	ErrNoMatch              = errors.New("no anatomical candidate found")
	ErrAmbiguousMatch       = errors.New("multiple anatomical candidates found")
	ErrIncompleteTemplate   = errors.New("template bundle incomplete")
	ErrArtifactWriteFailure = errors.New("command artifact not written")
	ErrInvalidConfig        = errors.New("invalid configuration")
)

func (r Reason) sentinel() error {
	switch r {
	case ReasonNoMatch:
		return ErrNoMatch
	case ReasonAmbiguousMatch:
		return ErrAmbiguousMatch
	case ReasonIncompleteTemplate:
		return ErrIncompleteTemplate
	case ReasonArtifactWriteFailure:
		return ErrArtifactWriteFailure
	case ReasonInvalidConfig:
		return ErrInvalidConfig
	}
	return nil
}

// Failure is a tagged, terminal error. errors.Is matches both the reason
// sentinel and the wrapped cause.
type Failure struct {
	Reason Reason
	Detail string
	Err    error
}

// Fail builds a Failure with a formatted detail message.
func Fail(reason Reason, err error, format string, args ...any) *Failure {
	return &Failure{Reason: reason, Detail: fmt.Sprintf(format, args...), Err: err}
}

func (f *Failure) Error() string {
	msg := string(f.Reason)
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() []error {
	out := make([]error, 0, 2)
	if s := f.Reason.sentinel(); s != nil {
		out = append(out, s)
	}
	if f.Err != nil {
		out = append(out, f.Err)
	}
	return out
}

// ReasonOf extracts the failure reason from an error chain, or "" if none.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}
