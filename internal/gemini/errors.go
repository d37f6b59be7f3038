// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package gemini

import (
	"errors"
	"fmt"
)

// ErrorKind classifies verification failures so callers can decide between
// retrying, surfacing a configuration problem, or flagging for review.
type ErrorKind string

// Verification failure kinds.
const (
	// KindCredential: missing or rejected API key. Not retryable.
	KindCredential ErrorKind = "credential"
	// KindTransport: network or server-side trouble. Retryable.
	KindTransport ErrorKind = "transport"
	// KindParse: the model answered but not with usable JSON. Not retryable.
	KindParse ErrorKind = "parse"
)

// VerifyError is a classified verification failure.
type VerifyError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Retryable reports whether a retry could plausibly succeed.
func (e *VerifyError) Retryable() bool { return e.Kind == KindTransport }

func credentialError(msg string) *VerifyError {
	return &VerifyError{Kind: KindCredential, Message: msg}
}

func transportError(msg string, err error) *VerifyError {
	return &VerifyError{Kind: KindTransport, Message: msg, Err: err}
}

func parseError(msg string, err error) *VerifyError {
	return &VerifyError{Kind: KindParse, Message: msg, Err: err}
}

// KindOf extracts the ErrorKind from err, or empty string when err is not
// a VerifyError.
func KindOf(err error) ErrorKind {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}
