/*
 * MIT License
 *
 * Copyright (c) 2026 Amulya Labs
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package ocerr defines the engine's error taxonomy: a small set of codes
// that every caller-facing operation can return, distinguishable with the
// standard library's errors.Is/errors.As instead of string matching.
package ocerr

import (
	"errors"
	"fmt"
)

// Code identifies one of the error kinds the engine contract promises.
type Code uint8

const (
	Unknown Code = iota
	InvalidInput
	ArchiveNotFound
	NoFilesToCache
	CompressionUnavailable
	CorruptIndex
	ConcurrentModification
	LockAcquisitionFailed
	BackendError
	FatalIO
)

var messages = map[Code]string{
	Unknown:                "unknown error",
	InvalidInput:           "invalid input",
	ArchiveNotFound:        "archive not found",
	NoFilesToCache:         "no files resolved to cache",
	CompressionUnavailable: "requested compression method is unavailable",
	CorruptIndex:           "cache index is corrupt",
	ConcurrentModification: "index was modified concurrently, retry",
	LockAcquisitionFailed:  "lock acquisition failed",
	BackendError:           "storage backend error",
	FatalIO:                "fatal filesystem error",
}

func (c Code) String() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[Unknown]
}

// Error is the engine's concrete error type: a Code, an optional detail
// message, and an optional wrapped cause.
type Error struct {
	Code   Code
	Detail string
	Op     string
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ocerr.New(Code)) match on code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds a bare sentinel-style error for a code, suitable for errors.Is
// comparisons (e.g. `errors.Is(err, ocerr.New(ocerr.ArchiveNotFound))`).
func New(code Code) *Error {
	return &Error{Code: code}
}

// Wrap annotates cause with a code, operation name and optional detail.
func Wrap(code Code, op string, cause error, detailf string, args ...any) *Error {
	return &Error{
		Code:   code,
		Op:     op,
		Cause:  cause,
		Detail: fmt.Sprintf(detailf, args...),
	}
}

// Is reports whether err carries the given code, anywhere in its chain.
func Is(err error, code Code) bool {
	return errors.Is(err, New(code))
}

// CodeOf extracts the Code from err, or Unknown if err is not (or does not
// wrap) an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}
