// Copyright 2024 VexDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vexerr

import (
	"errors"
	"fmt"
)

const (
	Ok uint16 = 0

	// Group 1: internal errors
	ErrStart    uint16 = 20100
	ErrInternal uint16 = 20101

	// Group 2: engine contract errors
	// ErrCapacity: spill I/O failed during build or the spill recursion
	// bound was exhausted. Fatal for the join.
	ErrCapacity uint16 = 20201
	// ErrNotSealed: probe issued against a table still in build phase.
	// Always a driver bug.
	ErrNotSealed uint16 = 20202
	// ErrInvariant: a defensive bug check tripped, e.g. reloading a
	// partition that has no spill segment.
	ErrInvariant uint16 = 20203
	// ErrCodec: the key codec rejected a row. Surfaced unchanged, the
	// engine does not interpret row content.
	ErrCodec uint16 = 20204
)

// Error is the coded error type used across the engine. The code
// decides how callers react; the message is for logs and humans.
type Error struct {
	code    uint16
	message string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

// Is matches two engine errors by code, so errors.Is works across
// independently constructed instances.
func (e *Error) Is(err error) bool {
	var t *Error
	if !errors.As(err, &t) {
		return false
	}
	return t.code == e.code
}

func newError(code uint16, format string, args ...any) *Error {
	return &Error{
		code:    code,
		message: fmt.Sprintf(format, args...),
	}
}

func NewInternal(format string, args ...any) *Error {
	return newError(ErrInternal, "internal error: "+format, args...)
}

func NewCapacity(format string, args ...any) *Error {
	return newError(ErrCapacity, "capacity error: "+format, args...)
}

func NewNotSealed(format string, args ...any) *Error {
	return newError(ErrNotSealed, "not sealed: "+format, args...)
}

func NewInvariant(format string, args ...any) *Error {
	return newError(ErrInvariant, "invariant violated: "+format, args...)
}

func NewCodec(format string, args ...any) *Error {
	return newError(ErrCodec, "codec error: "+format, args...)
}

func isCode(err error, code uint16) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.code == code
}

func IsInternal(err error) bool {
	return isCode(err, ErrInternal)
}

func IsCapacity(err error) bool {
	return isCode(err, ErrCapacity)
}

func IsNotSealed(err error) bool {
	return isCode(err, ErrNotSealed)
}

func IsInvariant(err error) bool {
	return isCode(err, ErrInvariant)
}

func IsCodec(err error) bool {
	return isCode(err, ErrCodec)
}
