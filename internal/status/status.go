/*
 *
 * Copyright 2026 CoreRPC Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package status implements the internal representation backing the
// public status package, mirroring the split between
// google.golang.org/grpc/status and google.golang.org/grpc/internal/status.
package status

import (
	"fmt"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/metadata"
)

// Status carries a code, a human-readable message and optional trailing
// metadata, per spec §3: "Status: {code, details, metadata}".
type Status struct {
	code    codes.Code
	message string
	md      metadata.MD
}

// New returns a Status with the given code and message.
func New(c codes.Code, msg string) *Status {
	return &Status{code: c, message: msg}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(c codes.Code, format string, a ...any) *Status {
	return New(c, fmt.Sprintf(format, a...))
}

// Code returns the status code.
func (s *Status) Code() codes.Code {
	if s == nil {
		return codes.OK
	}
	return s.code
}

// Message returns the status details string.
func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return s.message
}

// Metadata returns the metadata attached to the status, if any.
func (s *Status) Metadata() metadata.MD {
	if s == nil {
		return nil
	}
	return s.md
}

// WithMetadata returns a copy of s carrying md.
func (s *Status) WithMetadata(md metadata.MD) *Status {
	if s == nil {
		return nil
	}
	cp := *s
	cp.md = md
	return &cp
}

// Err returns an immutable error representing s, or nil if s is an OK
// status.
func (s *Status) Err() error {
	if s == nil || s.code == codes.OK {
		return nil
	}
	return &Error{s: s}
}

// Error adapts a *Status to the error interface. A nil *Error is never
// returned by this package; callers check Status.Code() == codes.OK
// instead of comparing errors.
type Error struct {
	s *Status
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error: code = %s desc = %s", e.s.Code(), e.s.Message())
}

// GRPCStatus allows status.FromError to recover the *Status from an error
// value produced by this package, mirroring (*StatusError).GRPCStatus in
// the teacher.
func (e *Error) GRPCStatus() *Status {
	return e.s
}

// Is reports whether target is an *Error with an identical code and
// message.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.s.Code() == te.s.Code() && e.s.Message() == te.s.Message()
}
