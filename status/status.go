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

// Package status implements errors returned by the channel runtime. It
// mirrors google.golang.org/grpc/status: a thin, stable public API over
// internal/status.
package status

import (
	"errors"
	"fmt"

	"github.com/corerpc/corerpc/codes"
	internal "github.com/corerpc/corerpc/internal/status"
	"github.com/corerpc/corerpc/metadata"
)

// Status is re-exported so callers can name the type without importing
// the internal package.
type Status = internal.Status

// New returns a Status representing c and msg.
func New(c codes.Code, msg string) *Status {
	return internal.New(c, msg)
}

// Newf is New with fmt.Sprintf-style formatting of the message.
func Newf(c codes.Code, format string, a ...any) *Status {
	return internal.Newf(c, format, a...)
}

// Error returns an error representing c and msg, or nil if c is codes.OK.
func Error(c codes.Code, msg string) error {
	return New(c, msg).Err()
}

// Errorf is Error with fmt.Sprintf-style formatting of the message.
func Errorf(c codes.Code, format string, a ...any) error {
	return Error(c, fmt.Sprintf(format, a...))
}

// FromError returns the Status embedded in err, if any, and whether one was
// found. A nil err returns an OK Status and true.
func FromError(err error) (*Status, bool) {
	if err == nil {
		return New(codes.OK, ""), true
	}
	var gs interface{ GRPCStatus() *Status }
	if errors.As(err, &gs) {
		return gs.GRPCStatus(), true
	}
	return New(codes.Unknown, err.Error()), false
}

// Code returns the status code of err, or codes.OK if err is nil, or
// codes.Unknown if err carries no Status.
func Code(err error) codes.Code {
	s, _ := FromError(err)
	return s.Code()
}

// Convert is FromError without the ok flag: it always returns a non-nil
// Status, synthesizing codes.Unknown for a non-Status error.
func Convert(err error) *Status {
	s, _ := FromError(err)
	return s
}

// WithMetadata returns an error identical to err's Status but carrying md.
func WithMetadata(err error, md metadata.MD) error {
	s := Convert(err)
	return s.WithMetadata(md).Err()
}
