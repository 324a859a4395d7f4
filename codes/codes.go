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

// Package codes defines the canonical status codes used by the channel
// runtime, modeled on the standard gRPC status code set.
package codes

import "strconv"

// Code is a status code, as defined by the standard gRPC status code set.
type Code uint32

const (
	// OK means the operation completed successfully.
	OK Code = 0
	// Canceled means the operation was canceled, typically by the caller.
	Canceled Code = 1
	// Unknown covers errors with no more specific code, including errors
	// raised by collaborators that don't return a status of their own.
	Unknown Code = 2
	// InvalidArgument means a client specified an invalid argument.
	InvalidArgument Code = 3
	// DeadlineExceeded means a call's deadline expired before it completed.
	DeadlineExceeded Code = 4
	// NotFound means a requested entity was not found.
	NotFound Code = 5
	// AlreadyExists means an entity a caller tried to create already exists.
	AlreadyExists Code = 6
	// PermissionDenied means the caller lacks permission, including
	// transport-security failures such as inadequate security on RST_STREAM.
	PermissionDenied Code = 7
	// ResourceExhausted means a resource has been exhausted, e.g. a
	// server-initiated throttle via RST_STREAM(ENHANCE_YOUR_CALM).
	ResourceExhausted Code = 8
	// FailedPrecondition means the system is not in a state required for
	// the operation's execution.
	FailedPrecondition Code = 9
	// Aborted means the operation was aborted.
	Aborted Code = 10
	// OutOfRange means the operation was attempted past the valid range.
	OutOfRange Code = 11
	// Unimplemented means the operation is not implemented or not
	// supported/enabled, including an HTTP :status of 404.
	Unimplemented Code = 12
	// Internal means an internal error occurred, e.g. a filter failure.
	Internal Code = 13
	// Unavailable means the service is currently unavailable, including
	// name-resolution failure and dropped connections.
	Unavailable Code = 14
	// DataLoss means unrecoverable data loss or corruption occurred.
	DataLoss Code = 15
	// Unauthenticated means the request does not have valid credentials.
	Unauthenticated Code = 16
)

var strs = map[Code]string{
	OK:                  "OK",
	Canceled:            "CANCELLED",
	Unknown:             "UNKNOWN",
	InvalidArgument:     "INVALID_ARGUMENT",
	DeadlineExceeded:    "DEADLINE_EXCEEDED",
	NotFound:            "NOT_FOUND",
	AlreadyExists:       "ALREADY_EXISTS",
	PermissionDenied:    "PERMISSION_DENIED",
	ResourceExhausted:   "RESOURCE_EXHAUSTED",
	FailedPrecondition:  "FAILED_PRECONDITION",
	Aborted:             "ABORTED",
	OutOfRange:          "OUT_OF_RANGE",
	Unimplemented:       "UNIMPLEMENTED",
	Internal:            "INTERNAL",
	Unavailable:         "UNAVAILABLE",
	DataLoss:            "DATA_LOSS",
	Unauthenticated:     "UNAUTHENTICATED",
}

// String returns the string representation of the code.
func (c Code) String() string {
	if s, ok := strs[c]; ok {
		return s
	}
	return "CODE(" + strconv.FormatUint(uint64(c), 10) + ")"
}
