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

// Package channelz provides the minimal identity and trace-logging
// machinery this core borrows from google.golang.org/grpc/internal/channelz.
// The full channelz introspection service (a gRPC service exposing these
// traces to an external debugging client) is out of this core's scope —
// see DESIGN.md — so only the Identifier type and a few log-helper
// functions are kept; subchannel.go is their only caller.
package channelz

import (
	"fmt"
	"sync/atomic"

	"github.com/corerpc/corerpc/chanlog"
)

var nextID int64

// Identifier uniquely names a Channel, Subchannel or LoadBalancer for log
// correlation, mirroring channelz.Identifier without the accompanying
// registry and RPC-exposed tree (see internal/channelz doc comment).
type Identifier struct {
	kind string
	id   int64
}

// NewIdentifier returns a new Identifier for an entity of the given kind
// ("channel", "subchannel", ...).
func NewIdentifier(kind string) *Identifier {
	return &Identifier{kind: kind, id: atomic.AddInt64(&nextID, 1)}
}

func (i *Identifier) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %d", i.kind, i.id)
}

// Infof logs an Info-level trace event attributed to id via l.
func Infof(l *chanlog.PrefixLogger, id *Identifier, format string, args ...any) {
	if l == nil {
		return
	}
	l.Infof("["+id.String()+"] "+format, args...)
}

// Info is Infof without format verbs.
func Info(l *chanlog.PrefixLogger, id *Identifier, msg string) {
	Infof(l, id, "%s", msg)
}

// Warningf logs a Warning-level trace event attributed to id via l.
func Warningf(l *chanlog.PrefixLogger, id *Identifier, format string, args ...any) {
	if l == nil {
		return
	}
	l.Warningf("["+id.String()+"] "+format, args...)
}

// Errorf logs an Error-level trace event attributed to id via l.
func Errorf(l *chanlog.PrefixLogger, id *Identifier, format string, args ...any) {
	if l == nil {
		return
	}
	l.Errorf("["+id.String()+"] "+format, args...)
}
