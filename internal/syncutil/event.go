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

// Package syncutil provides the small synchronization primitives the
// channel runtime's single-logical-executor model is built from, mirroring
// google.golang.org/grpc/internal/grpcsync (renamed since this module is
// not grpc itself): a one-shot Event and a FIFO CallbackSerializer.
package syncutil

import "sync"

// Event represents a one-time event that may occur at some point in the
// future, modeling the "done" flags used throughout the core (a Channel's
// shutdown, a resolver wrapper's close, ...).
type Event struct {
	fired int32
	c     chan struct{}
	o     sync.Once
}

// NewEvent returns a new, unfired Event.
func NewEvent() *Event {
	return &Event{c: make(chan struct{})}
}

// Fire causes e to complete. It is safe to call multiple times, and
// returns true only the first time it is called.
func (e *Event) Fire() bool {
	ret := false
	e.o.Do(func() {
		ret = true
		close(e.c)
	})
	return ret
}

// Done returns a channel that will be closed when Fire is called.
func (e *Event) Done() <-chan struct{} {
	return e.c
}

// HasFired reports whether Fire has been called.
func (e *Event) HasFired() bool {
	select {
	case <-e.c:
		return true
	default:
		return false
	}
}
