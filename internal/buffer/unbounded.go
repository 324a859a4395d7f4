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

// Package buffer provides an unbounded, single-reader FIFO queue used to
// move updates from producer call sites onto a component's serializing
// executor goroutine without blocking the producer, mirroring
// google.golang.org/grpc/internal/buffer.
package buffer

import "sync"

// Unbounded is an unbounded queue of arbitrary values with a single
// channel-based consumer side. Put never blocks; Get returns a channel
// that yields the oldest queued value once the consumer has drained
// whatever it previously received via Load.
type Unbounded struct {
	mu       sync.Mutex
	backlog  []any
	c        chan any
	closed   bool
}

// NewUnbounded returns a new Unbounded queue.
func NewUnbounded() *Unbounded {
	return &Unbounded{c: make(chan any, 1)}
}

// Put adds t to the queue. It is a no-op once Close has been called.
func (b *Unbounded) Put(t any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if len(b.backlog) == 0 {
		select {
		case b.c <- t:
			return
		default:
		}
	}
	b.backlog = append(b.backlog, t)
}

// Load sends the next buffered value, if any, onto the channel returned by
// Get. The caller must call Load after processing each value received from
// Get to make the following value available.
func (b *Unbounded) Load() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.backlog) == 0 || b.closed {
		return
	}
	select {
	case b.c <- b.backlog[0]:
		b.backlog = b.backlog[1:]
	default:
	}
}

// Get returns the channel on which the queue's values are delivered. The
// consumer must call Load after each value it reads to pump the next one
// in, matching the Put/Get/Load protocol used by ccBalancerWrapper.watcher
// in the teacher.
func (b *Unbounded) Get() <-chan any {
	return b.c
}

// Close closes the queue; no further values will be delivered. Pending
// buffered values are discarded.
func (b *Unbounded) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.c)
}
