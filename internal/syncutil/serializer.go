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

package syncutil

import (
	"context"

	"github.com/corerpc/corerpc/internal/buffer"
)

// CallbackSerializer provides the single-logical-executor scheduling model
// spec §5 requires of a Channel: callbacks scheduled via Schedule run one
// at a time, in FIFO order, on a dedicated goroutine, regardless of which
// goroutine called Schedule. Grounded on
// google.golang.org/grpc/internal/grpcsync's CallbackSerializer.
type CallbackSerializer struct {
	Done      *Event
	callbacks *buffer.Unbounded
}

// NewCallbackSerializer returns a CallbackSerializer that stops running
// callbacks once ctx is done; callbacks still queued at that point are not
// run, and Done fires when the run loop exits.
func NewCallbackSerializer(ctx context.Context) *CallbackSerializer {
	cs := &CallbackSerializer{
		Done:      NewEvent(),
		callbacks: buffer.NewUnbounded(),
	}
	go cs.run(ctx)
	return cs
}

// Schedule enqueues f to run on the serializer's goroutine. Returns false
// if the serializer has already stopped accepting callbacks.
func (cs *CallbackSerializer) Schedule(f func(ctx context.Context)) bool {
	if cs.Done.HasFired() {
		return false
	}
	cs.callbacks.Put(f)
	return true
}

func (cs *CallbackSerializer) run(ctx context.Context) {
	defer cs.Done.Fire()
	for ctx.Err() == nil {
		select {
		case cb := <-cs.callbacks.Get():
			cs.callbacks.Load()
			cb.(func(ctx context.Context))(ctx)
		case <-ctx.Done():
			return
		}
	}
}
