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

package corerpc

import (
	"context"
	"sync"

	"github.com/corerpc/corerpc/balancer"
)

// pickerWrapper holds the Channel's current Picker and wakes up every
// blocked pick attempt whenever a new one is published, implementing the
// QUEUE half of spec §4.7's tryPick. Grounded on the general shape of
// grpc-go's picker_wrapper.go (absent from the retrieved teacher files;
// reconstructed to the same contract grpc-go's ClientConn uses it under).
type pickerWrapper struct {
	mu         sync.Mutex
	picker     balancer.Picker
	blockingCh chan struct{}
	closed     bool
}

func newPickerWrapper() *pickerWrapper {
	return &pickerWrapper{blockingCh: make(chan struct{})}
}

// updatePicker installs p as the current Picker and wakes every pick
// currently blocked on the old one.
func (pw *pickerWrapper) updatePicker(p balancer.Picker) {
	pw.mu.Lock()
	if pw.closed {
		pw.mu.Unlock()
		return
	}
	pw.picker = p
	old := pw.blockingCh
	pw.blockingCh = make(chan struct{})
	pw.mu.Unlock()
	close(old)
}

// pick blocks until the current Picker returns something other than QUEUE,
// ctx is done, or the wrapper is closed. When waitForReady is true, a
// TRANSIENT_FAILURE pick is treated as QUEUE instead of a terminal error,
// per spec §4.7's "queue it" clause for wait-for-ready calls.
func (pw *pickerWrapper) pick(ctx context.Context, info balancer.PickInfo, waitForReady bool) (balancer.PickResult, error) {
	for {
		pw.mu.Lock()
		if pw.closed {
			pw.mu.Unlock()
			return balancer.PickResult{}, errChannelShutdown
		}
		p := pw.picker
		ch := pw.blockingCh
		pw.mu.Unlock()

		if p == nil {
			select {
			case <-ctx.Done():
				return balancer.PickResult{}, ctx.Err()
			case <-ch:
				continue
			}
		}

		res, err := p.Pick(info)
		if err != nil && (err == balancer.ErrNoSubConnAvailable || waitForReady) {
			select {
			case <-ctx.Done():
				return balancer.PickResult{}, ctx.Err()
			case <-ch:
				continue
			}
		}
		return res, err
	}
}

func (pw *pickerWrapper) close() {
	pw.mu.Lock()
	if pw.closed {
		pw.mu.Unlock()
		return
	}
	pw.closed = true
	old := pw.blockingCh
	pw.mu.Unlock()
	close(old)
}
