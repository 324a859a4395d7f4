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
	"testing"
	"time"

	"github.com/corerpc/corerpc/balancer"
)

type fakeSubConn struct{ balancer.SubConn }

type constPicker struct {
	res balancer.PickResult
	err error
}

func (p constPicker) Pick(balancer.PickInfo) (balancer.PickResult, error) {
	return p.res, p.err
}

func TestPickerWrapperBlocksUntilPickerInstalled(t *testing.T) {
	pw := newPickerWrapper()
	done := make(chan struct{})
	var gotErr error
	go func() {
		_, gotErr = pw.pick(context.Background(), balancer.PickInfo{}, false)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("pick returned before any Picker was installed")
	case <-time.After(30 * time.Millisecond):
	}

	sc := &fakeSubConn{}
	pw.updatePicker(constPicker{res: balancer.PickResult{SubConn: sc}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pick did not return after updatePicker")
	}
	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
}

func TestPickerWrapperReturnsImmediateError(t *testing.T) {
	pw := newPickerWrapper()
	wantErr := context.Canceled
	pw.updatePicker(constPicker{err: wantErr})

	_, err := pw.pick(context.Background(), balancer.PickInfo{}, false)
	if err != wantErr {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestPickerWrapperQueuesNoSubConnAvailable(t *testing.T) {
	pw := newPickerWrapper()
	pw.updatePicker(constPicker{err: balancer.ErrNoSubConnAvailable})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := pw.pick(ctx, balancer.PickInfo{}, false)
	if err != context.DeadlineExceeded {
		t.Fatalf("got %v, want context.DeadlineExceeded (picker should have kept queuing)", err)
	}
}

func TestPickerWrapperWaitForReadyQueuesTransientFailure(t *testing.T) {
	pw := newPickerWrapper()
	pw.updatePicker(constPicker{err: errChannelShutdown})

	// A non-ErrNoSubConnAvailable error without waitForReady is terminal.
	_, err := pw.pick(context.Background(), balancer.PickInfo{}, false)
	if err != errChannelShutdown {
		t.Fatalf("got %v, want %v", err, errChannelShutdown)
	}

	// The same error, with waitForReady, queues instead of failing fast.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = pw.pick(ctx, balancer.PickInfo{}, true)
	if err != context.DeadlineExceeded {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestPickerWrapperCloseUnblocksPicks(t *testing.T) {
	pw := newPickerWrapper()
	done := make(chan error, 1)
	go func() {
		_, err := pw.pick(context.Background(), balancer.PickInfo{}, false)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	pw.close()

	select {
	case err := <-done:
		if err != errChannelShutdown {
			t.Fatalf("got %v, want %v", err, errChannelShutdown)
		}
	case <-time.After(time.Second):
		t.Fatal("pick did not return after close")
	}
}

func TestPickerWrapperUpdatePickerAfterCloseIsNoop(t *testing.T) {
	pw := newPickerWrapper()
	pw.close()
	pw.updatePicker(constPicker{})
	_, err := pw.pick(context.Background(), balancer.PickInfo{}, false)
	if err != errChannelShutdown {
		t.Fatalf("got %v, want %v", err, errChannelShutdown)
	}
}
