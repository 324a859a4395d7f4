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
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeIdlenessEnforcer struct {
	mu               sync.Mutex
	enterCalls       int
	exitCalls        int
	enterErr         error
	exitErr          error
}

func (f *fakeIdlenessEnforcer) enterIdleMode() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enterCalls++
	return f.enterErr
}

func (f *fakeIdlenessEnforcer) exitIdleMode() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exitCalls++
	return f.exitErr
}

func (f *fakeIdlenessEnforcer) enters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enterCalls
}

func TestIdlenessManagerDisabledWithZeroTimeout(t *testing.T) {
	e := &fakeIdlenessEnforcer{}
	m := newIdlenessManager(e, 0)
	if err := m.onCallBegin(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.onCallEnd()
	m.close()
	if e.enters() != 0 {
		t.Fatal("a disabled idleness manager must never enter idle mode")
	}
}

func TestIdlenessManagerEntersIdleAfterTimeoutWithNoCalls(t *testing.T) {
	e := &fakeIdlenessEnforcer{}
	m := newIdlenessManager(e, 20*time.Millisecond)
	defer m.close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if e.enters() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if e.enters() == 0 {
		t.Fatal("idleness manager never entered idle mode")
	}
}

func TestIdlenessManagerDoesNotEnterIdleWithActiveCall(t *testing.T) {
	e := &fakeIdlenessEnforcer{}
	m := newIdlenessManager(e, 20*time.Millisecond)
	defer m.close()

	if err := m.onCallBegin(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if e.enters() != 0 {
		t.Fatal("idleness manager entered idle mode despite an active call")
	}
	m.onCallEnd()
}

func TestIdlenessManagerOnCallBeginExitsIdleMode(t *testing.T) {
	e := &fakeIdlenessEnforcer{}
	m := newIdlenessManager(e, 20*time.Millisecond)
	defer m.close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && e.enters() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if e.enters() == 0 {
		t.Fatal("idleness manager never entered idle mode")
	}

	if err := m.onCallBegin(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.exitCalls != 1 {
		t.Fatalf("exitCalls = %d, want 1", e.exitCalls)
	}
	m.onCallEnd()
}

func TestIdlenessManagerOnCallBeginPropagatesExitError(t *testing.T) {
	e := &fakeIdlenessEnforcer{exitErr: errors.New("boom")}
	m := newIdlenessManager(e, 20*time.Millisecond)
	defer m.close()
	m.mu.Lock()
	m.isIdle = true
	m.mu.Unlock()

	if err := m.onCallBegin(); err == nil {
		t.Fatal("expected onCallBegin to propagate the enforcer's exit error")
	}
}
