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

// Package backoff implements BackoffTimer (spec §4.1): a one-shot timer
// producing jittered exponential delays with reset, mirroring
// google.golang.org/grpc/internal/backoff.
package backoff

import (
	"math/rand"
	"time"

	"github.com/corerpc/corerpc/backoff"
)

// maxInt32 bounds delays, counted in milliseconds, to the signed 32-bit
// range some host timer APIs are limited to, per spec §9 ("Timer precision").
const maxInt32 = 1<<31 - 1

// Strategy computes successive backoff delays; it is the pure function
// BackoffTimer is built around, split out so it can be unit-tested without
// a real clock.
type Strategy struct {
	Config backoff.Config
}

// Backoff returns the amount of time to wait before the (retries+1)th
// connection attempt, given that there have already been retries failed
// attempts.
func (s Strategy) Backoff(retries int) time.Duration {
	if retries == 0 {
		return s.jitter(s.Config.BaseDelay)
	}
	backoff, max := float64(s.Config.BaseDelay), float64(s.Config.MaxDelay)
	for backoff < max && retries > 0 {
		backoff *= s.Config.Multiplier
		retries--
	}
	if backoff > max {
		backoff = max
	}
	return s.jitter(time.Duration(backoff))
}

func (s Strategy) jitter(d time.Duration) time.Duration {
	j := s.Config.Jitter
	delta := j * float64(d)
	min, max := float64(d)-delta, float64(d)+delta
	d = time.Duration(min + (max-min)*rand.Float64())
	if d > maxInt32*time.Millisecond {
		d = maxInt32 * time.Millisecond
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Timer is a one-shot timer producing jittered exponential delays with
// reset, per spec §4.1. It is not safe for concurrent use; callers
// (Subchannel) already serialize access to it on their single logical
// executor.
type Timer struct {
	strategy Strategy
	retries  int
	timer    *time.Timer
	running  bool
}

// New returns a Timer using cfg's parameters.
func New(cfg backoff.Config) *Timer {
	return &Timer{strategy: Strategy{Config: cfg}}
}

// RunOnce schedules cb to run after the next backoff delay and increments
// the retry counter. Reset does not cancel an already-running timer;
// callers must call Stop first if they want to discard it.
func (t *Timer) RunOnce(cb func()) {
	d := t.strategy.Backoff(t.retries)
	t.retries++
	t.running = true
	t.timer = time.AfterFunc(d, func() {
		t.running = false
		cb()
	})
}

// Stop cancels a pending callback, if any.
func (t *Timer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.running = false
}

// Reset clears the retry counter back to the initial delay. It does not
// stop a currently pending timer, per spec §4.1 ("Reset does not cancel a
// running timer unless stop() is called").
func (t *Timer) Reset() {
	t.retries = 0
}

// IsRunning reports whether a scheduled callback is still pending.
func (t *Timer) IsRunning() bool {
	return t.running
}
