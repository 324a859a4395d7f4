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

// Package backoff exposes the public reconnection backoff configuration,
// mirroring google.golang.org/grpc's top-level backoff.go (kept separate
// from the implementation in internal/backoff for the same reason the
// teacher keeps them separate: so that the exported Config type has a
// stable identity independent of the jittered-timer implementation).
package backoff

import "time"

// DefaultConfig is the backoff configuration used when no ChannelOption
// overrides it, matching spec §4.1's parameters (initial=1s, multiplier
// 1.6, max=120s, jitter=0.2) and the values grpc-go documents at
// https://github.com/grpc/grpc/blob/master/doc/connection-backoff.md.
var DefaultConfig = Config{
	BaseDelay:  1.0 * time.Second,
	Multiplier: 1.6,
	Jitter:     0.2,
	MaxDelay:   120 * time.Second,
}

// Config defines the parameters of the reconnection backoff strategy.
type Config struct {
	// BaseDelay is the amount of time to wait before retrying after the
	// first failure.
	BaseDelay time.Duration
	// Multiplier is applied to the backoff after each retry.
	Multiplier float64
	// Jitter provides a range, expressed as a fraction of the computed
	// delay, to randomize backoff delays.
	Jitter float64
	// MaxDelay is the upper bound of the backoff delay.
	MaxDelay time.Duration
}
