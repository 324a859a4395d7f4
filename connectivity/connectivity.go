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

// Package connectivity defines connectivity states for Channels and
// Subchannels, mirroring google.golang.org/grpc/connectivity.
package connectivity

// State is one of the states a Channel or Subchannel can be in, per spec
// §3 ("ConnectivityState: one of {IDLE, CONNECTING, READY,
// TRANSIENT_FAILURE, SHUTDOWN}").
type State int

const (
	// Idle indicates no connection attempt is in flight.
	Idle State = iota
	// Connecting indicates a connection attempt is in flight.
	Connecting
	// Ready indicates a usable connection is established.
	Ready
	// TransientFailure indicates the most recent connection attempt failed
	// and the component is waiting to retry.
	TransientFailure
	// Shutdown indicates the component has been permanently torn down.
	Shutdown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Connecting:
		return "CONNECTING"
	case Ready:
		return "READY"
	case TransientFailure:
		return "TRANSIENT_FAILURE"
	case Shutdown:
		return "SHUTDOWN"
	default:
		return "INVALID_STATE"
	}
}

// Reporter is implemented by components that publish connectivity state
// transitions and let observers register for one-shot or durable
// notification, per spec §4.7 (watchConnectivityState) and §4.3
// (addConnectivityStateListener).
type Reporter interface {
	GetState() State
}
