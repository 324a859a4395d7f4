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

// Package keepalive defines the client-side HTTP/2 keepalive parameters
// consumed by a Subchannel, mirroring google.golang.org/grpc/keepalive and
// spec §4.3 ("Keepalive").
package keepalive

import "time"

// ClientParameters are the keepalive parameters used by a Subchannel's
// transport.
type ClientParameters struct {
	// Time is the interval after which, if there has been no activity on
	// the connection, a keepalive ping is sent. Spec §4.3 gives this a
	// default of "effectively infinite" and a minimum meaningful value of
	// 1 second.
	Time time.Duration
	// Timeout is how long the Subchannel waits for a ping ack before
	// considering the connection dead. Defaults to 20s per spec §4.3.
	Timeout time.Duration
	// PermitWithoutStream mirrors grpc-go's field of the same name. The
	// Subchannel does not read it: keepalive pings are armed only while
	// its callRef count is positive, whatever this field says.
	PermitWithoutStream bool
}

// DefaultTimeout is the default keepalive ack timeout, per spec §4.3.
const DefaultTimeout = 20 * time.Second

// MinTime is the smallest keepalive interval spec §4.3 considers
// meaningful. The Subchannel does not clamp configured values to it.
const MinTime = time.Second
