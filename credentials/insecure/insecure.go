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

// Package insecure provides a plaintext credentials.TransportCredentials,
// the channel's default when no transport security is configured.
// Grounded on google.golang.org/grpc/credentials/insecure, a companion the
// retrieval pack's teacher ships alongside every other credentials
// variant.
package insecure

import "github.com/corerpc/corerpc/credentials"

type insecureTC struct{}

// NewCredentials returns a credentials.TransportCredentials that dials
// every Subchannel in plaintext, per spec §4.3 ("Otherwise use plaintext
// HTTP").
func NewCredentials() credentials.TransportCredentials {
	return insecureTC{}
}

func (insecureTC) ConnectionOptions(string) credentials.ConnectionOptions {
	return credentials.ConnectionOptions{Secure: false}
}

func (i insecureTC) Clone() credentials.TransportCredentials {
	return i
}
