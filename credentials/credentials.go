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

// Package credentials defines the contracts a Subchannel's transport and a
// call's filter stack consume from a credential provider, per spec §3
// ("Credentials: capability {getConnectionOptions() -> transport options
// or none; getCallCredentials() -> metadata producer}; composable") and
// §1 ("Credential providers, metadata plugins, and the wire HTTP/2
// implementation are external: we specify only the contracts the core
// consumes from them.").
package credentials

import (
	"context"
	"crypto/tls"

	"github.com/corerpc/corerpc/metadata"
)

// ConnectionOptions describes how a Subchannel should dial a backend:
// whether it needs TLS, and under what server name.
type ConnectionOptions struct {
	// Secure indicates the transport should be established over TLS.
	Secure bool
	// TLSConfig is used to establish the TLS session when Secure is true.
	// A nil value means "use Go's default verification behavior".
	TLSConfig *tls.Config
	// ServerNameOverride overrides the TLS ServerName / HTTP :authority
	// identity check, populated from ssl_target_name_override per spec
	// §4.3 ("Transport construction").
	ServerNameOverride string
}

// PerRPCCredentials is a metadata-producing plugin consulted for every
// call, modeling spec §3's "getCallCredentials() -> metadata producer".
type PerRPCCredentials interface {
	// GetRequestMetadata returns metadata to attach to a call bound for
	// uri (the ":authority"-qualified method path).
	GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error)
	// RequireTransportSecurity reports whether this credential must only
	// be attached over a secure transport.
	RequireTransportSecurity() bool
}

// TransportCredentials is the channel-level credential: it decides whether
// a Subchannel dials securely, and composes with PerRPCCredentials to form
// the full Credentials contract from spec §3.
type TransportCredentials interface {
	// ConnectionOptions returns the dial-time behavior a Subchannel should
	// use for address, given defaultAuthority (derived from the channel
	// target per spec §4.2's getDefaultAuthority).
	ConnectionOptions(defaultAuthority string) ConnectionOptions
	// Clone returns a deep copy.
	Clone() TransportCredentials
}

// Bundle composes a TransportCredentials with zero or more
// PerRPCCredentials, matching spec §3's "composable" requirement: the
// call-credentials filter (spec §4.8) merges every PerRPCCredentials
// producer's metadata into the outgoing request.
type Bundle struct {
	Transport TransportCredentials
	PerRPC    []PerRPCCredentials
}

// RequestMetadata resolves every PerRPCCredentials producer in b and
// merges the results, in order, into a single metadata.MD.
func (b Bundle) RequestMetadata(ctx context.Context, uri ...string) (metadata.MD, error) {
	md := metadata.MD{}
	for _, c := range b.PerRPC {
		kv, err := c.GetRequestMetadata(ctx, uri...)
		if err != nil {
			return nil, err
		}
		for k, v := range kv {
			md.Append(k, v)
		}
	}
	return md, nil
}
