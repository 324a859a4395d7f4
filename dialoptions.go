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
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/corerpc/corerpc/credentials"
	"github.com/corerpc/corerpc/credentials/insecure"
	"github.com/corerpc/corerpc/keepalive"
)

// Recognized ChannelOptions keys, per spec §3/§6.
const (
	OptSSLTargetNameOverride = "ssl_target_name_override"
	OptPrimaryUserAgent      = "primary_user_agent"
	OptSecondaryUserAgent    = "secondary_user_agent"
	OptDefaultAuthority      = "default_authority"
	OptKeepaliveTimeMS       = "keepalive_time_ms"
	OptKeepaliveTimeoutMS    = "keepalive_timeout_ms"
	OptServiceConfig         = "service_config"
)

// ChannelOptions is a mapping from recognized keys to values; unknown keys
// are accepted and ignored rather than rejected, per spec §6.
type ChannelOptions map[string]string

// String returns the value for key, or "" if unset.
func (o ChannelOptions) String(key string) string { return o[key] }

// Duration parses key as milliseconds, returning def if unset or invalid.
func (o ChannelOptions) Duration(key string, def time.Duration) time.Duration {
	v, ok := o[key]
	if !ok {
		return def
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// normalizedKey returns a stable string identity for o, used in the
// SubchannelPool's identity key per spec §4.4 ("normalized-options").
func (o ChannelOptions) normalizedKey() string {
	if len(o) == 0 {
		return ""
	}
	// A map has no iteration order; sort keys for a deterministic digest.
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += k + "=" + o[k] + ";"
	}
	return s
}

// userAgent composes the user-agent header per spec §6:
// "<primary> grpc-x/<ver> <secondary>", whitespace-separated, empty parts
// dropped.
func (o ChannelOptions) userAgent() string {
	const coreVersion = "grpc-x/1.0.0"
	parts := []string{}
	if v := o[OptPrimaryUserAgent]; v != "" {
		parts = append(parts, v)
	}
	parts = append(parts, coreVersion)
	if v := o[OptSecondaryUserAgent]; v != "" {
		parts = append(parts, v)
	}
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += " "
		}
		s += p
	}
	return s
}

func (o ChannelOptions) keepaliveParams() keepalive.ClientParameters {
	return keepalive.ClientParameters{
		Time:    o.Duration(OptKeepaliveTimeMS, 0),
		Timeout: o.Duration(OptKeepaliveTimeoutMS, keepalive.DefaultTimeout),
	}
}

// defaultChannelOptions returns an empty ChannelOptions, mirroring a Dial
// call made with no DialOptions; credentials are defaulted separately, by
// credentialsOrInsecure.
func defaultChannelOptions() ChannelOptions { return ChannelOptions{} }

// credentialsOrInsecure returns creds with an insecure TransportCredentials
// filled in when creds.Transport is nil, keeping creds.PerRPC as given —
// every Channel must carry some transport credential, even if it is the
// plaintext no-op one.
func credentialsOrInsecure(creds credentials.Bundle) credentials.Bundle {
	if creds.Transport == nil {
		creds.Transport = insecure.NewCredentials()
	}
	return creds
}

func validateChannelOptions(o ChannelOptions) error {
	for _, k := range []string{OptKeepaliveTimeMS, OptKeepaliveTimeoutMS} {
		if v, ok := o[k]; ok {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return fmt.Errorf("corerpc: channel option %s must be an integer millisecond count: %w", k, err)
			}
		}
	}
	return nil
}
