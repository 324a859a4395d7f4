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

// Package metadata defines the ordered, multi-valued header representation
// carried alongside calls, mirroring google.golang.org/grpc/metadata.
package metadata

import "strings"

// MD maps a lower-cased header name to the list of string values set for
// it. The values under one name keep the order they were added in; the
// order of the names themselves is not kept. Binary values use the "-bin"
// key suffix convention; MD stores them as strings and does no base64
// encoding itself.
type MD map[string][]string

// New returns an MD holding one value for each entry of kv, with the keys
// lower-cased.
func New(kv map[string]string) MD {
	md := MD{}
	for k, v := range kv {
		md[strings.ToLower(k)] = []string{v}
	}
	return md
}

// Pairs returns an MD formed from the alternating key-value pairs in kv,
// preserving multiple values for a repeated key in call order.
func Pairs(kv ...string) MD {
	if len(kv)%2 == 1 {
		panic("metadata: Pairs got an odd number of arguments")
	}
	md := MD{}
	for i := 0; i < len(kv); i += 2 {
		k := strings.ToLower(kv[i])
		md[k] = append(md[k], kv[i+1])
	}
	return md
}

// Len returns the number of items in md.
func (md MD) Len() int {
	return len(md)
}

// Get returns the values for key, matched case-insensitively.
func (md MD) Get(key string) []string {
	return md[strings.ToLower(key)]
}

// Set replaces the values for key.
func (md MD) Set(key string, values ...string) {
	if len(values) == 0 {
		return
	}
	md[strings.ToLower(key)] = values
}

// Append appends values to the values already stored for key.
func (md MD) Append(key string, values ...string) {
	if len(values) == 0 {
		return
	}
	key = strings.ToLower(key)
	md[key] = append(md[key], values...)
}

// Delete removes the values for key.
func (md MD) Delete(key string) {
	delete(md, strings.ToLower(key))
}

// Clone returns a deep copy of md.
func (md MD) Clone() MD {
	cp := make(MD, len(md))
	for k, v := range md {
		vv := make([]string, len(v))
		copy(vv, v)
		cp[k] = vv
	}
	return cp
}

// Merge returns a new MD with the entries of md followed by the entries of
// other; a key present in both retains both sets of values, md's first.
func Merge(md, other MD) MD {
	out := md.Clone()
	for k, v := range other {
		out[k] = append(out[k], v...)
	}
	return out
}

// reservedPrefixes and reservedNames are header names the core manages
// itself; application metadata must not collide with them on the wire.
var (
	reservedPrefixes = []string{":", "grpc-"}
	reservedNames    = []string{"content-type", "te"}
)

// IsReserved reports whether key is one of the core's own wire headers.
func IsReserved(key string) bool {
	key = strings.ToLower(key)
	for _, n := range reservedNames {
		if key == n {
			return true
		}
	}
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
