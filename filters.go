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
	"fmt"
	"strconv"
	"time"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/credentials"
	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/status"
)

// Filter is polymorphic over the hooks spec §4.8 describes: sendMetadata,
// receiveMetadata, sendMessage, receiveMessage, receiveTrailers. Each hook
// maps its input to its output and may fail; a Filter that does not care
// about a given hook embeds NopFilter and only overrides the ones it needs.
type Filter interface {
	SendMetadata(ctx context.Context, md metadata.MD) (metadata.MD, error)
	ReceiveMetadata(ctx context.Context, md metadata.MD) (metadata.MD, error)
	SendMessage(ctx context.Context, p []byte) ([]byte, error)
	ReceiveMessage(ctx context.Context, p []byte) ([]byte, error)
	ReceiveTrailers(ctx context.Context, md metadata.MD) (metadata.MD, error)
}

// NopFilter implements every Filter hook as a passthrough; concrete
// filters embed it and override only what they need.
type NopFilter struct{}

func (NopFilter) SendMetadata(_ context.Context, md metadata.MD) (metadata.MD, error) { return md, nil }
func (NopFilter) ReceiveMetadata(_ context.Context, md metadata.MD) (metadata.MD, error) {
	return md, nil
}
func (NopFilter) SendMessage(_ context.Context, p []byte) ([]byte, error) { return p, nil }
func (NopFilter) ReceiveMessage(_ context.Context, p []byte) ([]byte, error) { return p, nil }
func (NopFilter) ReceiveTrailers(_ context.Context, md metadata.MD) (metadata.MD, error) {
	return md, nil
}

// FilterStack applies send hooks in registration order and receive hooks in
// reverse, so each filter wraps the next symmetrically, per spec §4.8.
// Filter failures propagate as INTERNAL unless the filter already returned
// a *status.Error.
type FilterStack struct {
	filters []Filter
}

func newFilterStack(filters ...Filter) *FilterStack {
	return &FilterStack{filters: filters}
}

func wrapFilterErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Errorf(codes.Internal, "corerpc: filter failed: %v", err)
}

func (fs *FilterStack) sendMetadata(ctx context.Context, md metadata.MD) (metadata.MD, error) {
	var err error
	for _, f := range fs.filters {
		md, err = f.SendMetadata(ctx, md)
		if err != nil {
			return nil, wrapFilterErr(err)
		}
	}
	return md, nil
}

func (fs *FilterStack) sendMessage(ctx context.Context, p []byte) ([]byte, error) {
	var err error
	for _, f := range fs.filters {
		p, err = f.SendMessage(ctx, p)
		if err != nil {
			return nil, wrapFilterErr(err)
		}
	}
	return p, nil
}

func (fs *FilterStack) receiveMetadata(ctx context.Context, md metadata.MD) (metadata.MD, error) {
	var err error
	for i := len(fs.filters) - 1; i >= 0; i-- {
		md, err = fs.filters[i].ReceiveMetadata(ctx, md)
		if err != nil {
			return nil, wrapFilterErr(err)
		}
	}
	return md, nil
}

func (fs *FilterStack) receiveMessage(ctx context.Context, p []byte) ([]byte, error) {
	var err error
	for i := len(fs.filters) - 1; i >= 0; i-- {
		p, err = fs.filters[i].ReceiveMessage(ctx, p)
		if err != nil {
			return nil, wrapFilterErr(err)
		}
	}
	return p, nil
}

func (fs *FilterStack) receiveTrailers(ctx context.Context, md metadata.MD) (metadata.MD, error) {
	var err error
	for i := len(fs.filters) - 1; i >= 0; i-- {
		md, err = fs.filters[i].ReceiveTrailers(ctx, md)
		if err != nil {
			return nil, wrapFilterErr(err)
		}
	}
	return md, nil
}

// CallCredentialsFilter resolves per-call credentials to additional
// metadata via the credential plugin, merging into outgoing metadata.
type CallCredentialsFilter struct {
	NopFilter
	Bundle credentials.Bundle
	URI    string
}

func (f CallCredentialsFilter) SendMetadata(ctx context.Context, md metadata.MD) (metadata.MD, error) {
	if len(f.Bundle.PerRPC) == 0 {
		return md, nil
	}
	extra, err := f.Bundle.RequestMetadata(ctx, f.URI)
	if err != nil {
		return nil, err
	}
	return metadata.Merge(md, extra), nil
}

// DeadlineFilter sets a grpc-timeout header from the call's deadline, and
// fails the call with DEADLINE_EXCEEDED if that deadline has already
// passed. A later expiry is handled through the call's context, not by
// this filter.
type DeadlineFilter struct {
	NopFilter
}

func (f DeadlineFilter) SendMetadata(ctx context.Context, md metadata.MD) (metadata.MD, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return md, nil
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, status.Error(codes.DeadlineExceeded, "corerpc: context deadline already exceeded")
	}
	md = md.Clone()
	md.Set("grpc-timeout", encodeTimeout(remaining))
	return md, nil
}

// encodeTimeout formats d as a grpc-timeout value: an integer plus a unit
// suffix, the way grpc's wire format requires (u=microsecond, m=millisecond,
// S=second, M=minute, H=hour); always expressed here in milliseconds for
// simplicity, which every gRPC-compliant server accepts.
func encodeTimeout(d time.Duration) string {
	ms := d / time.Millisecond
	if ms <= 0 {
		ms = 1
	}
	return strconv.FormatInt(int64(ms), 10) + "m"
}

// MetadataStatusFilter rewrites the inbound trailer pipeline to terminate
// with the status named by an incoming grpc-status header, per spec §4.8
// (guards against servers that echo grpc-status in initial headers rather
// than trailers-only responses).
type MetadataStatusFilter struct{ NopFilter }

func (f MetadataStatusFilter) ReceiveMetadata(ctx context.Context, md metadata.MD) (metadata.MD, error) {
	return md, grpcStatusFromMD(md)
}

func (f MetadataStatusFilter) ReceiveTrailers(ctx context.Context, md metadata.MD) (metadata.MD, error) {
	return md, grpcStatusFromMD(md)
}

// grpcStatusFromMD returns a non-nil error built from md's grpc-status and
// grpc-message entries if grpc-status is present and not OK.
func grpcStatusFromMD(md metadata.MD) error {
	v := md.Get("grpc-status")
	if len(v) == 0 {
		return nil
	}
	code, err := strconv.Atoi(v[0])
	if err != nil || codes.Code(code) == codes.OK {
		return nil
	}
	msg := ""
	if m := md.Get("grpc-message"); len(m) > 0 {
		msg = m[0]
	}
	return status.Error(codes.Code(code), msg)
}

// CompressionFilter negotiates and applies a per-message encoding using
// grpc-encoding/grpc-accept-encoding headers. Only identity ("no
// compression") is implemented; a non-identity encoding chosen by a server
// is treated as an error rather than silently corrupting messages, since
// no compressor is registered here (serialization/compression beyond
// negotiation is a named external collaborator per spec §1).
type CompressionFilter struct {
	NopFilter
	Encoding string
}

func (f CompressionFilter) SendMetadata(ctx context.Context, md metadata.MD) (metadata.MD, error) {
	if f.Encoding == "" || f.Encoding == "identity" {
		return md, nil
	}
	md = md.Clone()
	md.Set("grpc-encoding", f.Encoding)
	md.Set("grpc-accept-encoding", "identity,"+f.Encoding)
	return md, nil
}

func (f CompressionFilter) ReceiveMetadata(ctx context.Context, md metadata.MD) (metadata.MD, error) {
	if v := md.Get("grpc-encoding"); len(v) > 0 && v[0] != "identity" && v[0] != "" {
		return md, fmt.Errorf("corerpc: received message encoded with unsupported grpc-encoding %q", v[0])
	}
	return md, nil
}
