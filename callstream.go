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
	"encoding/binary"
	"io"
	"strconv"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/corerpc/corerpc/balancer"
	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/internal/transport"
	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/status"
)

// CallOption customizes one call's behavior, following the teacher's
// functional options idiom used for DialOption.
type CallOption func(*callOptions)

type callOptions struct {
	waitForReady bool
}

// WaitForReady sets whether the call queues through TRANSIENT_FAILURE
// rather than failing fast, per spec §4.7.
func WaitForReady(wait bool) CallOption {
	return func(o *callOptions) { o.waitForReady = wait }
}

// CallStream is the duplex driver spec §4.9 describes: it owns the pick
// that binds the call to a Subchannel, the request message pipeline into
// the underlying transport.Stream, and the response header/message/trailer
// pipelines back out. Every inbound and outbound message is run through
// the call's own FilterStack, built when the call is created.
type CallStream struct {
	ch     *Channel
	ctx    context.Context
	cancel context.CancelFunc
	method string
	sendMD metadata.MD
	filters *FilterStack
	opts   callOptions

	attachedOnce sync.Once
	attachedCh   chan struct{} // closed once stream (or finalStatus) is set
	stream       *transport.Stream
	sc           *Subchannel

	headerOnce sync.Once
	headerMD   metadata.MD
	headerErr  error
	headerCh   chan struct{}
	httpStatus string

	mu          sync.Mutex
	finalStatus *status.Status
	finalized   bool
	trailerMD   metadata.MD
	pendingBuf  []byte // outbound bytes buffered before the stream attaches
	sendClosed  bool

	recvMu  sync.Mutex
	recvBuf []byte // leftover bytes from a DATA frame that held more than one framed message
}

func newCallStream(ch *Channel, ctx context.Context, method string, md metadata.MD, opts ...CallOption) *CallStream {
	var o callOptions
	for _, fn := range opts {
		fn(&o)
	}
	if mc := ch.methodConfig(method); mc != nil && o.waitForReady == false && mc.WaitForReady != nil {
		o.waitForReady = *mc.WaitForReady
	}

	cctx, cancel := context.WithCancel(ctx)
	cs := &CallStream{
		ch:         ch,
		ctx:        cctx,
		cancel:     cancel,
		method:     method,
		sendMD:     md,
		opts:       o,
		attachedCh: make(chan struct{}),
		headerCh:   make(chan struct{}),
		filters: newFilterStack(
			DeadlineFilter{},
			CallCredentialsFilter{Bundle: ch.creds, URI: method},
			CompressionFilter{},
			MetadataStatusFilter{},
		),
	}
	go cs.run()
	return cs
}

// run performs the pick and attaches the transport.Stream, then drives the
// inbound header/message/trailer pipelines until the call finalizes.
func (cs *CallStream) run() {
	outMD, err := cs.filters.sendMetadata(cs.ctx, cs.sendMD)
	if err != nil {
		cs.finalize(status.Convert(err), nil)
		return
	}

	sc, err := cs.ch.tryPick(cs.ctx, balancer.PickInfo{FullMethod: cs.method, Metadata: outMD}, cs.opts.waitForReady)
	if err != nil {
		cs.finalize(status.Convert(err), nil)
		return
	}
	cs.sc = sc

	stream, err := sc.StartCallStream(cs.ctx, cs.method, outMD)
	if err != nil {
		cs.finalize(status.New(codes.Unavailable, err.Error()), nil)
		return
	}

	cs.mu.Lock()
	cs.stream = stream
	buffered := cs.pendingBuf
	cs.pendingBuf = nil
	closeSend := cs.sendClosed
	cs.mu.Unlock()
	cs.closeAttached()

	if len(buffered) > 0 {
		if werr := stream.Write(buffered, false); werr != nil {
			cs.finalize(status.New(codes.Unavailable, werr.Error()), nil)
			return
		}
	}
	if closeSend {
		stream.CloseSend()
	}

	go cs.watchContext(stream)
	cs.readHeaders(stream)
}

func (cs *CallStream) watchContext(stream *transport.Stream) {
	select {
	case <-cs.ctx.Done():
		if cs.ctx.Err() == context.DeadlineExceeded {
			cs.cancelWithStatus(codes.DeadlineExceeded, "corerpc: call deadline exceeded")
		} else {
			cs.cancelWithStatus(codes.Canceled, "corerpc: call canceled")
		}
	case <-stream.Done():
	}
}

func (cs *CallStream) readHeaders(stream *transport.Stream) {
	fields, err := stream.Headers()
	if err != nil {
		cs.finalize(cs.streamEndStatus(stream, err), nil)
		return
	}
	cs.httpStatus = pseudoHeaderValue(fields, ":status")
	md, herr := cs.filters.receiveMetadata(cs.ctx, fieldsToMD(fields))
	cs.headerOnce.Do(func() {
		cs.headerMD, cs.headerErr = md, herr
		close(cs.headerCh)
	})
	if herr != nil {
		cs.finalize(status.Convert(herr), nil)
		return
	}
	trailers, terr := stream.Trailers()
	if terr != nil {
		cs.finalize(cs.streamEndStatus(stream, terr), nil)
		return
	}
	cs.finalizeFromTrailers(stream, trailers)
}

// streamEndStatus maps a transport.Stream failure to a gRPC status,
// preferring the RST_STREAM code table (spec §4.9) when the stream ended
// via RST_STREAM, and falling back to UNAVAILABLE otherwise.
func (cs *CallStream) streamEndStatus(stream *transport.Stream, err error) *status.Status {
	if code, ok := stream.ResetCode(); ok {
		return statusFromResetCode(code)
	}
	return status.New(codes.Unavailable, err.Error())
}

// finalizeFromTrailers maps the stream's trailer's grpc-status (via
// MetadataStatusFilter) or, absent one, its :status pseudo-header, to a
// final Status, per spec §4.9's two code-mapping tables.
func (cs *CallStream) finalizeFromTrailers(stream *transport.Stream, fields []hpack.HeaderField) {
	trailerMD := fieldsToMD(fields)
	_, err := cs.filters.receiveTrailers(cs.ctx, trailerMD)

	var st *status.Status
	switch {
	case err != nil:
		st = status.Convert(err)
	case len(trailerMD.Get("grpc-status")) > 0:
		st = status.New(codes.OK, "")
	default:
		if code, ok := stream.ResetCode(); ok {
			st = statusFromResetCode(code)
		} else {
			st = statusFromHTTPStatus(cs.httpStatus)
		}
	}
	cs.finalize(st, trailerMD)
}

func (cs *CallStream) finalize(st *status.Status, trailerMD metadata.MD) {
	cs.mu.Lock()
	if cs.finalized {
		cs.mu.Unlock()
		return
	}
	cs.finalized = true
	cs.finalStatus = st
	cs.trailerMD = trailerMD
	cs.mu.Unlock()

	cs.headerOnce.Do(func() { close(cs.headerCh) })
	cs.closeAttached()
	cs.cancel()
	cs.ch.idleMgr.onCallEnd()
}

// closeAttached closes attachedCh exactly once, whether run() is closing it
// after a successful attach or finalize is closing it after a call that
// never attached a stream at all.
func (cs *CallStream) closeAttached() {
	cs.attachedOnce.Do(func() { close(cs.attachedCh) })
}

// statusFromHTTPStatus maps a non-gRPC-aware response's :status header to
// a gRPC status code, per spec §4.9's HTTP :status table.
func statusFromHTTPStatus(httpStatus string) *status.Status {
	if httpStatus == "" {
		return status.New(codes.Unknown, "corerpc: stream ended without a grpc-status or :status")
	}
	code, err := strconv.Atoi(httpStatus)
	if err != nil {
		return status.New(codes.Unknown, "corerpc: unparseable :status header")
	}
	switch code {
	case 400:
		return status.New(codes.Internal, "corerpc: received HTTP 400")
	case 401:
		return status.New(codes.Unauthenticated, "corerpc: received HTTP 401")
	case 403:
		return status.New(codes.PermissionDenied, "corerpc: received HTTP 403")
	case 404:
		return status.New(codes.Unimplemented, "corerpc: received HTTP 404")
	case 429, 502, 503, 504:
		return status.New(codes.Unavailable, "corerpc: received HTTP "+httpStatus)
	default:
		return status.New(codes.Unknown, "corerpc: received HTTP "+httpStatus)
	}
}

// pseudoHeaderValue returns the first value of the pseudo-header named
// name (e.g. ":status"), or "" if absent.
func pseudoHeaderValue(fields []hpack.HeaderField, name string) string {
	for _, f := range fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// statusFromResetCode maps an RST_STREAM error code to a gRPC status code,
// per spec §4.9's RST_STREAM table.
func statusFromResetCode(code http2.ErrCode) *status.Status {
	switch code {
	case http2.ErrCodeRefusedStream:
		return status.New(codes.Unavailable, "corerpc: stream refused")
	case http2.ErrCodeCancel:
		return status.New(codes.Canceled, "corerpc: stream canceled by peer")
	case http2.ErrCodeEnhanceYourCalm:
		return status.New(codes.ResourceExhausted, "corerpc: stream reset with ENHANCE_YOUR_CALM")
	case http2.ErrCodeInadequateSecurity:
		return status.New(codes.PermissionDenied, "corerpc: stream reset for inadequate security")
	default:
		return status.New(codes.Internal, "corerpc: stream reset with code "+code.String())
	}
}

func fieldsToMD(fields []hpack.HeaderField) metadata.MD {
	md := metadata.MD{}
	for _, f := range fields {
		if len(f.Name) > 0 && f.Name[0] == ':' {
			continue
		}
		md.Append(f.Name, f.Value)
	}
	return md
}

// SendMsg frames and writes one message, buffering it if the stream has
// not yet attached to a Subchannel (spec §4.9's "outbound messages written
// before pick completion are buffered and flushed on attach").
func (cs *CallStream) SendMsg(msg []byte) error {
	out, err := cs.filters.sendMessage(cs.ctx, msg)
	if err != nil {
		return err
	}
	framed := frameMessage(out)

	cs.mu.Lock()
	stream := cs.stream
	if cs.finalized {
		err := cs.finalStatus.Err()
		cs.mu.Unlock()
		return err
	}
	if stream == nil {
		cs.pendingBuf = append(cs.pendingBuf, framed...)
		cs.mu.Unlock()
		return nil
	}
	cs.mu.Unlock()
	return stream.Write(framed, false)
}

// CloseSend half-closes the client side of the call.
func (cs *CallStream) CloseSend() error {
	cs.mu.Lock()
	stream := cs.stream
	cs.sendClosed = true
	finalized := cs.finalized
	cs.mu.Unlock()
	if finalized {
		return nil
	}
	if stream == nil {
		return nil
	}
	return stream.CloseSend()
}

// RecvMsg blocks for the next framed message on the stream, applying the
// receive filter pipeline, or returns io.EOF once the stream has ended
// cleanly.
func (cs *CallStream) RecvMsg() ([]byte, error) {
	select {
	case <-cs.attachedCh:
	case <-cs.ctx.Done():
		return nil, cs.Err()
	}
	cs.mu.Lock()
	stream := cs.stream
	cs.mu.Unlock()
	if stream == nil {
		return nil, cs.Err()
	}

	msg, err := cs.readFramedMessage(stream)
	if err != nil {
		if err == io.EOF {
			if fe := cs.Err(); fe != nil {
				return nil, fe
			}
			return nil, io.EOF
		}
		return nil, err
	}
	return cs.filters.receiveMessage(cs.ctx, msg)
}

// Header blocks for the response headers, or returns the call's final
// error if it finalized before any were received.
func (cs *CallStream) Header() (metadata.MD, error) {
	<-cs.headerCh
	if cs.headerMD == nil {
		if err := cs.Err(); err != nil {
			return nil, err
		}
	}
	return cs.headerMD, cs.headerErr
}

// Trailer returns the response trailers; valid only after the call has
// finalized.
func (cs *CallStream) Trailer() metadata.MD {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.trailerMD
}

// Err returns the call's final status as an error, or nil while the call
// is still in flight.
func (cs *CallStream) Err() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.finalized {
		return nil
	}
	return cs.finalStatus.Err()
}

// cancelWithStatus finalizes the call with the given status and, if a
// stream has attached, sends RST_STREAM(CANCEL) to the peer. Safe to call
// more than once; only the first call has an effect, per the finalStatus-
// once guard spec §4.9 requires.
func (cs *CallStream) cancelWithStatus(code codes.Code, msg string) {
	cs.mu.Lock()
	stream := cs.stream
	already := cs.finalized
	cs.mu.Unlock()
	if already {
		return
	}
	if stream != nil {
		stream.Cancel(http2.ErrCodeCancel)
	}
	cs.finalize(status.New(code, msg), nil)
}

// frameMessage prepends the 5-byte length-prefixed message header the
// wire protocol uses: a one-byte compressed flag (always 0, since no
// compressor is wired in) followed by a 4-byte big-endian length.
func frameMessage(p []byte) []byte {
	out := make([]byte, 5+len(p))
	binary.BigEndian.PutUint32(out[1:5], uint32(len(p)))
	copy(out[5:], p)
	return out
}

// readFramedMessage reads one length-prefixed message off stream's Data
// channel, reassembling it across as many DATA frames as needed and
// holding any surplus in cs.recvBuf for the next call (a single DATA
// frame may carry more than one message, or only part of one).
func (cs *CallStream) readFramedMessage(stream *transport.Stream) ([]byte, error) {
	header, err := cs.readExactly(stream, 5)
	if err != nil {
		return nil, err
	}
	if header[0] != 0 {
		return nil, status.New(codes.Internal, "corerpc: received a compressed message but no compressor is configured").Err()
	}
	n := binary.BigEndian.Uint32(header[1:5])
	if n == 0 {
		return nil, nil
	}
	return cs.readExactly(stream, int(n))
}

// readExactly returns exactly n bytes, pulling first from cs.recvBuf (left
// over from a previous DATA frame) and then from stream.Data() as needed.
func (cs *CallStream) readExactly(stream *transport.Stream, n int) ([]byte, error) {
	cs.recvMu.Lock()
	defer cs.recvMu.Unlock()

	for len(cs.recvBuf) < n {
		chunk, ok := <-stream.Data()
		if !ok {
			if len(cs.recvBuf) == 0 {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
		cs.recvBuf = append(cs.recvBuf, chunk...)
	}
	out := cs.recvBuf[:n:n]
	cs.recvBuf = cs.recvBuf[n:]
	return out, nil
}
