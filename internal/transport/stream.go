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

package transport

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// Stream is one HTTP/2 stream carrying a single RPC's request and response
// messages. The callstream layer built on top of this maps its headers,
// data and trailers into corerpc's message/status pipeline (spec §4.9);
// Stream itself only knows about HTTP/2 framing concepts.
type Stream struct {
	id uint32
	t  *Transport

	mu          sync.Mutex
	gotHeaders  bool
	headersCh   chan []hpack.HeaderField
	trailersCh  chan []hpack.HeaderField
	dataCh      chan []byte
	closeErr    error
	closed      bool
	resetCode   http2.ErrCode
	gotReset    bool
	doneCh      chan struct{}
}

func newStream(id uint32, t *Transport) *Stream {
	return &Stream{
		id:         id,
		t:          t,
		headersCh:  make(chan []hpack.HeaderField, 1),
		trailersCh: make(chan []hpack.HeaderField, 1),
		dataCh:     make(chan []byte, 16),
		doneCh:     make(chan struct{}),
	}
}

// Done returns a channel closed when the stream has ended, for any
// reason: clean completion, RST_STREAM, or the owning Transport closing.
// Unlike Data(), which only carries payload bytes, Done fires even for a
// stream that never received any.
func (s *Stream) Done() <-chan struct{} { return s.doneCh }

// ID returns the HTTP/2 stream id.
func (s *Stream) ID() uint32 { return s.id }

// Write sends a DATA frame on the stream. endStream half-closes the
// client side (the caller has no more request data, e.g. the unary
// request message has been fully sent).
func (s *Stream) Write(p []byte, endStream bool) error {
	return s.t.writeData(s.id, p, endStream)
}

// CloseSend half-closes the client side without sending further data.
func (s *Stream) CloseSend() error {
	return s.t.writeData(s.id, nil, true)
}

// Cancel sends RST_STREAM with code and releases the stream's resources.
func (s *Stream) Cancel(code http2.ErrCode) {
	s.t.writeRSTStream(s.id, code)
	s.terminate(fmt.Errorf("transport: stream canceled with code %v", code))
}

// Headers blocks for the server's response HEADERS.
func (s *Stream) Headers() ([]hpack.HeaderField, error) {
	select {
	case h := <-s.headersCh:
		return h, nil
	case <-s.doneCh:
		return nil, s.closeOrErr()
	case <-s.t.done:
		return nil, s.closeOrErr()
	}
}

// Data returns a channel of received DATA payloads; it is closed when the
// stream ends (successfully or not). Callers should check Err after the
// channel closes to distinguish a clean end-of-stream from a failure.
func (s *Stream) Data() <-chan []byte { return s.dataCh }

// Trailers blocks for the server's trailing HEADERS (HTTP/2 trailers, or
// the sole HEADERS frame for a trailers-only response).
func (s *Stream) Trailers() ([]hpack.HeaderField, error) {
	select {
	case tr := <-s.trailersCh:
		return tr, nil
	case <-s.doneCh:
		return nil, s.closeOrErr()
	case <-s.t.done:
		return nil, s.closeOrErr()
	}
}

// Err returns the error, if any, the stream ended with.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// ResetCode returns the RST_STREAM code the peer sent, if any.
func (s *Stream) ResetCode() (http2.ErrCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetCode, s.gotReset
}

func (s *Stream) closeOrErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	return io.ErrUnexpectedEOF
}

// pushHeaders is called from the Transport's read loop. The first HEADERS
// frame on a stream is always the response headers; a later one (or the
// only one, for a trailers-only response) is the trailers.
func (s *Stream) pushHeaders(fields []hpack.HeaderField, endStream bool) {
	s.mu.Lock()
	first := !s.gotHeaders
	s.gotHeaders = true
	s.mu.Unlock()

	if first && !endStream {
		select {
		case s.headersCh <- fields:
		default:
		}
		return
	}

	// Trailers-only (first==true, endStream==true): deliver an empty
	// response-headers set so callers blocked on Headers() unblock, then
	// deliver the trailers.
	if first {
		select {
		case s.headersCh <- nil:
		default:
		}
	}
	select {
	case s.trailersCh <- fields:
	default:
	}
	if endStream {
		s.terminate(nil)
	}
}

func (s *Stream) pushData(p []byte, endStream bool) {
	if len(p) > 0 {
		s.dataCh <- p
	}
	if endStream {
		s.terminate(nil)
	}
}

func (s *Stream) reset(code http2.ErrCode) {
	s.mu.Lock()
	s.gotReset = true
	s.resetCode = code
	s.mu.Unlock()
	s.terminate(fmt.Errorf("transport: RST_STREAM received with code %v", code))
}

func (s *Stream) fail(err error) {
	s.terminate(err)
}

func (s *Stream) terminate(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = err
	s.mu.Unlock()

	close(s.dataCh)
	close(s.doneCh)
	s.t.removeStream(s.id)
}
