// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package chttp

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// ClientTrace is a set of hooks to run at various stages of an outgoing
// HTTP exchange. Any particular hook may be nil. Hooks fire once per
// attempt, so a retried exchange reports every request sent and every
// response received.
type ClientTrace struct {
	// HTTPResponse returns a clone of the *http.Response received from the
	// server, with the body set to nil. If you need the body, use the more
	// expensive HTTPResponseBody.
	HTTPResponse func(*http.Response)

	// HTTPResponseBody returns a clone of the *http.Response received from
	// the server, with the body cloned. This can be expensive for responses
	// with large bodies.
	HTTPResponseBody func(*http.Response)

	// HTTPRequest returns a clone of the *http.Request sent to the server, with
	// the body set to nil. If you need the body, use the more expensive
	// HTTPRequestBody.
	HTTPRequest func(*http.Request)

	// HTTPRequestBody returns a clone of the *http.Request sent to the server,
	// with the body cloned, if it is set.
	HTTPRequestBody func(*http.Request)

	// HTTPRetry is called with the upcoming attempt number whenever a
	// response interceptor asks for the exchange to be re-issued.
	HTTPRetry func(attempt int, res *http.Response)
}

func (t *ClientTrace) httpResponse(r *http.Response) {
	if t == nil || t.HTTPResponse == nil || r == nil {
		return
	}
	clone := new(http.Response)
	*clone = *r
	clone.Body = nil
	t.HTTPResponse(clone)
}

func (t *ClientTrace) httpResponseBody(r *http.Response) {
	if t == nil || t.HTTPResponseBody == nil || r == nil {
		return
	}
	clone := new(http.Response)
	*clone = *r
	if r.Body != nil {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		clone.Body = io.NopCloser(bytes.NewReader(body))
	}
	t.HTTPResponseBody(clone)
}

func (t *ClientTrace) httpRequest(r *http.Request) {
	if t == nil || t.HTTPRequest == nil {
		return
	}
	clone := new(http.Request)
	*clone = *r
	clone.Body = nil
	t.HTTPRequest(clone)
}

func (t *ClientTrace) httpRequestBody(r *http.Request) {
	if t == nil || t.HTTPRequestBody == nil {
		return
	}
	clone := new(http.Request)
	*clone = *r
	if r.Body != nil && r.Body != http.NoBody {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		clone.Body = io.NopCloser(bytes.NewReader(body))
	}
	t.HTTPRequestBody(clone)
}

func (t *ClientTrace) httpRetry(attempt int, r *http.Response) {
	if t == nil || t.HTTPRetry == nil {
		return
	}
	clone := new(http.Response)
	*clone = *r
	clone.Body = nil
	t.HTTPRetry(attempt, clone)
}

type clientTraceContextKey struct{}

// ContextClientTrace returns the ClientTrace associated with the
// provided context. If none, it returns nil.
func ContextClientTrace(ctx context.Context) *ClientTrace {
	trace, _ := ctx.Value(clientTraceContextKey{}).(*ClientTrace)
	return trace
}

// WithClientTrace returns a new context based on the provided parent
// ctx. HTTP client requests made with the returned context will use the
// provided trace hooks.
func WithClientTrace(ctx context.Context, trace *ClientTrace) context.Context {
	return context.WithValue(ctx, clientTraceContextKey{}, trace)
}
