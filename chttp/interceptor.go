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

import "net/http"

// InterceptorContext is the value threaded through an [InterceptorChain]. A
// fresh context is built for every request phase and every response phase.
type InterceptorContext struct {
	// Request is the outgoing request. Request interceptors may modify it in
	// place, or replace it.
	Request *http.Request

	// Response is the received response. It is nil during the request phase.
	Response *http.Response

	// ShouldRetry may be set by a response interceptor to ask the session to
	// re-issue the request.
	ShouldRetry bool

	// Attempt is the zero-based attempt number of the exchange.
	Attempt int
}

// Interceptor observes and modifies HTTP exchanges. Interceptors are shared
// by concurrent exchanges, so must not keep per-exchange state.
type Interceptor interface {
	InterceptRequest(InterceptorContext) InterceptorContext
	InterceptResponse(InterceptorContext) InterceptorContext
}

// NopInterceptor returns its input unchanged from both phases. Embed it to
// implement only one phase.
type NopInterceptor struct{}

var _ Interceptor = NopInterceptor{}

// InterceptRequest returns ctx.
func (NopInterceptor) InterceptRequest(ctx InterceptorContext) InterceptorContext { return ctx }

// InterceptResponse returns ctx.
func (NopInterceptor) InterceptResponse(ctx InterceptorContext) InterceptorContext { return ctx }

// RequestInterceptorFunc adapts a function to a request-only [Interceptor].
type RequestInterceptorFunc func(InterceptorContext) InterceptorContext

var _ Interceptor = RequestInterceptorFunc(nil)

// InterceptRequest calls f(ctx).
func (f RequestInterceptorFunc) InterceptRequest(ctx InterceptorContext) InterceptorContext {
	return f(ctx)
}

// InterceptResponse returns ctx.
func (RequestInterceptorFunc) InterceptResponse(ctx InterceptorContext) InterceptorContext {
	return ctx
}

// ResponseInterceptorFunc adapts a function to a response-only [Interceptor].
type ResponseInterceptorFunc func(InterceptorContext) InterceptorContext

var _ Interceptor = ResponseInterceptorFunc(nil)

// InterceptRequest returns ctx.
func (ResponseInterceptorFunc) InterceptRequest(ctx InterceptorContext) InterceptorContext {
	return ctx
}

// InterceptResponse calls f(ctx).
func (f ResponseInterceptorFunc) InterceptResponse(ctx InterceptorContext) InterceptorContext {
	return f(ctx)
}

// InterceptorChain is an ordered list of interceptors. Every interceptor is
// applied, in list order, for both phases.
type InterceptorChain []Interceptor

// ApplyRequest folds the request phase of each interceptor over ctx.
func (c InterceptorChain) ApplyRequest(ctx InterceptorContext) InterceptorContext {
	for _, i := range c {
		if i != nil {
			ctx = i.InterceptRequest(ctx)
		}
	}
	return ctx
}

// ApplyResponse folds the response phase of each interceptor over ctx.
func (c InterceptorChain) ApplyResponse(ctx InterceptorContext) InterceptorContext {
	for _, i := range c {
		if i != nil {
			ctx = i.InterceptResponse(ctx)
		}
	}
	return ctx
}
