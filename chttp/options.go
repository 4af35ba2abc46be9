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
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Option configures a [Client] or a request's [Options]. Apply must ignore
// target types it does not recognize.
type Option interface {
	Apply(target interface{})
}

// Options are optional parameters which may be sent with a request.
type Options struct {
	// Accept sets the request's Accept header. Defaults to "application/json".
	// To specify any, use "*/*".
	Accept string

	// ContentType sets the requests's Content-Type header. Defaults to "application/json".
	ContentType string

	// Body sets the body of the request.
	Body io.ReadCloser

	// GetBody is a function to set the body. If set, Body is ignored.
	GetBody func() (io.ReadCloser, error)

	// FullCommit adds the X-Couch-Full-Commit: true header to requests
	FullCommit bool

	// IfNoneMatch adds the If-None-Match header. The value will be quoted if
	// it is not already.
	IfNoneMatch string

	// Query is appended to the exiting url, if present. If the passed url
	// already contains query parameters, the values in Query are appended.
	// No merging takes place.
	Query url.Values

	// Header is a list of default headers to be set on the request.
	Header http.Header

	// NoGzip disables gzip compression on the request body.
	NoGzip bool
}

// NewOptions collects opts into a new *Options.
func NewOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		if opt != nil {
			opt.Apply(o)
		}
	}
	return o
}

type optionNoRequestCompression struct{}

var _ Option = optionNoRequestCompression{}

func (optionNoRequestCompression) Apply(target interface{}) {
	switch t := target.(type) {
	case *Client:
		t.noGzip = true
	case *Options:
		t.NoGzip = true
	}
}

func (optionNoRequestCompression) String() string { return "[NoRequestCompression]" }

// OptionNoRequestCompression disables gzip compression of request bodies.
// Passed to [New] it applies to every request, passed to [NewOptions] to a
// single request.
func OptionNoRequestCompression() Option {
	return optionNoRequestCompression{}
}

type optionUserAgent string

func (a optionUserAgent) Apply(target interface{}) {
	if client, ok := target.(*Client); ok {
		client.UserAgents = append(client.UserAgents, string(a))
	}
}

func (a optionUserAgent) String() string {
	return fmt.Sprintf("[UserAgent:%s]", string(a))
}

// OptionUserAgent may be passed as an option when creating a client object,
// to append to the default User-Agent header sent on all requests.
func OptionUserAgent(ua string) Option {
	return optionUserAgent(ua)
}

type optionMaxRetries int

func (o optionMaxRetries) Apply(target interface{}) {
	if client, ok := target.(*Client); ok {
		client.maxRetries = int(o)
	}
}

func (o optionMaxRetries) String() string {
	return fmt.Sprintf("[MaxRetries:%d]", int(o))
}

// OptionMaxRetries overrides the per-exchange retry budget, which defaults
// to [DefaultMaxRetries].
func OptionMaxRetries(n int) Option {
	return optionMaxRetries(n)
}

type optionInterceptors []Interceptor

func (o optionInterceptors) Apply(target interface{}) {
	if client, ok := target.(*Client); ok {
		for _, i := range o {
			client.AddInterceptor(i)
		}
	}
}

func (o optionInterceptors) String() string {
	return fmt.Sprintf("[Interceptors:%d]", len(o))
}

// OptionInterceptors appends interceptors to the client's chain, after any
// added by earlier options.
func OptionInterceptors(interceptors ...Interceptor) Option {
	return optionInterceptors(interceptors)
}

type optionFullCommit struct{}

func (optionFullCommit) Apply(target interface{}) {
	if o, ok := target.(*Options); ok {
		o.FullCommit = true
	}
}

func (optionFullCommit) String() string {
	return "[FullCommit]"
}

// OptionFullCommit sets the `X-Couch-Full-Commit` header on the request.
func OptionFullCommit() Option {
	return optionFullCommit{}
}

type optionIfNoneMatch string

func (o optionIfNoneMatch) Apply(target interface{}) {
	if opts, ok := target.(*Options); ok {
		opts.IfNoneMatch = string(o)
	}
}

func (o optionIfNoneMatch) String() string {
	return fmt.Sprintf("[If-None-Match: %s]", string(o))
}

// OptionIfNoneMatch sets the `If-None-Match` header on the request.
func OptionIfNoneMatch(value string) Option {
	return optionIfNoneMatch(value)
}

type optionHeader http.Header

func (o optionHeader) Apply(target interface{}) {
	if opts, ok := target.(*Options); ok {
		if opts.Header == nil {
			opts.Header = http.Header{}
		}
		for k, v := range o {
			opts.Header[k] = append(opts.Header[k], v...)
		}
	}
}

func (o optionHeader) String() string {
	return fmt.Sprintf("[Header:%v]", http.Header(o))
}

// OptionHeader adds h to the request headers.
func OptionHeader(h http.Header) Option {
	return optionHeader(h)
}
