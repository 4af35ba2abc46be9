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

// Package chttp provides the interceptor-driven HTTP transport used to talk
// to CouchDB and Cloudant servers.
package chttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync"

	internal "github.com/go-kivik/cloudant/internal/errors"
)

const typeJSON = "application/json"

// The default UserAgent values
const (
	UserAgent = "Cloudant"
	Version   = "1.0.0"
)

// Client represents a client connection to a single server. Every request
// it sends passes through a [Session].
type Client struct {
	// UserAgents is appended to the default User-Agent header. Typically it
	// should contain pairs of product name and version.
	UserAgents []string

	httpClient   *http.Client
	rawDSN       string
	dsn          *url.URL
	basePath     string
	interceptors []Interceptor
	maxRetries   int
	session      *Session
	authMU       sync.Mutex

	// noGzip disables request body compression.
	noGzip bool
}

// New returns a connection to a remote server. If credentials are included
// in the URL, requests will be authenticated using cookie auth. client may
// be nil, in which case a new *http.Client is used. client is copied, so
// that its Jar may be set without affecting the caller.
func New(client *http.Client, dsn string, options ...Option) (*Client, error) {
	dsnURL, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{}
	if client != nil {
		*hc = *client
	}
	user := dsnURL.User
	dsnURL.User = nil
	c := &Client{
		httpClient: hc,
		dsn:        dsnURL,
		basePath:   strings.TrimSuffix(dsnURL.Path, "/"),
		rawDSN:     dsn,
		maxRetries: DefaultMaxRetries,
	}
	if user != nil {
		password, _ := user.Password()
		CookieAuth(user.Username(), password).Apply(c)
	}
	for _, opt := range options {
		if opt != nil {
			opt.Apply(c)
		}
	}
	if c.maxRetries < 0 {
		return nil, &internal.Error{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid retry count %d", c.maxRetries)}
	}
	interceptors := c.interceptors
	if !c.noGzip {
		interceptors = append(interceptors, &compressInterceptor{client: c})
	}
	c.session = NewSession(hc, c.userAgent(), interceptors...)
	c.session.SetMaxRetries(c.maxRetries)
	return c, nil
}

func parseDSN(dsn string) (*url.URL, error) {
	if dsn == "" {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: errors.New("no URL specified")}
	}
	if !strings.HasPrefix(dsn, "http://") && !strings.HasPrefix(dsn, "https://") {
		dsn = "http://" + dsn
	}
	dsnURL, err := url.Parse(dsn)
	if err != nil {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
	}
	if dsnURL.Path == "" {
		dsnURL.Path = "/"
	}
	return dsnURL, nil
}

// DSN returns the unparsed DSN used to connect.
func (c *Client) DSN() string {
	return c.rawDSN
}

// Session returns the session backing the client.
func (c *Client) Session() *Session {
	return c.session
}

// AddInterceptor appends i to the chain. Only honored before [New] returns,
// so it is meant to be called from an [Option].
func (c *Client) AddInterceptor(i Interceptor) {
	c.interceptors = append(c.interceptors, i)
}

// DecodeJSON unmarshals the response body into i. This method consumes and
// closes the response body.
func DecodeJSON(r *http.Response, i interface{}) error {
	defer CloseBody(r.Body)
	if err := json.NewDecoder(r.Body).Decode(i); err != nil {
		return &internal.Error{Status: http.StatusBadGateway, Err: err}
	}
	return nil
}

// CloseBody drains and closes body, ignoring errors.
func CloseBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// DoJSON combines [Client.DoReq], [ResponseError], and [DecodeJSON], and
// closes the response body.
func (c *Client) DoJSON(ctx context.Context, method, path string, opts *Options, i interface{}) error {
	res, err := c.DoReq(ctx, method, path, opts)
	if err != nil {
		return err
	}
	if res.Body != nil {
		defer CloseBody(res.Body)
	}
	if err = ResponseError(res); err != nil {
		return err
	}
	return DecodeJSON(res, i)
}

// DoError is the same as [Client.DoReq], followed by checking the response
// error. It is meant for cases where the only information needed from the
// response is the status code. It unconditionally closes the response body.
func (c *Client) DoError(ctx context.Context, method, path string, opts *Options) (*http.Response, error) {
	res, err := c.DoReq(ctx, method, path, opts)
	if err != nil {
		return res, err
	}
	if res.Body != nil {
		defer CloseBody(res.Body)
	}
	return res, ResponseError(res)
}

func (c *Client) path(path string) string {
	if c.basePath != "" {
		return c.basePath + "/" + strings.TrimPrefix(path, "/")
	}
	return path
}

// fullPathMatches returns true if the target resolves to match path.
func (c *Client) fullPathMatches(path, target string) bool {
	p, err := url.Parse(path)
	if err != nil {
		return false
	}
	p.RawQuery = ""
	t := new(url.URL)
	*t = *c.dsn
	t.Path = c.path(target)
	t.RawQuery = ""
	return t.String() == p.String()
}

type noGzipKey struct{}

// NewRequest returns a new *http.Request to the server, and the specified
// path. The host, schema, etc, of the specified path are ignored.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader, opts *Options) (*http.Request, error) {
	fullPath := c.path(path)
	reqPath, err := url.Parse(fullPath)
	if err != nil {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
	}
	u := *c.dsn
	u.Path = reqPath.Path
	u.RawQuery = reqPath.RawQuery
	if opts != nil && opts.NoGzip {
		ctx = context.WithValue(ctx, noGzipKey{}, true)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &internal.Error{Status: http.StatusBadRequest, Err: err}
	}
	return req, nil
}

// DoReq does an HTTP request through the session. An error is returned only
// if there was an error processing the request. In particular, an error
// status code, such as 400 or 500, does _not_ cause an error to be returned.
func (c *Client) DoReq(ctx context.Context, method, path string, opts *Options) (*http.Response, error) {
	if method == "" {
		return nil, errors.New("chttp: method required")
	}
	var body io.Reader
	if opts != nil && opts.GetBody == nil && opts.Body != nil {
		body = opts.Body
	}
	req, err := c.NewRequest(ctx, method, path, body, opts)
	if err != nil {
		return nil, err
	}
	c.fixPath(req, path)
	setHeaders(req, opts)
	setQuery(req, opts)
	if opts != nil && opts.GetBody != nil {
		req.GetBody = opts.GetBody
	}
	return c.Do(req)
}

// Do submits req to the session and waits for the response headers. The
// response body streams from the transport as it is read.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	d := newPipeDelegate()
	task, err := c.session.Submit(req, d)
	if err != nil {
		return nil, err
	}
	task.Resume()
	return d.wait()
}

// fixPath sets the request's URL.RawPath to work with escaped characters in
// paths.
func (c *Client) fixPath(req *http.Request, path string) {
	parts := strings.SplitN(path, "?", 2) // nolint:gomnd
	req.URL.RawPath = c.basePath + "/" + strings.TrimPrefix(parts[0], "/")
}

func setHeaders(req *http.Request, opts *Options) {
	accept := typeJSON
	contentType := typeJSON
	if opts != nil {
		if opts.Accept != "" {
			accept = opts.Accept
		}
		if opts.ContentType != "" {
			contentType = opts.ContentType
		}
		if opts.FullCommit {
			req.Header.Add("X-Couch-Full-Commit", "true")
		}
		if opts.IfNoneMatch != "" {
			inm := "\"" + strings.Trim(opts.IfNoneMatch, "\"") + "\""
			req.Header.Set("If-None-Match", inm)
		}
		for k, v := range opts.Header {
			if _, ok := req.Header[k]; !ok {
				req.Header[k] = v
			}
		}
	}
	req.Header.Add("Accept", accept)
	req.Header.Add("Content-Type", contentType)
}

func setQuery(req *http.Request, opts *Options) {
	if opts == nil || len(opts.Query) == 0 {
		return
	}
	if req.URL.RawQuery == "" {
		req.URL.RawQuery = opts.Query.Encode()
		return
	}
	req.URL.RawQuery = strings.Join([]string{req.URL.RawQuery, opts.Query.Encode()}, "&")
}

func (c *Client) userAgent() string {
	ua := fmt.Sprintf("%s/%s/%s/%s %s",
		UserAgent, Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
	return strings.Join(append([]string{ua}, c.UserAgents...), " ")
}

// pipeDelegate turns session events into an *http.Response whose body is
// fed by ReceivedData.
type pipeDelegate struct {
	res chan *http.Response
	err chan error
	pr  *io.PipeReader
	pw  *io.PipeWriter

	// only accessed from the transport goroutine
	delivered bool
}

var _ Delegate = (*pipeDelegate)(nil)

func newPipeDelegate() *pipeDelegate {
	pr, pw := io.Pipe()
	return &pipeDelegate{
		res: make(chan *http.Response, 1),
		err: make(chan error, 1),
		pr:  pr,
		pw:  pw,
	}
}

func (d *pipeDelegate) ReceivedResponse(task *Task, res *http.Response) {
	r := new(http.Response)
	*r = *res
	r.Body = &taskBody{PipeReader: d.pr, task: task}
	d.delivered = true
	d.res <- r
}

func (d *pipeDelegate) ReceivedData(task *Task, data []byte) {
	if _, err := d.pw.Write(data); err != nil {
		task.Cancel()
	}
}

func (d *pipeDelegate) Completed(_ *Task, err error) {
	if !d.delivered {
		if err == nil {
			err = &internal.Error{Status: http.StatusBadGateway, Message: "no response received"}
		}
		d.err <- err
		return
	}
	_ = d.pw.CloseWithError(err)
}

func (d *pipeDelegate) wait() (*http.Response, error) {
	select {
	case r := <-d.res:
		return r, nil
	case err := <-d.err:
		return nil, err
	}
}

// taskBody cancels the backing task when closed before it completes.
type taskBody struct {
	*io.PipeReader
	task *Task
}

func (b *taskBody) Close() error {
	err := b.PipeReader.Close()
	b.task.Cancel()
	return err
}
