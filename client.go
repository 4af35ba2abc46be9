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

package cloudant

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/go-kivik/cloudant/chttp"
)

// Client is a connection to a server. It is safe for concurrent use.
type Client struct {
	chttp *chttp.Client
	sem   *semaphore.Weighted

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New returns a client for the server at dsn. Credentials in the DSN enable
// cookie authentication.
func New(dsn string, options ...Option) (*Client, error) {
	cfg := &clientConfig{maxConcurrency: DefaultMaxConcurrency}
	for _, opt := range options {
		if opt != nil {
			opt.Apply(cfg)
		}
	}
	if cfg.maxConcurrency < 1 {
		return nil, &Error{Status: http.StatusBadRequest, Message: "max concurrency must be positive"}
	}
	ch, err := chttp.New(cfg.httpClient, dsn, options...)
	if err != nil {
		return nil, err
	}
	return &Client{
		chttp: ch,
		sem:   semaphore.NewWeighted(cfg.maxConcurrency),
	}, nil
}

// DSN returns the DSN the client was created with.
func (c *Client) DSN() string {
	return c.chttp.DSN()
}

// CHTTP returns the underlying transport client.
func (c *Client) CHTTP() *chttp.Client {
	return c.chttp
}

// Close prevents new operations from being added and waits for those
// already added to complete.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

// Do adds op and waits for it to complete.
func (c *Client) Do(ctx context.Context, op Operation) error {
	return c.Add(ctx, op).Wait()
}

// exchange performs one HTTP exchange and returns the full response body.
func (c *Client) exchange(ctx context.Context, method, endpoint string, query url.Values, payload []byte) (json.RawMessage, *HTTPInfo, error) {
	opts := &chttp.Options{Query: query}
	if len(payload) > 0 {
		opts.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
	}
	res, err := c.chttp.DoReq(ctx, method, endpoint, opts)
	if err != nil {
		return nil, nil, err
	}
	defer chttp.CloseBody(res.Body)
	info := &HTTPInfo{StatusCode: res.StatusCode, Header: res.Header}
	if err := chttp.ResponseError(res); err != nil {
		return nil, info, err
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, info, &Error{Status: http.StatusBadGateway, Err: err}
	}
	return body, info, nil
}
