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
	"context"
	"net/url"
)

// Handle tracks an operation added to a [Client].
type Handle struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

func newHandle() *Handle {
	return &Handle{
		done:   make(chan struct{}),
		cancel: func() {},
	}
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

// Wait blocks until the operation completes, and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Done returns a channel which is closed when the operation completes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel aborts the operation. An operation still waiting in the queue is
// never sent. Completion is still reported.
func (h *Handle) Cancel() {
	h.cancel()
}

type prepared struct {
	method   string
	endpoint string
	query    url.Values
	payload  []byte
}

func prepare(op Operation) (*prepared, error) {
	if err := op.Validate(); err != nil {
		return nil, badRequest(err)
	}
	payload, err := op.Serialize()
	if err != nil {
		return nil, badRequest(err)
	}
	query, err := op.Query()
	if err != nil {
		return nil, badRequest(err)
	}
	return &prepared{
		method:   op.Method(),
		endpoint: op.Endpoint(),
		query:    query,
		payload:  payload,
	}, nil
}

// Add validates and serializes op, then queues it for execution. Failures
// up to that point are delivered to op.Complete before Add returns, and
// nothing is sent. At most the configured number of operations execute at
// once; the rest wait in the queue.
func (c *Client) Add(ctx context.Context, op Operation) *Handle {
	h := newHandle()
	p, err := prepare(op)
	if err != nil {
		h.finish(op.Complete(nil, nil, err))
		return h
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		h.finish(op.Complete(nil, nil, ErrClientClosed))
		return h
	}
	c.wg.Add(1)
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	go func() {
		defer c.wg.Done()
		defer cancel()
		if err := c.sem.Acquire(ctx, 1); err != nil {
			h.finish(op.Complete(nil, nil, err))
			return
		}
		body, info, err := c.exchange(ctx, p.method, p.endpoint, p.query, p.payload)
		c.sem.Release(1)
		h.finish(op.Complete(body, info, err))
	}()
	return h
}
