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
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RateLimitRetry returns an option which re-issues requests rejected with
// 429 Too Many Requests. The delay before each retry is taken from the
// Retry-After header if present, or else grows exponentially from initial,
// capped at max. At most attempts retries are made, within the session's
// overall retry budget.
func RateLimitRetry(attempts int, initial, max time.Duration) Option {
	return &rateLimit{
		attempts: attempts,
		initial:  initial,
		max:      max,
	}
}

type rateLimit struct {
	NopInterceptor
	attempts int
	initial  time.Duration
	max      time.Duration
}

var (
	_ Interceptor = (*rateLimit)(nil)
	_ Option      = (*rateLimit)(nil)
)

func (r *rateLimit) Apply(target interface{}) {
	if c, ok := target.(*Client); ok {
		c.AddInterceptor(r)
	}
}

func (r *rateLimit) String() string {
	return fmt.Sprintf("[RateLimitRetry{attempts:%d,initial:%s,max:%s}]", r.attempts, r.initial, r.max)
}

// delay returns the pause before the given retry, counting from 1.
func (r *rateLimit) delay(retry int, res *http.Response) time.Duration {
	if after := res.Header.Get("Retry-After"); after != "" {
		if secs, err := strconv.Atoi(after); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initial
	bo.MaxInterval = r.max
	bo.MaxElapsedTime = 0
	bo.Reset()
	d := bo.NextBackOff()
	for i := 1; i < retry; i++ {
		d = bo.NextBackOff()
	}
	return d
}

func (r *rateLimit) InterceptResponse(ictx InterceptorContext) InterceptorContext {
	res := ictx.Response
	if res == nil || res.StatusCode != http.StatusTooManyRequests || ictx.Attempt >= r.attempts {
		return ictx
	}
	timer := time.NewTimer(r.delay(ictx.Attempt+1, res))
	defer timer.Stop()
	select {
	case <-ictx.Request.Context().Done():
		return ictx
	case <-timer.C:
	}
	ictx.ShouldRetry = true
	return ictx
}
