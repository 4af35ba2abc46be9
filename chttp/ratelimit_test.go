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
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gitlab.com/flimzy/testy"
)

func TestRateLimitRetry(t *testing.T) {
	type tst struct {
		limited    int32
		retryAfter string
		attempts   int
		hits       int32
		status     int
		err        string
	}
	tests := testy.NewTable()
	tests.Add("recovers", tst{
		limited:  2,
		attempts: 3,
		hits:     3,
	})
	tests.Add("Retry-After honored", tst{
		limited:    1,
		retryAfter: "0",
		attempts:   1,
		hits:       2,
	})
	tests.Add("gives up", tst{
		limited:  100,
		attempts: 2,
		hits:     3,
		status:   http.StatusTooManyRequests,
		err:      "Too Many Requests",
	})

	tests.Run(t, func(t *testing.T, tt tst) {
		var hits int32
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if atomic.AddInt32(&hits, 1) <= tt.limited {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(s.Close)
		c, err := New(nil, s.URL, RateLimitRetry(tt.attempts, time.Millisecond, 2*time.Millisecond))
		if err != nil {
			t.Fatal(err)
		}
		_, err = c.DoError(context.Background(), http.MethodGet, "/", nil)
		testy.StatusError(t, tt.err, tt.status, err)
		if got := atomic.LoadInt32(&hits); got != tt.hits {
			t.Errorf("Expected %d requests, got %d", tt.hits, got)
		}
	})
}

func TestRateLimitDelay(t *testing.T) {
	r := &rateLimit{initial: 100 * time.Millisecond, max: 300 * time.Millisecond}
	res := &http.Response{Header: http.Header{}}
	for i := 1; i <= 6; i++ {
		d := r.delay(i, res)
		if d <= 0 || d > 450*time.Millisecond {
			t.Errorf("delay(%d) = %s out of range", i, d)
		}
	}
	res.Header.Set("Retry-After", "7")
	if d := r.delay(1, res); d != 7*time.Second {
		t.Errorf("Retry-After ignored: %s", d)
	}
}
