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
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-kivik/cloudant/chttp"
)

// Option configures a [Client]. Options from the chttp package, such as
// authentication, are accepted as well.
type Option = chttp.Option

type clientConfig struct {
	httpClient     *http.Client
	maxConcurrency int64
}

type optionHTTPClient struct {
	client *http.Client
}

func (o optionHTTPClient) Apply(target interface{}) {
	if cfg, ok := target.(*clientConfig); ok && o.client != nil {
		client := *o.client
		cfg.httpClient = &client
	}
}

func (optionHTTPClient) String() string { return "[HTTPClient]" }

// OptionHTTPClient sets the *http.Client used for requests. It is copied,
// so later changes to client have no effect.
func OptionHTTPClient(client *http.Client) Option {
	return optionHTTPClient{client: client}
}

type optionTimeout time.Duration

func (o optionTimeout) Apply(target interface{}) {
	if cfg, ok := target.(*clientConfig); ok {
		if cfg.httpClient == nil {
			cfg.httpClient = &http.Client{}
		}
		cfg.httpClient.Timeout = time.Duration(o)
	}
}

func (o optionTimeout) String() string { return fmt.Sprintf("[Timeout:%s]", time.Duration(o)) }

// OptionTimeout limits the duration of every HTTP exchange, including
// reading the response body.
func OptionTimeout(d time.Duration) Option {
	return optionTimeout(d)
}

type optionMaxConcurrency int64

func (o optionMaxConcurrency) Apply(target interface{}) {
	if cfg, ok := target.(*clientConfig); ok {
		cfg.maxConcurrency = int64(o)
	}
}

func (o optionMaxConcurrency) String() string {
	return fmt.Sprintf("[MaxConcurrency:%d]", int64(o))
}

// OptionMaxConcurrency sets how many operations execute at once. Further
// operations wait in the queue.
func OptionMaxConcurrency(n int) Option {
	return optionMaxConcurrency(n)
}

// Params allows passing arbitrary query parameters to an operation that
// accepts them. Values may be strings, string slices, bools or integers.
type Params map[string]interface{}

// Apply adds p to target, which must be a *url.Values.
func (p Params) Apply(target interface{}) {
	t, ok := target.(*url.Values)
	if !ok {
		return
	}
	for key, i := range p {
		var values []string
		switch v := i.(type) {
		case string:
			values = []string{v}
		case []string:
			values = v
		case bool:
			values = []string{fmt.Sprintf("%t", v)}
		case int, uint, uint8, uint16, uint32, uint64, int8, int16, int32, int64:
			values = []string{fmt.Sprintf("%d", v)}
		case json.Number:
			values = []string{v.String()}
		case []interface{}:
			for _, e := range v {
				values = append(values, fmt.Sprint(e))
			}
		}
		for _, value := range values {
			t.Add(key, value)
		}
	}
}

// OptionRetries sets the number of times a single request may be re-issued
// at the request of an interceptor. The default is [chttp.DefaultMaxRetries].
func OptionRetries(n int) Option {
	return chttp.OptionMaxRetries(n)
}
