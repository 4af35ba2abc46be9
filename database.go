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
	"net/http"
	"net/url"
	"strconv"
)

// CreateDatabase creates a database.
type CreateDatabase struct {
	Name string `validate:"required,dbname"`

	// Partitioned creates a partitioned database.
	Partitioned bool

	// Shards sets the number of shards (q). Zero leaves the server default.
	Shards int `validate:"gte=0"`

	// Callback, if set, is called on completion.
	Callback func(error)
}

var _ Operation = (*CreateDatabase)(nil)

// Validate checks the database name.
func (o *CreateDatabase) Validate() error { return validateStruct(o) }

// Method returns PUT.
func (o *CreateDatabase) Method() string { return http.MethodPut }

// Endpoint returns the database path.
func (o *CreateDatabase) Endpoint() string { return dbPath(o.Name) }

// Query returns the partitioned and q parameters.
func (o *CreateDatabase) Query() (url.Values, error) {
	q := url.Values{}
	if o.Partitioned {
		q.Set("partitioned", "true")
	}
	if o.Shards > 0 {
		q.Set("q", strconv.Itoa(o.Shards))
	}
	return q, nil
}

// Serialize returns no body.
func (o *CreateDatabase) Serialize() ([]byte, error) { return nil, nil }

// Complete reports the outcome to Callback.
func (o *CreateDatabase) Complete(_ json.RawMessage, _ *HTTPInfo, err error) error {
	if o.Callback != nil {
		o.Callback(err)
	}
	return err
}

// DeleteDatabase deletes a database.
type DeleteDatabase struct {
	Name string `validate:"required,dbname"`

	// Callback, if set, is called on completion.
	Callback func(error)
}

var _ Operation = (*DeleteDatabase)(nil)

// Validate checks the database name.
func (o *DeleteDatabase) Validate() error { return validateStruct(o) }

// Method returns DELETE.
func (o *DeleteDatabase) Method() string { return http.MethodDelete }

// Endpoint returns the database path.
func (o *DeleteDatabase) Endpoint() string { return dbPath(o.Name) }

// Query returns nil.
func (o *DeleteDatabase) Query() (url.Values, error) { return nil, nil }

// Serialize returns no body.
func (o *DeleteDatabase) Serialize() ([]byte, error) { return nil, nil }

// Complete reports the outcome to Callback.
func (o *DeleteDatabase) Complete(_ json.RawMessage, _ *HTTPInfo, err error) error {
	if o.Callback != nil {
		o.Callback(err)
	}
	return err
}
