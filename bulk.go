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
)

// BulkResult is the outcome of one document in a [BulkDocs] request.
type BulkResult struct {
	ID     string `json:"id"`
	Rev    string `json:"rev"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// UpdateErr returns the error for this document, or nil if it was written.
func (r BulkResult) UpdateErr() error {
	if r.Error == "" {
		return nil
	}
	status := http.StatusInternalServerError
	switch r.Error {
	case "conflict":
		status = http.StatusConflict
	case "forbidden":
		status = http.StatusForbidden
	case "unauthorized":
		status = http.StatusUnauthorized
	}
	return &Error{Status: status, Message: r.Reason}
}

// BulkDocs writes several documents in a single request.
type BulkDocs struct {
	DB   string        `validate:"required,dbname"`
	Docs []interface{} `validate:"required,min=1"`

	// NewEdits, if false, stores the revisions given in the documents as-is,
	// as replication does.
	NewEdits *bool

	// AllOrNothing asks for all documents to be committed, or none.
	AllOrNothing bool

	// Callback, if set, is called on completion.
	Callback func([]BulkResult, error)

	results []BulkResult
}

var _ Operation = (*BulkDocs)(nil)

// Validate checks the database name and that there are documents.
func (o *BulkDocs) Validate() error { return validateStruct(o) }

// Method returns POST.
func (o *BulkDocs) Method() string { return http.MethodPost }

// Endpoint returns the _bulk_docs path.
func (o *BulkDocs) Endpoint() string { return dbPath(o.DB) + "/_bulk_docs" }

// Query returns nil.
func (o *BulkDocs) Query() (url.Values, error) { return nil, nil }

// Serialize encodes the request. Every document must encode to a JSON
// object.
func (o *BulkDocs) Serialize() ([]byte, error) {
	docs := make([]json.RawMessage, len(o.Docs))
	for i, doc := range o.Docs {
		body, err := marshalDoc(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		docs[i] = body
	}
	return json.Marshal(struct {
		Docs         []json.RawMessage `json:"docs"`
		NewEdits     *bool             `json:"new_edits,omitempty"`
		AllOrNothing bool              `json:"all_or_nothing,omitempty"`
	}{
		Docs:         docs,
		NewEdits:     o.NewEdits,
		AllOrNothing: o.AllOrNothing,
	})
}

// Complete decodes the per-document results.
func (o *BulkDocs) Complete(body json.RawMessage, _ *HTTPInfo, err error) error {
	err = decodeResult(body, err, &o.results)
	if o.Callback != nil {
		o.Callback(o.results, err)
	}
	return err
}

// Results returns the per-document results, in request order.
func (o *BulkDocs) Results() []BulkResult { return o.results }
