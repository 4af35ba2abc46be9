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
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ajg/form"

	"github.com/go-kivik/cloudant/chttp"
)

// ViewQuery selects rows of a view. Keys are JSON-encoded when sent, so
// they may be any value that encodes to JSON, including json.RawMessage.
// A nil key means the parameter is not sent.
type ViewQuery struct {
	DB        string `json:"db" validate:"required,dbname"`
	DesignDoc string `json:"ddoc" validate:"required"`
	View      string `json:"view" validate:"required"`

	Descending    bool        `json:"descending,omitempty"`
	StartKey      interface{} `json:"startkey,omitempty"`
	StartKeyDocID string      `json:"startkey_docid,omitempty"`
	EndKey        interface{} `json:"endkey,omitempty"`
	EndKeyDocID   string      `json:"endkey_docid,omitempty"`
	InclusiveEnd  *bool       `json:"inclusive_end,omitempty"`
	Key           interface{} `json:"key,omitempty"`

	// Keys selects rows by key. If set, the query is sent as a POST.
	Keys []interface{} `json:"keys,omitempty"`

	IncludeDocs bool   `json:"include_docs,omitempty"`
	Conflicts   bool   `json:"conflicts,omitempty"`
	Stale       string `json:"stale,omitempty" validate:"omitempty,oneof=ok update_after"`
	UpdateSeq   bool   `json:"update_seq,omitempty"`

	// Params are any additional query parameters.
	Params Params `json:"params,omitempty"`
}

// viewParams is the wire form of a view query. It is encoded keeping zero
// values, so that a pointer to false is sent as "false".
type viewParams struct {
	Descending    bool   `form:"descending,omitempty"`
	StartKey      string `form:"startkey,omitempty"`
	StartKeyDocID string `form:"startkey_docid,omitempty"`
	EndKey        string `form:"endkey,omitempty"`
	EndKeyDocID   string `form:"endkey_docid,omitempty"`
	InclusiveEnd  *bool  `form:"inclusive_end,omitempty"`
	Key           string `form:"key,omitempty"`
	IncludeDocs   bool   `form:"include_docs,omitempty"`
	Conflicts     bool   `form:"conflicts,omitempty"`
	Stale         string `form:"stale,omitempty"`
	UpdateSeq     bool   `form:"update_seq,omitempty"`
	Limit         int    `form:"limit,omitempty"`
	Skip          int    `form:"skip,omitempty"`
	Reduce        *bool  `form:"reduce,omitempty"`
}

func encodeKey(name string, key interface{}) (string, error) {
	if key == nil {
		return "", nil
	}
	b, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(b), nil
}

func (q *ViewQuery) path() string {
	ddoc := strings.TrimPrefix(q.DesignDoc, "_design/")
	return dbPath(q.DB) + "/_design/" + chttp.EncodeDocID(ddoc) + "/_view/" + chttp.EncodeDocID(q.View)
}

// QueryView queries a view.
type QueryView struct {
	ViewQuery

	// Limit caps the number of rows. Zero means no limit.
	Limit int `validate:"gte=0"`
	Skip  int `validate:"gte=0"`

	// Reduce, if set, overrides whether the reduce function is applied.
	Reduce *bool

	// Callback, if set, is called on completion.
	Callback func(*ViewResult, error)

	result *ViewResult
}

var _ Operation = (*QueryView)(nil)

// Validate checks the view location and parameters.
func (o *QueryView) Validate() error { return validateStruct(o) }

// Method returns POST when Keys is set, GET otherwise.
func (o *QueryView) Method() string {
	if len(o.Keys) > 0 {
		return http.MethodPost
	}
	return http.MethodGet
}

// Endpoint returns the view path.
func (o *QueryView) Endpoint() string { return o.path() }

// Query encodes the view parameters.
func (o *QueryView) Query() (url.Values, error) {
	p := viewParams{
		Descending:    o.Descending,
		StartKeyDocID: o.StartKeyDocID,
		EndKeyDocID:   o.EndKeyDocID,
		InclusiveEnd:  o.InclusiveEnd,
		IncludeDocs:   o.IncludeDocs,
		Conflicts:     o.Conflicts,
		Stale:         o.Stale,
		UpdateSeq:     o.UpdateSeq,
		Limit:         o.Limit,
		Skip:          o.Skip,
		Reduce:        o.Reduce,
	}
	var err error
	if p.StartKey, err = encodeKey("startkey", o.StartKey); err != nil {
		return nil, err
	}
	if p.EndKey, err = encodeKey("endkey", o.EndKey); err != nil {
		return nil, err
	}
	if p.Key, err = encodeKey("key", o.Key); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := form.NewEncoder(&buf).KeepZeros(true).Encode(p); err != nil {
		return nil, err
	}
	values, err := url.ParseQuery(buf.String())
	if err != nil {
		return nil, err
	}
	o.Params.Apply(&values)
	return values, nil
}

// Serialize returns the keys body for a POST, or nothing.
func (o *QueryView) Serialize() ([]byte, error) {
	if len(o.Keys) == 0 {
		return nil, nil
	}
	return json.Marshal(map[string]interface{}{"keys": o.Keys})
}

// Complete decodes the result.
func (o *QueryView) Complete(body json.RawMessage, _ *HTTPInfo, err error) error {
	result := &ViewResult{}
	if err = decodeResult(body, err, result); err == nil {
		o.result = result
	}
	if o.Callback != nil {
		o.Callback(o.result, err)
	}
	return err
}

// Result returns the decoded view result, or nil if the query failed.
func (o *QueryView) Result() *ViewResult { return o.result }

// ViewRow is a single row of a view result.
type ViewRow struct {
	ID    string          `json:"id,omitempty"`
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
	Doc   json.RawMessage `json:"doc,omitempty"`

	// Error is set for rows of a Keys query whose key was not found.
	Error string `json:"error,omitempty"`
}

// ScanKey unmarshals the row's key into dest.
func (r *ViewRow) ScanKey(dest interface{}) error { return scan(r.Key, dest) }

// ScanValue unmarshals the row's value into dest.
func (r *ViewRow) ScanValue(dest interface{}) error { return scan(r.Value, dest) }

// ScanDoc unmarshals the row's included document into dest.
func (r *ViewRow) ScanDoc(dest interface{}) error {
	if r.Doc == nil {
		return &Error{Status: http.StatusBadRequest, Message: "cloudant: doc is nil; does your query include docs?"}
	}
	return scan(r.Doc, dest)
}

func scan(raw json.RawMessage, dest interface{}) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return &Error{Status: http.StatusBadGateway, Err: err}
	}
	return nil
}

// ViewResult is the decoded reply to a view query.
type ViewResult struct {
	TotalRows int64           `json:"total_rows"`
	Offset    int64           `json:"offset"`
	UpdateSeq json.RawMessage `json:"update_seq,omitempty"`
	Rows      []ViewRow       `json:"rows"`
}
