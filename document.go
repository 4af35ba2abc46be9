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
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/go-kivik/cloudant/chttp"
)

// DocumentResult is the server's reply to a document write.
type DocumentResult struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

func docPath(db, docID string) string {
	return dbPath(db) + "/" + chttp.EncodeDocID(docID)
}

// marshalDoc encodes doc, which must encode to a JSON object.
func marshalDoc(doc interface{}) ([]byte, error) {
	var body []byte
	switch t := doc.(type) {
	case json.RawMessage:
		body = t
	case []byte:
		body = t
	case string:
		body = []byte(t)
	default:
		var err error
		if body, err = json.Marshal(doc); err != nil {
			return nil, err
		}
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, errors.New("document must be a JSON object")
	}
	return trimmed, nil
}

// NewDocID returns a random document ID in the format CouchDB uses for
// server-generated IDs.
func NewDocID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateDocument creates a document with a client-generated ID. The ID is
// chosen before the request is sent, so a retried request cannot create a
// duplicate.
type CreateDocument struct {
	DB  string      `validate:"required,dbname"`
	Doc interface{} `validate:"required"`

	// Callback, if set, is called on completion.
	Callback func(DocumentResult, error)

	id     string
	result DocumentResult
}

var _ Operation = (*CreateDocument)(nil)

// Validate checks the database name and document.
func (o *CreateDocument) Validate() error { return validateStruct(o) }

// Method returns PUT.
func (o *CreateDocument) Method() string { return http.MethodPut }

// Endpoint returns the document path.
func (o *CreateDocument) Endpoint() string { return docPath(o.DB, o.id) }

// Query returns nil.
func (o *CreateDocument) Query() (url.Values, error) { return nil, nil }

// Serialize encodes the document and assigns its ID.
func (o *CreateDocument) Serialize() ([]byte, error) {
	body, err := marshalDoc(o.Doc)
	if err != nil {
		return nil, err
	}
	var meta struct {
		ID string `json:"_id"`
	}
	_ = json.Unmarshal(body, &meta)
	o.id = meta.ID
	if o.id == "" {
		o.id = NewDocID()
	}
	return body, nil
}

// Complete decodes the write result.
func (o *CreateDocument) Complete(body json.RawMessage, _ *HTTPInfo, err error) error {
	err = decodeResult(body, err, &o.result)
	if o.Callback != nil {
		o.Callback(o.result, err)
	}
	return err
}

// ID returns the document ID, once the operation has been added.
func (o *CreateDocument) ID() string { return o.id }

// Result returns the write result.
func (o *CreateDocument) Result() DocumentResult { return o.result }

// PutDocument creates or updates the document DocID.
type PutDocument struct {
	DB    string      `validate:"required,dbname"`
	DocID string      `validate:"required"`
	Doc   interface{} `validate:"required"`

	// Rev is the revision being replaced. It may instead be included in
	// Doc as _rev.
	Rev string

	// Callback, if set, is called on completion.
	Callback func(DocumentResult, error)

	result DocumentResult
}

var _ Operation = (*PutDocument)(nil)

// Validate checks the required fields.
func (o *PutDocument) Validate() error { return validateStruct(o) }

// Method returns PUT.
func (o *PutDocument) Method() string { return http.MethodPut }

// Endpoint returns the document path.
func (o *PutDocument) Endpoint() string { return docPath(o.DB, o.DocID) }

// Query returns the rev parameter if Rev is set.
func (o *PutDocument) Query() (url.Values, error) {
	if o.Rev == "" {
		return nil, nil
	}
	return url.Values{"rev": []string{o.Rev}}, nil
}

// Serialize encodes the document.
func (o *PutDocument) Serialize() ([]byte, error) { return marshalDoc(o.Doc) }

// Complete decodes the write result.
func (o *PutDocument) Complete(body json.RawMessage, _ *HTTPInfo, err error) error {
	err = decodeResult(body, err, &o.result)
	if o.Callback != nil {
		o.Callback(o.result, err)
	}
	return err
}

// Result returns the write result.
func (o *PutDocument) Result() DocumentResult { return o.result }

// GetDocument fetches a single document.
type GetDocument struct {
	DB    string `validate:"required,dbname"`
	DocID string `validate:"required"`

	// Rev fetches a specific revision.
	Rev string

	// Conflicts includes the _conflicts field.
	Conflicts bool

	// Revs includes the _revisions field.
	Revs bool

	// Params are any additional query parameters.
	Params Params

	// Callback, if set, is called on completion.
	Callback func(json.RawMessage, error)

	doc json.RawMessage
}

var _ Operation = (*GetDocument)(nil)

// Validate checks the required fields.
func (o *GetDocument) Validate() error { return validateStruct(o) }

// Method returns GET.
func (o *GetDocument) Method() string { return http.MethodGet }

// Endpoint returns the document path.
func (o *GetDocument) Endpoint() string { return docPath(o.DB, o.DocID) }

// Query returns the selected parameters.
func (o *GetDocument) Query() (url.Values, error) {
	q := url.Values{}
	if o.Rev != "" {
		q.Set("rev", o.Rev)
	}
	if o.Conflicts {
		q.Set("conflicts", "true")
	}
	if o.Revs {
		q.Set("revs", "true")
	}
	o.Params.Apply(&q)
	return q, nil
}

// Serialize returns no body.
func (o *GetDocument) Serialize() ([]byte, error) { return nil, nil }

// Complete stores the document.
func (o *GetDocument) Complete(body json.RawMessage, _ *HTTPInfo, err error) error {
	if err == nil {
		o.doc = body
	}
	if o.Callback != nil {
		o.Callback(o.doc, err)
	}
	return err
}

// Doc returns the raw document.
func (o *GetDocument) Doc() json.RawMessage { return o.doc }

// ScanDoc unmarshals the document into dest.
func (o *GetDocument) ScanDoc(dest interface{}) error {
	if o.doc == nil {
		return &Error{Status: http.StatusNotFound, Message: "no document"}
	}
	if err := json.Unmarshal(o.doc, dest); err != nil {
		return &Error{Status: http.StatusBadGateway, Err: err}
	}
	return nil
}

// DocRev returns the revision of the fetched document.
func (o *GetDocument) DocRev() string {
	var meta struct {
		Rev string `json:"_rev"`
	}
	_ = json.Unmarshal(o.doc, &meta)
	return meta.Rev
}

// DeleteDocument deletes a document revision.
type DeleteDocument struct {
	DB    string `validate:"required,dbname"`
	DocID string `validate:"required"`
	Rev   string `validate:"required"`

	// Callback, if set, is called on completion.
	Callback func(DocumentResult, error)

	result DocumentResult
}

var _ Operation = (*DeleteDocument)(nil)

// Validate checks the required fields.
func (o *DeleteDocument) Validate() error { return validateStruct(o) }

// Method returns DELETE.
func (o *DeleteDocument) Method() string { return http.MethodDelete }

// Endpoint returns the document path.
func (o *DeleteDocument) Endpoint() string { return docPath(o.DB, o.DocID) }

// Query returns the rev parameter.
func (o *DeleteDocument) Query() (url.Values, error) {
	return url.Values{"rev": []string{o.Rev}}, nil
}

// Serialize returns no body.
func (o *DeleteDocument) Serialize() ([]byte, error) { return nil, nil }

// Complete decodes the result.
func (o *DeleteDocument) Complete(body json.RawMessage, _ *HTTPInfo, err error) error {
	err = decodeResult(body, err, &o.result)
	if o.Callback != nil {
		o.Callback(o.result, err)
	}
	return err
}

// Result returns the delete result.
func (o *DeleteDocument) Result() DocumentResult { return o.result }
