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
)

// IndexResult is the server's reply to an index creation.
type IndexResult struct {
	// Result is "created" or "exists".
	Result string `json:"result"`
	ID     string `json:"id"`
	Name   string `json:"name"`
}

// SortField is a field of a JSON index.
type SortField struct {
	Name string `validate:"required"`

	// Direction is "asc", "desc", or empty for the server default.
	Direction string `validate:"omitempty,oneof=asc desc"`
}

// MarshalJSON encodes f as the bare field name when no direction is set.
func (f SortField) MarshalJSON() ([]byte, error) {
	if f.Direction == "" {
		return json.Marshal(f.Name)
	}
	return json.Marshal(map[string]string{f.Name: f.Direction})
}

// CreateJSONIndex creates a Mango index of type json.
type CreateJSONIndex struct {
	DB     string      `validate:"required,dbname"`
	Fields []SortField `validate:"required,min=1,dive"`

	// Name of the index. The server picks one if empty.
	Name string

	// DesignDoc is the design document to store the index in. The server
	// picks one if empty.
	DesignDoc string

	// Callback, if set, is called on completion.
	Callback func(IndexResult, error)

	result IndexResult
}

var _ Operation = (*CreateJSONIndex)(nil)

// Validate checks the database name and fields.
func (o *CreateJSONIndex) Validate() error { return validateStruct(o) }

// Method returns POST.
func (o *CreateJSONIndex) Method() string { return http.MethodPost }

// Endpoint returns the _index path.
func (o *CreateJSONIndex) Endpoint() string { return dbPath(o.DB) + "/_index" }

// Query returns nil.
func (o *CreateJSONIndex) Query() (url.Values, error) { return nil, nil }

// Serialize encodes the index definition.
func (o *CreateJSONIndex) Serialize() ([]byte, error) {
	return json.Marshal(indexRequest{
		Type:      "json",
		Index:     jsonIndex{Fields: o.Fields},
		Name:      o.Name,
		DesignDoc: o.DesignDoc,
	})
}

// Complete decodes the result.
func (o *CreateJSONIndex) Complete(body json.RawMessage, _ *HTTPInfo, err error) error {
	err = decodeResult(body, err, &o.result)
	if o.Callback != nil {
		o.Callback(o.result, err)
	}
	return err
}

// Result returns the creation result.
func (o *CreateJSONIndex) Result() IndexResult { return o.result }

type indexRequest struct {
	Type      string      `json:"type"`
	Index     interface{} `json:"index"`
	Name      string      `json:"name,omitempty"`
	DesignDoc string      `json:"ddoc,omitempty"`
}

type jsonIndex struct {
	Fields []SortField `json:"fields"`
}

// TextField is a field of a text index.
type TextField struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type" validate:"required,oneof=boolean string number"`
}

// TextIndexDefaultField configures the default field of a text index.
type TextIndexDefaultField struct {
	Analyzer string `json:"analyzer,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

// CreateTextIndex creates a Cloudant Query index of type text.
type CreateTextIndex struct {
	DB string `validate:"required,dbname"`

	// Fields to index. If empty, every field is indexed.
	Fields []TextField `validate:"dive"`

	DefaultField *TextIndexDefaultField

	// Selector limits the documents that are indexed.
	Selector map[string]interface{}

	Name      string
	DesignDoc string

	// Callback, if set, is called on completion.
	Callback func(IndexResult, error)

	result IndexResult
}

var _ Operation = (*CreateTextIndex)(nil)

// Validate checks the database name and fields.
func (o *CreateTextIndex) Validate() error { return validateStruct(o) }

// Method returns POST.
func (o *CreateTextIndex) Method() string { return http.MethodPost }

// Endpoint returns the _index path.
func (o *CreateTextIndex) Endpoint() string { return dbPath(o.DB) + "/_index" }

// Query returns nil.
func (o *CreateTextIndex) Query() (url.Values, error) { return nil, nil }

// Serialize encodes the index definition.
func (o *CreateTextIndex) Serialize() ([]byte, error) {
	return json.Marshal(indexRequest{
		Type: "text",
		Index: textIndex{
			Fields:       o.Fields,
			DefaultField: o.DefaultField,
			Selector:     o.Selector,
		},
		Name:      o.Name,
		DesignDoc: o.DesignDoc,
	})
}

// Complete decodes the result.
func (o *CreateTextIndex) Complete(body json.RawMessage, _ *HTTPInfo, err error) error {
	err = decodeResult(body, err, &o.result)
	if o.Callback != nil {
		o.Callback(o.result, err)
	}
	return err
}

// Result returns the creation result.
func (o *CreateTextIndex) Result() IndexResult { return o.result }

type textIndex struct {
	Fields       []TextField            `json:"fields,omitempty"`
	DefaultField *TextIndexDefaultField `json:"default_field,omitempty"`
	Selector     map[string]interface{} `json:"selector,omitempty"`
}
