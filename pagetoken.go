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
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
)

// PageToken records the position of a paging session, so that it may be
// resumed later, possibly in another process. Its text form is URL safe.
type PageToken struct {
	// Query is the view query of the session.
	Query ViewQuery

	// PageSize is the page size of the session.
	PageSize int

	state pageState
}

type pageTokenJSON struct {
	Query ViewQuery `json:"q"`
	// Params holds Query.Params in wire form, as generic JSON does not
	// preserve their Go types.
	Params   url.Values `json:"p,omitempty"`
	PageSize int        `json:"ps"`
	State    pageState  `json:"s"`
}

// Index returns the index of the page the token was issued for.
func (t *PageToken) Index() int {
	return t.state.position()
}

// Direction returns the direction of the fetch that produced the page the
// token was issued for.
func (t *PageToken) Direction() Directive {
	return t.state.Request.Direction
}

// MarshalText satisfies the encoding.TextMarshaler interface.
func (t *PageToken) MarshalText() ([]byte, error) {
	tok := pageTokenJSON{
		Query:    t.Query,
		PageSize: t.PageSize,
		State:    t.state,
	}
	if len(t.Query.Params) > 0 {
		tok.Params = url.Values{}
		t.Query.Params.Apply(&tok.Params)
		tok.Query.Params = nil
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, base64.RawURLEncoding.EncodedLen(len(raw)))
	base64.RawURLEncoding.Encode(buf, raw)
	return buf, nil
}

// UnmarshalText satisfies the encoding.TextUnmarshaler interface.
func (t *PageToken) UnmarshalText(text []byte) error {
	raw := make([]byte, base64.RawURLEncoding.DecodedLen(len(text)))
	n, err := base64.RawURLEncoding.Decode(raw, text)
	if err != nil {
		return &Error{Status: http.StatusBadRequest, Message: "cloudant: malformed page token", Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(raw[:n]))
	dec.UseNumber()
	var tok pageTokenJSON
	if err := dec.Decode(&tok); err != nil {
		return &Error{Status: http.StatusBadRequest, Message: "cloudant: malformed page token", Err: err}
	}
	t.Query = tok.Query
	t.Query.Params = nil
	if len(tok.Params) > 0 {
		t.Query.Params = make(Params, len(tok.Params))
		for key, values := range tok.Params {
			t.Query.Params[key] = values
		}
	}
	t.PageSize = tok.PageSize
	t.state = tok.State
	return nil
}

func (t *PageToken) String() string {
	text, err := t.MarshalText()
	if err != nil {
		return ""
	}
	return string(text)
}

// ParsePageToken parses the text form of a token, as returned by
// [PageToken.String].
func ParsePageToken(s string) (*PageToken, error) {
	t := &PageToken{}
	if err := t.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return t, nil
}

// ResumeViewPage returns a ViewPage which continues the session recorded by
// token. The first fetch is derived from d, as if the page handler had
// returned d for the page the token was issued for.
func ResumeViewPage(client *Client, token *PageToken, d Directive, handler PageHandler) *ViewPage {
	return &ViewPage{
		Client:      client,
		Query:       token.Query,
		PageSize:    token.PageSize,
		PageHandler: handler,
		resume: &resumePoint{
			state:     token.state,
			directive: d,
		},
	}
}
