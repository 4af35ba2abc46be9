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
	"net/http"
	"testing"

	"gitlab.com/flimzy/testy"
)

func TestPrepare(t *testing.T) {
	type tst struct {
		op       Operation
		method   string
		endpoint string
		query    string
		body     string
		status   int
		err      string
	}
	no := false
	tests := testy.NewTable()
	tests.Add("create db", tst{
		op:       &CreateDatabase{Name: "animals", Partitioned: true, Shards: 8},
		method:   http.MethodPut,
		endpoint: "/animals",
		query:    "partitioned=true&q=8",
	})
	tests.Add("create db, special characters", tst{
		op:       &CreateDatabase{Name: "foo/bar+baz"},
		method:   http.MethodPut,
		endpoint: "/foo%2Fbar+baz",
	})
	tests.Add("create db, invalid name", tst{
		op:     &CreateDatabase{Name: "_foo"},
		status: http.StatusBadRequest,
		err:    "invalid database name: _foo",
	})
	tests.Add("create db, users db", tst{
		op:       &CreateDatabase{Name: "_users"},
		method:   http.MethodPut,
		endpoint: "/_users",
	})
	tests.Add("delete db, no name", tst{
		op:     &DeleteDatabase{},
		status: http.StatusBadRequest,
		err:    "Name is required",
	})
	tests.Add("put doc", tst{
		op:       &PutDocument{DB: "animals", DocID: "cow", Rev: "1-xxx", Doc: map[string]string{"sound": "moo"}},
		method:   http.MethodPut,
		endpoint: "/animals/cow",
		query:    "rev=1-xxx",
		body:     `{"sound":"moo"}`,
	})
	tests.Add("put design doc", tst{
		op:       &PutDocument{DB: "animals", DocID: "_design/foo", Doc: `{"views":{}}`},
		method:   http.MethodPut,
		endpoint: "/animals/_design/foo",
		body:     `{"views":{}}`,
	})
	tests.Add("put doc, not an object", tst{
		op:     &PutDocument{DB: "animals", DocID: "cow", Doc: []string{"moo"}},
		status: http.StatusBadRequest,
		err:    "document must be a JSON object",
	})
	tests.Add("put doc, unmarshalable", tst{
		op:     &PutDocument{DB: "animals", DocID: "cow", Doc: func() {}},
		status: http.StatusBadRequest,
		err:    "json: unsupported type: func()",
	})
	tests.Add("create doc with _id", tst{
		op:       &CreateDocument{DB: "animals", Doc: map[string]string{"_id": "pig"}},
		method:   http.MethodPut,
		endpoint: "/animals/pig",
		body:     `{"_id":"pig"}`,
	})
	tests.Add("get doc", tst{
		op:       &GetDocument{DB: "animals", DocID: "cow", Revs: true, Params: Params{"attachments": true}},
		method:   http.MethodGet,
		endpoint: "/animals/cow",
		query:    "attachments=true&revs=true",
	})
	tests.Add("delete doc, no rev", tst{
		op:     &DeleteDocument{DB: "animals", DocID: "cow"},
		status: http.StatusBadRequest,
		err:    "Rev is required",
	})
	tests.Add("delete doc", tst{
		op:       &DeleteDocument{DB: "animals", DocID: "cow", Rev: "2-yyy"},
		method:   http.MethodDelete,
		endpoint: "/animals/cow",
		query:    "rev=2-yyy",
	})
	tests.Add("bulk docs", tst{
		op: &BulkDocs{
			DB:       "animals",
			Docs:     []interface{}{map[string]string{"_id": "cow"}, `{"_id":"pig"}`},
			NewEdits: &no,
		},
		method:   http.MethodPost,
		endpoint: "/animals/_bulk_docs",
		body:     `{"docs":[{"_id":"cow"},{"_id":"pig"}],"new_edits":false}`,
	})
	tests.Add("bulk docs, empty", tst{
		op:     &BulkDocs{DB: "animals", Docs: []interface{}{}},
		status: http.StatusBadRequest,
		err:    "Docs must have at least 1 element(s)",
	})
	tests.Add("bulk docs, bad doc", tst{
		op:     &BulkDocs{DB: "animals", Docs: []interface{}{`{}`, 3}},
		status: http.StatusBadRequest,
		err:    "document 1: document must be a JSON object",
	})
	tests.Add("json index", tst{
		op: &CreateJSONIndex{
			DB:        "animals",
			Fields:    []SortField{{Name: "name"}, {Name: "age", Direction: "desc"}},
			Name:      "by-name",
			DesignDoc: "idx",
		},
		method:   http.MethodPost,
		endpoint: "/animals/_index",
		body:     `{"type":"json","index":{"fields":["name",{"age":"desc"}]},"name":"by-name","ddoc":"idx"}`,
	})
	tests.Add("json index, bad direction", tst{
		op:     &CreateJSONIndex{DB: "animals", Fields: []SortField{{Name: "name", Direction: "up"}}},
		status: http.StatusBadRequest,
		err:    "Fields[0].Direction must be one of: asc desc",
	})
	tests.Add("text index", tst{
		op: &CreateTextIndex{
			DB:           "animals",
			Fields:       []TextField{{Name: "name", Type: "string"}},
			DefaultField: &TextIndexDefaultField{Analyzer: "english", Enabled: &no},
			Selector:     map[string]interface{}{"class": "mammal"},
		},
		method:   http.MethodPost,
		endpoint: "/animals/_index",
		body:     `{"type":"text","index":{"fields":[{"name":"name","type":"string"}],"default_field":{"analyzer":"english","enabled":false},"selector":{"class":"mammal"}}}`,
	})
	tests.Add("text index, bad type", tst{
		op:     &CreateTextIndex{DB: "animals", Fields: []TextField{{Name: "name", Type: "date"}}},
		status: http.StatusBadRequest,
		err:    "Fields[0].Type must be one of: boolean string number",
	})
	tests.Add("view", tst{
		op: &QueryView{
			ViewQuery: ViewQuery{
				DB:           "animals",
				DesignDoc:    "_design/foo",
				View:         "by name",
				Descending:   true,
				StartKey:     "a",
				InclusiveEnd: &no,
			},
			Limit:  6,
			Reduce: &no,
		},
		method:   http.MethodGet,
		endpoint: "/animals/_design/foo/_view/by%20name",
		query:    "descending=true&inclusive_end=false&limit=6&reduce=false&startkey=%22a%22",
	})
	tests.Add("view, keys", tst{
		op: &QueryView{
			ViewQuery: ViewQuery{
				DB:        "animals",
				DesignDoc: "foo",
				View:      "bar",
				Keys:      []interface{}{"a", 1},
				Params:    Params{"sorted": false},
			},
		},
		method:   http.MethodPost,
		endpoint: "/animals/_design/foo/_view/bar",
		query:    "sorted=false",
		body:     `{"keys":["a",1]}`,
	})
	tests.Add("view, compound key", tst{
		op: &QueryView{
			ViewQuery: ViewQuery{
				DB:            "animals",
				DesignDoc:     "foo",
				View:          "bar",
				StartKey:      []interface{}{"a", 1},
				StartKeyDocID: "cow",
				EndKey:        []interface{}{"a", map[string]interface{}{}},
			},
			Skip: 1,
		},
		method:   http.MethodGet,
		endpoint: "/animals/_design/foo/_view/bar",
		query:    "endkey=%5B%22a%22%2C%7B%7D%5D&skip=1&startkey=%5B%22a%22%2C1%5D&startkey_docid=cow",
	})
	tests.Add("view, bad stale", tst{
		op:     &QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "foo", View: "bar", Stale: "never"}},
		status: http.StatusBadRequest,
		err:    "ViewQuery.Stale must be one of: ok update_after",
	})
	tests.Add("view, no view", tst{
		op:     &QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "foo"}},
		status: http.StatusBadRequest,
		err:    "ViewQuery.View is required",
	})

	tests.Run(t, func(t *testing.T, tt tst) {
		p, err := prepare(tt.op)
		testy.StatusError(t, tt.err, tt.status, err)
		if p.method != tt.method {
			t.Errorf("Unexpected method: %s", p.method)
		}
		if p.endpoint != tt.endpoint {
			t.Errorf("Unexpected endpoint: %s", p.endpoint)
		}
		if got := p.query.Encode(); got != tt.query {
			t.Errorf("Unexpected query: %s", got)
		}
		if d := testy.DiffText(tt.body, string(p.payload)); d != nil {
			t.Error(d)
		}
	})
}
