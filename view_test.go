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
	"context"
	"fmt"
	"net/http"
	"testing"

	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/cloudant/internal/couchtest"
)

func TestQueryView(t *testing.T) {
	s, c := newTestClient(t)
	for i, name := range []string{"cow", "pig", "horse", "chicken"} {
		s.AddDoc("animals", name, map[string]interface{}{"legs": 4 - 2*(i/3), "name": name})
	}
	s.AddView("animals", "ddoc", "by-name", couchtest.EmitField("name"))
	ctx := context.Background()

	type tst struct {
		query  QueryView
		ids    []string
		status int
		err    string
	}
	yes, no := true, false
	tests := testy.NewTable()
	tests.Add("all", tst{
		query: QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "ddoc", View: "by-name"}},
		ids:   []string{"chicken", "cow", "horse", "pig"},
	})
	tests.Add("descending, limited", tst{
		query: QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "ddoc", View: "by-name", Descending: true}, Limit: 2},
		ids:   []string{"pig", "horse"},
	})
	tests.Add("range, exclusive end", tst{
		query: QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "_design/ddoc", View: "by-name", StartKey: "cow", EndKey: "pig", InclusiveEnd: &no}},
		ids:   []string{"cow", "horse"},
	})
	tests.Add("skip", tst{
		query: QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "ddoc", View: "by-name"}, Skip: 3},
		ids:   []string{"pig"},
	})
	tests.Add("keys", tst{
		query: QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "ddoc", View: "by-name", Keys: []interface{}{"pig", "cow"}}},
		ids:   []string{"pig", "cow"},
	})
	tests.Add("key", tst{
		query: QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "ddoc", View: "by-name", Key: "horse"}},
		ids:   []string{"horse"},
	})
	tests.Add("reduce on a map view", tst{
		query:  QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "ddoc", View: "by-name"}, Reduce: &yes},
		status: http.StatusBadRequest,
		err:    "Bad Request: Reduce is invalid for map-only views.",
	})
	tests.Add("missing view", tst{
		query:  QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "ddoc", View: "by-legs"}},
		status: http.StatusNotFound,
		err:    "Not Found: missing_named_view",
	})

	tests.Run(t, func(t *testing.T, tt tst) {
		op := tt.query
		err := c.Do(ctx, &op)
		testy.StatusError(t, tt.err, tt.status, err)
		ids := make([]string, 0, len(op.Result().Rows))
		for _, row := range op.Result().Rows {
			ids = append(ids, row.ID)
		}
		if d := testy.DiffInterface(tt.ids, ids); d != nil {
			t.Error(d)
		}
	})
}

func TestViewRowScan(t *testing.T) {
	s, c := newTestClient(t)
	s.AddDoc("animals", "cow", map[string]interface{}{"legs": 4})
	s.AddView("animals", "ddoc", "legs", func(doc map[string]interface{}, emit func(key, value interface{})) {
		emit([]interface{}{doc["legs"], doc["_id"]}, map[string]interface{}{"id": doc["_id"]})
	})
	ctx := context.Background()

	op := &QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "ddoc", View: "legs"}}
	if err := c.Do(ctx, op); err != nil {
		t.Fatal(err)
	}
	res := op.Result()
	if res.TotalRows != 1 || len(res.Rows) != 1 {
		t.Fatalf("Unexpected result: %+v", res)
	}
	row := res.Rows[0]
	var key []interface{}
	if err := row.ScanKey(&key); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(key) != "[4 cow]" {
		t.Errorf("Unexpected key: %v", key)
	}
	var value struct {
		ID string `json:"id"`
	}
	if err := row.ScanValue(&value); err != nil {
		t.Fatal(err)
	}
	if value.ID != "cow" {
		t.Errorf("Unexpected value: %+v", value)
	}
	testy.StatusError(t, "cloudant: doc is nil; does your query include docs?", http.StatusBadRequest, row.ScanDoc(&struct{}{}))
}

func TestViewIncludeDocs(t *testing.T) {
	s, c := newTestClient(t)
	s.AddDoc("animals", "cow", map[string]interface{}{"sound": "moo"})
	s.AddView("animals", "ddoc", "ids", couchtest.EmitID)

	op := &QueryView{ViewQuery: ViewQuery{DB: "animals", DesignDoc: "ddoc", View: "ids", IncludeDocs: true, UpdateSeq: true}}
	if err := c.Do(context.Background(), op); err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Sound string `json:"sound"`
	}
	if err := op.Result().Rows[0].ScanDoc(&doc); err != nil {
		t.Fatal(err)
	}
	if doc.Sound != "moo" {
		t.Errorf("Unexpected doc: %+v", doc)
	}
	if op.Result().UpdateSeq == nil {
		t.Error("Expected an update sequence")
	}
}
