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

package cmd

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/cloudant/cmd/cloudant/errors"
	"github.com/go-kivik/cloudant/internal/couchtest"
)

type viewOutput struct {
	Index       int  `json:"index"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
	Rows        []struct {
		ID string `json:"id"`
	} `json:"rows"`
	Token string `json:"token"`
}

func (o viewOutput) ids() []string {
	ids := make([]string, len(o.Rows))
	for i, row := range o.Rows {
		ids[i] = row.ID
	}
	return ids
}

func pagingServer(t *testing.T) (*couchtest.Server, *httptest.Server) {
	t.Helper()
	s, ts := couchtest.Start(t)
	for i := 0; i < 10; i++ {
		s.AddDoc("paging", fmt.Sprintf("paging-%d", i), map[string]interface{}{"n": i})
	}
	s.AddView("paging", "ddoc", "ids", couchtest.EmitID)
	return s, ts
}

func idRange(from, to int) []string {
	var out []string
	step := 1
	if to < from {
		step = -1
	}
	for i := from; ; i += step {
		out = append(out, fmt.Sprintf("paging-%d", i))
		if i == to {
			return out
		}
	}
}

func Test_view_RunE(t *testing.T) {
	type pages struct {
		IDs   [][]string
		Index []int
	}
	tests := testy.NewTable()

	tests.Add("no view path", cmdTest{
		args:   []string{"view", "http://localhost:1/paging"},
		status: errors.ErrUsage,
	})
	tests.Add("invalid direction", cmdTest{
		args:   []string{"view", "http://localhost:1/paging/ddoc/ids", "--direction", "sideways"},
		status: errors.ErrUsage,
	})
	tests.Add("stop direction", cmdTest{
		args:   []string{"view", "http://localhost:1/paging/ddoc/ids", "--direction", "stop"},
		status: errors.ErrUsage,
	})
	tests.Add("invalid start key", cmdTest{
		args:   []string{"view", "http://localhost:1/paging/ddoc/ids", "--startkey", "paging-1"},
		status: errors.ErrUsage,
	})
	tests.Add("malformed token", cmdTest{
		args:   []string{"view", "http://localhost:1/", "--token", "!!!"},
		status: errors.ErrUsage,
	})
	tests.Add("view not found", func(t *testing.T) interface{} {
		_, ts := pagingServer(t)

		return cmdTest{
			args:   []string{"view", ts.URL + "/paging/_design/ddoc/_view/missing"},
			status: errors.ErrNotFound,
		}
	})
	tests.Add("server error", func(t *testing.T) interface{} {
		s, ts := pagingServer(t)
		s.FailNext(1, http.StatusInternalServerError, nil)

		return cmdTest{
			args:   []string{"view", ts.URL + "/paging/_design/ddoc/_view/ids"},
			status: errors.ErrInternalServerError,
		}
	})
	tests.Add("server error repeated", func(t *testing.T) interface{} {
		s, ts := pagingServer(t)
		s.FailNext(1, http.StatusInternalServerError, nil)

		return cmdTest{
			args: []string{"--retry", "1", "view", ts.URL + "/paging/_design/ddoc/_view/ids", "--page-size", "3"},
			check: func(t *testing.T, stdout, _ string) {
				var page viewOutput
				decodeOutput(t, stdout, &page)
				if d := testy.DiffInterface(idRange(0, 2), page.ids()); d != nil {
					t.Error(d)
				}
			},
		}
	})
	tests.Add("first page", func(t *testing.T) interface{} {
		_, ts := pagingServer(t)

		return cmdTest{
			args: []string{"view", ts.URL + "/paging/_design/ddoc/_view/ids", "--page-size", "3"},
			check: func(t *testing.T, stdout, _ string) {
				var page viewOutput
				decodeOutput(t, stdout, &page)
				if d := testy.DiffInterface(idRange(0, 2), page.ids()); d != nil {
					t.Error(d)
				}
				if page.Index != 0 || !page.HasNext || page.HasPrevious {
					t.Errorf("Unexpected page state: %+v", page)
				}
				if page.Token == "" {
					t.Error("no token")
				}
			},
		}
	})
	tests.Add("all pages", func(t *testing.T) interface{} {
		_, ts := pagingServer(t)

		return cmdTest{
			args: []string{"view", ts.URL + "/paging/ddoc/ids", "--page-size", "3", "--pages", "0"},
			check: func(t *testing.T, stdout, _ string) {
				var got []viewOutput
				decodeOutput(t, stdout, &got)
				want := pages{
					IDs:   [][]string{idRange(0, 2), idRange(3, 5), idRange(6, 8), idRange(9, 9)},
					Index: []int{0, 1, 2, 3},
				}
				var gotPages pages
				for _, page := range got {
					gotPages.IDs = append(gotPages.IDs, page.ids())
					gotPages.Index = append(gotPages.Index, page.Index)
				}
				if d := testy.DiffInterface(want, gotPages); d != nil {
					t.Error(d)
				}
				if last := got[len(got)-1]; last.HasNext {
					t.Error("last page reports more rows")
				}
			},
		}
	})
	tests.Add("page limit", func(t *testing.T) interface{} {
		_, ts := pagingServer(t)

		return cmdTest{
			args: []string{"view", ts.URL + "/paging/ddoc/ids", "--page-size", "4", "--pages", "2"},
			check: func(t *testing.T, stdout, _ string) {
				var got []viewOutput
				decodeOutput(t, stdout, &got)
				if len(got) != 2 {
					t.Fatalf("Expected 2 pages, got %d", len(got))
				}
				if d := testy.DiffInterface(idRange(4, 7), got[1].ids()); d != nil {
					t.Error(d)
				}
			},
		}
	})
	tests.Add("descending", func(t *testing.T) interface{} {
		_, ts := pagingServer(t)

		return cmdTest{
			args: []string{"view", ts.URL + "/paging/ddoc/ids", "--page-size", "4", "--descending"},
			check: func(t *testing.T, stdout, _ string) {
				var page viewOutput
				decodeOutput(t, stdout, &page)
				if d := testy.DiffInterface(idRange(9, 6), page.ids()); d != nil {
					t.Error(d)
				}
			},
		}
	})
	tests.Add("start key", func(t *testing.T) interface{} {
		_, ts := pagingServer(t)

		return cmdTest{
			args: []string{"view", ts.URL + "/paging/ddoc/ids", "--page-size", "3", "--startkey", `"paging-5"`},
			check: func(t *testing.T, stdout, _ string) {
				var page viewOutput
				decodeOutput(t, stdout, &page)
				if d := testy.DiffInterface(idRange(5, 7), page.ids()); d != nil {
					t.Error(d)
				}
			},
		}
	})

	tests.Run(t, func(t *testing.T, tt cmdTest) {
		tt.Test(t)
	})
}

func Test_view_resume(t *testing.T) {
	_, ts := pagingServer(t)

	var first viewOutput
	tt := cmdTest{
		args: []string{"view", ts.URL + "/paging/ddoc/ids", "--page-size", "3", "--pages", "2"},
		check: func(t *testing.T, stdout, _ string) {
			var got []viewOutput
			decodeOutput(t, stdout, &got)
			first = got[1]
		},
	}
	tt.Test(t)
	if first.Token == "" {
		t.Fatal("no token")
	}

	tests := []struct {
		name      string
		direction string
		want      []string
		index     int
	}{
		{name: "next", direction: "next", want: idRange(6, 8), index: 2},
		{name: "previous", direction: "previous", want: idRange(0, 2), index: 0},
		{name: "repeat", direction: "repeat", want: idRange(3, 5), index: 1},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			tt := cmdTest{
				args: []string{"view", ts.URL, "--token", first.Token, "--direction", test.direction},
				check: func(t *testing.T, stdout, _ string) {
					var page viewOutput
					decodeOutput(t, stdout, &page)
					if d := testy.DiffInterface(test.want, page.ids()); d != nil {
						t.Error(d)
					}
					if page.Index != test.index {
						t.Errorf("Unexpected index. Want %d, got %d", test.index, page.Index)
					}
				},
			}
			tt.Test(t)
		})
	}
}
