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
	"strings"
	"testing"

	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/cloudant/cmd/cloudant/errors"
	"github.com/go-kivik/cloudant/internal/couchtest"
)

func Test_bulk_RunE(t *testing.T) {
	tests := testy.NewTable()

	tests.Add("document target", cmdTest{
		args:   []string{"bulk", "http://localhost:1/db/foo", "--data", "[{}]"},
		status: errors.ErrUsage,
	})
	tests.Add("not an array", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDB("db")

		return cmdTest{
			args:   []string{"bulk", ts.URL + "/db", "--data", `{"foo":"bar"}`},
			status: errors.ErrData,
		}
	})
	tests.Add("no documents", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDB("db")

		return cmdTest{
			args:   []string{"bulk", ts.URL + "/db", "--data", `[]`},
			status: errors.ErrBadRequest,
		}
	})
	tests.Add("array from stdin", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDB("db")

		return cmdTest{
			args:  []string{"bulk", ts.URL + "/db", "--data-file", "-"},
			stdin: `[{"_id":"a","x":1},{"_id":"b","x":2}]`,
			check: func(t *testing.T, stdout, _ string) {
				var res []map[string]interface{}
				decodeOutput(t, stdout, &res)
				if len(res) != 2 || res[0]["id"] != "a" || res[1]["id"] != "b" {
					t.Errorf("Unexpected results: %v", res)
				}
				if doc := s.Doc("db", "b"); doc["x"] != 2.0 {
					t.Errorf("Unexpected stored document: %v", doc)
				}
			},
		}
	})
	tests.Add("docs member", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDB("db")

		return cmdTest{
			args: []string{"bulk", ts.URL + "/db", "--data", `{"docs":[{"_id":"a"}]}`},
			check: func(t *testing.T, _, _ string) {
				if doc := s.Doc("db", "a"); doc == nil {
					t.Error("document not written")
				}
			},
		}
	})
	tests.Add("conflict", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDoc("db", "a", map[string]interface{}{"x": 1})

		return cmdTest{
			args:   []string{"bulk", ts.URL + "/db", "--data", `[{"_id":"a"},{"_id":"c"}]`},
			status: errors.ErrConflict,
			check: func(t *testing.T, stdout, stderr string) {
				var res []map[string]interface{}
				decodeOutput(t, stdout, &res)
				if len(res) != 2 || res[0]["error"] != "conflict" {
					t.Errorf("Unexpected results: %v", res)
				}
				if doc := s.Doc("db", "c"); doc == nil {
					t.Error("second document not written")
				}
				if !strings.Contains(stderr, "a: Document update conflict.") {
					t.Errorf("Unexpected error output: %s", stderr)
				}
			},
		}
	})
	tests.Add("replicate revisions", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDB("db")

		return cmdTest{
			args: []string{"bulk", ts.URL + "/db", "--replicate", "--data", `[{"_id":"a","_rev":"5-abc"}]`},
			check: func(t *testing.T, _, _ string) {
				if doc := s.Doc("db", "a"); doc["_rev"] != "5-abc" {
					t.Errorf("Unexpected stored document: %v", doc)
				}
				reqs := s.Requests()
				if len(reqs) == 0 {
					t.Fatal("no requests received")
				}
			},
		}
	})

	tests.Run(t, func(t *testing.T, tt cmdTest) {
		tt.Test(t)
	})
}
