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

package input

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/cloudant/cmd/cloudant/errors"
)

func parse(t *testing.T, args ...string) *Input {
	t.Helper()
	i := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	i.ConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	return i
}

func tempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestJSONData(t *testing.T) {
	type tt struct {
		input  *Input
		stdin  string
		want   string
		err    string
		status int
	}

	tests := testy.NewTable()
	tests.Add("no input", func(t *testing.T) interface{} {
		return tt{
			input:  parse(t),
			err:    "no document data provided",
			status: errors.ErrUsage,
		}
	})
	tests.Add("inline json", func(t *testing.T) interface{} {
		return tt{
			input: parse(t, "--data", ` {"foo":"bar"} `),
			want:  `{"foo":"bar"}`,
		}
	})
	tests.Add("invalid json", func(t *testing.T) interface{} {
		return tt{
			input:  parse(t, "-d", `{"foo":`),
			err:    "invalid JSON input",
			status: errors.ErrData,
		}
	})
	tests.Add("inline yaml", func(t *testing.T) interface{} {
		return tt{
			input: parse(t, "--yaml", "-d", "foo: bar\nnested:\n  a: 1\n"),
			want:  `{"foo":"bar","nested":{"a":1}}`,
		}
	})
	tests.Add("json file", func(t *testing.T) interface{} {
		return tt{
			input: parse(t, "-D", tempFile(t, "doc.json", `{"x":true}`)),
			want:  `{"x":true}`,
		}
	})
	tests.Add("yaml file", func(t *testing.T) interface{} {
		return tt{
			input: parse(t, "-D", tempFile(t, "doc.yml", "x: true\n")),
			want:  `{"x":true}`,
		}
	})
	tests.Add("missing file", func(t *testing.T) interface{} {
		return tt{
			input:  parse(t, "-D", filepath.Join(t.TempDir(), "missing.json")),
			status: errors.ErrNoInput,
		}
	})
	tests.Add("stdin", func(t *testing.T) interface{} {
		return tt{
			input: parse(t, "-D", "-"),
			stdin: `{"from":"stdin"}`,
			want:  `{"from":"stdin"}`,
		}
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		tt.input.SetStdin(strings.NewReader(tt.stdin))
		got, err := tt.input.JSONData()
		if got := errors.ExitStatus(err); got != tt.status {
			t.Errorf("Unexpected exit status %d", got)
		}
		if tt.err != "" && (err == nil || err.Error() != tt.err) {
			t.Errorf("Unexpected error: %v", err)
		}
		if err != nil {
			return
		}
		if d := testy.DiffJSON([]byte(tt.want), []byte(got)); d != nil {
			t.Error(d)
		}
	})
}

func TestDocs(t *testing.T) {
	type tt struct {
		data string
		want int
		err  string
	}
	tests := testy.NewTable()
	tests.Add("array", tt{data: `[{"_id":"a"},{"_id":"b"}]`, want: 2})
	tests.Add("docs object", tt{data: `{"docs":[{"_id":"a"}]}`, want: 1})
	tests.Add("wrong shape", tt{
		data: `{"foo":1}`,
		err:  "expected an array of documents, or an object with a docs member",
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		docs, err := parse(t, "-d", tt.data).Docs()
		if len(docs) != tt.want {
			t.Errorf("Expected %d docs, got %d", tt.want, len(docs))
		}
		for _, doc := range docs {
			if _, ok := doc.(json.RawMessage); !ok {
				t.Errorf("Unexpected doc type %T", doc)
			}
		}
		testy.Error(t, tt.err, err)
	})
}
