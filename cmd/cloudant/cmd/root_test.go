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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/cloudant/cmd/cloudant/errors"
	"github.com/go-kivik/cloudant/cmd/cloudant/log"
	"github.com/go-kivik/cloudant/internal/couchtest"
)

type cmdTest struct {
	args   []string
	stdin  string
	status int
	// check, if set, inspects the captured output.
	check func(t *testing.T, stdout, stderr string)
}

func (tt *cmdTest) Test(t *testing.T) {
	t.Helper()
	t.Setenv("CLOUDANT_DSN", "")
	lg := log.New()
	root := rootCmd(lg)
	root.resolveHome = func(i string) string { return i }

	root.cmd.SetArgs(tt.args)
	var stdout, stderr bytes.Buffer
	root.cmd.SetOut(&stdout)
	root.cmd.SetErr(&stderr)
	root.cmd.SetIn(strings.NewReader(tt.stdin))
	status := root.execute(context.Background())
	if tt.status != status {
		t.Errorf("Unexpected exit status. Want %d, got %d\nSTDERR: %s", tt.status, status, stderr.String())
	}
	if tt.check != nil {
		tt.check(t, stdout.String(), stderr.String())
	}
}

// decodeOutput unmarshals the JSON written to stdout.
func decodeOutput(t *testing.T, stdout string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(stdout), v); err != nil {
		t.Fatalf("invalid JSON output: %s\n%s", err, stdout)
	}
}

func Test_root_RunE(t *testing.T) {
	tests := testy.NewTable()
	tests.Add("unknown flag", cmdTest{
		args:   []string{"--bogus"},
		status: errors.ErrUsage,
	})
	tests.Add("unknown command", cmdTest{
		args:   []string{"bogus"},
		status: errors.ErrUsage,
	})
	tests.Add("invalid timeout", cmdTest{
		args:   []string{"--request-timeout", "-78", "version"},
		status: errors.ErrUsage,
	})
	tests.Add("connect timeout invalid", cmdTest{
		args:   []string{"--connect-timeout", "oink", "get", "http://localhost:1/foo/bar"},
		status: errors.ErrUsage,
	})
	tests.Add("retry delay invalid", cmdTest{
		args:   []string{"--retry", "3", "--retry-delay", "oink", "get", "http://localhost:1/foo/bar"},
		status: errors.ErrUsage,
	})
	tests.Add("invalid concurrency", cmdTest{
		args:   []string{"--concurrency", "0", "version"},
		status: errors.ErrUsage,
	})
	tests.Add("invalid config file", cmdTest{
		args:   []string{"--config", "./testdata/invalid.yaml", "version"},
		status: errors.ErrUsage,
	})
	tests.Add("unreachable server", cmdTest{
		args:   []string{"get", "http://localhost:1/foo/bar"},
		status: errors.ErrUnavailable,
	})
	tests.Add("retry unreachable server", cmdTest{
		args:   []string{"--retry", "2", "--retry-delay", "0", "get", "http://localhost:1/foo/bar"},
		status: errors.ErrUnavailable,
		check: func(t *testing.T, _, stderr string) {
			if n := strings.Count(stderr, "Transient problem"); n != 2 {
				t.Errorf("Expected 2 retry warnings, got %d:\n%s", n, stderr)
			}
		},
	})
	tests.Add("server error", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDoc("db", "foo", map[string]interface{}{"foo": "bar"})
		s.FailNext(1, http.StatusInternalServerError, nil)

		return cmdTest{
			args:   []string{"get", ts.URL + "/db/foo"},
			status: errors.ErrInternalServerError,
		}
	})
	tests.Add("retry recovers", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDoc("db", "foo", map[string]interface{}{"foo": "bar"})
		s.FailNext(2, http.StatusServiceUnavailable, nil)

		return cmdTest{
			args: []string{"--retry", "3", "--retry-delay", "0", "get", ts.URL + "/db/foo"},
			check: func(t *testing.T, stdout, _ string) {
				var doc map[string]interface{}
				decodeOutput(t, stdout, &doc)
				if doc["foo"] != "bar" {
					t.Errorf("Unexpected document: %v", doc)
				}
			},
		}
	})
	tests.Add("no retry on client error", func(t *testing.T) interface{} {
		_, ts := couchtest.Start(t)

		return cmdTest{
			args:   []string{"--retry", "3", "--retry-delay", "0", "get", ts.URL + "/db/foo"},
			status: errors.ErrNotFound,
			check: func(t *testing.T, _, stderr string) {
				if strings.Contains(stderr, "Transient problem") {
					t.Errorf("Unexpected retry:\n%s", stderr)
				}
			},
		}
	})
	tests.Add("rate limited", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDoc("db", "foo", map[string]interface{}{"foo": "bar"})
		s.FailNext(2, http.StatusTooManyRequests, nil)

		return cmdTest{
			args: []string{"--debug", "get", ts.URL + "/db/foo"},
			check: func(t *testing.T, _, stderr string) {
				if n := strings.Count(stderr, "Retrying"); n != 2 {
					t.Errorf("Expected 2 rate limit retries, got %d:\n%s", n, stderr)
				}
			},
		}
	})
	tests.Add("rate limit retries disabled", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDoc("db", "foo", map[string]interface{}{"foo": "bar"})
		s.FailNext(1, http.StatusTooManyRequests, nil)

		return cmdTest{
			args:   []string{"--rate-limit-retries", "0", "get", ts.URL + "/db/foo"},
			status: http.StatusTooManyRequests - 390,
		}
	})
	tests.Add("context from config file", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDoc("db", "foo", map[string]interface{}{"foo": "bar"})
		conf := writeConfig(t, ts.URL)

		return cmdTest{
			args: []string{"--config", conf, "get", "db/foo"},
			check: func(t *testing.T, stdout, _ string) {
				var doc map[string]interface{}
				decodeOutput(t, stdout, &doc)
				if doc["_id"] != "foo" {
					t.Errorf("Unexpected document: %v", doc)
				}
			},
		}
	})
	tests.Add("user agent", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDoc("db", "foo", map[string]interface{}{"foo": "bar"})

		return cmdTest{
			args: []string{"get", ts.URL + "/db/foo"},
			check: func(t *testing.T, _, _ string) {
				reqs := s.Requests()
				if len(reqs) == 0 {
					t.Fatal("no requests received")
				}
				ua := reqs[len(reqs)-1].Header.Get("User-Agent")
				if !strings.Contains(ua, "cloudant-cli/") {
					t.Errorf("Unexpected User-Agent: %s", ua)
				}
			},
		}
	})
	tests.Add("verbose", func(t *testing.T) interface{} {
		s, ts := couchtest.Start(t)
		s.AddDoc("db", "foo", map[string]interface{}{"foo": "bar"})

		return cmdTest{
			args: []string{"-v", "get", ts.URL + "/db/foo"},
			check: func(t *testing.T, _, stderr string) {
				if !strings.Contains(stderr, "> GET /db/foo") {
					t.Errorf("Request not traced:\n%s", stderr)
				}
				if !strings.Contains(stderr, "< HTTP/1.1 200 OK") {
					t.Errorf("Response not traced:\n%s", stderr)
				}
			},
		}
	})

	tests.Run(t, func(t *testing.T, tt cmdTest) {
		tt.Test(t)
	})
}

func writeConfig(t *testing.T, dsn string) string {
	t.Helper()
	dir := t.TempDir()
	conf := dir + "/config.yaml"
	body := "contexts:\n  local:\n    dsn: " + dsn + "\ncurrent-context: local\n"
	if err := os.WriteFile(conf, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return conf
}

func Test_parseDuration(t *testing.T) {
	type tt struct {
		input string
		want  string
		err   string
	}

	tests := testy.NewTable()
	tests.Add("empty", tt{
		want: "0s",
	})
	tests.Add("invalid", tt{
		input: "bogus",
		err:   `time: invalid duration "bogus"`,
	})
	tests.Add("seconds", tt{
		input: "1.5",
		want:  "1.5s",
	})
	tests.Add("duration", tt{
		input: "250ms",
		want:  "250ms",
	})
	tests.Add("negative seconds", tt{
		input: "-1",
		err:   "negative timeout not permitted",
	})
	tests.Add("negative duration", tt{
		input: "-1s",
		err:   "negative timeout not permitted",
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		got, err := parseDuration(tt.input)
		testy.Error(t, tt.err, err)
		if got.String() != tt.want {
			t.Errorf("Want %s, got %s", tt.want, got)
		}
	})
}

func Test_fmtDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"1.50s":    1500 * time.Millisecond,
		"2m5s":     125 * time.Second,
		"1h1m":     61 * time.Minute,
		"1d1h0m":   25 * time.Hour,
		"0.00s":    0,
		"59.99s":   59990 * time.Millisecond,
		"23h59m":   24*time.Hour - time.Minute,
		"2d0h0m":   48 * time.Hour,
		"1m0s":     time.Minute,
		"10m30s":   630 * time.Second,
		"3h0m":     3 * time.Hour,
		"0.25s":    250 * time.Millisecond,
		"1d23h59m": 48*time.Hour - time.Minute,
	}
	for want, dur := range tests {
		if got := fmtDuration(dur); got != want {
			t.Errorf("fmtDuration(%s): want %s, got %s", dur, want, got)
		}
	}
}
