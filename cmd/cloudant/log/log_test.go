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
package log

import (
	"bytes"
	"testing"

	"gitlab.com/flimzy/testy"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		log   func(Logger)
		want  string
	}{
		{
			name: "debug suppressed",
			log:  func(l Logger) { l.Debug("hidden") },
			want: "",
		},
		{
			name:  "debug enabled",
			debug: true,
			log:   func(l Logger) { l.Debugf("shown %d", 1) },
			want:  "shown 1\n",
		},
		{
			name: "info trimmed",
			log:  func(l Logger) { l.Infof("  info %s  ", "line") },
			want: "info line\n",
		},
		{
			name: "warning",
			log:  func(l Logger) { l.Warnf("Transient problem: %s. Will retry.", "timeout") },
			want: "Warning: Transient problem: timeout. Will retry.\n",
		},
		{
			name: "error",
			log:  func(l Logger) { l.Error("oops") },
			want: "oops\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New()
			l.SetOutput(&buf)
			l.SetDebug(tt.debug)
			tt.log(l)
			if got := buf.String(); got != tt.want {
				t.Errorf("Unexpected output: %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	got := []string{LevelDebug.String(), LevelInfo.String(), LevelWarn.String(), LevelError.String(), Level(9).String()}
	want := []string{"DEBUG", "INFO", "WARN", "ERROR", "Level(9)"}
	if d := testy.DiffInterface(want, got); d != nil {
		t.Error(d)
	}
}

func TestTestLogger(t *testing.T) {
	l := NewTest()
	l.Debug("hidden")
	l.SetDebug(true)
	l.Debugf("x=%d", 2)
	l.Info("hello")
	l.Warn("flaky")
	l.Errorf("bad %s", "thing")
	l.Check(t, "[DEBUG] x=2", "[INFO] hello", "[WARN] flaky", "[ERROR] bad thing")
}
