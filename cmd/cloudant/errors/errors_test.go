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

package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/cloudant"
)

func TestExitStatus(t *testing.T) {
	type tt struct {
		err  error
		want int
	}

	tests := testy.NewTable()
	tests.Add("nil", tt{
		err:  nil,
		want: 0,
	})
	tests.Add("standard", tt{
		err:  errors.New("foo"),
		want: 0,
	})
	tests.Add("coded", tt{
		err:  WithCode(errors.New("foo"), 123),
		want: 123,
	})
	tests.Add("wrapped", tt{
		err:  fmt.Errorf("%w", Code(ErrUsage, "bad flag")),
		want: ErrUsage,
	})
	tests.Add("not found", tt{
		err:  &cloudant.Error{Status: http.StatusNotFound},
		want: ErrNotFound,
	})
	tests.Add("conflict", tt{
		err:  &cloudant.Error{Status: http.StatusConflict},
		want: ErrConflict,
	})
	tests.Add("too many requests", tt{
		err:  &cloudant.Error{Status: http.StatusTooManyRequests},
		want: 39,
	})
	tests.Add("internal server error", tt{
		err:  &cloudant.Error{Status: http.StatusInternalServerError},
		want: ErrInternalServerError,
	})
	tests.Add("501", tt{
		err:  &cloudant.Error{Status: http.StatusNotImplemented},
		want: ErrUnknown,
	})
	tests.Add("network", tt{
		err:  &cloudant.Error{Status: http.StatusBadGateway, Err: &net.OpError{Op: "dial", Err: errors.New("refused")}},
		want: ErrUnavailable,
	})
	tests.Add("deadline", tt{
		err:  fmt.Errorf("request: %w", context.DeadlineExceeded),
		want: ErrUnavailable,
	})
	tests.Add("json syntax", tt{
		err:  json.Unmarshal([]byte("{"), &struct{}{}),
		want: ErrProtocol,
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		if got := ExitStatus(tt.err); got != tt.want {
			t.Errorf("want %d, got %d", tt.want, got)
		}
	})
}

func TestCode(t *testing.T) {
	if err := Code(ErrData, nil); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	err := Codef(ErrNoInput, "missing %s", "file")
	if err.Error() != "missing file" || ExitStatus(err) != ErrNoInput {
		t.Errorf("Unexpected error: %v (%d)", err, ExitStatus(err))
	}
	err = Code(ErrUsage, "a", "b")
	if err.Error() != "ab" {
		t.Errorf("Unexpected error: %v", err)
	}
}
