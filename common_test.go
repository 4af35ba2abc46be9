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
	"testing"

	"github.com/go-kivik/cloudant/internal/couchtest"
)

// newTestClient returns a client connected to a fresh fake server.
func newTestClient(t *testing.T, options ...Option) (*couchtest.Server, *Client) {
	t.Helper()
	s, ts := couchtest.Start(t)
	c, err := New(ts.URL, options...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return s, c
}

// recordingOp wraps an operation, recording the arguments of Complete.
type recordingOp struct {
	Operation
	completed int
	info      *HTTPInfo
	err       error
}

func (o *recordingOp) Complete(body json.RawMessage, info *HTTPInfo, err error) error {
	o.completed++
	o.info = info
	o.err = err
	return o.Operation.Complete(body, info, err)
}

// checkError fails the test unless err has the given message and status.
// Unlike testy.StatusError, it does not end the test.
func checkError(t *testing.T, want string, status int, err error) {
	t.Helper()
	if err == nil {
		t.Errorf("Expected error %q, got none", want)
		return
	}
	if err.Error() != want {
		t.Errorf("Unexpected error: %s (expected %s)", err, want)
	}
	if got := HTTPStatus(err); got != status {
		t.Errorf("Unexpected status: %d (expected %d)", got, status)
	}
}
