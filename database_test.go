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
	"net/http"
	"testing"

	"gitlab.com/flimzy/testy"
)

func TestCreateDatabase(t *testing.T) {
	s, c := newTestClient(t)
	ctx := context.Background()
	var called error = errNotCalled
	op := &CreateDatabase{
		Name:        "animals",
		Partitioned: true,
		Callback:    func(err error) { called = err },
	}
	if err := c.Do(ctx, op); err != nil {
		t.Fatal(err)
	}
	if called != nil {
		t.Errorf("Unexpected callback error: %v", called)
	}
	reqs := s.Requests()
	if got := reqs[len(reqs)-1].Query.Get("partitioned"); got != "true" {
		t.Errorf("Unexpected partitioned param: %q", got)
	}

	err := c.Do(ctx, &CreateDatabase{Name: "animals"})
	testy.StatusError(t, "Precondition Failed: The database could not be created, the file already exists.", http.StatusPreconditionFailed, err)
}

func TestDeleteDatabase(t *testing.T) {
	s, c := newTestClient(t)
	ctx := context.Background()
	s.AddDB("animals")
	if err := c.Do(ctx, &DeleteDatabase{Name: "animals"}); err != nil {
		t.Fatal(err)
	}
	err := c.Do(ctx, &DeleteDatabase{Name: "animals"})
	if !ErrNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}
