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
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gitlab.com/flimzy/testy"
)

// startCouchDB starts a CouchDB container, and returns its DSN. The test is
// skipped unless USETC is set.
func startCouchDB(t *testing.T) string {
	t.Helper()
	if os.Getenv("USETC") == "" {
		t.Skip("USETC not set, skipping testcontainers")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "couchdb:3.3",
			ExposedPorts: []string{"5984/tcp"},
			WaitingFor:   wait.ForHTTP("/").WithPort("5984/tcp").WithStartupTimeout(120 * time.Second),
			Env: map[string]string{
				"COUCHDB_USER":     "admin",
				"COUCHDB_PASSWORD": "abc123",
			},
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "5984/tcp")
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("http://admin:abc123@%s:%s", host, port.Port())
}

func TestViewPageLive(t *testing.T) {
	c, err := New(startCouchDB(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	if err := c.Do(ctx, &CreateDatabase{Name: "paging"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Do(ctx, &PutDocument{
		DB:    "paging",
		DocID: "_design/ddoc",
		Doc: map[string]interface{}{
			"views": map[string]interface{}{
				"ids": map[string]string{"map": "function(doc) { emit(doc._id, null); }"},
			},
		},
	}); err != nil {
		t.Fatal(err)
	}
	docs := make([]interface{}, 10)
	for i := range docs {
		docs[i] = map[string]interface{}{"_id": fmt.Sprintf("paging-%d", i)}
	}
	if err := c.Do(ctx, &BulkDocs{DB: "paging", Docs: docs}); err != nil {
		t.Fatal(err)
	}

	h := &scripted{directives: []Directive{Next, Previous, Next, Repeat}}
	err = (&ViewPage{
		Client:      c,
		Query:       pagingQuery(),
		PageSize:    5,
		PageHandler: h.handle,
	}).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{idRange(0, 4), idRange(5, 9), idRange(0, 4), idRange(5, 9), idRange(5, 9)}
	if d := testy.DiffInterface(want, h.ids()); d != nil {
		t.Error(d)
	}
}
