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

package couchtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gitlab.com/flimzy/httpe"
)

const designPrefix = "_design/"

type database struct {
	partitioned bool
	shards      int
	docs        map[string]*document
	indexes     []*index
}

type document struct {
	id      string
	seq     int
	rev     string
	deleted bool
	body    map[string]interface{}
}

// JSON returns the document with its _id and _rev fields.
func (d *document) JSON() map[string]interface{} {
	out := make(map[string]interface{}, len(d.body)+2) // nolint:gomnd
	for k, v := range d.body {
		out[k] = v
	}
	out["_id"] = d.id
	out["_rev"] = d.rev
	return out
}

type index struct {
	DDoc string                 `json:"ddoc"`
	Name string                 `json:"name"`
	Type string                 `json:"type"`
	Def  map[string]interface{} `json:"def"`
}

var (
	errNotFound     = &couchError{status: http.StatusNotFound, Err: "not_found", Reason: "missing"}
	errNoDB         = &couchError{status: http.StatusNotFound, Err: "not_found", Reason: "Database does not exist."}
	errConflict     = &couchError{status: http.StatusConflict, Err: "conflict", Reason: "Document update conflict."}
	errDBExists     = &couchError{status: http.StatusPreconditionFailed, Err: "file_exists", Reason: "The database could not be created, the file already exists."}
	errBadRev       = &couchError{status: http.StatusBadRequest, Err: "bad_request", Reason: "Invalid rev format"}
)

func newRev(seq int) string {
	return strconv.Itoa(seq) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// AddDB creates a database directly, for test setup.
func (s *Server) AddDB(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbs[name]; !ok {
		s.dbs[name] = &database{docs: make(map[string]*document)}
	}
}

// AddDoc stores doc in db directly, for test setup, and returns its rev. db
// is created if necessary.
func (s *Server) AddDoc(db, id string, doc map[string]interface{}) string {
	s.AddDB(db)
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.dbs[db].update(id, "", doc, true)
	if err != nil {
		panic(err)
	}
	return d.rev
}

// Doc returns the current body of a document, or nil if it does not exist.
func (s *Server) Doc(db, id string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dbs[db]
	if !ok {
		return nil
	}
	doc, ok := d.docs[id]
	if !ok || doc.deleted {
		return nil
	}
	return doc.JSON()
}

// update writes a new revision of id. If force is true, the rev check is
// skipped.
func (d *database) update(id, rev string, body map[string]interface{}, force bool) (*document, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	if rev == "" {
		rev, _ = body["_rev"].(string)
	}
	clean := make(map[string]interface{}, len(body))
	for k, v := range body {
		if k == "_id" || k == "_rev" {
			continue
		}
		clean[k] = v
	}
	deleted, _ := clean["_deleted"].(bool)
	delete(clean, "_deleted")

	cur, exists := d.docs[id]
	if !force {
		switch {
		case exists && !cur.deleted && cur.rev != rev:
			return nil, errConflict
		case (!exists || cur.deleted) && rev != "":
			return nil, errConflict
		}
	}
	seq := 1
	if exists {
		seq = cur.seq + 1
	}
	doc := &document{
		id:      id,
		seq:     seq,
		rev:     newRev(seq),
		deleted: deleted,
		body:    clean,
	}
	d.docs[id] = doc
	return doc, nil
}

func (s *Server) createDB() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		name := param(r, "db")
		if !validDBName(name) {
			return &couchError{status: http.StatusBadRequest, Err: "illegal_database_name", Reason: fmt.Sprintf("Name: '%s'. Only lowercase characters (a-z), digits (0-9), and any of the characters _, $, (, ), +, -, and / are allowed. Must begin with a letter.", name)}
		}
		shards := 0
		if q := r.URL.Query().Get("q"); q != "" {
			var err error
			if shards, err = strconv.Atoi(q); err != nil || shards < 1 {
				return &couchError{status: http.StatusBadRequest, Err: "bad_request", Reason: "q must be a positive integer"}
			}
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.dbs[name]; ok {
			return errDBExists
		}
		s.dbs[name] = &database{
			partitioned: r.URL.Query().Get("partitioned") == "true",
			shards:      shards,
			docs:        make(map[string]*document),
		}
		return serveJSON(w, http.StatusCreated, map[string]bool{"ok": true})
	})
}

func validDBName(name string) bool {
	if name == "_users" || name == "_replicator" {
		return true
	}
	if name == "" || name[0] < 'a' || name[0] > 'z' {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case strings.ContainsRune("_$()+-/", c):
		default:
			return false
		}
	}
	return true
}

func (s *Server) dbInfo() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		name := param(r, "db")
		s.mu.Lock()
		defer s.mu.Unlock()
		db, ok := s.dbs[name]
		if !ok {
			return errNoDB
		}
		count := 0
		for _, doc := range db.docs {
			if !doc.deleted {
				count++
			}
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"db_name":   name,
			"doc_count": count,
			"props": map[string]interface{}{
				"partitioned": db.partitioned,
			},
		})
	})
}

func (s *Server) deleteDB() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		name := param(r, "db")
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.dbs[name]; !ok {
			return errNoDB
		}
		delete(s.dbs, name)
		return serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}

// db returns the named database. The caller must hold s.mu.
func (s *Server) db(r *http.Request) (*database, error) {
	db, ok := s.dbs[param(r, "db")]
	if !ok {
		return nil, errNoDB
	}
	return db, nil
}

func (s *Server) getDoc(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		id := docID(r, prefix)
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.db(r)
		if err != nil {
			return err
		}
		doc, ok := db.docs[id]
		if !ok || doc.deleted {
			return errNotFound
		}
		query := r.URL.Query()
		if rev := query.Get("rev"); rev != "" && rev != doc.rev {
			return errNotFound
		}
		body := doc.JSON()
		if query.Get("revs") == "true" {
			body["_revisions"] = map[string]interface{}{
				"start": doc.seq,
				"ids":   []string{doc.rev[strings.Index(doc.rev, "-")+1:]},
			}
		}
		w.Header().Set("ETag", `"`+doc.rev+`"`)
		return serveJSON(w, http.StatusOK, body)
	})
}

func (s *Server) putDoc(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		id := docID(r, prefix)
		var body map[string]interface{}
		if err := s.bind(r, &body); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.db(r)
		if err != nil {
			return err
		}
		doc, err := db.update(id, r.URL.Query().Get("rev"), body, false)
		if err != nil {
			return err
		}
		w.Header().Set("ETag", `"`+doc.rev+`"`)
		return serveJSON(w, http.StatusCreated, map[string]interface{}{
			"ok":  true,
			"id":  doc.id,
			"rev": doc.rev,
		})
	})
}

func (s *Server) deleteDoc(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		id := docID(r, prefix)
		rev := r.URL.Query().Get("rev")
		if rev == "" {
			return errBadRev
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.db(r)
		if err != nil {
			return err
		}
		if cur, ok := db.docs[id]; !ok || cur.deleted {
			return errNotFound
		}
		doc, err := db.update(id, rev, map[string]interface{}{"_deleted": true}, false)
		if err != nil {
			return err
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"ok":  true,
			"id":  doc.id,
			"rev": doc.rev,
		})
	})
}

type bulkRequest struct {
	Docs         []map[string]interface{} `json:"docs"`
	NewEdits     *bool                    `json:"new_edits"`
	AllOrNothing bool                     `json:"all_or_nothing"`
}

type bulkResult struct {
	OK     bool   `json:"ok,omitempty"`
	ID     string `json:"id"`
	Rev    string `json:"rev,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) bulkDocs() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var req bulkRequest
		if err := s.bind(r, &req); err != nil {
			return err
		}
		if req.Docs == nil {
			return &couchError{status: http.StatusBadRequest, Err: "bad_request", Reason: "POST body must include `docs` parameter."}
		}
		force := req.NewEdits != nil && !*req.NewEdits
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.db(r)
		if err != nil {
			return err
		}
		results := make([]bulkResult, 0, len(req.Docs))
		for _, body := range req.Docs {
			id, _ := body["_id"].(string)
			if id == "" {
				id = strings.ReplaceAll(uuid.NewString(), "-", "")
			}
			doc, err := db.update(id, "", body, force)
			if err != nil {
				ce := err.(*couchError)
				results = append(results, bulkResult{ID: id, Error: ce.Err, Reason: ce.Reason})
				continue
			}
			res := bulkResult{OK: true, ID: id, Rev: doc.rev}
			if force {
				// Replicated revisions are stored as given.
				if rev, _ := body["_rev"].(string); rev != "" {
					doc.rev = rev
				}
				res = bulkResult{ID: id, Rev: doc.rev}
			}
			results = append(results, res)
		}
		return serveJSON(w, http.StatusCreated, results)
	})
}

type indexRequest struct {
	Index map[string]interface{} `json:"index"`
	DDoc  string                 `json:"ddoc"`
	Name  string                 `json:"name"`
	Type  string                 `json:"type"`
}

func (s *Server) createIndex() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var req indexRequest
		if err := s.bind(r, &req); err != nil {
			return err
		}
		if req.Index == nil {
			return &couchError{status: http.StatusBadRequest, Err: "bad_request", Reason: "Missing required key: index"}
		}
		if req.Type == "" {
			req.Type = "json"
		}
		if req.Name == "" {
			req.Name = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		if req.DDoc == "" {
			req.DDoc = req.Name
		}
		req.DDoc = designPrefix + strings.TrimPrefix(req.DDoc, designPrefix)
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.db(r)
		if err != nil {
			return err
		}
		for _, idx := range db.indexes {
			if idx.DDoc == req.DDoc && idx.Name == req.Name {
				return serveJSON(w, http.StatusOK, map[string]string{
					"result": "exists",
					"id":     idx.DDoc,
					"name":   idx.Name,
				})
			}
		}
		db.indexes = append(db.indexes, &index{
			DDoc: req.DDoc,
			Name: req.Name,
			Type: req.Type,
			Def:  req.Index,
		})
		return serveJSON(w, http.StatusOK, map[string]string{
			"result": "created",
			"id":     req.DDoc,
			"name":   req.Name,
		})
	})
}

func (s *Server) listIndexes() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.db(r)
		if err != nil {
			return err
		}
		indexes := append([]*index{}, db.indexes...)
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"total_rows": len(indexes),
			"indexes":    indexes,
		})
	})
}

// Indexes returns the definitions of the indexes of db, as received.
func (s *Server) Indexes(db string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dbs[db]
	if !ok {
		return nil
	}
	out := make([]json.RawMessage, 0, len(d.indexes))
	for _, idx := range d.indexes {
		raw, _ := json.Marshal(idx)
		out = append(out, raw)
	}
	return out
}

func docID(r *http.Request, prefix string) string {
	if prefix == designPrefix {
		return prefix + param(r, "ddoc")
	}
	return param(r, "docid")
}
