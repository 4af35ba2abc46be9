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
	"net/http"
	"sort"
	"strconv"
	"strings"

	"gitlab.com/flimzy/httpe"
)

// MapFunc is the equivalent of a view's map function. It is called once for
// every document other than design documents.
type MapFunc func(doc map[string]interface{}, emit func(key, value interface{}))

// EmitID emits every document's _id as the key, and null as the value.
func EmitID(doc map[string]interface{}, emit func(key, value interface{})) {
	emit(doc["_id"], nil)
}

// EmitField returns a MapFunc which emits the named field as the key, for
// documents which have it.
func EmitField(field string) MapFunc {
	return func(doc map[string]interface{}, emit func(key, value interface{})) {
		if v, ok := doc[field]; ok {
			emit(v, nil)
		}
	}
}

// AddView registers a view of db. The design document need not exist.
func (s *Server) AddView(db, ddoc, view string, fn MapFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[viewName(db, strings.TrimPrefix(ddoc, designPrefix), view)] = fn
}

func viewName(db, ddoc, view string) string {
	return db + "/" + ddoc + "/" + view
}

type viewParams struct {
	Descending    bool   `form:"descending"`
	StartKey      string `form:"startkey"`
	StartKeyAlt   string `form:"start_key"`
	StartKeyDocID string `form:"startkey_docid"`
	EndKey        string `form:"endkey"`
	EndKeyAlt     string `form:"end_key"`
	EndKeyDocID   string `form:"endkey_docid"`
	InclusiveEnd  string `form:"inclusive_end"`
	Key           string `form:"key"`
	IncludeDocs   bool   `form:"include_docs"`
	UpdateSeq     bool   `form:"update_seq"`
	Limit         string `form:"limit"`
	Skip          int    `form:"skip"`
	Reduce        string `form:"reduce"`
}

type viewRow struct {
	ID    string                 `json:"id"`
	Key   interface{}            `json:"key"`
	Value interface{}            `json:"value"`
	Doc   map[string]interface{} `json:"doc,omitempty"`
}

// bound is a start or end position in a view.
type bound struct {
	key      interface{}
	docID    string
	hasDocID bool
}

func (b *bound) compare(row *viewRow) int {
	if c := compareValues(row.Key, b.key); c != 0 || !b.hasDocID {
		return c
	}
	return compareString(row.ID, b.docID)
}

func queryParseError(reason string) error {
	return &couchError{status: http.StatusBadRequest, Err: "query_parse_error", Reason: reason}
}

func parseBound(name, raw, docID string) (*bound, error) {
	if raw == "" {
		return nil, nil
	}
	key, err := decodeKey([]byte(raw))
	if err != nil {
		return nil, queryParseError("Invalid value for JSON parameter: " + name)
	}
	return &bound{key: key, docID: docID, hasDocID: docID != ""}, nil
}

type viewQuery struct {
	descending   bool
	start, end   *bound
	inclusiveEnd bool
	key          *bound
	keys         []interface{}
	includeDocs  bool
	updateSeq    bool
	limit        int
	skip         int
}

func (s *Server) parseViewQuery(r *http.Request) (*viewQuery, error) {
	var p viewParams
	if err := s.formDecoder.Decode(r.URL.Query(), &p); err != nil {
		return nil, queryParseError(err.Error())
	}
	if p.Reduce == "true" {
		return nil, queryParseError("Reduce is invalid for map-only views.")
	}
	q := &viewQuery{
		descending:   p.Descending,
		inclusiveEnd: p.InclusiveEnd != "false",
		includeDocs:  p.IncludeDocs,
		updateSeq:    p.UpdateSeq,
		limit:        -1,
		skip:         p.Skip,
	}
	if p.StartKey == "" {
		p.StartKey = p.StartKeyAlt
	}
	if p.EndKey == "" {
		p.EndKey = p.EndKeyAlt
	}
	var err error
	if q.start, err = parseBound("startkey", p.StartKey, p.StartKeyDocID); err != nil {
		return nil, err
	}
	if q.end, err = parseBound("endkey", p.EndKey, p.EndKeyDocID); err != nil {
		return nil, err
	}
	if q.key, err = parseBound("key", p.Key, ""); err != nil {
		return nil, err
	}
	if p.Limit != "" {
		if q.limit, err = strconv.Atoi(p.Limit); err != nil || q.limit < 0 {
			return nil, queryParseError("Invalid value for integer: \"" + p.Limit + "\"")
		}
	}
	if q.skip < 0 {
		return nil, queryParseError("Invalid value for skip")
	}
	if r.Method == http.MethodPost {
		var body struct {
			Keys []json.RawMessage `json:"keys"`
		}
		if err := s.bind(r, &body); err != nil {
			return nil, err
		}
		for _, raw := range body.Keys {
			key, err := decodeKey(raw)
			if err != nil {
				return nil, queryParseError("Invalid key")
			}
			q.keys = append(q.keys, key)
		}
	}
	return q, nil
}

// mapRows runs fn over the live documents of db, and returns the emitted
// rows in collation order. The caller must hold s.mu.
func (d *database) mapRows(fn MapFunc, design bool) []*viewRow {
	var rows []*viewRow
	for _, doc := range d.docs {
		if doc.deleted || (!design && strings.HasPrefix(doc.id, designPrefix)) {
			continue
		}
		body := doc.JSON()
		fn(body, func(key, value interface{}) {
			rows = append(rows, &viewRow{ID: doc.id, Key: normalize(key), Value: normalize(value), Doc: body})
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if c := compareValues(rows[i].Key, rows[j].Key); c != 0 {
			return c < 0
		}
		return compareString(rows[i].ID, rows[j].ID) < 0
	})
	return rows
}

// normalize round-trips v through JSON, so emitted values collate the same
// way as keys decoded from requests.
func normalize(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out, _ := decodeKey(raw)
	return out
}

func (q *viewQuery) apply(rows []*viewRow) (selected []*viewRow, offset int) {
	if q.keys != nil {
		for _, key := range q.keys {
			for _, row := range rows {
				if compareValues(row.Key, key) == 0 {
					selected = append(selected, row)
				}
			}
		}
		return q.page(selected), 0
	}
	dir := 1
	if q.descending {
		dir = -1
		reversed := make([]*viewRow, len(rows))
		for i, row := range rows {
			reversed[len(rows)-1-i] = row
		}
		rows = reversed
	}
	first := 0
	if q.start != nil {
		for first < len(rows) && dir*q.start.compare(rows[first]) < 0 {
			first++
		}
	}
	for _, row := range rows[first:] {
		if q.end != nil {
			if c := dir * q.end.compare(row); c > 0 || (c == 0 && !q.inclusiveEnd) {
				break
			}
		}
		if q.key != nil && compareValues(row.Key, q.key.key) != 0 {
			continue
		}
		selected = append(selected, row)
	}
	return q.page(selected), first + q.skip
}

func (q *viewQuery) page(rows []*viewRow) []*viewRow {
	if q.skip >= len(rows) {
		return []*viewRow{}
	}
	rows = rows[q.skip:]
	if q.limit >= 0 && q.limit < len(rows) {
		rows = rows[:q.limit]
	}
	return rows
}

func (s *Server) serveRows(w http.ResponseWriter, q *viewQuery, db *database, rows []*viewRow) error {
	total := len(rows)
	rows, offset := q.apply(rows)
	out := make([]viewRow, len(rows))
	for i, row := range rows {
		out[i] = *row
		if !q.includeDocs {
			out[i].Doc = nil
		}
	}
	result := map[string]interface{}{
		"total_rows": total,
		"offset":     offset,
		"rows":       out,
	}
	if q.updateSeq {
		seq := 0
		for _, doc := range db.docs {
			seq += doc.seq
		}
		result["update_seq"] = seq
	}
	return serveJSON(w, http.StatusOK, result)
}

func (s *Server) queryView() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		q, err := s.parseViewQuery(r)
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.db(r)
		if err != nil {
			return err
		}
		name := viewName(param(r, "db"), strings.TrimPrefix(param(r, "ddoc"), designPrefix), param(r, "view"))
		fn, ok := s.views[name]
		if !ok {
			return &couchError{status: http.StatusNotFound, Err: "not_found", Reason: "missing_named_view"}
		}
		return s.serveRows(w, q, db, db.mapRows(fn, false))
	})
}

func (s *Server) allDocs() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		q, err := s.parseViewQuery(r)
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.db(r)
		if err != nil {
			return err
		}
		rows := db.mapRows(func(doc map[string]interface{}, emit func(key, value interface{})) {
			emit(doc["_id"], map[string]interface{}{"rev": doc["_rev"]})
		}, true)
		return s.serveRows(w, q, db, rows)
	})
}
