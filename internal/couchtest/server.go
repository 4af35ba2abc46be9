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

// Package couchtest provides an in-memory fake of the CouchDB HTTP API,
// sufficient to exercise the client against realistic responses.
package couchtest

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/monoculum/formam/v3"
	"gitlab.com/flimzy/httpe"

	internal "github.com/go-kivik/cloudant/internal/errors"
)

// Server is a fake CouchDB server.
type Server struct {
	mux         *chi.Mux
	formDecoder *formam.Decoder

	mu       sync.Mutex
	dbs      map[string]*database
	views    map[string]MapFunc
	users    map[string]string
	sessions map[string]string
	requests []Request
	faults   []fault
}

// Request is a request as received by the server.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
}

type fault struct {
	status int
	header http.Header
}

// Option configures a [Server].
type Option interface {
	apply(*Server)
}

type optionFunc func(*Server)

func (f optionFunc) apply(s *Server) { f(s) }

// WithUser registers a user. Once any user is registered, every request
// other than those to / and /_session must be authenticated, with basic
// auth or a session cookie.
func WithUser(name, password string) Option {
	return optionFunc(func(s *Server) {
		s.users[name] = password
	})
}

// New returns a new, empty server.
func New(options ...Option) *Server {
	s := &Server{
		mux: chi.NewMux(),
		formDecoder: formam.NewDecoder(&formam.DecoderOptions{
			TagName:           "form",
			IgnoreUnknownKeys: true,
		}),
		dbs:      make(map[string]*database),
		views:    make(map[string]MapFunc),
		users:    make(map[string]string),
		sessions: make(map[string]string),
	}
	for _, option := range options {
		option.apply(s)
	}
	s.routes(s.mux)
	return s
}

// Start starts s on a test HTTP server, which is closed when t completes.
func Start(t testing.TB, options ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := New(options...)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

func (s *Server) routes(mux *chi.Mux) {
	mux.Use(
		s.record,
		gunzip,
		httpe.ToMiddleware(s.handleErrors),
	)
	mux.Get("/", httpe.ToHandler(s.root()).ServeHTTP)
	mux.Post("/_session", httpe.ToHandler(s.postSession()).ServeHTTP)
	mux.Get("/_session", httpe.ToHandler(s.getSession()).ServeHTTP)
	mux.Delete("/_session", httpe.ToHandler(s.deleteSession()).ServeHTTP)

	auth := mux.With(
		httpe.ToMiddleware(s.faultMiddleware),
		httpe.ToMiddleware(s.authMiddleware),
	)

	auth.Put("/{db}", httpe.ToHandler(s.createDB()).ServeHTTP)
	auth.Get("/{db}", httpe.ToHandler(s.dbInfo()).ServeHTTP)
	auth.Delete("/{db}", httpe.ToHandler(s.deleteDB()).ServeHTTP)
	auth.Get("/{db}/_all_docs", httpe.ToHandler(s.allDocs()).ServeHTTP)
	auth.Post("/{db}/_all_docs", httpe.ToHandler(s.allDocs()).ServeHTTP)
	auth.Post("/{db}/_bulk_docs", httpe.ToHandler(s.bulkDocs()).ServeHTTP)
	auth.Post("/{db}/_index", httpe.ToHandler(s.createIndex()).ServeHTTP)
	auth.Get("/{db}/_index", httpe.ToHandler(s.listIndexes()).ServeHTTP)

	auth.Get("/{db}/{docid}", httpe.ToHandler(s.getDoc("")).ServeHTTP)
	auth.Put("/{db}/{docid}", httpe.ToHandler(s.putDoc("")).ServeHTTP)
	auth.Delete("/{db}/{docid}", httpe.ToHandler(s.deleteDoc("")).ServeHTTP)

	auth.Get("/{db}/_design/{ddoc}", httpe.ToHandler(s.getDoc(designPrefix)).ServeHTTP)
	auth.Put("/{db}/_design/{ddoc}", httpe.ToHandler(s.putDoc(designPrefix)).ServeHTTP)
	auth.Delete("/{db}/_design/{ddoc}", httpe.ToHandler(s.deleteDoc(designPrefix)).ServeHTTP)
	auth.Get("/{db}/_design/{ddoc}/_view/{view}", httpe.ToHandler(s.queryView()).ServeHTTP)
	auth.Post("/{db}/_design/{ddoc}/_view/{view}", httpe.ToHandler(s.queryView()).ServeHTTP)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Requests returns the requests received so far, in order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

// FailNext makes the next n authenticated requests fail with status. header
// is added to each failure response, and may be nil.
func (s *Server) FailNext(n, status int, header http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.faults = append(s.faults, fault{status: status, header: header})
	}
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.RawPath
		if path == "" {
			path = r.URL.Path
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func gunzip(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") != "gzip" {
			next.ServeHTTP(w, r)
			return
		}
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			_ = serveJSON(w, http.StatusBadRequest, &couchError{Err: "bad_request", Reason: err.Error()})
			return
		}
		body, err := io.ReadAll(gz)
		if err != nil {
			_ = serveJSON(w, http.StatusBadRequest, &couchError{Err: "bad_request", Reason: err.Error()})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		r.Header.Del("Content-Encoding")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) faultMiddleware(next httpe.HandlerWithError) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.Lock()
		var f *fault
		if len(s.faults) > 0 {
			f = &s.faults[0]
			s.faults = s.faults[1:]
		}
		s.mu.Unlock()
		if f == nil {
			return next.ServeHTTPWithError(w, r)
		}
		for k, v := range f.header {
			w.Header()[k] = v
		}
		return &internal.Error{Status: f.status, Message: "injected failure"}
	})
}

type couchError struct {
	status int
	Err    string `json:"error"`
	Reason string `json:"reason"`
}

func (e *couchError) Error() string {
	return e.Err + ": " + e.Reason
}

func (e *couchError) HTTPStatus() int {
	return e.status
}

func (s *Server) handleErrors(next httpe.HandlerWithError) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		if err := next.ServeHTTPWithError(w, r); err != nil {
			status := internal.HTTPStatus(err)
			ce := &couchError{}
			if !errors.As(err, &ce) {
				ce.Err = strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
				ce.Reason = err.Error()
			}
			return serveJSON(w, status, ce)
		}
		return nil
	})
}

func serveJSON(w http.ResponseWriter, status int, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = io.Copy(w, bytes.NewReader(body))
	return err
}

func (s *Server) root() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, _ *http.Request) error {
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"couchdb": "Welcome",
			"vendor": map[string]string{
				"name": "couchtest",
			},
		})
	})
}

// param returns the unescaped value of a URL parameter.
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// bind decodes a JSON or form request body into v.
func (s *Server) bind(r *http.Request, v interface{}) error {
	defer r.Body.Close() // nolint:errcheck
	ct := r.Header.Get("Content-Type")
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(ct) {
	case "application/json", "":
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			return &couchError{status: http.StatusBadRequest, Err: "bad_request", Reason: "invalid UTF-8 JSON"}
		}
		return nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return err
		}
		return s.formDecoder.Decode(r.Form, v)
	}
	return &couchError{status: http.StatusUnsupportedMediaType, Err: "bad_content_type", Reason: "Content-Type must be 'application/x-www-form-urlencoded' or 'application/json'"}
}
