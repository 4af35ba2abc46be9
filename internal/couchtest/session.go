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
	"net/http"

	"github.com/google/uuid"
	"gitlab.com/flimzy/httpe"
)

const sessionCookieName = "AuthSession"

var errUnauthorized = &couchError{status: http.StatusUnauthorized, Err: "unauthorized", Reason: "Name or password is incorrect."}

type credentials struct {
	Name     string `json:"name" form:"name"`
	Password string `json:"password" form:"password"`
}

// ExpireSessions forgets all sessions, so that requests carrying a session
// cookie are rejected until the client logs in again.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	s.sessions = make(map[string]string)
	s.mu.Unlock()
}

// user returns the authenticated user of r, or "" if there is none.
func (s *Server) user(r *http.Request) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if name, ok := s.sessions[cookie.Value]; ok {
			return name
		}
	}
	if name, password, ok := r.BasicAuth(); ok {
		if pw, ok := s.users[name]; ok && pw == password {
			return name
		}
	}
	return ""
}

func (s *Server) authRequired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users) > 0
}

func (s *Server) authMiddleware(next httpe.HandlerWithError) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		if s.authRequired() && s.user(r) == "" {
			return &couchError{status: http.StatusUnauthorized, Err: "unauthorized", Reason: "You are not authorized to access this db."}
		}
		return next.ServeHTTPWithError(w, r)
	})
}

func (s *Server) postSession() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var creds credentials
		if err := s.bind(r, &creds); err != nil {
			return err
		}
		s.mu.Lock()
		pw, ok := s.users[creds.Name]
		if !ok || pw != creds.Password {
			s.mu.Unlock()
			return errUnauthorized
		}
		token := uuid.NewString()
		s.sessions[token] = creds.Name
		s.mu.Unlock()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
		})
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    true,
			"name":  creds.Name,
			"roles": []string{"_admin"},
		})
	})
}

func (s *Server) getSession() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var name interface{}
		if user := s.user(r); user != "" {
			name = user
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"ok": true,
			"userCtx": map[string]interface{}{
				"name":  name,
				"roles": []string{},
			},
		})
	})
}

func (s *Server) deleteSession() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		if cookie, err := r.Cookie(sessionCookieName); err == nil {
			s.mu.Lock()
			delete(s.sessions, cookie.Value)
			s.mu.Unlock()
		}
		http.SetCookie(w, &http.Cookie{
			Name:   sessionCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		return serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}
