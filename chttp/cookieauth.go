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

package chttp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// SessionCookieName is the name of the session cookie set by the server.
const SessionCookieName = "AuthSession"

// CookieAuth provides CouchDB [Cookie auth]. It is the default
// authentication method if credentials are included in the DSN passed to
// [New].
//
// A session is established lazily, before the first request that lacks a
// valid cookie. A 401 response to a request that carried a session cookie
// expires that cookie and re-issues the request once, so that an expired
// server-side session is transparently renewed.
//
// [Cookie auth]: http://docs.couchdb.org/en/2.0.0/api/server/authn.html#cookie-authentication
func CookieAuth(username, password string) Option {
	return &cookieAuth{
		Username: username,
		Password: password,
	}
}

type cookieAuth struct {
	Username string `json:"name"`
	Password string `json:"password"`

	client *Client
}

var (
	_ Interceptor = (*cookieAuth)(nil)
	_ Option      = (*cookieAuth)(nil)
)

func (a *cookieAuth) Apply(target interface{}) {
	c, ok := target.(*Client)
	if !ok {
		return
	}
	auth := &cookieAuth{
		Username: a.Username,
		Password: a.Password,
		client:   c,
	}
	if c.httpClient.Jar == nil {
		// cookiejar.New never returns an error
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		c.httpClient.Jar = jar
	}
	c.AddInterceptor(auth)
}

func (a *cookieAuth) String() string {
	return fmt.Sprintf("[CookieAuth{user:%s,pass:%s}]", a.Username, strings.Repeat("*", len(a.Password)))
}

// Cookie returns the current session cookie if found, or nil if not.
func (a *cookieAuth) Cookie() *http.Cookie {
	if a.client == nil {
		return nil
	}
	for _, cookie := range a.client.httpClient.Jar.Cookies(a.client.dsn) {
		if cookie.Name == SessionCookieName {
			return cookie
		}
	}
	return nil
}

// shouldAuth returns true if there is no cookie set, or if it is about to
// expire.
func (a *cookieAuth) shouldAuth(req *http.Request) bool {
	if _, err := req.Cookie(SessionCookieName); err == nil {
		return false
	}
	cookie := a.Cookie()
	if cookie == nil {
		return true
	}
	if !cookie.Expires.IsZero() {
		return cookie.Expires.Before(time.Now().Add(time.Minute))
	}
	// Without an expiry time, keep the session until the server rejects it.
	return false
}

type authInProgressKey struct{}

// InterceptRequest establishes a session when needed. Failure to
// authenticate is not fatal here; the request then proceeds without a
// cookie and the server's response reports the problem.
func (a *cookieAuth) InterceptRequest(ictx InterceptorContext) InterceptorContext {
	req := ictx.Request
	ctx := req.Context()
	if inProg, _ := ctx.Value(authInProgressKey{}).(bool); inProg {
		return ictx
	}
	if !a.shouldAuth(req) {
		return ictx
	}
	a.client.authMU.Lock()
	defer a.client.authMU.Unlock()
	if !a.shouldAuth(req) {
		// Another exchange authenticated first.
		return ictx
	}
	ctx = context.WithValue(ctx, authInProgressKey{}, true)
	opts := &Options{
		GetBody: BodyEncoder(a),
		NoGzip:  true,
	}
	_, _ = a.client.DoError(ctx, http.MethodPost, "/_session", opts)
	return ictx
}

// InterceptResponse drops the session cookie on 401, and asks for one retry
// if the rejected request carried a cookie.
func (a *cookieAuth) InterceptResponse(ictx InterceptorContext) InterceptorContext {
	res := ictx.Response
	if res == nil || res.StatusCode != http.StatusUnauthorized {
		return ictx
	}
	if inProg, _ := ictx.Request.Context().Value(authInProgressKey{}).(bool); inProg {
		return ictx
	}
	cookie := a.Cookie()
	if cookie == nil {
		return ictx
	}
	cookie.Expires = time.Now().AddDate(0, 0, -1)
	a.client.httpClient.Jar.SetCookies(a.client.dsn, []*http.Cookie{cookie})
	if ictx.Attempt == 0 && res.Request != nil {
		if _, err := res.Request.Cookie(SessionCookieName); err == nil {
			ictx.ShouldRetry = true
		}
	}
	return ictx
}
