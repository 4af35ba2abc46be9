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
	"crypto/hmac"
	"crypto/sha1" // nolint:gosec
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// BasicAuth authenticates every request with HTTP Basic Auth.
func BasicAuth(username, password string) Option {
	return &basicAuth{
		Username: username,
		Password: password,
	}
}

type basicAuth struct {
	NopInterceptor
	Username string
	Password string
}

var (
	_ Interceptor = (*basicAuth)(nil)
	_ Option      = (*basicAuth)(nil)
)

func (a *basicAuth) Apply(target interface{}) {
	if c, ok := target.(*Client); ok {
		c.AddInterceptor(&basicAuth{Username: a.Username, Password: a.Password})
	}
}

func (a *basicAuth) String() string {
	return fmt.Sprintf("[BasicAuth{user:%s,pass:%s}]", a.Username, strings.Repeat("*", len(a.Password)))
}

func (a *basicAuth) InterceptRequest(ctx InterceptorContext) InterceptorContext {
	ctx.Request.SetBasicAuth(a.Username, a.Password)
	return ctx
}

// JWTAuth sends token as a bearer token on every request.
func JWTAuth(token string) Option {
	return &jwtAuth{Token: token}
}

type jwtAuth struct {
	NopInterceptor
	Token string
}

var (
	_ Interceptor = (*jwtAuth)(nil)
	_ Option      = (*jwtAuth)(nil)
)

func (a *jwtAuth) Apply(target interface{}) {
	if c, ok := target.(*Client); ok {
		c.AddInterceptor(&jwtAuth{Token: a.Token})
	}
}

func (a *jwtAuth) String() string {
	token := a.Token
	const unmaskedLen = 3
	if len(token) > unmaskedLen {
		token = token[:unmaskedLen] + strings.Repeat("*", len(token)-unmaskedLen)
	}
	return fmt.Sprintf("[JWTAuth{token:%s}]", token)
}

func (a *jwtAuth) InterceptRequest(ctx InterceptorContext) InterceptorContext {
	ctx.Request.Header.Set("Authorization", "Bearer "+a.Token)
	return ctx
}

// ProxyAuth provides support for CouchDB's proxy authentication. headers,
// if given, rename the default X-Auth-CouchDB-* headers.
func ProxyAuth(username, secret string, roles []string, headers ...map[string]string) Option {
	httpHeader := http.Header{}
	for _, h := range headers {
		for k, v := range h {
			httpHeader.Set(k, v)
		}
	}
	return &proxyAuth{
		Username: username,
		Secret:   secret,
		Roles:    roles,
		Headers:  httpHeader,
	}
}

type proxyAuth struct {
	NopInterceptor
	Username string
	Secret   string
	Roles    []string
	Headers  http.Header

	token string
}

var (
	_ Interceptor = (*proxyAuth)(nil)
	_ Option      = (*proxyAuth)(nil)
)

func (a *proxyAuth) Apply(target interface{}) {
	if c, ok := target.(*Client); ok {
		auth := &proxyAuth{
			Username: a.Username,
			Secret:   a.Secret,
			Roles:    a.Roles,
			Headers:  a.Headers,
		}
		auth.token = auth.genToken()
		c.AddInterceptor(auth)
	}
}

func (a *proxyAuth) String() string {
	return fmt.Sprintf("[ProxyAuth{username:%s,secret:%s}]", a.Username, strings.Repeat("*", len(a.Secret)))
}

func (a *proxyAuth) header(header string) string {
	if h := a.Headers.Get(header); h != "" {
		return http.CanonicalHeaderKey(h)
	}
	return header
}

func (a *proxyAuth) genToken() string {
	if a.Secret == "" {
		return ""
	}
	// https://docs.couchdb.org/en/stable/config/auth.html#couch_httpd_auth/x_auth_token
	h := hmac.New(sha1.New, []byte(a.Secret))
	_, _ = h.Write([]byte(a.Username))
	return hex.EncodeToString(h.Sum(nil))
}

func (a *proxyAuth) InterceptRequest(ctx InterceptorContext) InterceptorContext {
	req := ctx.Request
	if a.token != "" {
		req.Header.Set(a.header("X-Auth-CouchDB-Token"), a.token)
	}
	req.Header.Set(a.header("X-Auth-CouchDB-UserName"), a.Username)
	req.Header.Set(a.header("X-Auth-CouchDB-Roles"), strings.Join(a.Roles, ","))
	return ctx
}
