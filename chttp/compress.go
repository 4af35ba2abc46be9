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
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
)

// compressInterceptor gzips request bodies. It runs last in the chain, so
// that it sees the final body.
type compressInterceptor struct {
	NopInterceptor
	client *Client
}

var _ Interceptor = (*compressInterceptor)(nil)

func (c *compressInterceptor) shouldCompress(req *http.Request) bool {
	if req.Body == nil || req.Body == http.NoBody || req.Header.Get("Content-Encoding") != "" {
		return false
	}
	if skip, _ := req.Context().Value(noGzipKey{}).(bool); skip {
		return false
	}
	// /_session only supports compression from CouchDB 3.2.
	return !c.client.fullPathMatches(req.URL.String(), "/_session")
}

func (c *compressInterceptor) InterceptRequest(ictx InterceptorContext) InterceptorContext {
	req := ictx.Request
	if !c.shouldCompress(req) {
		return ictx
	}
	buf := &bytes.Buffer{}
	gz := gzip.NewWriter(buf)
	_, err := io.Copy(gz, req.Body)
	_ = req.Body.Close()
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		req.Body = io.NopCloser(failingReader{err: err})
		return ictx
	}
	compressed := buf.Bytes()
	req.Body = io.NopCloser(bytes.NewReader(compressed))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(compressed)), nil
	}
	req.ContentLength = int64(len(compressed))
	req.Header.Set("Content-Encoding", "gzip")
	return ictx
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }
