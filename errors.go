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
	"errors"
	"net/http"

	internal "github.com/go-kivik/cloudant/internal/errors"
)

// Error represents an error returned by the library. It carries an HTTP
// status, see [HTTPStatus].
type Error = internal.Error

// HTTPStatus returns the HTTP status code embedded in the error, or 500
// (internal server error), if there was no specified status code. If err is
// nil, HTTPStatus returns 0.
func HTTPStatus(err error) int {
	return internal.HTTPStatus(err)
}

var (
	// ErrClientClosed is returned for operations added after [Client.Close].
	ErrClientClosed = &Error{Status: http.StatusServiceUnavailable, Message: "cloudant: client closed"}

	// ErrUnsupportedDirective ends a paging session when the page handler
	// returns a directive that cannot be honored in the current state.
	ErrUnsupportedDirective = &Error{Status: http.StatusBadRequest, Message: "cloudant: unsupported paging directive"}

	// ErrNoPreviousPage ends a paging session when [Previous] is requested
	// from the first page.
	ErrNoPreviousPage = &Error{Status: http.StatusBadRequest, Message: "cloudant: no previous page"}
)

// ErrNotFound returns true if the error is the result of an HTTP 404/Not Found
// response.
func ErrNotFound(err error) bool {
	return HTTPStatus(err) == http.StatusNotFound
}

// ErrConflict returns true if the error is the result of an HTTP 409/Conflict
// response.
func ErrConflict(err error) bool {
	return HTTPStatus(err) == http.StatusConflict
}

func badRequest(err error) error {
	var e *Error
	if errors.As(err, &e) && e.Status == http.StatusBadRequest {
		return err
	}
	return &Error{Status: http.StatusBadRequest, Err: err}
}
