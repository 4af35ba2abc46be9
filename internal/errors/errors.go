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

// Package errors provides the status-carrying error type shared by the client
// packages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an error returned by a client operation. Status is an
// HTTP status code, or a status derived from one for errors that never
// reached the server.
type Error struct {
	// Status is the HTTP status code associated with this error.
	Status int

	// Message is an optional human-readable prefix.
	Message string

	// Err is the originating error, if any.
	Err error
}

var (
	_ error         = &Error{}
	_ fmt.Formatter = &Error{}
)

func (e *Error) Error() string {
	if e.Err == nil {
		return e.msg()
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

// Format implements [fmt.Formatter]. The %+v verb includes the status code
// and status text.
func (e *Error) Format(f fmt.State, c rune) {
	const partsLen = 3
	parts := make([]string, 0, partsLen)
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if c == 'v' && f.Flag('+') {
		parts = append(parts, fmt.Sprintf("%d / %s", e.Status, http.StatusText(e.Status)))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		parts = append(parts, e.msg())
	}
	for i, p := range parts {
		if i > 0 {
			_, _ = fmt.Fprint(f, ": ")
		}
		_, _ = fmt.Fprint(f, p)
	}
}

func (e *Error) msg() string {
	switch e.Message {
	case "":
		return http.StatusText(e.HTTPStatus())
	default:
		return e.Message
	}
}

// HTTPStatus returns the HTTP status code associated with the error, or 500
// if none was set.
func (e *Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Unwrap satisfies the errors unwrapper interface.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code embedded in err, or 500 if there
// is no embedded status code. A nil error returns 0.
func HTTPStatus(err error) int {
	if err == nil {
		return 0
	}
	var coder interface {
		HTTPStatus() int
	}
	if errors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// New returns an error carrying status and message.
func New(status int, message string) error {
	return &Error{Status: status, Message: message}
}

// Wrap returns err annotated with status. A nil err yields nil.
func Wrap(status int, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Status: status, Err: err}
}
