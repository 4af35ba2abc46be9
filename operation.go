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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Operation describes a single HTTP exchange with the server.
//
// [Client.Add] calls Validate, then Serialize, Query, Method and Endpoint,
// all before anything is sent. An operation must not change after it has
// been added. Complete is called exactly once, from another goroutine.
type Operation interface {
	// Validate reports whether the operation is complete and consistent.
	Validate() error

	// Method returns the HTTP method.
	Method() string

	// Endpoint returns the escaped request path, relative to the server root.
	Endpoint() string

	// Query returns the query parameters, if any.
	Query() (url.Values, error)

	// Serialize returns the request body, which may be empty.
	Serialize() ([]byte, error)

	// Complete receives the response body, the response metadata (nil if no
	// response was received), and the error of the exchange. The returned
	// error becomes the result of the operation, so Complete may report
	// failures decoding body.
	Complete(body json.RawMessage, info *HTTPInfo, err error) error
}

// HTTPInfo describes the final HTTP response of an operation.
type HTTPInfo struct {
	StatusCode int
	Header     http.Header
}

var validate = newValidator()

var dbNameRE = regexp.MustCompile(`^[a-z][a-z0-9_$()+/-]*$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("dbname", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return dbNameRE.MatchString(name) || name == "_users" || name == "_replicator"
	})
	return v
}

// validateStruct checks the `validate` struct tags of op, reporting the
// first failure as a 400 error.
func validateStruct(op interface{}) error {
	err := validate.Struct(op)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &Error{Status: http.StatusBadRequest, Err: err}
	}
	fe := errs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	msg := "invalid value for " + field
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "dbname":
		msg = fmt.Sprintf("invalid database name: %v", fe.Value())
	case "oneof":
		msg = field + " must be one of: " + fe.Param()
	case "min":
		msg = field + " must have at least " + fe.Param() + " element(s)"
	}
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

func dbPath(db string) string {
	return "/" + url.PathEscape(db)
}

// decodeResult unmarshals the body of a successful exchange into dst.
func decodeResult(body json.RawMessage, err error, dst interface{}) error {
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &Error{Status: http.StatusBadGateway, Err: err}
	}
	return nil
}
