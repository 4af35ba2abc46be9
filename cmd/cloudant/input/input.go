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

// Package input reads document data from flags, files or stdin.
package input

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/icza/dyno"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/go-kivik/cloudant/cmd/cloudant/errors"
)

// Input holds the data flags of a command.
type Input struct {
	data string
	file string
	yaml bool

	stdin io.Reader
}

// New returns an Input reading - from os.Stdin.
func New() *Input {
	return &Input{stdin: os.Stdin}
}

// ConfigFlags registers the data flags on pf.
func (i *Input) ConfigFlags(pf *pflag.FlagSet) {
	pf.StringVarP(&i.data, "data", "d", "", "JSON document data.")
	pf.StringVarP(&i.file, "data-file", "D", "", "Read document data from the named file. Use - for stdin. Assumed to be JSON, unless the file extension is .yaml or .yml, or the --yaml flag is used.")
	pf.BoolVar(&i.yaml, "yaml", false, "Treat input data as YAML")
}

// SetStdin changes the reader used for -.
func (i *Input) SetStdin(r io.Reader) {
	i.stdin = r
}

// HasInput returns true if some input has been provided.
func (i *Input) HasInput() bool {
	return i.data != "" || i.file != ""
}

func (i *Input) isYAML() bool {
	return i.yaml || strings.HasSuffix(i.file, ".yaml") || strings.HasSuffix(i.file, ".yml")
}

func (i *Input) raw() ([]byte, error) {
	if i.data != "" {
		return []byte(i.data), nil
	}
	switch i.file {
	case "":
		return nil, errors.Code(errors.ErrUsage, "no document data provided")
	case "-":
		buf, err := io.ReadAll(i.stdin)
		return buf, errors.Code(errors.ErrIO, err)
	}
	buf, err := os.ReadFile(i.file)
	if err != nil {
		return nil, errors.Code(errors.ErrNoInput, err)
	}
	return buf, nil
}

// JSONData returns the input as JSON. YAML input is converted.
func (i *Input) JSONData() (json.RawMessage, error) {
	buf, err := i.raw()
	if err != nil {
		return nil, err
	}
	if i.isYAML() {
		return yaml2json(buf)
	}
	if !json.Valid(buf) {
		return nil, errors.Code(errors.ErrData, "invalid JSON input")
	}
	return json.RawMessage(bytes.TrimSpace(buf)), nil
}

// As unmarshals the input to target.
func (i *Input) As(target interface{}) error {
	j, err := i.JSONData()
	if err != nil {
		return err
	}
	return errors.Code(errors.ErrData, json.Unmarshal(j, target))
}

// Docs returns the documents of a bulk request. The input may be an array
// of documents, or an object with a docs member.
func (i *Input) Docs() ([]interface{}, error) {
	j, err := i.JSONData()
	if err != nil {
		return nil, err
	}
	var docs []json.RawMessage
	if err := json.Unmarshal(j, &docs); err != nil {
		var wrapper struct {
			Docs []json.RawMessage `json:"docs"`
		}
		if err := json.Unmarshal(j, &wrapper); err != nil || wrapper.Docs == nil {
			return nil, errors.Code(errors.ErrData, "expected an array of documents, or an object with a docs member")
		}
		docs = wrapper.Docs
	}
	out := make([]interface{}, len(docs))
	for n, doc := range docs {
		out[n] = doc
	}
	return out, nil
}

func yaml2json(buf []byte) (json.RawMessage, error) {
	var doc interface{}
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, errors.Code(errors.ErrData, err)
	}
	j, err := json.Marshal(dyno.ConvertMapI2MapS(doc))
	if err != nil {
		return nil, errors.Code(errors.ErrData, err)
	}
	return j, nil
}
