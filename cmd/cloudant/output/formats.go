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

package output

import (
	"encoding/json"
	"io"
	"text/template"

	"gopkg.in/yaml.v3"
)

type jsonFormat struct{}

func (jsonFormat) Output(w io.Writer, raw json.RawMessage) error {
	buf, err := indent(raw)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

type rawFormat struct{}

func (rawFormat) Output(w io.Writer, raw json.RawMessage) error {
	_, err := w.Write(raw)
	return err
}

type yamlFormat struct{}

func (yamlFormat) Output(w io.Writer, raw json.RawMessage) error {
	var obj interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(obj); err != nil {
		return err
	}
	return enc.Close()
}

type templateFormat struct {
	tmpl *template.Template
}

var _ FormatArg = &templateFormat{}

func (*templateFormat) Required() bool { return true }

func (f *templateFormat) Arg(arg string) error {
	var err error
	f.tmpl, err = template.New("").Parse(arg)
	return err
}

func (f *templateFormat) Output(w io.Writer, raw json.RawMessage) error {
	var obj interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	return f.tmpl.Execute(w, obj)
}
