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

// Package output renders command results.
package output

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/icza/dyno"
	"github.com/spf13/pflag"

	"github.com/go-kivik/cloudant/cmd/cloudant/errors"
)

// Formatter manages output formatting.
type Formatter struct {
	mu         sync.Mutex
	formats    map[string]Format
	formatOpts []string
	out        io.Writer

	format    string
	output    string
	overwrite bool
	field     string
}

// Format is the output format interface. The input is a single JSON value.
type Format interface {
	Output(io.Writer, json.RawMessage) error
}

// FormatArg is an optional interface. If implemented by a format, it may
// receive an argument, as in --format name=arg.
type FormatArg interface {
	Arg(string) error
	Required() bool
}

// New returns a formatter with the standard formats registered. JSON is
// the default.
func New() *Formatter {
	f := &Formatter{
		formats: map[string]Format{},
		out:     os.Stdout,
	}
	f.Register("", jsonFormat{})
	f.Register("json", jsonFormat{})
	f.Register("raw", rawFormat{})
	f.Register("yaml", yamlFormat{})
	f.Register("go-template", &templateFormat{})
	return f
}

// Register registers an output format.
func (f *Formatter) Register(name string, format Format) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.formats[name]; ok {
		panic(name + " already registered")
	}
	f.formats[name] = format
	if name != "" {
		f.formatOpts = append(f.formatOpts, formatOptions(name, format))
	}
}

func formatOptions(name string, f Format) string {
	if argFmt, ok := f.(FormatArg); ok {
		if argFmt.Required() {
			return name + "=..."
		}
		return name + "[=...]"
	}
	return name
}

// ConfigFlags sets up the CLI flags based on the registered formats.
func (f *Formatter) ConfigFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.format, "format", "f", "", "Output format. One of: "+strings.Join(f.formatOpts, "|"))
	fs.StringVarP(&f.output, "output", "o", "", "Output file.")
	fs.BoolVarP(&f.overwrite, "overwrite", "F", false, "Overwrite output file")
	fs.StringVar(&f.field, "field", "", "Output only the named field, as a dot-separated path such as rows.0.id")
}

// SetOut sets the destination for output to stdout.
func (f *Formatter) SetOut(w io.Writer) {
	f.out = w
}

// Output renders v, which is marshaled to JSON unless it already is JSON.
func (f *Formatter) Output(v interface{}) error {
	format, err := f.formatter()
	if err != nil {
		return err
	}
	raw, err := toJSON(v)
	if err != nil {
		return err
	}
	if raw, err = f.selectField(raw); err != nil {
		return err
	}
	out, err := f.writer()
	if err != nil {
		return err
	}
	defer out.Close() // nolint:errcheck
	return errors.Code(errors.ErrIO, format.Output(out, raw))
}

func toJSON(v interface{}) (json.RawMessage, error) {
	switch t := v.(type) {
	case json.RawMessage:
		return t, nil
	case []byte:
		return t, nil
	}
	raw, err := json.Marshal(v)
	return raw, errors.Code(errors.ErrData, err)
}

// selectField extracts the --field path from raw.
func (f *Formatter) selectField(raw json.RawMessage) (json.RawMessage, error) {
	if f.field == "" {
		return raw, nil
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Code(errors.ErrProtocol, err)
	}
	parts := strings.Split(f.field, ".")
	path := make([]interface{}, len(parts))
	for i, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			path[i] = n
			continue
		}
		path[i] = p
	}
	v, err := dyno.Get(doc, path...)
	if err != nil {
		return nil, errors.Codef(errors.ErrData, "field %q: %s", f.field, err)
	}
	return json.Marshal(v)
}

func (f *Formatter) formatter() (Format, error) {
	args := strings.SplitN(f.format, "=", 2) //nolint:gomnd
	name := args[0]
	format, ok := f.formats[name]
	if !ok {
		return nil, errors.Codef(errors.ErrUsage, "unrecognized output format option: %s", name)
	}
	if fmtArg, ok := format.(FormatArg); ok {
		if fmtArg.Required() && len(args) == 1 {
			return nil, errors.Codef(errors.ErrUsage, "format %s requires an argument", name)
		}
		if len(args) > 1 {
			if err := fmtArg.Arg(args[1]); err != nil {
				return nil, errors.Code(errors.ErrUsage, err)
			}
		}
	} else if len(args) > 1 {
		return nil, errors.Codef(errors.ErrUsage, "format %s takes no arguments", name)
	}
	return format, nil
}

func (f *Formatter) writer() (io.WriteCloser, error) {
	switch f.output {
	case "", "-":
		return ensureNewlineEnding(f.out), nil
	}
	file, err := f.createFile(f.output)
	if err != nil {
		return nil, errors.Code(errors.ErrCantCreate, err)
	}
	return ensureNewlineEnding(file), nil
}

func (f *Formatter) createFile(path string) (*os.File, error) {
	if f.overwrite {
		return os.Create(path)
	}
	return os.OpenFile(path, os.O_EXCL|os.O_CREATE|os.O_WRONLY, 0o666) //nolint:gomnd
}

func ensureNewlineEnding(w io.Writer) io.WriteCloser {
	return &addNewlineEnding{Writer: w}
}

type addNewlineEnding struct {
	io.Writer
	last byte
}

func (w *addNewlineEnding) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.last = p[len(p)-1]
	}
	return w.Writer.Write(p)
}

func (w *addNewlineEnding) Close() error {
	if w.last != '\n' {
		if _, err := w.Writer.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	if c, ok := w.Writer.(io.Closer); ok && w.Writer != os.Stdout {
		return c.Close()
	}
	return nil
}

// indent pretty-prints raw.
func indent(raw json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
