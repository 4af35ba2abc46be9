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

package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-kivik/cloudant"
	"github.com/go-kivik/cloudant/cmd/cloudant/errors"
)

type createIndex struct {
	*root
	fields    []string
	name      string
	ddoc      string
	indexType string
	analyzer  string
}

func createIndexCmd(r *root) *cobra.Command {
	c := &createIndex{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "create-index [dsn]/[database]",
		Short: "Create a query index",
		Long: `Create a Cloudant Query index.

JSON index fields are given as name or name:asc|desc. Text index fields
are given as name:string|number|boolean; with none, every field is
indexed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.RunE,
	}
	f := cmd.Flags()
	f.StringSliceVar(&c.fields, "field", nil, "Field to index. May be repeated.")
	f.StringVar(&c.name, "name", "", "Index name")
	f.StringVar(&c.ddoc, "ddoc", "", "Design document to hold the index")
	f.StringVar(&c.indexType, "type", "json", "Index type: json or text")
	f.StringVar(&c.analyzer, "analyzer", "", "Default field analyzer of a text index")
	return cmd
}

func (c *createIndex) RunE(cmd *cobra.Command, args []string) error {
	t, err := c.target(args)
	if err != nil {
		return err
	}
	if t.DB == "" || t.DocID != "" {
		return errors.Code(errors.ErrUsage, "database required")
	}
	op, err := c.operation(t.DB)
	if err != nil {
		return err
	}
	client, err := c.client(t)
	if err != nil {
		return err
	}
	defer client.Close() // nolint:errcheck
	if err := c.do(cmd.Context(), client, op); err != nil {
		return err
	}
	switch o := op.(type) {
	case *cloudant.CreateJSONIndex:
		return c.fmt.Output(o.Result())
	case *cloudant.CreateTextIndex:
		return c.fmt.Output(o.Result())
	}
	return nil
}

func (c *createIndex) operation(db string) (cloudant.Operation, error) {
	switch c.indexType {
	case "json":
		op := &cloudant.CreateJSONIndex{DB: db, Name: c.name, DesignDoc: c.ddoc}
		for _, field := range c.fields {
			name, dir, _ := strings.Cut(field, ":")
			op.Fields = append(op.Fields, cloudant.SortField{Name: name, Direction: dir})
		}
		return op, nil
	case "text":
		op := &cloudant.CreateTextIndex{DB: db, Name: c.name, DesignDoc: c.ddoc}
		for _, field := range c.fields {
			name, typ, _ := strings.Cut(field, ":")
			op.Fields = append(op.Fields, cloudant.TextField{Name: name, Type: typ})
		}
		if c.analyzer != "" {
			op.DefaultField = &cloudant.TextIndexDefaultField{Analyzer: c.analyzer}
		}
		return op, nil
	}
	return nil, errors.Codef(errors.ErrUsage, "unsupported index type: %s", c.indexType)
}
