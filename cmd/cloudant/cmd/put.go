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
	"github.com/spf13/cobra"

	"github.com/go-kivik/cloudant"
	"github.com/go-kivik/cloudant/cmd/cloudant/errors"
)

type put struct {
	*root
	rev         string
	partitioned bool
	shards      int
}

func putCmd(r *root) *cobra.Command {
	p := &put{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "put [dsn]/[database]/[document]",
		Short: "Create or update a document, or create a database",
		Long: `Create or update a document with the HTTP PUT verb.

When only a database is named, the database is created.`,
		Args: cobra.MaximumNArgs(1),
		RunE: p.RunE,
	}
	f := cmd.Flags()
	r.input.ConfigFlags(f)
	f.StringVarP(&p.rev, "rev", "r", "", "Revision being replaced")
	f.BoolVar(&p.partitioned, "partitioned", false, "Create a partitioned database")
	f.IntVarP(&p.shards, "shards", "q", 0, "Number of shards of a new database")
	return cmd
}

func (c *put) RunE(cmd *cobra.Command, args []string) error {
	t, err := c.target(args)
	if err != nil {
		return err
	}
	if t.DB == "" {
		return errors.Code(errors.ErrUsage, "database required")
	}
	client, err := c.client(t)
	if err != nil {
		return err
	}
	defer client.Close() // nolint:errcheck
	if t.DocID == "" {
		c.log.Debugf("[put] Will create database: %s", t.DB)
		if err := c.do(cmd.Context(), client, &cloudant.CreateDatabase{
			Name:        t.DB,
			Partitioned: c.partitioned,
			Shards:      c.shards,
		}); err != nil {
			return err
		}
		return c.fmt.Output(map[string]bool{"ok": true})
	}
	doc, err := c.input.JSONData()
	if err != nil {
		return err
	}
	c.log.Debugf("[put] Will put document: %s/%s", t.DB, t.DocID)
	op := &cloudant.PutDocument{
		DB:    t.DB,
		DocID: t.DocID,
		Doc:   doc,
		Rev:   c.rev,
	}
	if err := c.do(cmd.Context(), client, op); err != nil {
		return err
	}
	return c.fmt.Output(op.Result())
}
