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

type get struct {
	*root
	rev       string
	conflicts bool
	revs      bool
}

func getCmd(r *root) *cobra.Command {
	g := &get{
		root: r,
	}
	cmd := &cobra.Command{
		Use:     "get [dsn]/[database]/[document]",
		Aliases: []string{"doc"},
		Short:   "Get a document",
		Long:    `Fetch a document with the HTTP GET verb`,
		Args:    cobra.MaximumNArgs(1),
		RunE:    g.RunE,
	}
	f := cmd.Flags()
	f.StringVarP(&g.rev, "rev", "r", "", "Fetch the named revision")
	f.BoolVar(&g.conflicts, "conflicts", false, "Include conflicting revisions")
	f.BoolVar(&g.revs, "revs", false, "Include the revision history")
	return cmd
}

func (c *get) RunE(cmd *cobra.Command, args []string) error {
	t, err := c.target(args)
	if err != nil {
		return err
	}
	if t.DB == "" || t.DocID == "" {
		return errors.Code(errors.ErrUsage, "database and document ID required")
	}
	client, err := c.client(t)
	if err != nil {
		return err
	}
	defer client.Close() // nolint:errcheck
	c.log.Debugf("[get] Will fetch document: %s/%s", t.DB, t.DocID)
	op := &cloudant.GetDocument{
		DB:        t.DB,
		DocID:     t.DocID,
		Rev:       c.rev,
		Conflicts: c.conflicts,
		Revs:      c.revs,
	}
	if err := c.do(cmd.Context(), client, op); err != nil {
		return err
	}
	return c.fmt.Output(op.Doc())
}
