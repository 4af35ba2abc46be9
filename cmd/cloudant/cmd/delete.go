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

type del struct {
	*root
	rev   string
	force bool
}

func deleteCmd(r *root) *cobra.Command {
	d := &del{
		root: r,
	}
	cmd := &cobra.Command{
		Use:     "delete [dsn]/[database]/[document]",
		Aliases: []string{"del", "rm"},
		Short:   "Delete a document or database",
		Long: `Delete a document with the HTTP DELETE verb.

Without --rev, the current revision is fetched first. When only a database
is named, the database is deleted, which requires --force.`,
		Args: cobra.MaximumNArgs(1),
		RunE: d.RunE,
	}
	f := cmd.Flags()
	f.StringVarP(&d.rev, "rev", "r", "", "Revision to delete")
	f.BoolVar(&d.force, "force", false, "Permit deleting a database")
	return cmd
}

func (c *del) RunE(cmd *cobra.Command, args []string) error {
	t, err := c.target(args)
	if err != nil {
		return err
	}
	if t.DB == "" {
		return errors.Code(errors.ErrUsage, "database required")
	}
	if t.DocID == "" && !c.force {
		return errors.Codef(errors.ErrUsage, "refusing to delete database %q without --force", t.DB)
	}
	client, err := c.client(t)
	if err != nil {
		return err
	}
	defer client.Close() // nolint:errcheck
	ctx := cmd.Context()
	if t.DocID == "" {
		c.log.Debugf("[delete] Will delete database: %s", t.DB)
		if err := c.do(ctx, client, &cloudant.DeleteDatabase{Name: t.DB}); err != nil {
			return err
		}
		return c.fmt.Output(map[string]bool{"ok": true})
	}
	rev := c.rev
	if rev == "" {
		get := &cloudant.GetDocument{DB: t.DB, DocID: t.DocID}
		if err := c.do(ctx, client, get); err != nil {
			return err
		}
		rev = get.DocRev()
		c.log.Debugf("[delete] Current revision of %s/%s is %s", t.DB, t.DocID, rev)
	}
	op := &cloudant.DeleteDocument{DB: t.DB, DocID: t.DocID, Rev: rev}
	if err := c.do(ctx, client, op); err != nil {
		return err
	}
	return c.fmt.Output(op.Result())
}
