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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-kivik/cloudant"
	"github.com/go-kivik/cloudant/cmd/cloudant/errors"
)

type bulk struct {
	*root
	noNewEdits   bool
	allOrNothing bool
}

func bulkCmd(r *root) *cobra.Command {
	b := &bulk{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "bulk [dsn]/[database]",
		Short: "Write several documents at once",
		Long: `Write several documents in a single _bulk_docs request.

The input is an array of documents, or an object with a docs member. The
exit status is non-zero if any document failed to be written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: b.RunE,
	}
	f := cmd.Flags()
	r.input.ConfigFlags(f)
	f.BoolVar(&b.noNewEdits, "replicate", false, "Store the given revisions as-is (new_edits=false)")
	f.BoolVar(&b.allOrNothing, "all-or-nothing", false, "Commit all documents, or none")
	return cmd
}

func (c *bulk) RunE(cmd *cobra.Command, args []string) error {
	t, err := c.target(args)
	if err != nil {
		return err
	}
	if t.DB == "" || t.DocID != "" {
		return errors.Code(errors.ErrUsage, "database required")
	}
	docs, err := c.input.Docs()
	if err != nil {
		return err
	}
	client, err := c.client(t)
	if err != nil {
		return err
	}
	defer client.Close() // nolint:errcheck
	op := &cloudant.BulkDocs{
		DB:           t.DB,
		Docs:         docs,
		AllOrNothing: c.allOrNothing,
	}
	if c.noNewEdits {
		newEdits := false
		op.NewEdits = &newEdits
	}
	c.log.Debugf("[bulk] Will write %d documents to %s", len(docs), t.DB)
	if err := c.do(cmd.Context(), client, op); err != nil {
		return err
	}
	results := op.Results()
	if err := c.fmt.Output(results); err != nil {
		return err
	}
	for _, res := range results {
		if err := res.UpdateErr(); err != nil {
			return fmt.Errorf("%s: %w", res.ID, err)
		}
	}
	return nil
}
