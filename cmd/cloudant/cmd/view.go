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
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-kivik/cloudant"
	"github.com/go-kivik/cloudant/cmd/cloudant/errors"
)

type view struct {
	*root
	pageSize    int
	pages       int
	descending  bool
	startKey    string
	endKey      string
	includeDocs bool
	stale       string
	token       string
	direction   string
}

func viewCmd(r *root) *cobra.Command {
	v := &view{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "view [dsn]/[database]/_design/[ddoc]/_view/[view]",
		Short: "Page through the rows of a view",
		Long: `Fetch one or more pages of view rows.

Each page is printed with a token. Pass the token back with --token to
continue from that page, in the direction given by --direction.`,
		Args: cobra.MaximumNArgs(1),
		RunE: v.RunE,
	}
	f := cmd.Flags()
	f.IntVar(&v.pageSize, "page-size", cloudant.DefaultPageSize, "Rows per page")
	f.IntVar(&v.pages, "pages", 1, "Number of pages to fetch. 0 fetches every remaining page.")
	f.BoolVar(&v.descending, "descending", false, "Return rows in descending key order")
	f.StringVar(&v.startKey, "startkey", "", "JSON key of the first row")
	f.StringVar(&v.endKey, "endkey", "", "JSON key of the last row")
	f.BoolVar(&v.includeDocs, "include-docs", false, "Include the document of each row")
	f.StringVar(&v.stale, "stale", "", "Allow stale results: ok or update_after")
	f.StringVar(&v.token, "token", "", "Resume paging from a page token")
	f.StringVar(&v.direction, "direction", "next", "Paging direction: next, previous or repeat")
	return cmd
}

// pageOutput is the printed form of a page.
type pageOutput struct {
	Index       int                `json:"index"`
	TotalRows   int64              `json:"total_rows"`
	Offset      int64              `json:"offset"`
	Rows        []cloudant.ViewRow `json:"rows"`
	HasNext     bool               `json:"has_next"`
	HasPrevious bool               `json:"has_previous"`
	Token       string             `json:"token,omitempty"`
}

func (c *view) RunE(cmd *cobra.Command, args []string) error {
	direction, err := cloudant.ParseDirective(c.direction)
	if err != nil {
		return errors.WithCode(err, errors.ErrUsage)
	}
	if direction == cloudant.Stop {
		return errors.Code(errors.ErrUsage, "--direction stop fetches nothing")
	}
	if c.pages < 0 {
		return errors.Codef(errors.ErrUsage, "invalid page count: %d", c.pages)
	}
	t, err := c.target(args)
	if err != nil {
		return err
	}
	client, err := c.client(t)
	if err != nil {
		return err
	}
	defer client.Close() // nolint:errcheck

	var pages []pageOutput
	retries := c.retryCount
	handler := func(page *cloudant.Page, token *cloudant.PageToken, err error) cloudant.Directive {
		if err != nil {
			if transient(err) && retries != 0 {
				retries--
				c.log.Warnf("Transient problem: %s. Will retry.", err)
				return cloudant.Repeat
			}
			return cloudant.Stop
		}
		retries = c.retryCount
		pages = append(pages, pageOutput{
			Index:       page.Index,
			TotalRows:   page.TotalRows,
			Offset:      page.Offset,
			Rows:        page.Rows,
			HasNext:     page.HasNext,
			HasPrevious: page.HasPrevious,
			Token:       token.String(),
		})
		if c.pages > 0 && len(pages) >= c.pages {
			return cloudant.Stop
		}
		switch {
		case direction == cloudant.Next && !page.HasNext,
			direction == cloudant.Previous && !page.HasPrevious,
			direction == cloudant.Repeat && c.pages == 0:
			return cloudant.Stop
		}
		return direction
	}

	var vp *cloudant.ViewPage
	if c.token != "" {
		token, err := cloudant.ParsePageToken(c.token)
		if err != nil {
			return errors.WithCode(err, errors.ErrUsage)
		}
		c.log.Debugf("[view] Resuming %s/%s/%s from page %d", token.Query.DB, token.Query.DesignDoc, token.Query.View, token.Index())
		vp = cloudant.ResumeViewPage(client, token, direction, handler)
	} else {
		query, err := c.query(t.DB, t.DocID)
		if err != nil {
			return err
		}
		c.log.Debugf("[view] Will page through %s/_design/%s/_view/%s", query.DB, query.DesignDoc, query.View)
		vp = &cloudant.ViewPage{
			Client:      client,
			Query:       *query,
			PageSize:    c.pageSize,
			PageHandler: handler,
		}
	}
	if err := vp.Run(cmd.Context()); err != nil {
		return err
	}
	if len(pages) == 1 {
		return c.fmt.Output(pages[0])
	}
	return c.fmt.Output(pages)
}

func (c *view) query(db, path string) (*cloudant.ViewQuery, error) {
	if db == "" {
		return nil, errors.Code(errors.ErrUsage, "database required")
	}
	ddoc, name, err := splitViewPath(path)
	if err != nil {
		return nil, err
	}
	q := &cloudant.ViewQuery{
		DB:          db,
		DesignDoc:   ddoc,
		View:        name,
		Descending:  c.descending,
		IncludeDocs: c.includeDocs,
		Stale:       c.stale,
	}
	if q.StartKey, err = jsonFlag("startkey", c.startKey); err != nil {
		return nil, err
	}
	if q.EndKey, err = jsonFlag("endkey", c.endKey); err != nil {
		return nil, err
	}
	return q, nil
}

// splitViewPath accepts _design/ddoc/_view/name, or the short form
// ddoc/name.
func splitViewPath(path string) (ddoc, name string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 4 && parts[0] == "_design" && parts[2] == "_view": // nolint:gomnd
		ddoc, name = parts[1], parts[3]
	case len(parts) == 2: // nolint:gomnd
		ddoc, name = parts[0], parts[1]
	}
	if ddoc == "" || name == "" {
		return "", "", errors.Code(errors.ErrUsage, "view path required: [database]/_design/[ddoc]/_view/[view]")
	}
	return ddoc, name, nil
}

func jsonFlag(name, value string) (interface{}, error) {
	if value == "" {
		return nil, nil
	}
	if !json.Valid([]byte(value)) {
		return nil, errors.Codef(errors.ErrUsage, "--%s: invalid JSON", name)
	}
	return json.RawMessage(value), nil
}
