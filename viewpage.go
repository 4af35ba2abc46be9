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
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Directive tells a [ViewPage] what to do after a page has been delivered.
type Directive int

// Paging directives.
const (
	// Next fetches the page following the current one.
	Next Directive = iota
	// Previous fetches the page preceding the current one.
	Previous
	// Repeat fetches the current page again, with identical parameters.
	Repeat
	// Stop ends the paging session.
	Stop
)

var directiveNames = map[Directive]string{
	Next:     "next",
	Previous: "previous",
	Repeat:   "repeat",
	Stop:     "stop",
}

func (d Directive) String() string {
	if name, ok := directiveNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Directive(%d)", int(d))
}

// MarshalText satisfies the encoding.TextMarshaler interface.
func (d Directive) MarshalText() ([]byte, error) {
	if _, ok := directiveNames[d]; !ok {
		return nil, ErrUnsupportedDirective
	}
	return []byte(d.String()), nil
}

// UnmarshalText satisfies the encoding.TextUnmarshaler interface.
func (d *Directive) UnmarshalText(text []byte) error {
	parsed, err := ParseDirective(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDirective parses the name of a directive, as returned by
// [Directive.String].
func ParseDirective(s string) (Directive, error) {
	for d, name := range directiveNames {
		if strings.EqualFold(name, s) {
			return d, nil
		}
	}
	return 0, &Error{Status: ErrUnsupportedDirective.Status, Message: fmt.Sprintf("cloudant: unknown paging directive %q", s)}
}

// Page is a single page of view rows.
type Page struct {
	// Rows are the rows of the page, in view order. The sentinel row used to
	// detect further rows is never included.
	Rows []ViewRow

	TotalRows int64
	Offset    int64
	UpdateSeq json.RawMessage

	// Index is the position of the page relative to the first page of the
	// session, starting at 0.
	Index int

	// HasNext is true if rows are known to follow this page.
	HasNext bool

	// HasPrevious is true if [Previous] is permitted from this page.
	HasPrevious bool
}

// RowHandler is called once for every row of a page, in order, before the
// page is passed to the [PageHandler].
type RowHandler func(row *ViewRow)

// PageHandler receives each page, and a token from which paging may later
// be resumed. If the page could not be fetched, page and token are nil and
// err is set; only [Repeat] and [Stop] are permitted in that case.
type PageHandler func(page *Page, token *PageToken, err error) Directive

// ViewPage pages through the rows of a view. A ViewPage must not be run
// more than once at a time.
type ViewPage struct {
	Client *Client `validate:"required"`
	Query  ViewQuery

	// PageSize is the number of rows per page. If zero, DefaultPageSize is
	// used.
	PageSize int `validate:"gte=0"`

	RowHandler  RowHandler
	PageHandler PageHandler `validate:"required"`

	resume *resumePoint
}

type resumePoint struct {
	state     pageState
	directive Directive
}

// boundary identifies a row position in a view.
type boundary struct {
	Key   json.RawMessage `json:"key"`
	DocID string          `json:"id,omitempty"`
}

func rowBoundary(row ViewRow) *boundary {
	return &boundary{Key: row.Key, DocID: row.ID}
}

// pageRequest is what distinguishes one page fetch from another. The rest
// of the query is fixed for the session.
type pageRequest struct {
	Direction Directive `json:"direction"`
	Start     *boundary `json:"start,omitempty"`
	Skip      int       `json:"skip,omitempty"`
}

type pageState struct {
	// Request is the request that produced the current page.
	Request pageRequest `json:"request"`

	// Next is where the following page starts, if known. It is the
	// sentinel row of a forward fetch.
	Next *boundary `json:"next,omitempty"`

	// First and Last are the first and last rows of the current page.
	First *boundary `json:"first,omitempty"`
	Last  *boundary `json:"last,omitempty"`

	Index int `json:"index"`
}

type pageCursor struct {
	query    ViewQuery
	pageSize int
	state    pageState
}

// Run pages through the view until the page handler returns [Stop], or an
// error occurs. It returns nil if paging was stopped after a page was
// delivered, or the fetch error if paging was stopped after a failed fetch.
func (p *ViewPage) Run(ctx context.Context) error {
	if err := validateStruct(p); err != nil {
		return err
	}
	cur := &pageCursor{
		query:    p.Query,
		pageSize: p.PageSize,
		state:    pageState{Index: -1},
	}
	if cur.pageSize == 0 {
		cur.pageSize = DefaultPageSize
	}
	req, step := pageRequest{Direction: Next}, 1
	if p.resume != nil {
		if p.resume.directive == Stop {
			return nil
		}
		cur.state = p.resume.state
		var err error
		if req, step, err = cur.advance(p.resume.directive); err != nil {
			return err
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		op := cur.operation(req)
		if err := p.Client.Do(ctx, op); err != nil {
			switch p.PageHandler(nil, nil, err) {
			case Repeat:
				continue
			case Stop:
				return err
			default:
				return ErrUnsupportedDirective
			}
		}
		page := cur.deliver(req, step, op.Result())
		if p.RowHandler != nil {
			for i := range page.Rows {
				p.RowHandler(&page.Rows[i])
			}
		}
		d := p.PageHandler(page, cur.token(), nil)
		if d == Stop {
			return nil
		}
		var err error
		if req, step, err = cur.advance(d); err != nil {
			return err
		}
	}
}

// Start runs the paging session in the background. Cancelling the returned
// handle cancels the session.
func (p *ViewPage) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle()
	h.cancel = cancel
	go func() {
		defer cancel()
		h.finish(p.Run(ctx))
	}()
	return h
}

// advance derives the request for d from the current state. step is the
// change of page index to apply once the page is delivered.
func (c *pageCursor) advance(d Directive) (req pageRequest, step int, err error) {
	st := c.state
	switch d {
	case Next:
		switch {
		case st.Next != nil:
			return pageRequest{Direction: Next, Start: st.Next}, 1, nil
		case st.Last != nil:
			return pageRequest{Direction: Next, Start: st.Last, Skip: 1}, 1, nil
		}
		return pageRequest{Direction: Next}, 1, nil
	case Previous:
		if st.Index <= 0 || st.First == nil {
			return pageRequest{}, 0, ErrNoPreviousPage
		}
		return pageRequest{Direction: Previous, Start: st.First, Skip: 1}, -1, nil
	case Repeat:
		return st.Request, 0, nil
	}
	return pageRequest{}, 0, ErrUnsupportedDirective
}

// operation builds the view query for req.
func (c *pageCursor) operation(req pageRequest) *QueryView {
	q := c.query
	if req.Start != nil {
		q.StartKey, q.StartKeyDocID = req.Start.Key, req.Start.DocID
	}
	if req.Direction == Previous {
		inclusive := true
		q.EndKey, q.EndKeyDocID = nil, ""
		q.Descending = !c.query.Descending
		q.InclusiveEnd = &inclusive
	}
	reduce := false
	return &QueryView{
		ViewQuery: q,
		Limit:     c.pageSize + 1,
		Skip:      req.Skip,
		Reduce:    &reduce,
	}
}

// deliver strips the sentinel row from res, updates the boundary state and
// returns the page. An empty result leaves the position unchanged.
func (c *pageCursor) deliver(req pageRequest, step int, res *ViewResult) *Page {
	if res == nil {
		res = &ViewResult{}
	}
	page := &Page{
		TotalRows: res.TotalRows,
		Offset:    res.Offset,
		UpdateSeq: res.UpdateSeq,
	}
	c.state.Request = req
	rows := res.Rows
	if req.Direction == Previous {
		if len(rows) > c.pageSize {
			rows = rows[:c.pageSize]
		}
		rows = reverseRows(rows)
		if len(rows) > 0 {
			c.state.Next = req.Start
			page.HasNext = true
		}
	} else {
		if len(rows) > c.pageSize {
			c.state.Next = rowBoundary(rows[c.pageSize])
			rows = rows[:c.pageSize]
			page.HasNext = true
		} else if len(rows) > 0 {
			c.state.Next = nil
		}
	}
	if len(rows) > 0 {
		c.state.First = rowBoundary(rows[0])
		c.state.Last = rowBoundary(rows[len(rows)-1])
		c.state.Index += step
	}
	page.Rows = rows
	page.Index = c.state.position()
	page.HasPrevious = c.state.Index > 0
	return page
}

// position is the index of the current page. Until a row has been seen
// the session is on page 0.
func (st pageState) position() int {
	if st.Index < 0 {
		return 0
	}
	return st.Index
}

func reverseRows(rows []ViewRow) []ViewRow {
	out := make([]ViewRow, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row
	}
	return out
}

func (c *pageCursor) token() *PageToken {
	return &PageToken{
		Query:    c.query,
		PageSize: c.pageSize,
		state:    c.state,
	}
}
