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

/*
Package cloudant is a client for CouchDB and Cloudant style document
databases.

Requests are described by values implementing [Operation], which are
validated and serialized when handed to [Client.Add], then executed
concurrently on a bounded queue. Every HTTP exchange passes through the
interceptor chain of the [github.com/go-kivik/cloudant/chttp] package, which
may re-issue a request when a response interceptor asks for it.

# Paging

[ViewPage] walks the rows of a view one page at a time. The page handler
decides, after every page, whether to fetch the next page, the previous
page, the same page again, or to stop:

	page := &cloudant.ViewPage{
		Client:   client,
		Query:    cloudant.ViewQuery{DB: "animals", DesignDoc: "ddoc", View: "by_name"},
		PageSize: 10,
		PageHandler: func(p *cloudant.Page, _ *cloudant.PageToken, err error) cloudant.Directive {
			if err != nil {
				return cloudant.Stop
			}
			for _, row := range p.Rows {
				fmt.Println(row.ID)
			}
			return cloudant.Next
		},
	}
	err := page.Run(context.Background())

The engine fetches one row more than the page size. The extra row is never
shown to the handler; its key and document ID become the start of the
following page.
*/
package cloudant
