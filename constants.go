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

import "github.com/go-kivik/cloudant/chttp"

// Version is the version of the library.
const Version = chttp.Version

// SessionCookieName is the name of the CouchDB session cookie.
const SessionCookieName = chttp.SessionCookieName

// DefaultPageSize is the page size of a [ViewPage] when none is set.
const DefaultPageSize = 25

// DefaultMaxConcurrency is the number of operations a [Client] executes at
// once, unless changed with [OptionMaxConcurrency].
const DefaultMaxConcurrency = 4

// EndKeySuffix is a high Unicode character (0xfff0) useful for appending to an
// endkey argument, when doing a ranged search, as described [here].
//
// [here]: http://couchdb.readthedocs.io/en/latest/ddocs/views/collation.html#string-ranges
const EndKeySuffix = string(rune(0xfff0))
