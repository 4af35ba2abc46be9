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

package couchtest

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Und)
)

func compareString(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}

const (
	typeNull = iota
	typeFalse
	typeTrue
	typeNumber
	typeString
	typeArray
	typeObject
)

func typeOf(v interface{}) int {
	switch t := v.(type) {
	case nil:
		return typeNull
	case bool:
		if t {
			return typeTrue
		}
		return typeFalse
	case json.Number, float64:
		return typeNumber
	case string:
		return typeString
	case []interface{}:
		return typeArray
	}
	return typeObject
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	}
	return 0
}

// compareValues compares two decoded JSON values using view collation:
// null, false, true, numbers, strings, arrays, then objects.
func compareValues(a, b interface{}) int {
	at, bt := typeOf(a), typeOf(b)
	if at != bt {
		if at < bt {
			return -1
		}
		return 1
	}
	switch at {
	case typeNumber:
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case typeString:
		return compareString(a.(string), b.(string))
	case typeArray:
		aa, ba := a.([]interface{}), b.([]interface{})
		for i := 0; i < len(aa) && i < len(ba); i++ {
			if c := compareValues(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		return compareInt(len(aa), len(ba))
	case typeObject:
		ao, bo := a.(map[string]interface{}), b.(map[string]interface{})
		ak, bk := sortedKeys(ao), sortedKeys(bo)
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := compareString(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := compareValues(ao[ak[i]], bo[bk[i]]); c != 0 {
				return c
			}
		}
		return compareInt(len(ak), len(bk))
	}
	return 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Object member order is not preserved by map decoding, so members are
// compared in key order.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return compareString(keys[i], keys[j]) < 0
	})
	return keys
}

func decodeKey(raw []byte) (interface{}, error) {
	var v interface{}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
