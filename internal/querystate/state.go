// Package querystate holds the pagination, sort and filter state of a list
// view and its mirror in the "search" URL parameter.
package querystate

import (
	"bytes"
	"encoding/json"
	"math"
	"net/url"
	"strconv"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Param is the URL query parameter carrying the encoded state.
const Param = "search"

const (
	DefaultPage    = 1
	DefaultPerPage = 50
)

// PerPageChoices are the page sizes offered by the list views.
var PerPageChoices = []int{1, 10, 20, 50, 100, 200}

// Sort directions.
const (
	Asc  = "asc"
	Desc = "desc"
)

type Sort struct {
	Ref string `json:"ref"`
	Dir string `json:"dir"`
}

type Filter struct {
	Ref string `json:"ref"`
	Op  string `json:"op"`
	Val string `json:"val"`
}

// State is the view state of one list.
type State struct {
	Page    int      `json:"page"`
	PerPage int      `json:"perPage"`
	Sort    *Sort    `json:"sort,omitempty"`
	Filters []Filter `json:"filters"`
}

// Default returns {page:1, perPage:50, filters:[]}.
func Default() State {
	return State{Page: DefaultPage, PerPage: DefaultPerPage, Filters: []Filter{}}
}

var equalOpts = cmp.Options{cmpopts.EquateEmpty()}

// Equal compares states structurally; nil and empty filter lists are equal.
func Equal(a, b State) bool {
	return cmp.Equal(a, b, equalOpts)
}

// Encode serialises s as the JSON carried in the URL.
func Encode(s State) string {
	if s.Filters == nil {
		s.Filters = []Filter{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}

// Decode parses the URL parameter. Missing or malformed input yields
// Default(); a partially valid object is repaired field by field.
func Decode(raw string) State {
	state := Default()
	if raw == "" {
		return state
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return state
	}
	if n, ok := positiveInt(obj["page"]); ok {
		state.Page = n
	}
	if n, ok := positiveInt(obj["perPage"]); ok {
		state.PerPage = n
	}
	state.Sort = decodeSort(obj["sort"])
	state.Filters = decodeFilters(obj["filters"])
	return state
}

func positiveInt(raw json.RawMessage) (int, bool) {
	var f float64
	if len(raw) == 0 || json.Unmarshal(raw, &f) != nil {
		return 0, false
	}
	if f < 1 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func decodeSort(raw json.RawMessage) *Sort {
	if len(raw) == 0 {
		return nil
	}
	var s Sort
	if err := json.Unmarshal(raw, &s); err != nil || s.Ref == "" {
		return nil
	}
	if s.Dir != Asc && s.Dir != Desc {
		return nil
	}
	return &s
}

func decodeFilters(raw json.RawMessage) []Filter {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return []Filter{}
	}
	filters := make([]Filter, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if json.Unmarshal(item, &fields) != nil || fields == nil {
			continue
		}
		f := Filter{Ref: text(fields["ref"]), Op: text(fields["op"]), Val: text(fields["val"])}
		if f.Ref == "" || f.Op == "" {
			continue
		}
		filters = append(filters, f)
	}
	return filters
}

// text accepts strings, numbers and booleans.
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return string(raw)
}

// FromValues decodes the state from URL query values.
func FromValues(v url.Values) State {
	return Decode(v.Get(Param))
}

// Values encodes the state as URL query values.
func (s State) Values() url.Values {
	return url.Values{Param: {Encode(s)}}
}

// BackendQuery serialises the state for the backend list endpoint:
// page, per_page, sort=ref;dir and one filter=ref;op;val per filter.
func (s State) BackendQuery() url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(s.Page))
	q.Set("per_page", strconv.Itoa(s.PerPage))
	if s.Sort != nil {
		q.Set("sort", s.Sort.Ref+";"+s.Sort.Dir)
	}
	for _, f := range s.Filters {
		q.Add("filter", f.Ref+";"+f.Op+";"+f.Val)
	}
	return q
}

// NextSort is the sort applied when a column's sort toggle is clicked:
// ascending first, then flipping.
func NextSort(ref, current string) Sort {
	if current == Asc {
		return Sort{Ref: ref, Dir: Desc}
	}
	return Sort{Ref: ref, Dir: Asc}
}
