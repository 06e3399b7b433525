package retrieval

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Attribute is a named, typed value used both as an outbound query parameter
// and as a persisted field on a service request. Supported value types are
// string, int, float64, time.Time and []string.
type Attribute struct {
	Name        string
	QueryName   string
	Value       interface{}
	Format      string // timestamp layout, required for time.Time values
	Description string
}

// NewAttribute builds an attribute whose query name equals its name.
func NewAttribute(name string, value interface{}) Attribute {
	return Attribute{Name: name, QueryName: name, Value: value}
}

// NewQueryAttribute builds an attribute with a distinct provider-side
// parameter name.
func NewQueryAttribute(name string, value interface{}, queryName string) Attribute {
	return Attribute{Name: name, QueryName: queryName, Value: value}
}

// NewTimeAttribute builds a timestamp attribute carrying its wire layout.
func NewTimeAttribute(name string, value time.Time, queryName, layout string) Attribute {
	if queryName == "" {
		queryName = name
	}
	return Attribute{Name: name, QueryName: queryName, Value: value, Format: layout}
}

// Equal reports whether two attributes agree on name and value. Query names,
// formats and descriptions do not participate in equality.
func (a Attribute) Equal(other Attribute) bool {
	if a.Name != other.Name {
		return false
	}
	switch v := a.Value.(type) {
	case time.Time:
		w, ok := other.Value.(time.Time)
		return ok && v.Equal(w)
	case []string:
		w, ok := other.Value.([]string)
		if !ok || len(v) != len(w) {
			return false
		}
		for i := range v {
			if v[i] != w[i] {
				return false
			}
		}
		return true
	default:
		return a.Value == other.Value
	}
}

// HasName is the membership-test convenience: an attribute matches a bare
// name string when the names agree.
func (a Attribute) HasName(name string) bool {
	return a.Name == name
}

// WireValue renders the value the way the provider expects it: lists join
// with commas in order, timestamps use the attribute's layout, everything
// else uses its natural textual form.
func (a Attribute) WireValue() string {
	switch v := a.Value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		layout := a.Format
		if layout == "" {
			layout = time.RFC3339
		}
		return v.Format(layout)
	case []string:
		return strings.Join(v, ",")
	default:
		return fmt.Sprint(v)
	}
}

// Merge combines a default attribute set with caller overrides. Defaults not
// shadowed by an override survive in their original order, followed by every
// override verbatim in input order. Pure: neither input is modified.
func Merge(defaults, overrides []Attribute) []Attribute {
	merged := make([]Attribute, 0, len(defaults)+len(overrides))
	for _, d := range defaults {
		shadowed := false
		for _, o := range overrides {
			if o.Name == d.Name {
				shadowed = true
				break
			}
		}
		if !shadowed {
			merged = append(merged, d)
		}
	}
	return append(merged, overrides...)
}

// Find returns the attribute with the given name, if present.
func Find(attrs []Attribute, name string) (Attribute, bool) {
	for _, a := range attrs {
		if a.HasName(name) {
			return a, true
		}
	}
	return Attribute{}, false
}

// Replace swaps the attribute with the matching name for attr, appending it
// when no attribute has that name yet.
func Replace(attrs []Attribute, attr Attribute) []Attribute {
	out := make([]Attribute, len(attrs))
	copy(out, attrs)
	for i, a := range out {
		if a.HasName(attr.Name) {
			out[i] = attr
			return out
		}
	}
	return append(out, attr)
}

// QueryParams renders an attribute set as URL query parameters keyed by the
// provider-side query names.
func QueryParams(attrs []Attribute) url.Values {
	params := url.Values{}
	for _, a := range attrs {
		params.Set(a.QueryName, a.WireValue())
	}
	return params
}
