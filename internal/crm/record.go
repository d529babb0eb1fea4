// Package crm models raw CRM records and their projection into canonical
// shapes. Raw records arrive as loosely-typed JSON maps whose field names
// vary between CRM modules and tenant customizations, so every access goes
// through a prioritized-field lookup with a documented default instead of a
// per-call conditional chain.
package crm

import (
	"strconv"
	"strings"
	"time"
)

// UnassignedOwner is the sentinel used when a record carries no owner.
const UnassignedOwner = "--"

// Record is one raw CRM record as decoded from the API payload.
type Record map[string]any

// FirstPresent returns the first non-nil, non-empty value among the named
// fields, or nil when none is populated.
func (r Record) FirstPresent(keys ...string) any {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v
	}
	return nil
}

// Str returns the first populated field rendered as a trimmed string.
// Array values are joined with ", " (Zoho multi-select fields).
func (r Record) Str(keys ...string) string {
	return Stringify(r.FirstPresent(keys...))
}

// Num returns the first populated field as a float64, or def when the
// value is absent or not numeric.
func (r Record) Num(def float64, keys ...string) float64 {
	v := r.FirstPresent(keys...)
	if v == nil {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return def
}

// Time parses the first populated field as a timestamp. Unparseable or
// missing values yield the zero time, which every window predicate treats
// as "not matching".
func (r Record) Time(keys ...string) time.Time {
	v := r.FirstPresent(keys...)
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	return ParseTime(s)
}

// OwnerName extracts the display name from a nested Owner object, accepting
// a bare string as well. Records without an owner map to UnassignedOwner.
func (r Record) OwnerName() string {
	switch owner := r["Owner"].(type) {
	case map[string]any:
		if name, ok := owner["name"].(string); ok && name != "" {
			return name
		}
	case string:
		if owner != "" {
			return owner
		}
	}
	return UnassignedOwner
}

// ID returns the record's CRM id, checking both spellings Zoho uses.
func (r Record) ID() string {
	return r.Str("id", "Id")
}

// RelatedID returns the id of the What_Id/Who_Id relation on an activity
// record, or "" when the call is not linked to another module record.
func (r Record) RelatedID() string {
	for _, key := range []string{"What_Id", "Who_Id"} {
		if rel, ok := r[key].(map[string]any); ok {
			if id, ok := rel["id"].(string); ok && id != "" {
				return id
			}
		}
	}
	return ""
}

// Stringify renders an arbitrary field value as a display string.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := Stringify(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		// Lookup objects like {"name": ..., "id": ...} display as their name.
		if name, ok := t["name"].(string); ok {
			return strings.TrimSpace(name)
		}
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// timeFormats lists accepted timestamp layouts, most common first.
var timeFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a CRM timestamp string. Returns the zero time when the
// value is empty or matches no known layout.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
