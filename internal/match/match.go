// Package match builds the weak-key join indices shared by the downstream
// aggregators: PhoneKey normalization, free-text phone extraction, and the
// phone/id lookup maps that correlate calls with leads. An Index is built
// once per snapshot and read-only afterwards.
package match

import (
	"regexp"
	"strings"

	"github.com/sells-group/crm-pulse/internal/crm"
)

// digitStripper removes everything but digits from a raw phone value.
var digitStripper = regexp.MustCompile(`\D`)

// subjectPhone matches phone-like tokens in free-text call subjects: a run
// of at least 8 characters drawn from digits, spaces, '+' and '-'. The last
// match in the string is taken as the most likely phone token.
var subjectPhone = regexp.MustCompile(`\+?\d[\d\s+-]{7,}`)

// NormalizePhone reduces a raw phone value to its PhoneKey: the rightmost
// 10 digits after stripping every non-digit. Returns "" when no digit
// remains; empty keys never participate in joins.
func NormalizePhone(raw string) string {
	digits := digitStripper.ReplaceAllString(raw, "")
	if digits == "" {
		return ""
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// ExtractPhoneFromSubject pulls the last phone-like token out of a
// free-text subject line and normalizes it. Returns "" when no token found.
func ExtractPhoneFromSubject(subject string) string {
	matches := subjectPhone.FindAllString(subject, -1)
	if len(matches) == 0 {
		return ""
	}
	return NormalizePhone(matches[len(matches)-1])
}

// CallPhone resolves the dialed PhoneKey of a call: structured fields
// first, then subject-line extraction.
func CallPhone(c crm.Call) string {
	if key := NormalizePhone(c.DialedPhone); key != "" {
		return key
	}
	return ExtractPhoneFromSubject(c.Subject)
}

// ContactKind classifies how often a phone has been seen.
type ContactKind string

const (
	ContactNew       ContactKind = "new"
	ContactReturning ContactKind = "returning"
	ContactRepeat    ContactKind = "repeat"
)

// KindForGroupSize maps a phone-group size to its contact classification:
// 1 = new, 2 = returning, 3+ = repeat.
func KindForGroupSize(n int) ContactKind {
	switch {
	case n <= 1:
		return ContactNew
	case n == 2:
		return ContactReturning
	default:
		return ContactRepeat
	}
}

// Index holds the read-only join indices for one snapshot invocation.
type Index struct {
	// PhoneToLeads groups leads sharing a PhoneKey, in input order.
	PhoneToLeads map[string][]crm.Lead
	// LeadByID and LeadByPhone give O(1) call-to-lead resolution. When
	// several leads share a key the last projected one wins, matching the
	// source-of-record's "most recently seen" semantics.
	LeadByID    map[string]crm.Lead
	LeadByPhone map[string]crm.Lead
	// CallPhones is the set of PhoneKeys seen on any call activity.
	CallPhones map[string]struct{}
}

// BuildIndex constructs the join indices from projected leads and calls.
func BuildIndex(leads []crm.Lead, calls []crm.Call) *Index {
	idx := &Index{
		PhoneToLeads: make(map[string][]crm.Lead),
		LeadByID:     make(map[string]crm.Lead, len(leads)),
		LeadByPhone:  make(map[string]crm.Lead),
		CallPhones:   make(map[string]struct{}),
	}
	for _, l := range leads {
		if l.ID != "" {
			idx.LeadByID[l.ID] = l
		}
		if l.NormalizedPhone == "" {
			continue
		}
		idx.PhoneToLeads[l.NormalizedPhone] = append(idx.PhoneToLeads[l.NormalizedPhone], l)
		idx.LeadByPhone[l.NormalizedPhone] = l
	}
	for _, c := range calls {
		if key := CallPhone(c); key != "" {
			idx.CallPhones[key] = struct{}{}
		}
	}
	return idx
}

// CallPhoneSet builds just the set of PhoneKeys dialed across raw call
// records, used during lead projection before the full index exists.
func CallPhoneSet(calls []crm.Call) map[string]struct{} {
	set := make(map[string]struct{})
	for _, c := range calls {
		if key := CallPhone(c); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

// ResolveLead correlates a call to a lead: explicit relation id first,
// PhoneKey second. ok is false when neither resolves; such calls are
// excluded from lead-joined aggregates rather than zero-filled.
func (idx *Index) ResolveLead(c crm.Call) (crm.Lead, bool) {
	if c.RelatedID != "" {
		if l, ok := idx.LeadByID[c.RelatedID]; ok {
			return l, true
		}
	}
	if key := CallPhone(c); key != "" {
		if l, ok := idx.LeadByPhone[key]; ok {
			return l, true
		}
	}
	return crm.Lead{}, false
}

// Kind classifies a lead's phone by how many leads share it.
func (idx *Index) Kind(l crm.Lead) ContactKind {
	if l.NormalizedPhone == "" {
		return ContactNew
	}
	return KindForGroupSize(len(idx.PhoneToLeads[l.NormalizedPhone]))
}

// StatusContains reports whether a lead's combined status text contains the
// given lowercase needle.
func StatusContains(l crm.Lead, needle string) bool {
	text := strings.ToLower(l.LeadStatus + " " + l.LeadSubStatus)
	return strings.Contains(text, needle)
}
