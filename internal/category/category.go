// Package category groups leads by the first populated category field and
// measures lead-to-deal conversion per group, and tallies booking areas by
// matching deal addresses against a known-location gazetteer.
package category

import (
	"math"
	"sort"
	"strings"

	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/match"
	"github.com/sells-group/crm-pulse/internal/window"
	"go.uber.org/zap"
)

// DefaultFields is the candidate category-field order, preferring
// service-type fields over generic lead source.
var DefaultFields = []string{
	"I_am_looking_for", "Service_Category_n", "Lead_Source",
	"Whatsapp_Category_Service", "sub_service_category",
	"Category", "Lead_Type", "Product", "Service",
}

// Uncategorized is the bucket for in-window leads whose chosen category
// field is empty.
const Uncategorized = "Uncategorized"

// conversionKeywords mark a lead's status text as already converted.
var conversionKeywords = []string{"converted", "won", "deal"}

// Conversion is one category's lead-to-deal conversion row.
type Conversion struct {
	Category          string  `json:"category"`
	Leads             int     `json:"leads"`
	Deals             int     `json:"deals"`
	ConversionPercent float64 `json:"conversionPercent"`
}

// Conversions groups in-window leads by the first candidate field with any
// populated value and counts conversions per group. A lead converts when
// its status text carries a conversion keyword, or its PhoneKey or name
// matches a deal created in the same window. Raw lead records are needed
// here because category fields are tenant-specific and not part of the
// canonical projection.
func Conversions(leads []crm.Record, deals []crm.Deal, fields []string, clock *window.Clock, lookbackDays int) []Conversion {
	if len(fields) == 0 {
		fields = DefaultFields
	}

	inWindow := make([]crm.Record, 0, len(leads))
	for _, l := range leads {
		if clock.WithinLastDays(l.Time("Created_Time"), lookbackDays) {
			inWindow = append(inWindow, l)
		}
	}

	chosen := ""
	for _, field := range fields {
		for _, l := range inWindow {
			if crm.Stringify(l[field]) != "" {
				chosen = field
				break
			}
		}
		if chosen != "" {
			break
		}
	}
	if chosen == "" {
		zap.L().Debug("category: no candidate field populated",
			zap.Strings("checked", fields))
		return nil
	}

	dealPhones := make(map[string]struct{})
	dealNames := make(map[string]struct{})
	for _, d := range deals {
		if !clock.WithinLastDays(d.CreatedAt, lookbackDays) {
			continue
		}
		if key := match.NormalizePhone(d.Phone); key != "" {
			dealPhones[key] = struct{}{}
		}
		if name := strings.ToLower(strings.TrimSpace(d.ContactName)); name != "" {
			dealNames[name] = struct{}{}
		}
	}

	type tally struct{ leads, deals int }
	groups := map[string]*tally{}
	for _, l := range inWindow {
		cat := crm.Stringify(l[chosen])
		if cat == "" {
			cat = Uncategorized
		}
		g := groups[cat]
		if g == nil {
			g = &tally{}
			groups[cat] = g
		}
		g.leads++

		status := strings.ToLower(l.Str("Lead_Status", "Status"))
		converted := false
		for _, kw := range conversionKeywords {
			if strings.Contains(status, kw) {
				converted = true
				break
			}
		}
		if !converted {
			if key := match.NormalizePhone(l.Str("Phone", "Mobile")); key != "" {
				_, converted = dealPhones[key]
			}
		}
		if !converted {
			name := strings.ToLower(strings.TrimSpace(l.Str("First_Name") + " " + l.Str("Last_Name")))
			if name != "" {
				_, converted = dealNames[name]
			}
		}
		if converted {
			g.deals++
		}
	}

	rows := make([]Conversion, 0, len(groups))
	for cat, g := range groups {
		rows = append(rows, Conversion{
			Category:          cat,
			Leads:             g.leads,
			Deals:             g.deals,
			ConversionPercent: pct(g.deals, g.leads),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Leads != rows[j].Leads {
			return rows[i].Leads > rows[j].Leads
		}
		return rows[i].Category < rows[j].Category
	})
	return rows
}

func pct(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*1000) / 10
}
