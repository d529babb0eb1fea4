package category

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crm-pulse/internal/crm"
)

// Gazetteer matches free-text addresses against a curated list of place
// names. Longer names are tried first so "Sarjapur Road" beats "Sarjapur",
// and matches require whole-word boundaries.
type Gazetteer struct {
	names    []string
	patterns []*regexp.Regexp
}

// NewGazetteer compiles a gazetteer from place names.
func NewGazetteer(names []string) *Gazetteer {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	g := &Gazetteer{names: sorted, patterns: make([]*regexp.Regexp, len(sorted))}
	for i, name := range sorted {
		g.patterns[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
	}
	return g
}

// LoadGazetteer reads a YAML file of the form `areas: [name, ...]`.
func LoadGazetteer(path string) (*Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "category: read gazetteer %s", path)
	}
	var doc struct {
		Areas []string `yaml:"areas"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "category: parse gazetteer")
	}
	if len(doc.Areas) == 0 {
		return nil, eris.Errorf("category: gazetteer %s lists no areas", path)
	}
	return NewGazetteer(doc.Areas), nil
}

// Match returns the first (longest) place name found in the address, or ""
// when nothing matches.
func (g *Gazetteer) Match(address string) string {
	if strings.TrimSpace(address) == "" {
		return ""
	}
	for i, p := range g.patterns {
		if p.MatchString(address) {
			return g.names[i]
		}
	}
	return ""
}

// Area is one ranked booking-area row.
type Area struct {
	Rank     int    `json:"rank"`
	Area     string `json:"area"`
	Bookings int    `json:"bookings"`
}

// TopAreas tallies gazetteer matches over deal street addresses and
// returns the top-n most frequent, ranked from 1.
func (g *Gazetteer) TopAreas(deals []crm.Deal, n int) []Area {
	counts := map[string]int{}
	for _, d := range deals {
		if area := g.Match(d.Street); area != "" {
			counts[area]++
		}
	}
	rows := make([]Area, 0, len(counts))
	for area, bookings := range counts {
		rows = append(rows, Area{Area: area, Bookings: bookings})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Bookings != rows[j].Bookings {
			return rows[i].Bookings > rows[j].Bookings
		}
		return rows[i].Area < rows[j].Area
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

var (
	defaultGazetteer     *Gazetteer
	defaultGazetteerOnce sync.Once
)

// DefaultGazetteer returns the built-in Bengaluru area list.
func DefaultGazetteer() *Gazetteer {
	defaultGazetteerOnce.Do(func() {
		defaultGazetteer = NewGazetteer(defaultAreas)
	})
	return defaultGazetteer
}

// defaultAreas is the curated service-area list. Heuristic and
// locale-specific; overridable via a YAML gazetteer file.
var defaultAreas = []string{
	"Ramagondanahalli", "Basaveshwaranagar", "Somasundarapalya", "CV Raman Nagar",
	"Ramamurthy Nagar", "Kumaraswamy Layout", "Rajarajeshwari Nagar",
	"Kadubeesanahalli", "Vidyaranyapura", "Old Airport Road", "Outer Ring Road",
	"Kanakapura Road", "Sarjapura Road", "Sarjapur Road", "Old Madras Road",
	"Electronic City", "Sahakara Nagar", "Kasavanahalli", "Doddanekundi",
	"Bommanahalli", "Bannerghatta", "Banashankari", "Basavanagudi", "Murugeshpalya",
	"Kaggadasapura", "Dommasandra", "Kundalahalli", "Thanisandra", "Devanahalli",
	"Brookefield", "Bellary Road", "Magadi Road", "Tumkur Road", "Mysore Road",
	"Hosur Road", "Hosa Road", "Haralur Road", "Kudlu Gate", "Silk Board",
	"Marathahalli", "Mahadevapura", "Whitefield", "HSR Layout", "BTM Layout",
	"Indiranagar", "Koramangala", "Bellandur", "Yelahanka", "Jayanagar",
	"JP Nagar", "RT Nagar", "RR Nagar", "Rajajinagar", "Malleshwaram",
	"Vijayanagar", "Yeshwanthpur", "Uttarahalli", "Nagarbhavi",
	"Puttenahalli", "Kanakapura", "Chandapura", "Bommasandra",
	"Carmelaram", "Choodasandra", "Immadihalli", "Seegehalli",
	"HAL Layout", "Horamavu", "Sarjapur", "Haralur", "Kadugodi",
	"Panathur", "Hebbal", "Varthur", "Hennur", "Bagalur",
	"Hoskote", "Attibele", "Anekal", "Mandur", "Medahalli", "Virgonagar",
	"Budigere", "Nagavara", "Manyata", "Gunjur", "Peenya",
	"Kengeri", "Dasarahalli", "Madiwala", "Gottigere", "Hulimavu",
	"Arekere", "Ambalipura", "Kogilu", "Jakkur", "Iblur", "Agara",
	"Domlur", "KR Puram", "Hoodi", "Kudlu", "Begur", "ITPL",
}
