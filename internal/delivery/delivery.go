// Package delivery holds the district and location delivery rate table used when placing orders.
package delivery

import (
	_ "embed"
	"regexp"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// DefaultRate is charged when a location has no rate on file.
const DefaultRate = 100.0

//go:embed rates.json
var ratesJSON []byte

// popularDistricts are offered first when asking for a delivery district.
var popularDistricts = []string{
	"Kathmandu", "Lalitpur", "Bhaktapur", "Chitwan", "Kaski",
	"Morang", "Jhapa", "Rupandehi", "Sunsari", "Parsa",
}

// Entry is the delivery rate for one location.
type Entry struct {
	District string  `json:"district"`
	Location string  `json:"location"`
	Rate     float64 `json:"rate"`
}

// Table is an immutable list of delivery rates.
type Table struct {
	entries   []Entry
	districts []string
}

// New builds a table from entries. District order follows first appearance.
func New(entries []Entry) *Table {
	t := &Table{entries: entries}
	seen := make(map[string]bool)
	for _, e := range entries {
		if !seen[e.District] {
			seen[e.District] = true
			t.districts = append(t.districts, e.District)
		}
	}
	return t
}

// Parse reads a JSON array of {district, location, rate} objects.
func Parse(data []byte) *Table {
	var entries []Entry
	gjson.ParseBytes(data).ForEach(func(_, v gjson.Result) bool {
		entries = append(entries, Entry{
			District: v.Get("district").String(),
			Location: v.Get("location").String(),
			Rate:     v.Get("rate").Float(),
		})
		return true
	})
	return New(entries)
}

var defaultTable = sync.OnceValue(func() *Table { return Parse(ratesJSON) })

// Default returns the table embedded in the binary.
func Default() *Table {
	return defaultTable()
}

// Entries returns every rate entry.
func (t *Table) Entries() []Entry {
	return t.entries
}

// Districts returns the district names.
func (t *Table) Districts() []string {
	return t.districts
}

// Popular returns the popular districts present in the table.
func (t *Table) Popular() []string {
	have := make(map[string]bool, len(t.districts))
	for _, d := range t.districts {
		have[d] = true
	}
	var out []string
	for _, d := range popularDistricts {
		if have[d] {
			out = append(out, d)
		}
	}
	return out
}

// FindDistrict matches free text to a district: an equal name or one contained in text first,
// then a district whose name contains text.
func (t *Table) FindDistrict(text string) (string, bool) {
	lt := strings.ToLower(strings.TrimSpace(text))
	if lt == "" {
		return "", false
	}
	for _, d := range t.districts {
		ld := strings.ToLower(d)
		if ld == lt || strings.Contains(lt, ld) {
			return d, true
		}
	}
	for _, d := range t.districts {
		if strings.Contains(strings.ToLower(d), lt) {
			return d, true
		}
	}
	return "", false
}

// FindLocation matches free text to a location in any district: an equal name first, then a
// location whose name contains text.
func (t *Table) FindLocation(text string) (Entry, bool) {
	lt := strings.ToLower(strings.TrimSpace(text))
	if lt == "" {
		return Entry{}, false
	}
	for _, e := range t.entries {
		if strings.ToLower(e.Location) == lt {
			return e, true
		}
	}
	for _, e := range t.entries {
		if strings.Contains(strings.ToLower(e.Location), lt) {
			return e, true
		}
	}
	return Entry{}, false
}

// MatchLocation picks one of locations for free text: an equal name, then either name
// containing the other.
func MatchLocation(locations []Entry, text string) (Entry, bool) {
	lt := strings.ToLower(strings.TrimSpace(text))
	if lt == "" {
		return Entry{}, false
	}
	for _, e := range locations {
		if strings.ToLower(e.Location) == lt {
			return e, true
		}
	}
	for _, e := range locations {
		ll := strings.ToLower(e.Location)
		if strings.Contains(ll, lt) || strings.Contains(lt, ll) {
			return e, true
		}
	}
	return Entry{}, false
}

// MentionsLocation reports whether any known location name appears in text.
func (t *Table) MentionsLocation(text string) bool {
	lt := strings.ToLower(text)
	for _, e := range t.entries {
		if strings.Contains(lt, strings.ToLower(e.Location)) {
			return true
		}
	}
	return false
}

// Locations returns the rated locations of district.
func (t *Table) Locations(district string) []Entry {
	var out []Entry
	for _, e := range t.entries {
		if e.District == district {
			out = append(out, e)
		}
	}
	return out
}

// Rate returns the delivery charge for a location in district, or DefaultRate.
func (t *Table) Rate(district, location string) float64 {
	for _, e := range t.entries {
		if strings.EqualFold(e.District, district) && strings.EqualFold(e.Location, location) {
			return e.Rate
		}
	}
	return DefaultRate
}

var placePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:i\s+)?(?:live|stay|am)\s+(?:in|at|from)\s+(\w+)`),
	regexp.MustCompile(`(?:from|in|at)\s+(\w+)`),
	regexp.MustCompile(`^(\w+)$`),
}

// ExtractPlace pulls the place name out of phrases like "I live in Hetauda" or "from Dharan".
// Text matching no pattern is returned whole. The result is title-cased.
func ExtractPlace(text string) string {
	lt := strings.ToLower(strings.TrimSpace(text))
	for _, re := range placePatterns {
		if m := re.FindStringSubmatch(lt); m != nil {
			return titleCase(m[1])
		}
	}
	return titleCase(lt)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
