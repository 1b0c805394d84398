package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/BTreeMap/ovnchat/internal/models"
)

const (
	prefixQueryRunes = 50
	prefixNameRunes  = 30
	candidateFactor  = 2
)

var (
	unitSplit    = regexp.MustCompile(`(\d+)(ml|l|g|kg|oz|cm|mm|inch)`)
	digitSplit   = regexp.MustCompile(`(\d+)([a-zA-Z])`)
	keywordToken = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

var searchStopWords = map[string]bool{
	"show": true, "me": true, "the": true, "a": true, "an": true, "i": true, "want": true,
	"need": true, "find": true, "search": true, "looking": true, "for": true, "can": true,
	"you": true, "please": true, "what": true, "do": true, "have": true, "products": true,
	"product": true, "all": true, "everything": true, "browse": true, "see": true, "buy": true,
	"get": true, "order": true, "to": true, "it": true, "this": true, "that": true, "is": true,
	"are": true, "and": true, "or": true, "details": true, "about": true, "know": true,
	"info": true, "information": true, "tell": true, "give": true, "th": true, "of": true,
	"more": true, "some": true, "any": true,
}

var detailStopWords = map[string]bool{
	"tell": true, "me": true, "more": true, "about": true, "the": true, "a": true, "an": true,
	"what": true, "is": true, "details": true, "detail": true, "info": true,
	"information": true, "describe": true, "show": true,
}

// splitUnits separates numbers from the word after them: "220ml" becomes "220 ml" and
// "220clover" becomes "220 clover".
func splitUnits(s string) string {
	s = unitSplit.ReplaceAllString(s, "$1 $2")
	return digitSplit.ReplaceAllString(s, "$1 $2")
}

// SearchKeywords returns the lowercased search keywords of query: units split off numbers,
// stop words and single characters removed.
func SearchKeywords(query string) []string {
	var out []string
	for _, w := range keywordToken.FindAllString(splitUnits(strings.ToLower(query)), -1) {
		if searchStopWords[w] || len([]rune(w)) <= 1 {
			continue
		}
		out = append(out, w)
	}
	return out
}

func hasNamePrefix(p models.Product, prefix string) bool {
	return prefix != "" && strings.HasPrefix(strings.ToLower(p.Name), prefix)
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// KeywordSearch ranks products for a shopper's query. A query that is the start of a product
// name returns that product alone. Otherwise any keyword found in the name, description or
// category qualifies a product, and name hits rank first. maxPrice > 0 caps the price. A query
// without keywords returns the first limit products.
func KeywordSearch(products []models.Product, query string, maxPrice float64, limit int) []models.Product {
	prefix := strings.ToLower(strings.TrimSpace(models.TruncateRunes(query, prefixQueryRunes)))
	for _, p := range products {
		if hasNamePrefix(p, prefix) {
			return []models.Product{p}
		}
	}

	keywords := SearchKeywords(query)
	if len(keywords) == 0 {
		return firstN(products, limit)
	}

	type scored struct {
		p     models.Product
		score int
	}
	var candidates []scored
	for _, p := range products {
		if maxPrice > 0 && p.Price > maxPrice {
			continue
		}
		name := strings.ToLower(p.Name)
		desc := strings.ToLower(p.Description)
		cat := strings.ToLower(p.Category)
		hit := false
		for _, kw := range keywords {
			if strings.Contains(name, kw) || strings.Contains(desc, kw) || strings.Contains(cat, kw) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}

		score := 0
		for _, kw := range keywords {
			if strings.Contains(name, kw) {
				score += 10
			}
			if strings.HasPrefix(name, kw) {
				score += 5
			}
			if isDigits(kw) && strings.Contains(name, kw) {
				score += 15
			}
		}
		candidates = append(candidates, scored{p, score})
		if limit > 0 && len(candidates) >= limit*candidateFactor {
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]models.Product, len(candidates))
	for i, c := range candidates {
		out[i] = c.p
	}
	return out
}

// FindByName resolves a product a shopper named: a name prefix first, then a product whose name
// contains every keyword, then one containing any keyword.
func FindByName(products []models.Product, name string) (models.Product, bool) {
	prefix := strings.ToLower(strings.TrimSpace(models.TruncateRunes(name, prefixNameRunes)))
	for _, p := range products {
		if hasNamePrefix(p, prefix) {
			return p, true
		}
	}

	var keywords []string
	for _, w := range keywordToken.FindAllString(splitUnits(strings.ToLower(name)), -1) {
		if len([]rune(w)) > 1 {
			keywords = append(keywords, w)
		}
	}
	if len(keywords) == 0 {
		return models.Product{}, false
	}

	for _, p := range products {
		pn := strings.ToLower(p.Name)
		all := true
		for _, kw := range keywords {
			if !strings.Contains(pn, kw) {
				all = false
				break
			}
		}
		if all {
			return p, true
		}
	}
	for _, p := range products {
		pn := strings.ToLower(p.Name)
		for _, kw := range keywords {
			if strings.Contains(pn, kw) {
				return p, true
			}
		}
	}
	return models.Product{}, false
}

// FindForDetail picks the product a "tell me more about X" message refers to: the first product
// whose name or description contains one of the message's keywords, tried in message order.
func FindForDetail(products []models.Product, message string) (models.Product, bool) {
	var keywords []string
	for _, w := range keywordToken.FindAllString(strings.ToLower(message), -1) {
		if detailStopWords[w] || len([]rune(w)) <= 2 {
			continue
		}
		keywords = append(keywords, w)
	}
	for _, kw := range keywords {
		for _, p := range products {
			if strings.Contains(strings.ToLower(p.Name), kw) || strings.Contains(strings.ToLower(p.Description), kw) {
				return p, true
			}
		}
	}
	return models.Product{}, false
}

func firstN(products []models.Product, n int) []models.Product {
	if n > 0 && len(products) > n {
		return products[:n]
	}
	return products
}
