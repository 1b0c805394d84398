// Package search finds catalog products from free-text queries: a typo-tolerant fuzzy scorer, a
// keyword search used by the chat flows, filters over a catalog, and purchase recommendations.
package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/textsim"
)

// DefaultMinScore is the score below which fuzzy results are dropped.
const DefaultMinScore = 0.5

// Field weights applied to a raw similarity before results are compared.
const (
	nameWeight        = 1.5
	categoryWeight    = 1.2
	descriptionWeight = 0.8
	tokenScore        = 0.7
	tokenCutoff       = 0.7
	categoryMinScore  = 0.7
	correctionCutoff  = 0.5
	descriptionWindow = 200
	descriptionShown  = 100
)

// Matched field names reported in Result.MatchedField.
const (
	FieldName        = "name"
	FieldCategory    = "category"
	FieldDescription = "description"
	FieldNameToken   = "name_token"
)

// Result is a scored fuzzy match.
type Result struct {
	Product      models.Product
	Score        float64
	MatchedField string
	MatchedText  string
}

// Fuzzy scores an in-memory product list against typo-laden queries.
type Fuzzy struct {
	products []models.Product
}

// NewFuzzy returns a scorer over products. The slice is not copied.
func NewFuzzy(products []models.Product) *Fuzzy {
	return &Fuzzy{products: products}
}

// SetProducts replaces the product list.
func (f *Fuzzy) SetProducts(products []models.Product) {
	f.products = products
}

// Products returns the current product list.
func (f *Fuzzy) Products() []models.Product {
	return f.products
}

// Similarity scores query against text in [0, 1]: 1 for equality, 0.9 for containment, the
// share of query words present (at most 0.85), and otherwise the sequence ratio.
func Similarity(query, text string) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	text = strings.ToLower(strings.TrimSpace(text))
	if query == "" || text == "" {
		return 0
	}
	if query == text {
		return 1
	}
	if strings.Contains(text, query) {
		return 0.9
	}

	qWords := wordSet(query)
	tWords := wordSet(text)
	common := 0
	for w := range qWords {
		if tWords[w] {
			common++
		}
	}
	if common > 0 {
		return min(0.85, float64(common)/float64(len(qWords)))
	}
	return textsim.Ratio(query, text)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

// tokenize lowercases text, turns punctuation into spaces and keeps tokens of two or more runes.
func tokenize(text string) []string {
	text = nonWord.ReplaceAllString(strings.ToLower(text), " ")
	var out []string
	for _, w := range strings.Fields(text) {
		if len([]rune(w)) >= 2 {
			out = append(out, w)
		}
	}
	return out
}

// Search returns up to limit products scoring at least minScore against query, best first.
// A minScore of zero or less uses DefaultMinScore. Products sharing an id are reported once.
func (f *Fuzzy) Search(query string, limit int, minScore float64) []Result {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || len(f.products) == 0 {
		return nil
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	queryTokens := tokenize(query)

	var results []Result
	seen := make(map[int]bool)
	for _, p := range f.products {
		if seen[p.ID] {
			continue
		}

		best := Result{Product: p}
		consider := func(score float64, field, text string) {
			if score > best.Score {
				best.Score, best.MatchedField, best.MatchedText = score, field, text
			}
		}

		consider(Similarity(query, p.Name)*nameWeight, FieldName, p.Name)
		if p.Category != "" {
			consider(Similarity(query, p.Category)*categoryWeight, FieldCategory, p.Category)
		}
		if p.Description != "" {
			consider(Similarity(query, models.TruncateRunes(p.Description, descriptionWindow))*descriptionWeight,
				FieldDescription, models.TruncateRunes(p.Description, descriptionShown))
		}

		nameTokens := tokenize(p.Name)
		for _, qt := range queryTokens {
			if len(textsim.CloseMatches(qt, nameTokens, 1, tokenCutoff)) > 0 {
				consider(tokenScore*nameWeight, FieldNameToken, p.Name)
			}
		}

		best.Score = min(1, best.Score)
		if best.Score >= minScore {
			seen[p.ID] = true
			results = append(results, best)
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// SearchByCategory returns up to limit products whose category is similar to category.
func (f *Fuzzy) SearchByCategory(category string, limit int) []models.Product {
	type scored struct {
		p     models.Product
		score float64
	}
	var hits []scored
	for _, p := range f.products {
		if p.Category == "" {
			continue
		}
		if s := Similarity(category, p.Category); s >= categoryMinScore {
			hits = append(hits, scored{p, s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]models.Product, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out
}

// SuggestCorrections returns up to n lowercased product names close to a misspelled query.
func (f *Fuzzy) SuggestCorrections(query string, n int) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	names := make([]string, len(f.products))
	for i, p := range f.products {
		names[i] = strings.ToLower(p.Name)
	}
	return textsim.CloseMatches(query, names, n, correctionCutoff)
}

// Popular returns up to limit products ordered by rating, then stock.
func (f *Fuzzy) Popular(limit int) []models.Product {
	out := make([]models.Product, len(f.products))
	copy(out, f.products)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].Stock > out[j].Stock
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
