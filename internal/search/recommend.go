package search

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/BTreeMap/ovnchat/internal/models"
)

// priceTolerance is the relative band treated as "similar price".
const priceTolerance = 0.3

// Recommendation is a suggested product with the reason shown to the shopper.
type Recommendation struct {
	Product models.Product
	Score   float64
	Reason  string
}

var suggestionIntros = []string{
	"You might also like:",
	"Customers also bought:",
	"Related products you may like:",
	"Check out these too:",
}

// Recommender suggests products from a fixed product list.
type Recommender struct {
	products   []models.Product
	categories []string
	byCategory map[string][]models.Product
	pick       func(n int) int
}

// RecommenderOption configures a Recommender.
type RecommenderOption func(*Recommender)

// WithIntroPicker replaces the random choice of the suggestion intro line.
func WithIntroPicker(pick func(n int) int) RecommenderOption {
	return func(r *Recommender) { r.pick = pick }
}

// NewRecommender indexes products by category.
func NewRecommender(products []models.Product, opts ...RecommenderOption) *Recommender {
	r := &Recommender{
		products:   products,
		byCategory: make(map[string][]models.Product),
		pick:       rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, p := range products {
		cat := p.Category
		if cat == "" {
			cat = "Other"
		}
		if _, ok := r.byCategory[cat]; !ok {
			r.categories = append(r.categories, cat)
		}
		r.byCategory[cat] = append(r.byCategory[cat], p)
	}
	return r
}

func without(products []models.Product, exclude map[int]bool) []models.Product {
	var out []models.Product
	for _, p := range products {
		if !exclude[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func (r *Recommender) categoryProducts(category string, exclude map[int]bool) []models.Product {
	want := strings.ToLower(category)
	for _, cat := range r.categories {
		if strings.ToLower(cat) == want {
			return without(r.byCategory[cat], exclude)
		}
	}
	for _, cat := range r.categories {
		lc := strings.ToLower(cat)
		if strings.Contains(lc, want) || strings.Contains(want, lc) {
			return without(r.byCategory[cat], exclude)
		}
	}
	return nil
}

func (r *Recommender) similarPrice(price float64, exclude map[int]bool) []models.Product {
	lo, hi := price*(1-priceTolerance), price*(1+priceTolerance)
	var out []models.Product
	for _, p := range r.products {
		if !exclude[p.ID] && p.Price >= lo && p.Price <= hi {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	return out
}

func (r *Recommender) popular(exclude map[int]bool) []models.Product {
	var out []models.Product
	for _, p := range r.products {
		if !exclude[p.ID] && p.Stock > 0 {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ReviewCount > out[j].ReviewCount
	})
	return out
}

// AfterPurchase suggests up to limit products for a shopper who just bought purchased: two from
// its category, two in a similar price band, then popular in-stock products.
func (r *Recommender) AfterPurchase(purchased models.Product, limit int, exclude map[int]bool) []Recommendation {
	ex := make(map[int]bool, len(exclude)+1)
	for id := range exclude {
		ex[id] = true
	}
	ex[purchased.ID] = true

	var recs []Recommendation
	add := func(p models.Product, score float64, reason string) {
		if len(recs) >= limit || ex[p.ID] {
			return
		}
		ex[p.ID] = true
		recs = append(recs, Recommendation{Product: p, Score: score, Reason: reason})
	}

	if purchased.Category != "" {
		for _, p := range firstN(r.categoryProducts(purchased.Category, ex), 2) {
			add(p, 0.9, fmt.Sprintf("From %s collection", purchased.Category))
		}
	}
	if purchased.Price > 0 {
		for _, p := range firstN(r.similarPrice(purchased.Price, ex), 2) {
			add(p, 0.7, "Similar price range")
		}
	}
	for _, p := range r.popular(ex) {
		add(p, 0.5, "Popular choice")
	}
	return recs
}

// ForCategory suggests up to limit products from category.
func (r *Recommender) ForCategory(category string, limit int, exclude map[int]bool) []Recommendation {
	var recs []Recommendation
	for _, p := range firstN(r.categoryProducts(category, exclude), limit) {
		recs = append(recs, Recommendation{Product: p, Score: 0.8, Reason: category + " products"})
	}
	return recs
}

// Popular suggests up to limit best-rated in-stock products.
func (r *Recommender) Popular(limit int, exclude map[int]bool) []Recommendation {
	var recs []Recommendation
	for _, p := range firstN(r.popular(exclude), limit) {
		recs = append(recs, Recommendation{Product: p, Score: 0.6, Reason: "Popular item"})
	}
	return recs
}

// FlashSale suggests up to limit flash-sale products, largest discount first.
func (r *Recommender) FlashSale(limit int) []Recommendation {
	var sale []models.Product
	for _, p := range r.products {
		if p.IsFlashSale {
			sale = append(sale, p)
		}
	}
	sort.SliceStable(sale, func(i, j int) bool { return Discount(sale[i]) > Discount(sale[j]) })

	var recs []Recommendation
	for _, p := range firstN(sale, limit) {
		recs = append(recs, Recommendation{
			Product: p,
			Score:   0.95,
			Reason:  fmt.Sprintf("%d%% off - Flash Sale!", int(Discount(p))),
		})
	}
	return recs
}

// Discount is the percentage saved against the struck-through price.
func Discount(p models.Product) float64 {
	if p.ComparePrice > p.Price && p.ComparePrice > 0 {
		return (p.ComparePrice - p.Price) / p.ComparePrice * 100
	}
	return 0
}

// Format renders recommendations as a chat message. An empty intro picks a random one.
func (r *Recommender) Format(recs []Recommendation, intro string) string {
	if len(recs) == 0 {
		return ""
	}
	if intro == "" {
		intro = suggestionIntros[r.pick(len(suggestionIntros))]
	}
	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n")
	for i, rec := range recs {
		p := rec.Product
		name := models.TruncateRunes(p.Name, 40)
		if name == "" {
			name = "Product"
		}
		if p.IsFlashSale && p.HasDiscount() {
			fmt.Fprintf(&b, "\n%d. **%s**\n   ~~%s~~ **%s** (%s)", i+1, name,
				models.FormatPrice(p.ComparePrice), models.FormatPrice(p.Price), rec.Reason)
		} else {
			fmt.Fprintf(&b, "\n%d. **%s** - %s\n   (%s)", i+1, name, models.FormatPrice(p.Price), rec.Reason)
		}
	}
	return b.String()
}
