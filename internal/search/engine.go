package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ovnchat/internal/catalog"
	"github.com/BTreeMap/ovnchat/internal/models"
)

// Filters narrows Engine.Search results. Zero values disable a filter.
type Filters struct {
	Category    string
	MinPrice    float64
	MaxPrice    float64
	InStockOnly bool
}

func (f Filters) match(p models.Product) bool {
	if f.Category != "" && !strings.Contains(strings.ToLower(p.Category), strings.ToLower(f.Category)) {
		return false
	}
	if f.MinPrice > 0 && p.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && p.Price > f.MaxPrice {
		return false
	}
	if f.InStockOnly && p.Stock <= 0 {
		return false
	}
	return true
}

// Engine runs fuzzy searches over a catalog's current product list.
type Engine struct {
	catalog catalog.Catalog
}

// NewEngine returns an engine reading from c.
func NewEngine(c catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

func (e *Engine) fuzzy(ctx context.Context) (*Fuzzy, error) {
	products, err := e.catalog.Products(ctx)
	if err != nil {
		return nil, err
	}
	return NewFuzzy(products), nil
}

// Search returns up to limit fuzzy matches for query that pass f.
func (e *Engine) Search(ctx context.Context, query string, f Filters, limit int) ([]models.Product, error) {
	fz, err := e.fuzzy(ctx)
	if err != nil {
		slog.Error("Engine.Search: catalog unavailable", "error", err)
		return nil, err
	}
	var out []models.Product
	for _, r := range fz.Search(query, limit*2, 0) {
		if !f.match(r.Product) {
			continue
		}
		out = append(out, r.Product)
		if len(out) >= limit {
			break
		}
	}
	slog.Debug("Engine.Search", "query", query, "results", len(out))
	return out, nil
}

// FindSimilar returns up to limit products in the same category as productID, or the most
// popular products when it has no category. An unknown id yields no products.
func (e *Engine) FindSimilar(ctx context.Context, productID, limit int) ([]models.Product, error) {
	fz, err := e.fuzzy(ctx)
	if err != nil {
		return nil, err
	}
	var target *models.Product
	for i := range fz.products {
		if fz.products[i].ID == productID {
			target = &fz.products[i]
			break
		}
	}
	if target == nil {
		return nil, nil
	}
	if target.Category == "" {
		return fz.Popular(limit), nil
	}

	var out []models.Product
	for _, p := range fz.SearchByCategory(target.Category, limit+1) {
		if p.ID != productID {
			out = append(out, p)
		}
	}
	return firstN(out, limit), nil
}

// Suggestions returns "did you mean" product names for a query that found nothing.
func (e *Engine) Suggestions(ctx context.Context, query string, n int) []string {
	fz, err := e.fuzzy(ctx)
	if err != nil {
		return nil
	}
	return fz.SuggestCorrections(query, n)
}
