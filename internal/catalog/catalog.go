// Package catalog provides read access to the store's products and categories.
package catalog

import (
	"context"
	"fmt"

	"github.com/BTreeMap/ovnchat/internal/models"
)

// Catalog is the product query interface the chat flows read from.
type Catalog interface {
	// Products returns every active product in catalog order.
	Products(ctx context.Context) ([]models.Product, error)
	// Product returns one product by id.
	Product(ctx context.Context, id int) (models.Product, error)
	// Featured returns up to limit featured or flash-sale products.
	Featured(ctx context.Context, limit int) ([]models.Product, error)
	// Categories returns the category list.
	Categories(ctx context.Context) ([]models.Category, error)
}

// Static is a fixed in-memory catalog, used offline and in tests.
type Static struct {
	products   []models.Product
	categories []models.Category
}

// NewStatic returns a catalog over the given products and categories.
func NewStatic(products []models.Product, categories []models.Category) *Static {
	return &Static{products: products, categories: categories}
}

func (s *Static) Products(ctx context.Context) ([]models.Product, error) {
	return s.products, nil
}

func (s *Static) Product(ctx context.Context, id int) (models.Product, error) {
	return findProduct(s.products, id)
}

func (s *Static) Featured(ctx context.Context, limit int) ([]models.Product, error) {
	return featured(s.products, limit), nil
}

func (s *Static) Categories(ctx context.Context) ([]models.Category, error) {
	return s.categories, nil
}

func findProduct(products []models.Product, id int) (models.Product, error) {
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Product{}, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
}

func featured(products []models.Product, limit int) []models.Product {
	var out []models.Product
	for _, p := range products {
		if !p.IsFeatured && !p.IsFlashSale {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// CategoryNames returns the names of categories in order.
func CategoryNames(categories []models.Category) []string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names
}
