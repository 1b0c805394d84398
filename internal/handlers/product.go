package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ovnchat/internal/catalog"
	"github.com/BTreeMap/ovnchat/internal/intent"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/search"
	"github.com/BTreeMap/ovnchat/internal/session"
)

const (
	searchLimit     = 10
	flashSaleLimit  = 8
	detailDescRunes = 200
)

// Product answers single-turn catalog questions: search, flash sales, categories and product
// details. It never enters a flow.
type Product struct {
	base
}

// NewProduct returns the product handler.
func NewProduct(d Deps) *Product {
	return &Product{base: newBase(d)}
}

// CanHandle implements Handler.
func (h *Product) CanHandle(in intent.Intent, state session.State) bool {
	if state != session.StateIdle {
		return false
	}
	switch in {
	case intent.ProductSearch, intent.FlashSale, intent.Categories, intent.ProductDetail:
		return true
	}
	return false
}

// Handle implements Handler.
func (h *Product) Handle(ctx context.Context, msg string, sess *session.Session, e Entities) Response {
	switch e.Intent {
	case intent.FlashSale:
		return h.flashSale(ctx)
	case intent.Categories:
		return h.categories(ctx)
	case intent.ProductDetail:
		return h.detail(ctx, msg, sess)
	default:
		return h.search(ctx, msg, sess, e)
	}
}

func (h *Product) search(ctx context.Context, msg string, sess *session.Session, e Entities) Response {
	maxPrice := float64(e.MaxPrice)
	products := search.KeywordSearch(h.products(ctx), msg, maxPrice, searchLimit)
	if len(products) == 0 && h.Search != nil {
		fuzzy, err := h.Search.Search(ctx, msg, search.Filters{MaxPrice: maxPrice}, searchLimit)
		if err == nil {
			products = fuzzy
		}
	}
	sess.LastViewedProducts = products
	slog.Debug("Product.search", "session_id", sess.SessionID, "query", msg, "results", len(products))

	if len(products) > 0 {
		return Response{
			Message:      fmt.Sprintf("Here are %d %s I found for you!", len(products), plural(len(products), "product")),
			Products:     products,
			QuickReplies: []string{"Buy Now", "See More", "Track Order"},
		}
	}

	text := "I couldn't find products matching your search. Try different keywords or browse all products!"
	if h.Search != nil {
		if names := h.Search.Suggestions(ctx, msg, 3); len(names) > 0 {
			text += "\n\nDid you mean: " + strings.Join(names, ", ") + "?"
		}
	}
	return Response{
		Message:      text,
		QuickReplies: []string{"Show All Products", "Flash Sales", "Categories"},
	}
}

func (h *Product) flashSale(ctx context.Context) Response {
	products := h.featured(ctx, flashSaleLimit)
	if len(products) == 0 {
		return Response{
			Message:      "No flash sales right now. Check out our regular products!",
			QuickReplies: []string{"Show All Products", "Categories"},
		}
	}
	return Response{
		Message:      fmt.Sprintf("🔥 Check out our %d amazing deals! Limited time offers.", len(products)),
		Products:     products,
		QuickReplies: []string{"Buy Now", "Show All", "Track Order"},
	}
}

func (h *Product) categories(ctx context.Context) Response {
	cats, err := h.Catalog.Categories(ctx)
	if err != nil {
		slog.Warn("Product.categories: catalog unavailable", "error", err)
	}
	names := catalog.CategoryNames(cats)
	if len(names) == 0 {
		return Response{
			Message:      "Categories are being updated. Try browsing all products!",
			QuickReplies: []string{"Show All Products", "Flash Sales"},
		}
	}
	replies := names
	if len(replies) > 4 {
		replies = replies[:4]
	}
	return Response{
		Message:      fmt.Sprintf("We have products in these categories: **%s**\n\nJust tell me which category interests you!", strings.Join(names, ", ")),
		Categories:   names,
		QuickReplies: append([]string(nil), replies...),
	}
}

func (h *Product) detail(ctx context.Context, msg string, sess *session.Session) Response {
	p, ok := search.FindForDetail(h.products(ctx), msg)
	if !ok {
		return Response{
			Message:      "I couldn't find that specific product. Try searching with different keywords!",
			QuickReplies: []string{"Show All Products", "Flash Sales"},
		}
	}
	sess.LastViewedProducts = []models.Product{p}
	return Response{
		Message:      DetailText(p),
		Products:     []models.Product{p},
		QuickReplies: []string{"Buy This", "See Reviews", "More Products"},
	}
}

// DetailText renders the product detail block.
func DetailText(p models.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", p.Name)
	if desc := models.TruncateRunes(p.Description, detailDescRunes); desc != "" {
		fmt.Fprintf(&b, "%s...\n\n", desc)
	}
	fmt.Fprintf(&b, "**Price:** %s", models.FormatPrice(p.Price))
	if p.HasDiscount() {
		fmt.Fprintf(&b, " ~~%s~~", models.FormatPrice(p.ComparePrice))
	}
	category := p.Category
	if category == "" {
		category = "General"
	}
	fmt.Fprintf(&b, "\n**Category:** %s", category)
	if p.InStock() {
		b.WriteString("\n**Stock:** In Stock ✅")
	} else {
		b.WriteString("\n**Stock:** Out of Stock ❌")
	}
	if p.Rating > 0 {
		fmt.Fprintf(&b, "\n**Rating:** %s (%.1f/5 - %d reviews)", models.Stars(int(p.Rating)), p.Rating, p.ReviewCount)
	}
	b.WriteString("\n\nClick the product card below to buy!")
	return b.String()
}
