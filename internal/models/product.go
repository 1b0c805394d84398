package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Product is a catalog item as the chatbot sees it. Prices are already resolved: Price is the
// amount the customer pays and ComparePrice the struck-through original (0 when none).
type Product struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	ComparePrice   float64 `json:"compare_price"`
	FlashSalePrice float64 `json:"flash_sale_price,omitempty"`
	Image          string  `json:"image"`
	Category       string  `json:"category"`
	Stock          int     `json:"stock"`
	Rating         float64 `json:"rating"`
	ReviewCount    int     `json:"review_count"`
	IsFeatured     bool    `json:"is_featured"`
	IsFlashSale    bool    `json:"is_flash_sale"`
	Description    string  `json:"description"`
	IsOrderItem    bool    `json:"is_order_item,omitempty"`
	Quantity       int     `json:"quantity,omitempty"`
}

// RawPrices carries the three price fields exactly as the backend reports them.
type RawPrices struct {
	Price          float64
	ComparePrice   float64
	FlashSalePrice float64
}

// ResolvePrice applies the display precedence flash sale > compare (selling) > market price.
// It returns the price to charge and the original price to strike through (0 for none).
func ResolvePrice(p RawPrices) (display, original float64) {
	switch {
	case p.FlashSalePrice > 0:
		display = p.FlashSalePrice
		if p.ComparePrice > 0 {
			original = p.ComparePrice
		} else {
			original = p.Price
		}
	case p.ComparePrice > 0:
		display = p.ComparePrice
		original = p.Price
	default:
		display = p.Price
	}
	return display, original
}

// HasDiscount reports whether a struck-through original price should be shown.
func (p Product) HasDiscount() bool {
	return p.ComparePrice > p.Price
}

// InStock reports whether the product has stock available.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// FormatPrice renders an amount the way the store displays it, e.g. "Rs. 1,250".
func FormatPrice(amount float64) string {
	n := int64(amount + 0.5)
	if amount < 0 {
		n = int64(amount - 0.5)
	}
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "Rs. -" + b.String()
	}
	return "Rs. " + b.String()
}

// Stars renders a 0-5 rating as filled and empty stars.
func Stars(rating int) string {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}

// Summary renders the short product block used in lists and confirmations.
func (p Product) Summary() string {
	name := TruncateRunes(p.Name, 50)
	if name == "" {
		name = "Product"
	}
	text := fmt.Sprintf("**%s**\nPrice: %s", name, FormatPrice(p.Price))
	if p.HasDiscount() {
		text += fmt.Sprintf(" ~~%s~~", FormatPrice(p.ComparePrice))
	}
	if p.InStock() {
		text += "\nStatus: In Stock"
	} else {
		text += "\nStatus: Out of Stock"
	}
	return text
}

// Category is a catalog category.
type Category struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ProductCount int    `json:"product_count"`
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
