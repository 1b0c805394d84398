package backend

import (
	"github.com/tidwall/gjson"

	"github.com/BTreeMap/ovnchat/internal/models"
)

// firstString returns the first non-empty string among keys.
func firstString(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k).String(); v != "" {
			return v
		}
	}
	return ""
}

// first returns the first of keys present in r.
func first(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// parseProduct accepts both the API field names and the catalog document names (django_id,
// main_image, category_name, stock_quantity, avg_rating). Decimal fields may arrive as strings.
func parseProduct(r gjson.Result) models.Product {
	display, original := models.ResolvePrice(models.RawPrices{
		Price:          r.Get("price").Float(),
		ComparePrice:   r.Get("compare_price").Float(),
		FlashSalePrice: r.Get("flash_sale_price").Float(),
	})
	category := firstString(r, "category_name", "category.name", "category")
	if category == "" {
		category = "General"
	}
	return models.Product{
		ID:             int(first(r, "id", "django_id").Int()),
		Name:           r.Get("name").String(),
		Price:          display,
		ComparePrice:   original,
		FlashSalePrice: r.Get("flash_sale_price").Float(),
		Image:          firstString(r, "image", "main_image"),
		Category:       category,
		Stock:          int(first(r, "stock", "stock_quantity").Int()),
		Rating:         first(r, "rating", "avg_rating").Float(),
		ReviewCount:    int(r.Get("review_count").Int()),
		IsFeatured:     r.Get("is_featured").Bool(),
		IsFlashSale:    r.Get("is_flash_sale").Bool() || r.Get("flash_sale_price").Float() > 0,
		Description:    r.Get("description").String(),
	}
}

func parseOrder(r gjson.Result) models.Order {
	o := models.Order{
		OrderID:         firstString(r, "order_id", "id"),
		OrderNumber:     r.Get("order_number").String(),
		Status:          r.Get("status").String(),
		StatusDisplay:   r.Get("status_display").String(),
		PaymentStatus:   r.Get("payment_status").String(),
		PaymentMethod:   r.Get("payment_method").String(),
		Subtotal:        r.Get("subtotal").Float(),
		ShippingCost:    r.Get("shipping_cost").Float(),
		DiscountAmount:  r.Get("discount_amount").Float(),
		TotalAmount:     r.Get("total_amount").Float(),
		ShippingAddress: r.Get("shipping_address").String(),
		TrackingNumber:  r.Get("tracking_number").String(),
		CreatedAt:       r.Get("created_at").String(),
		IsGuestOrder:    r.Get("is_guest_order").Bool(),
	}
	for _, it := range r.Get("items").Array() {
		o.Items = append(o.Items, models.OrderItem{
			ProductID:    int(it.Get("product_id").Int()),
			ProductName:  it.Get("product_name").String(),
			ProductImage: it.Get("product_image").String(),
			Quantity:     int(it.Get("quantity").Int()),
			UnitPrice:    it.Get("unit_price").Float(),
			TotalPrice:   it.Get("total_price").Float(),
		})
	}
	for _, h := range r.Get("history").Array() {
		o.History = append(o.History, models.TimelineEvent{
			Action:    h.Get("action").String(),
			OldValue:  h.Get("old_value").String(),
			NewValue:  h.Get("new_value").String(),
			Note:      h.Get("note").String(),
			CreatedAt: h.Get("created_at").String(),
		})
	}
	return o
}

func parseReview(r gjson.Result) models.Review {
	user := r.Get("user").String()
	if user == "" {
		user = "Anonymous"
	}
	return models.Review{
		ID:                 int(r.Get("id").Int()),
		User:               user,
		Rating:             int(r.Get("rating").Int()),
		Title:              r.Get("title").String(),
		Comment:            r.Get("comment").String(),
		IsVerifiedPurchase: r.Get("is_verified_purchase").Bool(),
		CreatedAt:          r.Get("created_at").String(),
	}
}
