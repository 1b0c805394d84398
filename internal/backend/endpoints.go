package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/ovnchat/internal/models"
)

// CreateOrder places an order. It is never retried.
func (c *Client) CreateOrder(ctx context.Context, req models.OrderRequest) models.OrderResult {
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cod"
	}
	r := c.post(ctx, "/orders/api/create/", req)
	if !r.ok() {
		return models.OrderResult{Error: r.failure()}
	}
	b := r.body
	return models.OrderResult{
		Success:     true,
		OrderID:     firstString(b, "order_id", "id"),
		OrderNumber: b.Get("order_number").String(),
		Message:     b.Get("message").String(),
		IsGuest:     b.Get("is_guest").Bool(),
	}
}

// OrdersByPhone lists guest orders placed with phone.
func (c *Client) OrdersByPhone(ctx context.Context, phone string) models.OrdersResult {
	r := c.get(ctx, "/orders/api/my-orders/", url.Values{"contact": {phone}})
	if !r.ok() {
		return models.OrdersResult{Error: r.failure()}
	}
	var orders []models.Order
	for _, o := range r.body.Get("orders").Array() {
		orders = append(orders, parseOrder(o))
	}
	return models.OrdersResult{Success: true, Orders: orders}
}

// OrderDetail fetches one order. Guest orders require the contact phone.
func (c *Client) OrderDetail(ctx context.Context, orderID, contact string) models.OrderDetailResult {
	var q url.Values
	if contact != "" {
		q = url.Values{"contact": {contact}}
	}
	r := c.get(ctx, "/orders/api/"+url.PathEscape(orderID)+"/", q)
	if !r.ok() {
		return models.OrderDetailResult{Error: r.failure()}
	}
	node := r.body.Get("order")
	if !node.Exists() {
		node = r.body
	}
	o := parseOrder(node)
	return models.OrderDetailResult{Success: true, Order: &o}
}

// CheckLogin reports the customer's login state and discount.
func (c *Client) CheckLogin(ctx context.Context) models.LoginStatus {
	r := c.get(ctx, "/orders/api/check-login/", nil)
	if !r.ok() {
		return models.LoginStatus{Error: r.failure()}
	}
	return models.LoginStatus{
		Success:         true,
		IsLoggedIn:      r.body.Get("is_logged_in").Bool(),
		DiscountPercent: r.body.Get("discount_percent").Float(),
		Username:        r.body.Get("username").String(),
	}
}

// ProductReviews lists approved reviews for a product.
func (c *Client) ProductReviews(ctx context.Context, productID int) models.ReviewsResult {
	r := c.get(ctx, fmt.Sprintf("/api/products/%d/reviews/", productID), nil)
	if !r.ok() {
		return models.ReviewsResult{Error: r.failure()}
	}
	out := models.ReviewsResult{
		Success:            true,
		AverageRating:      r.body.Get("average_rating").Float(),
		TotalReviews:       int(r.body.Get("total_reviews").Int()),
		RatingDistribution: make(map[int]int),
	}
	for _, rv := range r.body.Get("reviews").Array() {
		out.Reviews = append(out.Reviews, parseReview(rv))
	}
	r.body.Get("rating_distribution").ForEach(func(k, v gjson.Result) bool {
		if star, err := strconv.Atoi(k.String()); err == nil {
			out.RatingDistribution[star] = int(v.Int())
		}
		return true
	})
	if out.TotalReviews == 0 {
		out.TotalReviews = len(out.Reviews)
	}
	return out
}

// CanReview asks whether the current customer may review a product.
func (c *Client) CanReview(ctx context.Context, productID int) models.ReviewEligibility {
	r := c.get(ctx, fmt.Sprintf("/api/products/%d/can-review/", productID), nil)
	if !r.body.Get("can_review").Exists() {
		return models.ReviewEligibility{Error: r.failure()}
	}
	return models.ReviewEligibility{
		Success:   true,
		CanReview: r.body.Get("can_review").Bool(),
		Reason:    r.body.Get("reason").String(),
		Message:   r.body.Get("message").String(),
		OrderID:   r.body.Get("order_id").String(),
	}
}

// SubmitReview posts a review. It is never retried.
func (c *Client) SubmitReview(ctx context.Context, productID int, req models.ReviewRequest) models.SubmitResult {
	return c.submit(ctx, fmt.Sprintf("/api/products/%d/submit-review/", productID), req)
}

// SubmitContact files a support request. It is never retried.
func (c *Client) SubmitContact(ctx context.Context, req models.ContactRequest) models.SubmitResult {
	return c.submit(ctx, "/api/contact/", req)
}

func (c *Client) submit(ctx context.Context, path string, payload any) models.SubmitResult {
	r := c.post(ctx, path, payload)
	if !r.ok() {
		return models.SubmitResult{Error: r.failure()}
	}
	return models.SubmitResult{
		Success: true,
		ID:      r.body.Get("id").String(),
		Message: r.body.Get("message").String(),
	}
}

// CheckAuthStatus reports whether the current customer is authenticated.
func (c *Client) CheckAuthStatus(ctx context.Context) models.AuthStatus {
	r := c.get(ctx, "/api/auth-status/", nil)
	if !r.ok() {
		return models.AuthStatus{Error: r.failure()}
	}
	return models.AuthStatus{
		Success:         true,
		IsAuthenticated: r.body.Get("is_authenticated").Bool(),
		UserID:          int(r.body.Get("user.id").Int()),
		Username:        r.body.Get("user.username").String(),
	}
}

// Products lists up to limit active products.
func (c *Client) Products(ctx context.Context, limit int) models.ProductsResult {
	if limit <= 0 {
		limit = 20
	}
	return c.productList(ctx, "/api/products/list/", url.Values{"limit": {strconv.Itoa(limit)}})
}

// FlashSaleProducts lists products currently on flash sale.
func (c *Client) FlashSaleProducts(ctx context.Context) models.ProductsResult {
	return c.productList(ctx, "/api/products/flash-sale/", nil)
}

func (c *Client) productList(ctx context.Context, path string, q url.Values) models.ProductsResult {
	r := c.get(ctx, path, q)
	if !r.ok() {
		return models.ProductsResult{Error: r.failure()}
	}
	list := r.body.Get("products")
	if !list.Exists() && r.body.IsArray() {
		list = r.body
	}
	var products []models.Product
	for _, p := range list.Array() {
		products = append(products, parseProduct(p))
	}
	return models.ProductsResult{Success: true, Products: products}
}

// ProductDetail fetches one product.
func (c *Client) ProductDetail(ctx context.Context, id int) models.ProductResult {
	r := c.get(ctx, fmt.Sprintf("/api/products/%d/", id), nil)
	if !r.ok() {
		return models.ProductResult{Error: r.failure()}
	}
	node := r.body.Get("product")
	if !node.Exists() {
		node = r.body
	}
	p := parseProduct(node)
	return models.ProductResult{Success: true, Product: &p}
}

// Categories lists the catalog categories.
func (c *Client) Categories(ctx context.Context) models.CategoriesResult {
	r := c.get(ctx, "/api/products/categories/", nil)
	if !r.ok() {
		return models.CategoriesResult{Error: r.failure()}
	}
	list := r.body.Get("categories")
	if !list.Exists() && r.body.IsArray() {
		list = r.body
	}
	var cats []models.Category
	for _, cat := range list.Array() {
		cats = append(cats, models.Category{
			ID:           int(cat.Get("id").Int()),
			Name:         cat.Get("name").String(),
			Description:  cat.Get("description").String(),
			ProductCount: int(cat.Get("product_count").Int()),
		})
	}
	return models.CategoriesResult{Success: true, Categories: cats}
}
