package models

import "strings"

// OrderItem is one line of a backend order.
type OrderItem struct {
	ProductID    int     `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductImage string  `json:"product_image"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	TotalPrice   float64 `json:"total_price"`
}

// TimelineEvent is one entry of an order's status history.
type TimelineEvent struct {
	Action    string `json:"action"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	Note      string `json:"note"`
	CreatedAt string `json:"created_at"`
}

// Order is a backend order as rendered by the tracking flow.
type Order struct {
	OrderID         string          `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	Status          string          `json:"status"`
	StatusDisplay   string          `json:"status_display"`
	PaymentStatus   string          `json:"payment_status"`
	PaymentMethod   string          `json:"payment_method"`
	Subtotal        float64         `json:"subtotal"`
	ShippingCost    float64         `json:"shipping_cost"`
	DiscountAmount  float64         `json:"discount_amount"`
	TotalAmount     float64         `json:"total_amount"`
	ShippingAddress string          `json:"shipping_address"`
	TrackingNumber  string          `json:"tracking_number"`
	CreatedAt       string          `json:"created_at"`
	Items           []OrderItem     `json:"items"`
	History         []TimelineEvent `json:"history"`
	IsGuestOrder    bool            `json:"is_guest_order"`
}

var orderStatusEmoji = map[string]string{
	"processing": "📦",
	"confirmed":  "✅",
	"packed":     "📦",
	"shipped":    "🚚",
	"delivered":  "✅",
	"cancelled":  "❌",
	"returned":   "↩️",
}

// StatusEmoji returns the emoji shown next to an order status.
func StatusEmoji(status string) string {
	return orderStatusEmoji[status]
}

// Number returns the human order number, falling back to the order id.
func (o Order) Number() string {
	if o.OrderNumber != "" {
		return o.OrderNumber
	}
	if o.OrderID != "" {
		return o.OrderID
	}
	return "N/A"
}

// DisplayStatus returns the backend's status label or a title-cased status.
func (o Order) DisplayStatus() string {
	if o.StatusDisplay != "" {
		return o.StatusDisplay
	}
	if o.Status == "" {
		return "Unknown"
	}
	return strings.ToUpper(o.Status[:1]) + o.Status[1:]
}

// ItemsSubtotal sums unit price times quantity over all items.
func (o Order) ItemsSubtotal() float64 {
	var total float64
	for _, it := range o.Items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return total
}

// ComputedTotal is the items subtotal plus shipping minus discount.
func (o Order) ComputedTotal() float64 {
	return o.ItemsSubtotal() + o.ShippingCost - o.DiscountAmount
}

// ShippingAddress is the parsed form of an order's free-text shipping address.
type ShippingAddress struct {
	Name     string
	Phone    string
	Location string
	Landmark string
}

// ParseShippingAddress splits the backend's multi-line address: name, phone, location, and an
// optional "Landmark:" line.
func ParseShippingAddress(raw string) ShippingAddress {
	var addr ShippingAddress
	var rest []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "landmark:") {
			addr.Landmark = strings.TrimSpace(line[len("landmark:"):])
			continue
		}
		rest = append(rest, line)
	}
	if len(rest) > 0 {
		addr.Name = rest[0]
	}
	if len(rest) > 1 {
		addr.Phone = rest[1]
	}
	if len(rest) > 2 {
		addr.Location = strings.Join(rest[2:], ", ")
	}
	return addr
}

// OrderItemRequest is one line of an order creation request.
type OrderItemRequest struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

// OrderRequest is the payload sent to the backend order creation endpoint.
type OrderRequest struct {
	CustomerName   string             `json:"customer_name"`
	ContactNumber  string             `json:"contact_number"`
	Location       string             `json:"location"`
	Landmark       string             `json:"landmark,omitempty"`
	PaymentMethod  string             `json:"payment_method"`
	Email          string             `json:"email,omitempty"`
	DeliveryCharge float64            `json:"delivery_charge"`
	Items          []OrderItemRequest `json:"items"`
}

// OrderResult is the backend's answer to an order creation request.
type OrderResult struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"order_id,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
	Message     string `json:"message,omitempty"`
	IsGuest     bool   `json:"is_guest,omitempty"`
	Error       string `json:"error,omitempty"`
}

// OrdersResult carries a list of orders or an error.
type OrdersResult struct {
	Success bool    `json:"success"`
	Orders  []Order `json:"orders"`
	Error   string  `json:"error,omitempty"`
}

// OrderDetailResult carries a single order or an error.
type OrderDetailResult struct {
	Success bool   `json:"success"`
	Order   *Order `json:"order,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LoginStatus is the backend's view of the current customer's login and discount.
type LoginStatus struct {
	Success         bool    `json:"success"`
	IsLoggedIn      bool    `json:"is_logged_in"`
	DiscountPercent float64 `json:"discount_percent"`
	Username        string  `json:"username,omitempty"`
	Error           string  `json:"error,omitempty"`
}
