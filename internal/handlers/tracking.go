package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/ovnchat/internal/intent"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/session"
)

const (
	maxListedOrders  = 10
	maxOrderCards    = 8
	timelineEvents   = 3
	minOrderIDLength = 6
	maxOrderIDLength = 36
	rule             = "━━━━━━━━━━━━━━━━━━━━"
)

var trackingPhrases = []string{"track", "check", "order", "where", "status", "find"}

// Tracking looks up orders by phone number or order id.
type Tracking struct {
	base
}

// NewTracking returns the order tracking handler.
func NewTracking(d Deps) *Tracking {
	return &Tracking{base: newBase(d)}
}

// CanHandle implements Handler.
func (h *Tracking) CanHandle(in intent.Intent, state session.State) bool {
	if state == session.StateIdle {
		return in == intent.OrderTracking
	}
	return session.HandlerGroup(state) == session.GroupOrderTracking
}

// Handle implements Handler.
func (h *Tracking) Handle(ctx context.Context, msg string, sess *session.Session, e Entities) Response {
	switch sess.State {
	case session.StateTrackingAwaitingIdentifier:
		return h.identifier(ctx, msg, sess, e)
	case session.StateTrackingSelectingOrder:
		return h.selection(msg, sess)
	default:
		return h.start(ctx, sess, e)
	}
}

func (h *Tracking) start(ctx context.Context, sess *session.Session, e Entities) Response {
	if phone := e.Phone(); phone != "" {
		h.remember(ctx, sess, session.Memory{Phone: phone})
		return h.byPhone(ctx, phone, sess)
	}
	if e.OrderID != "" {
		return h.byID(ctx, e.OrderID, sess)
	}
	sess.Tracking()
	if sess.UserPhone != "" {
		return h.offerSavedPhone(sess)
	}
	return Response{
		Message:      "📦 I can help you track your order!\n\nPlease provide:\n• 🔖 Your **order ID** (e.g., ABC12345)\n• 📱 Or your **phone number**",
		NextState:    session.StateTrackingAwaitingIdentifier,
		QuickReplies: []string{"Use Phone Number", "Use Order ID"},
	}
}

func (h *Tracking) offerSavedPhone(sess *session.Session) Response {
	return Response{
		Message:      fmt.Sprintf("📱 Would you like to track orders for **%s**?", sess.UserPhone),
		NextState:    session.StateTrackingAwaitingIdentifier,
		QuickReplies: []string{"Yes", "Use Different Number", "Use Order ID"},
	}
}

func (h *Tracking) identifier(ctx context.Context, msg string, sess *session.Session, e Entities) Response {
	tc := sess.Tracking()
	lower := strings.ToLower(strings.TrimSpace(msg))

	if pending := tc.PendingOrderID; pending != "" {
		phone := e.Phone()
		if phone == "" {
			if d := digitsOf(msg); len(d) == 10 {
				phone = d
			}
		}
		if phone != "" {
			h.remember(ctx, sess, session.Memory{Phone: phone})
			tc.PendingOrderID = ""
			return h.byIDWithContact(ctx, pending, phone, sess)
		}
	}

	if sess.UserPhone != "" && h.isConfirmation(ctx, msg) {
		return h.byPhone(ctx, sess.UserPhone, sess)
	}

	if len(strings.Fields(lower)) > 1 {
		for _, p := range trackingPhrases {
			if strings.Contains(lower, p) {
				if sess.UserPhone != "" {
					return h.offerSavedPhone(sess)
				}
				return Response{
					Message:   "📦 Please provide your **order ID** or **phone number** to track your order.",
					NextState: session.StateTrackingAwaitingIdentifier,
				}
			}
		}
	}

	if phone := e.Phone(); phone != "" {
		h.remember(ctx, sess, session.Memory{Phone: phone})
		return h.byPhone(ctx, phone, sess)
	}
	if e.OrderID != "" {
		return h.byID(ctx, e.OrderID, sess)
	}
	if d := digitsOf(msg); len(d) == 10 {
		h.remember(ctx, sess, session.Memory{Phone: d})
		return h.byPhone(ctx, d, sess)
	}
	if id := strings.TrimSpace(msg); len(id) >= minOrderIDLength && len(id) <= maxOrderIDLength && !strings.Contains(id, " ") {
		return h.byID(ctx, id, sess)
	}

	return Response{
		Message:   "⚠️ I couldn't recognize that. Please provide a valid:\n• 📱 10-digit phone number\n• 🔖 Or order ID",
		NextState: session.StateTrackingAwaitingIdentifier,
	}
}

func (h *Tracking) selection(msg string, sess *session.Session) Response {
	orders := sess.Tracking().Orders
	if len(orders) == 0 {
		return Response{
			Message:    "😕 Something went wrong. Let's start over - please provide your phone or order ID.",
			ResetState: true,
		}
	}

	text := strings.TrimSpace(msg)
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(orders) {
		return OrderDetail(orders[n-1])
	}
	if text != "" {
		upper := strings.ToUpper(text)
		for _, o := range orders {
			if strings.Contains(strings.ToUpper(o.Number()), upper) {
				return OrderDetail(o)
			}
		}
	}

	return Response{
		Message:   fmt.Sprintf("👆 Please select a number from 1 to %d, or type the order number.", len(orders)),
		NextState: session.StateTrackingSelectingOrder,
	}
}

func (h *Tracking) byPhone(ctx context.Context, phone string, sess *session.Session) Response {
	res := h.Backend.OrdersByPhone(ctx, phone)
	if res.Error != "" {
		slog.Warn("Tracking.byPhone: lookup failed", "session_id", sess.SessionID, "error", res.Error)
		return Response{
			Message:      fmt.Sprintf("😔 Error: %s\nPlease try again.", res.Error),
			ResetState:   true,
			QuickReplies: []string{"Try Again", "Browse Products"},
		}
	}

	switch len(res.Orders) {
	case 0:
		return Response{
			Message:      fmt.Sprintf("📭 No orders found for phone **%s**.\n\nMake sure you're using the same number you placed the order with.", phone),
			ResetState:   true,
			QuickReplies: []string{"Try Different Number", "Browse Products"},
		}
	case 1:
		return OrderDetail(res.Orders[0])
	}

	orders := res.Orders
	if len(orders) > maxListedOrders {
		orders = orders[:maxListedOrders]
	}
	sess.Tracking().Orders = orders

	var list strings.Builder
	for i, o := range orders {
		fmt.Fprintf(&list, "%d. **#%s** - %s - %s (%s)\n", i+1, models.TruncateRunes(o.Number(), 8),
			o.DisplayStatus(), models.FormatPrice(o.TotalAmount), models.TruncateRunes(o.CreatedAt, 10))
	}
	var replies []string
	for i := 1; i <= len(orders) && i < 5; i++ {
		replies = append(replies, strconv.Itoa(i))
	}
	return Response{
		Message: fmt.Sprintf("📦 Found **%d** orders for **%s**:\n\n%s\n👆 Which order would you like details for? (Enter number)",
			len(res.Orders), phone, list.String()),
		NextState:    session.StateTrackingSelectingOrder,
		QuickReplies: replies,
	}
}

func (h *Tracking) byID(ctx context.Context, orderID string, sess *session.Session) Response {
	return h.byIDWithContact(ctx, orderID, sess.UserPhone, sess)
}

func (h *Tracking) byIDWithContact(ctx context.Context, orderID, contact string, sess *session.Session) Response {
	res := h.Backend.OrderDetail(ctx, orderID, contact)
	if res.Error != "" || res.Order == nil {
		lower := strings.ToLower(res.Error)
		if contact == "" && (strings.Contains(lower, "phone") || strings.Contains(lower, "contact")) {
			sess.Tracking().PendingOrderID = orderID
			return Response{
				Message:   "📱 This appears to be a guest order. Please provide the phone number used when placing the order.",
				NextState: session.StateTrackingAwaitingIdentifier,
			}
		}
		slog.Info("Tracking.byID: order not found", "session_id", sess.SessionID, "order_id", orderID, "error", res.Error)
		return Response{
			Message:      fmt.Sprintf("😕 I couldn't find order **%s**. Please check the order ID and try again.", orderID),
			ResetState:   true,
			QuickReplies: []string{"Try Again", "Use Phone Number"},
		}
	}
	return OrderDetail(*res.Order)
}

// OrderDetail renders one order and ends the tracking flow. Amounts are recomputed from the
// item lines: subtotal is unit price times quantity, total adds shipping and takes off the
// discount.
func OrderDetail(o models.Order) Response {
	emoji := models.StatusEmoji(o.Status)
	if emoji == "" {
		emoji = "📋"
	}
	payment := o.PaymentStatus
	if payment == "" {
		payment = "pending"
	}
	addr := models.ParseShippingAddress(o.ShippingAddress)
	subtotal := o.ItemsSubtotal()
	total := o.ComputedTotal()

	var b strings.Builder
	fmt.Fprintf(&b, "**Order #%s** %s\n%s\n\n", o.Number(), emoji, rule)

	b.WriteString("**👤 Customer Details:**\n")
	fmt.Fprintf(&b, "  • Name: %s\n", orNA(addr.Name))
	fmt.Fprintf(&b, "  • Phone: %s\n", orNA(addr.Phone))
	fmt.Fprintf(&b, "  • Location: %s\n", orNA(addr.Location))
	if addr.Landmark != "" {
		fmt.Fprintf(&b, "  • Landmark: %s\n", addr.Landmark)
	}

	b.WriteString("\n**📋 Order Status:**\n")
	fmt.Fprintf(&b, "  • Status: %s\n", o.DisplayStatus())
	fmt.Fprintf(&b, "  • Payment: %s\n", strings.ToUpper(payment[:1])+payment[1:])
	if o.TrackingNumber != "" {
		fmt.Fprintf(&b, "  • Tracking #: %s\n", o.TrackingNumber)
	}
	b.WriteString("\n")

	if len(o.Items) > 0 {
		fmt.Fprintf(&b, "**🛒 Items Ordered (%d):**\n_See product cards below for details_\n", len(o.Items))
	}

	b.WriteString("\n**💰 Price Breakdown:**\n")
	fmt.Fprintf(&b, "  • Subtotal: %s\n", money(subtotal))
	fmt.Fprintf(&b, "  • Delivery Charge: %s\n", money(o.ShippingCost))
	if o.DiscountAmount > 0 {
		fmt.Fprintf(&b, "  • Discount: -%s\n", money(o.DiscountAmount))
	}
	fmt.Fprintf(&b, "  • **Total: %s**\n", money(total))

	if o.CreatedAt != "" {
		fmt.Fprintf(&b, "\n📅 Order Date: %s", models.TruncateRunes(o.CreatedAt, 16))
	}

	if len(o.History) > 0 {
		b.WriteString("\n\n**📍 Timeline:**")
		events := o.History
		if len(events) > timelineEvents {
			events = events[len(events)-timelineEvents:]
		}
		for _, ev := range events {
			action := ev.Action
			if action == "" {
				action = ev.NewValue
			}
			fmt.Fprintf(&b, "\n  • %s - %s", action, models.TruncateRunes(ev.CreatedAt, 10))
		}
	}

	b.WriteString("\n\n" + rule + "\n")
	b.WriteString(statusClosing(o.Status))

	items := o.Items
	if len(items) > maxOrderCards {
		items = items[:maxOrderCards]
	}
	cards := make([]models.Product, 0, len(items))
	for _, it := range items {
		name := it.ProductName
		if name == "" {
			name = "Product"
		}
		cards = append(cards, models.Product{
			ID:          it.ProductID,
			Name:        name,
			Image:       it.ProductImage,
			Price:       it.UnitPrice,
			Quantity:    it.Quantity,
			IsOrderItem: true,
		})
	}

	meta := map[string]any{"order_number": o.Number(), "order_total": total}
	if len(o.Items) == 1 {
		meta["delivery_charge"] = o.ShippingCost
	}
	return Response{
		Message:      b.String(),
		Products:     cards,
		ResetState:   true,
		QuickReplies: []string{"Track Another Order", "Browse Products", "Get Help"},
		Metadata:     meta,
	}
}

func statusClosing(status string) string {
	switch status {
	case "processing", "confirmed", "packed":
		return "🚀 Your order is being processed and will be delivered within **3-5 business days**. Thank you for shopping with us! 💜"
	case "shipped":
		return "🚚 Your order is on the way! Expected delivery within **1-2 days**. Thank you for your patience! 💜"
	case "delivered":
		return "✅ Your order has been delivered! We hope you love your purchase. Thank you for shopping with us! 💜"
	case "cancelled":
		return "❌ This order was cancelled. If you have any questions, please contact our support team."
	default:
		return "📦 Thank you for your order! If you have any questions, feel free to ask. 💜"
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// money renders an amount with paisa, e.g. "Rs. 1,250.00".
func money(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "Rs. -" + b.String() + "." + frac
	}
	return "Rs. " + b.String() + "." + frac
}
