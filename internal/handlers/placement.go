package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/ovnchat/internal/delivery"
	"github.com/BTreeMap/ovnchat/internal/entity"
	"github.com/BTreeMap/ovnchat/internal/intent"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/search"
	"github.com/BTreeMap/ovnchat/internal/security"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
)

// Quantity bounds for one order line.
const (
	MinOrderQuantity = 1
	MaxOrderQuantity = 10
)

const (
	placementSearchLimit = 5
	alternativesLimit    = 8
	recentOptionsLimit   = 4
	listedLocations      = 15
	retryLocations       = 10
	recommendationsLimit = 3
	paymentCOD           = "cod"
)

var (
	buyPhrases     = []string{"yes", "yeah", "yep", "ok", "okay", "sure", "buy it", "order it", "want it", "take it"}
	restartPhrases = []string{"order", "buy", "want to", "search", "find", "show", "cancel", "stop", "exit", "back", "start over"}
	firstChoice    = []string{"first", "top", "top one"}
)

// Placement walks a customer from naming a product to a confirmed cash-on-delivery order.
type Placement struct {
	base
}

// NewPlacement returns the order placement handler.
func NewPlacement(d Deps) *Placement {
	return &Placement{base: newBase(d)}
}

// CanHandle implements Handler.
func (h *Placement) CanHandle(in intent.Intent, state session.State) bool {
	if state == session.StateIdle {
		return in == intent.OrderPlacement
	}
	return session.HandlerGroup(state) == session.GroupOrderPlacement
}

// Handle implements Handler.
func (h *Placement) Handle(ctx context.Context, msg string, sess *session.Session, e Entities) Response {
	switch sess.State {
	case session.StatePlacementAskingProduct:
		return h.searchAndShow(ctx, strings.TrimSpace(msg), sess, sess.Placement())
	case session.StatePlacementSelectingProduct:
		return h.selectProduct(ctx, msg, sess)
	case session.StatePlacementConfirmingProduct:
		return h.confirmProduct(ctx, msg, sess)
	case session.StatePlacementAskingAction:
		return h.chooseAction(msg, sess)
	case session.StatePlacementShowingDetails:
		return h.afterDetails(ctx, msg, sess)
	case session.StatePlacementAwaitingQuantity:
		return h.quantity(msg, sess)
	case session.StatePlacementAwaitingName:
		return h.name(ctx, msg, sess)
	case session.StatePlacementAwaitingPhone:
		return h.phone(ctx, msg, sess, e)
	case session.StatePlacementSelectingDistrict:
		return h.district(ctx, msg, sess, e)
	case session.StatePlacementSelectingLocation:
		return h.location(msg, sess)
	case session.StatePlacementAwaitingLandmark:
		return h.landmark(msg, sess)
	case session.StatePlacementConfirming:
		return h.confirmOrder(ctx, msg, sess)
	default:
		return h.start(ctx, msg, sess, sess.Placement())
	}
}

// hasPhrase matches phrase on word boundaries.
func hasPhrase(lower, phrase string) bool {
	padded := " " + strings.Join(strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'' || r > 127)
	}), " ") + " "
	return strings.Contains(padded, " "+phrase+" ")
}

func hasAnyPhrase(lower string, phrases []string) bool {
	for _, p := range phrases {
		if hasPhrase(lower, p) {
			return true
		}
	}
	return false
}

// start opens the flow, filling pc with the product the customer picks.
func (h *Placement) start(ctx context.Context, msg string, sess *session.Session, pc *session.PlacementContext) Response {
	lower := strings.ToLower(msg)

	if len(sess.LastViewedProducts) > 0 && hasAnyPhrase(lower, buyPhrases) {
		p := sess.LastViewedProducts[0]
		pc.Product = &p
		return Response{
			Message:   fmt.Sprintf("👍 You want to order:\n\n%s\n\nIs this correct? 🤔", productCard(p)),
			Products:  []models.Product{p},
			NextState: session.StatePlacementConfirmingProduct,
		}
	}

	if keywords := entity.ProductKeywords(msg); len(keywords) > 0 {
		return h.searchAndShow(ctx, strings.Join(keywords, " "), sess, pc)
	}

	if len(sess.LastViewedProducts) > 0 {
		options := sess.LastViewedProducts
		if len(options) > recentOptionsLimit {
			options = options[:recentOptionsLimit]
		}
		pc.ProductOptions = append([]models.Product(nil), options...)
		return Response{
			Message:   "🛒 Which product would you like to order?\n\nHere are some products you recently viewed:",
			Products:  pc.ProductOptions,
			NextState: session.StatePlacementSelectingProduct,
		}
	}

	return Response{
		Message:   "🛒 I'd love to help you place an order!\n\nWhat product would you like to order? Please tell me the name of the product. 🔍",
		NextState: session.StatePlacementAskingProduct,
	}
}

func (h *Placement) searchAndShow(ctx context.Context, query string, sess *session.Session, pc *session.PlacementContext) Response {
	products := search.KeywordSearch(h.products(ctx), query, 0, placementSearchLimit)
	slog.Debug("Placement.searchAndShow", "session_id", sess.SessionID, "query", query, "results", len(products))

	switch {
	case len(products) == 1:
		p := products[0]
		pc.Product = &p
		return Response{
			Message:   fmt.Sprintf("✨ I found this product:\n\n%s\n\nIs this what you're looking for? 🤔", productCard(p)),
			Products:  products,
			NextState: session.StatePlacementConfirmingProduct,
		}
	case len(products) > 1:
		pc.ProductOptions = products
		return Response{
			Message: fmt.Sprintf("🔍 I found %d products matching '%s':\n\n%s\n\n👆 Please type a number (1-%d) to select, or click on a product.",
				len(products), query, numberedNames(products), len(products)),
			Products:  products,
			NextState: session.StatePlacementSelectingProduct,
		}
	}
	return Response{
		Message:   fmt.Sprintf("😕 Sorry, I couldn't find any products matching '%s'.\n\nPlease try a different product name or describe what you're looking for. 🔍", query),
		NextState: session.StatePlacementAskingProduct,
	}
}

func (h *Placement) selected(sess *session.Session, p models.Product) Response {
	sess.Placement().Product = &p
	return Response{
		Message:   fmt.Sprintf("👍 You selected:\n\n%s\n\nIs this the product you want? 🤔", productCard(p)),
		Products:  []models.Product{p},
		NextState: session.StatePlacementConfirmingProduct,
	}
}

func (h *Placement) selectProduct(ctx context.Context, msg string, sess *session.Session) Response {
	options := sess.Placement().ProductOptions
	lower := strings.ToLower(strings.TrimSpace(msg))

	if d := digitsOf(msg); d != "" {
		if n, err := strconv.Atoi(d); err == nil && n >= 1 && n <= len(options) {
			return h.selected(sess, options[n-1])
		}
	}
	if len(options) > 0 && (hasAnyPhrase(lower, firstChoice) || h.isConfirmation(ctx, lower)) {
		return h.selected(sess, options[0])
	}
	if lower != "" {
		for _, p := range options {
			if strings.Contains(strings.ToLower(p.Name), lower) {
				return h.selected(sess, p)
			}
		}
	}
	return h.searchAndShow(ctx, strings.TrimSpace(msg), sess, sess.Placement())
}

func (h *Placement) confirmProduct(ctx context.Context, msg string, sess *session.Session) Response {
	pc := sess.Placement()
	if h.isConfirmation(ctx, msg) {
		return Response{
			Message: fmt.Sprintf("🎉 Great! I can help you with **%s**.\n\nWhat would you like to do?\n"+
				"1️⃣ **See more details** about this product\n2️⃣ **Buy it now** - I'll help you place an order\n\n"+
				"Just type '1' for details or '2' to buy. 👇", productName(pc.Product, 40)),
			Products:  productSlice(pc.Product),
			NextState: session.StatePlacementAskingAction,
		}
	}
	if h.isRejection(ctx, msg) {
		alternatives := h.products(ctx)
		if len(alternatives) > alternativesLimit {
			alternatives = alternatives[:alternativesLimit]
		}
		pc.ProductOptions = alternatives
		return Response{
			Message: fmt.Sprintf("👌 No problem! Here are some other products:\n\n%s\n\n"+
				"👆 Click on a product or type its number to select it.\nOr tell me what product you're looking for. 🔍", numberedNames(alternatives)),
			Products:  alternatives,
			NextState: session.StatePlacementSelectingProduct,
		}
	}
	return Response{
		Message:   "🤔 Is this the product you're looking for? (Yes/No)",
		NextState: session.StatePlacementConfirmingProduct,
	}
}

func (h *Placement) chooseAction(msg string, sess *session.Session) Response {
	lower := strings.ToLower(strings.TrimSpace(msg))
	pc := sess.Placement()
	if strings.Contains(msg, "2") || strings.Contains(lower, "buy") || strings.Contains(lower, "order") || strings.Contains(lower, "yes") {
		return h.checkout(pc)
	}
	if strings.Contains(msg, "1") || strings.Contains(lower, "detail") || strings.Contains(lower, "more") {
		return Response{
			Message:   productDetails(pc.Product) + "\n\n🛒 Would you like to order this product?",
			Products:  productSlice(pc.Product),
			NextState: session.StatePlacementShowingDetails,
		}
	}
	return Response{
		Message:   "👇 Please choose:\n1️⃣ See more details\n2️⃣ Buy now\n\nType 1 or 2",
		NextState: session.StatePlacementAskingAction,
	}
}

func (h *Placement) afterDetails(ctx context.Context, msg string, sess *session.Session) Response {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "buy") || strings.Contains(lower, "order") || strings.Contains(lower, "yes") || h.isConfirmation(ctx, msg) {
		return h.checkout(sess.Placement())
	}
	if h.isRejection(ctx, msg) {
		return Response{
			Message:    "👌 No problem! Is there anything else I can help you with? 😊",
			ResetState: true,
		}
	}
	return Response{
		Message:   "🛒 Would you like to order this product? (Yes/No)",
		NextState: session.StatePlacementShowingDetails,
	}
}

func (h *Placement) checkout(pc *session.PlacementContext) Response {
	var price float64
	if pc.Product != nil {
		price = pc.Product.Price
	}
	return Response{
		Message: fmt.Sprintf("🛍️ Let's place your order for **%s**!\n\n💰 **Price:** %s\n\nHow many would you like to order? 🔢",
			productName(pc.Product, 40), models.FormatPrice(price)),
		Products:  productSlice(pc.Product),
		NextState: session.StatePlacementAwaitingQuantity,
	}
}

// parseQuantity reads a plain number, then digits inside text, then a number word. Anything
// unreadable counts as one.
func parseQuantity(msg string) int {
	text := strings.TrimSpace(msg)
	if n, err := strconv.Atoi(text); err == nil {
		return n
	}
	if d := digitsOf(text); d != "" {
		if n, err := strconv.Atoi(d); err == nil {
			return n
		}
	}
	if n := entity.Quantity(text); n > 0 {
		return n
	}
	return 1
}

func (h *Placement) quantity(msg string, sess *session.Session) Response {
	q := parseQuantity(msg)
	if q < MinOrderQuantity {
		q = MinOrderQuantity
	}
	if q > MaxOrderQuantity {
		return Response{
			Message:   fmt.Sprintf("⚠️ Maximum quantity is %d per order. Please enter a quantity between %d-%d.", MaxOrderQuantity, MinOrderQuantity, MaxOrderQuantity),
			NextState: session.StatePlacementAwaitingQuantity,
		}
	}
	pc := sess.Placement()
	pc.Quantity = q

	head := fmt.Sprintf("✅ **Quantity:** %d (Subtotal: %s)\n\n", q, models.FormatPrice(pc.Subtotal()))
	if session.CanSkip(session.StatePlacementAwaitingName, sess) {
		return Response{
			Message:      head + fmt.Sprintf("👤 I have your name as **%s**.\nShould I use this name for delivery?", sess.UserName),
			NextState:    session.StatePlacementAwaitingName,
			QuickReplies: []string{"Yes", "No, use different"},
		}
	}
	return Response{
		Message:   head + "👤 Please enter your **full name** for delivery:",
		NextState: session.StatePlacementAwaitingName,
	}
}

func (h *Placement) name(ctx context.Context, msg string, sess *session.Session) Response {
	pc := sess.Placement()
	if sess.UserName != "" && h.isConfirmation(ctx, msg) {
		pc.CustomerName = sess.UserName
	} else {
		name := strings.TrimSpace(msg)
		if len([]rune(name)) < 2 {
			return Response{
				Message:   "⚠️ Please enter a valid name for delivery.",
				NextState: session.StatePlacementAwaitingName,
			}
		}
		pc.CustomerName = name
		h.remember(ctx, sess, session.Memory{Name: name})
	}

	if session.CanSkip(session.StatePlacementAwaitingPhone, sess) {
		return Response{
			Message:      fmt.Sprintf("📱 Should I use phone number **%s**?", sess.UserPhone),
			NextState:    session.StatePlacementAwaitingPhone,
			QuickReplies: []string{"Yes", "No, use different"},
		}
	}
	return Response{
		Message:   "📱 Please enter your **10-digit mobile number**:",
		NextState: session.StatePlacementAwaitingPhone,
	}
}

func (h *Placement) phone(ctx context.Context, msg string, sess *session.Session, e Entities) Response {
	pc := sess.Placement()
	if sess.UserPhone != "" && h.isConfirmation(ctx, msg) {
		pc.ContactNumber = sess.UserPhone
		return h.showDistricts(sess)
	}

	phone := e.Phone()
	if phone == "" {
		phone = security.NormalizePhone(strings.TrimSpace(msg))
	}
	if phone == "" {
		if d := digitsOf(msg); len(d) == 10 {
			phone = d
		}
	}
	if len(phone) != 10 {
		return Response{
			Message:   "⚠️ Please enter a valid 10-digit mobile number.",
			NextState: session.StatePlacementAwaitingPhone,
		}
	}
	pc.ContactNumber = phone
	h.remember(ctx, sess, session.Memory{Phone: phone})
	return h.showDistricts(sess)
}

func (h *Placement) showDistricts(sess *session.Session) Response {
	pc := sess.Placement()
	districts := h.Delivery.Districts()
	if len(districts) == 0 {
		return Response{
			Message:   "📍 Please enter your **delivery address** (District, City/Area):",
			NextState: session.StatePlacementAwaitingLandmark,
		}
	}
	pc.AvailableDistricts = districts

	var list []string
	for _, d := range h.Delivery.Popular() {
		list = append(list, "📍 "+d)
	}
	resp := Response{
		Message: fmt.Sprintf("🗺️ **Select your district for delivery:**\n\nPopular districts:\n%s\n\n"+
			"👆 Type your district name (e.g., 'Kathmandu', 'Chitwan').\n🚚 We deliver to all 77 districts of Nepal!", strings.Join(list, "\n")),
		NextState: session.StatePlacementSelectingDistrict,
	}
	if session.CanSkip(session.StatePlacementSelectingDistrict, sess) {
		last, _, _ := strings.Cut(sess.UserLocation, ",")
		resp.QuickReplies = []string{strings.TrimSpace(last)}
	}
	return resp
}

func (h *Placement) district(ctx context.Context, msg string, sess *session.Session, e Entities) Response {
	lower := strings.ToLower(strings.TrimSpace(msg))
	if hasAnyPhrase(lower, restartPhrases) && !h.Delivery.MentionsLocation(lower) {
		slog.Debug("Placement.district: restarting flow", "session_id", sess.SessionID)
		fresh := &session.PlacementContext{}
		resp := h.start(ctx, msg, sess, fresh)
		resp.ResetState, resp.Context = true, fresh
		return resp
	}

	pc := sess.Placement()
	place := delivery.ExtractPlace(msg)

	district, ok := h.Delivery.FindDistrict(place)
	if !ok {
		if loc, found := h.Delivery.FindLocation(place); found {
			pc.District, pc.Location, pc.DeliveryCharge = loc.District, loc.Location, loc.Rate
			return Response{
				Message:   fmt.Sprintf("📍 **Location:** %s, %s\n🚚 **Delivery Charge:** %s\n\n%s", loc.Location, loc.District, models.FormatPrice(loc.Rate), landmarkPrompt),
				NextState: session.StatePlacementAwaitingLandmark,
			}
		}
		return Response{
			Message:   fmt.Sprintf("⚠️ Location '%s' not found. Please enter a valid district or city name.\n\nExamples: Kathmandu, Lalitpur, Chitwan, Hetauda, Bharatpur, etc.", place),
			NextState: session.StatePlacementSelectingDistrict,
		}
	}

	pc.District = district
	locations := h.Delivery.Locations(district)
	switch len(locations) {
	case 0:
		pc.Location, pc.DeliveryCharge = district, delivery.DefaultRate
		return Response{
			Message:   fmt.Sprintf("📍 **District:** %s\n🚚 **Delivery Charge:** %s\n\n%s", district, models.FormatPrice(pc.DeliveryCharge), landmarkPrompt),
			NextState: session.StatePlacementAwaitingLandmark,
		}
	case 1:
		loc := locations[0]
		pc.Location, pc.DeliveryCharge = loc.Location, loc.Rate
		return Response{
			Message: fmt.Sprintf("📍 **District:** %s\n📍 **Location:** %s\n🚚 **Delivery Charge:** %s\n\n%s",
				district, loc.Location, models.FormatPrice(loc.Rate), landmarkPrompt),
			NextState: session.StatePlacementAwaitingLandmark,
		}
	}

	pc.AvailableLocations = locations
	return Response{
		Message: fmt.Sprintf("✅ **District:** %s\n\n🗺️ Select your location (with delivery rates):\n\n%s\n\n👆 Type your location name:",
			district, locationList(locations, listedLocations)),
		NextState: session.StatePlacementSelectingLocation,
	}
}

const landmarkPrompt = "🏠 Please enter any **landmark** near your delivery address\n(or type 'skip' if none):"

func (h *Placement) location(msg string, sess *session.Session) Response {
	pc := sess.Placement()
	loc, ok := delivery.MatchLocation(pc.AvailableLocations, msg)
	if !ok {
		return Response{
			Message:   "⚠️ Location not found. Please select from:\n\n" + locationList(pc.AvailableLocations, retryLocations),
			NextState: session.StatePlacementSelectingLocation,
		}
	}
	pc.Location, pc.DeliveryCharge = loc.Location, loc.Rate
	return Response{
		Message:   fmt.Sprintf("📍 **Location:** %s\n🚚 **Delivery Charge:** %s\n\n%s", loc.Location, models.FormatPrice(loc.Rate), landmarkPrompt),
		NextState: session.StatePlacementAwaitingLandmark,
	}
}

func (h *Placement) landmark(msg string, sess *session.Session) Response {
	pc := sess.Placement()
	if isSkip(msg) {
		pc.Landmark = ""
	} else {
		pc.Landmark = strings.TrimSpace(msg)
	}
	if pc.DeliveryCharge == 0 && pc.District == "" {
		// Free-text address when no rate table is loaded.
		pc.DeliveryCharge = delivery.DefaultRate
	}
	return Response{
		Message:   OrderSummary(pc),
		Products:  productSlice(pc.Product),
		NextState: session.StatePlacementConfirming,
	}
}

// deliveryAddress joins location and district the way the shop stores addresses.
func deliveryAddress(pc *session.PlacementContext) string {
	if pc.District == "" || pc.District == pc.Location {
		return pc.Location
	}
	return pc.Location + ", " + pc.District
}

// OrderSummary renders the order for final confirmation.
func OrderSummary(pc *session.PlacementContext) string {
	q := max(pc.Quantity, 1)
	var price float64
	if pc.Product != nil {
		price = pc.Product.Price
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n📋 **ORDER SUMMARY**\n%s\n\n", rule, rule)
	fmt.Fprintf(&b, "🛍️ **Product:** %s\n", productName(pc.Product, 45))
	fmt.Fprintf(&b, "🔢 **Quantity:** %d\n", q)
	fmt.Fprintf(&b, "💰 **Price:** %s × %d = %s\n\n", models.FormatPrice(price), q, models.FormatPrice(pc.Subtotal()))

	b.WriteString("📦 **Delivery Details:**\n")
	fmt.Fprintf(&b, "  👤 Name: %s\n", pc.CustomerName)
	fmt.Fprintf(&b, "  📱 Phone: %s\n", pc.ContactNumber)
	fmt.Fprintf(&b, "  📍 District: %s\n", pc.District)
	fmt.Fprintf(&b, "  📍 Location: %s\n", pc.Location)
	if pc.Landmark != "" {
		fmt.Fprintf(&b, "  🏠 Landmark: %s\n", pc.Landmark)
	}

	b.WriteString("\n💳 **Payment Details:**\n")
	fmt.Fprintf(&b, "  • Subtotal: %s\n", models.FormatPrice(pc.Subtotal()))
	fmt.Fprintf(&b, "  • Delivery: %s\n", models.FormatPrice(pc.DeliveryCharge))
	fmt.Fprintf(&b, "  • **Total: %s** 💵\n", models.FormatPrice(pc.Total()))
	b.WriteString("  • Method: Cash on Delivery 💰\n")
	fmt.Fprintf(&b, "\n%s\n✅ **Confirm this order?** (Yes/No)", rule)
	return b.String()
}

func (h *Placement) confirmOrder(ctx context.Context, msg string, sess *session.Session) Response {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "cancel") || h.isRejection(ctx, msg) {
		return Response{
			Message:    "❌ Order cancelled. Is there anything else I can help you with? 😊",
			ResetState: true,
		}
	}
	if strings.Contains(lower, "confirm") || h.isConfirmation(ctx, msg) {
		return h.placeOrder(ctx, sess)
	}
	return Response{
		Message:   "🤔 Please type 'Yes' to confirm your order or 'No' to cancel.",
		NextState: session.StatePlacementConfirming,
	}
}

func (h *Placement) placeOrder(ctx context.Context, sess *session.Session) Response {
	pc := sess.Placement()
	if pc.Product == nil {
		return Response{
			Message:      models.FriendlyError(models.ErrorKindOrderFailed, false),
			ResetState:   true,
			QuickReplies: models.ErrorQuickReplies(models.ErrorKindOrderFailed),
		}
	}
	q := max(pc.Quantity, 1)
	where := deliveryAddress(pc)

	res := h.Backend.CreateOrder(ctx, models.OrderRequest{
		CustomerName:   pc.CustomerName,
		ContactNumber:  pc.ContactNumber,
		Location:       where,
		Landmark:       pc.Landmark,
		PaymentMethod:  paymentCOD,
		Email:          sess.UserEmail,
		DeliveryCharge: pc.DeliveryCharge,
		Items:          []models.OrderItemRequest{{ProductID: pc.Product.ID, Quantity: q}},
	})
	if !res.Success {
		errText := res.Error
		if errText == "" {
			errText = "Unknown error"
		}
		slog.Warn("Placement.placeOrder: order failed", "session_id", sess.SessionID, "error", errText)
		return Response{
			Message:    fmt.Sprintf("😔 Sorry, there was an error placing your order:\n%s\n\nPlease try again or contact support. 📞", errText),
			ResetState: true,
		}
	}

	number := res.OrderNumber
	if number == "" {
		number = res.OrderID
	}
	if number == "" {
		number = "N/A"
	}
	slog.Info("Placement.placeOrder: order placed", "session_id", sess.SessionID, "order_number", number, "total", pc.Total())

	h.record(ctx, store.EventOrderPlaced, sess, intent.OrderPlacement, map[string]any{
		"order_number": number,
		"product_id":   pc.Product.ID,
		"quantity":     q,
		"total":        pc.Total(),
	})
	h.remember(ctx, sess, session.Memory{Name: pc.CustomerName, Location: where, Landmark: pc.Landmark})
	if h.Memory != nil && pc.ContactNumber != "" {
		orderID := res.OrderID
		if orderID == "" {
			orderID = number
		}
		if err := h.Memory.RecordOrder(ctx, pc.ContactNumber, orderID, pc.Total(), pc.Product.Category); err != nil {
			slog.Warn("Placement.placeOrder: memory write failed", "session_id", sess.SessionID, "error", err)
		}
	}
	sess.Preferences.ReturningCustomer = true
	sess.Preferences.TotalOrders++

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n🎉 **ORDER PLACED SUCCESSFULLY!** ✅\n%s\n\n", rule, rule)
	fmt.Fprintf(&b, "🔖 **Order Number:** #%s\n\n", number)
	b.WriteString("📦 **Order Details:**\n")
	fmt.Fprintf(&b, "  🛍️ Product: %s\n", productName(pc.Product, 40))
	fmt.Fprintf(&b, "  🔢 Quantity: %d\n", q)
	fmt.Fprintf(&b, "  💰 Subtotal: %s\n", models.FormatPrice(pc.Subtotal()))
	fmt.Fprintf(&b, "  🚚 Delivery: %s\n", models.FormatPrice(pc.DeliveryCharge))
	fmt.Fprintf(&b, "  💵 **Total: %s**\n\n", models.FormatPrice(pc.Total()))
	b.WriteString("📍 **Delivery To:**\n")
	fmt.Fprintf(&b, "  👤 %s\n  📱 %s\n  📍 %s\n", pc.CustomerName, pc.ContactNumber, where)
	if pc.Landmark != "" {
		fmt.Fprintf(&b, "  🏠 Near: %s\n", pc.Landmark)
	}
	b.WriteString("\n💰 **Payment:** Cash on Delivery\n📅 **Estimated Delivery:** 3-5 business days\n\n")
	fmt.Fprintf(&b, "📝 Save your order number **#%s** to track your order!\n\n🙏 Thank you for shopping with OVN Store! 💜", number)

	if products := h.products(ctx); len(products) > 0 {
		rec := search.NewRecommender(products)
		if more := rec.Format(rec.AfterPurchase(*pc.Product, recommendationsLimit, nil), ""); more != "" {
			b.WriteString("\n\n" + more)
		}
	}

	return Response{
		Message:      b.String(),
		ResetState:   true,
		QuickReplies: []string{"Track Order", "Browse More", "Get Help"},
		Metadata:     map[string]any{"order_number": number, "order_id": res.OrderID},
	}
}


func productSlice(p *models.Product) []models.Product {
	if p == nil {
		return nil
	}
	return []models.Product{*p}
}

func numberedNames(products []models.Product) string {
	lines := make([]string, len(products))
	for i, p := range products {
		lines[i] = fmt.Sprintf("**%d.** %s", i+1, models.TruncateRunes(p.Name, 50))
	}
	return strings.Join(lines, "\n")
}

func locationList(locations []delivery.Entry, n int) string {
	if len(locations) > n {
		locations = locations[:n]
	}
	lines := make([]string, len(locations))
	for i, l := range locations {
		lines[i] = fmt.Sprintf("📍 %s - %s", l.Location, models.FormatPrice(l.Rate))
	}
	return strings.Join(lines, "\n")
}

func ratingStars(rating float64) string {
	n := min(max(int(rating), 0), 5)
	return strings.Repeat("⭐", n) + strings.Repeat("☆", 5-n)
}

// productCard is the short product block shown while choosing.
func productCard(p models.Product) string {
	text := fmt.Sprintf("🛍️ **%s**\n💰 Price: **%s**", productName(&p, 80), models.FormatPrice(p.Price))
	if p.Rating > 0 {
		text += fmt.Sprintf("\n⭐ Rating: %s (%.1f)", ratingStars(p.Rating), p.Rating)
	}
	return text
}

func productDetails(p *models.Product) string {
	if p == nil {
		return "No description available."
	}
	desc := p.Description
	if desc == "" {
		desc = "No description available."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n🛍️ **%s**\n%s\n\n", rule, p.Name, rule)
	fmt.Fprintf(&b, "💰 **Price:** %s\n", models.FormatPrice(p.Price))
	if p.Rating > 0 {
		fmt.Fprintf(&b, "⭐ **Rating:** %s (%.1f) - %d reviews\n", ratingStars(p.Rating), p.Rating, p.ReviewCount)
	}
	fmt.Fprintf(&b, "\n📝 **Description:**\n%s", models.TruncateRunes(desc, 300))
	if len([]rune(desc)) > 300 {
		b.WriteString("...")
	}
	return b.String()
}
