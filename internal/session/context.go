package session

import (
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/ovnchat/internal/delivery"
	"github.com/BTreeMap/ovnchat/internal/models"
)

// FlowContext is the data gathered by the active flow. Exactly one variant is live at a time:
// *PlacementContext, *TrackingContext, *SupportContext or *ReviewContext.
type FlowContext interface {
	Group() Group
}

// PlacementContext accumulates an order being placed.
type PlacementContext struct {
	ProductOptions     []models.Product `json:"product_options,omitempty"`
	Product            *models.Product  `json:"selected_product,omitempty"`
	Quantity           int              `json:"quantity,omitempty"`
	CustomerName       string           `json:"customer_name,omitempty"`
	ContactNumber      string           `json:"contact_number,omitempty"`
	AvailableDistricts []string         `json:"available_districts,omitempty"`
	District           string           `json:"selected_district,omitempty"`
	AvailableLocations []delivery.Entry `json:"available_locations,omitempty"`
	Location           string           `json:"selected_location,omitempty"`
	DeliveryCharge     float64          `json:"delivery_charge,omitempty"`
	Landmark           string           `json:"landmark,omitempty"`
}

// Group implements FlowContext.
func (*PlacementContext) Group() Group { return GroupOrderPlacement }

// Subtotal is unit price times quantity.
func (c *PlacementContext) Subtotal() float64 {
	if c.Product == nil {
		return 0
	}
	q := c.Quantity
	if q < 1 {
		q = 1
	}
	return c.Product.Price * float64(q)
}

// Total adds the delivery charge to the subtotal.
func (c *PlacementContext) Total() float64 {
	return c.Subtotal() + c.DeliveryCharge
}

// TrackingContext holds orders found while tracking.
type TrackingContext struct {
	Orders         []models.Order `json:"orders,omitempty"`
	PendingOrderID string         `json:"pending_order_id,omitempty"`
}

// Group implements FlowContext.
func (*TrackingContext) Group() Group { return GroupOrderTracking }

// SupportContext accumulates a support ticket.
type SupportContext struct {
	Category string `json:"category,omitempty"`
	Message  string `json:"message,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Group implements FlowContext.
func (*SupportContext) Group() Group { return GroupSupport }

// Review actions.
const (
	ReviewActionView   = "view"
	ReviewActionSubmit = "submit"
)

// ReviewContext accumulates a product review.
type ReviewContext struct {
	Action         string           `json:"review_action,omitempty"`
	ProductOptions []models.Product `json:"product_options,omitempty"`
	Product        *models.Product  `json:"product,omitempty"`
	OrderID        string           `json:"order_id,omitempty"`
	Rating         int              `json:"rating,omitempty"`
	Title          string           `json:"title,omitempty"`
	Comment        string           `json:"comment,omitempty"`
}

// Group implements FlowContext.
func (*ReviewContext) Group() Group { return GroupReview }

// newContext returns an empty variant for g, or nil for GroupNone.
func newContext(g Group) FlowContext {
	switch g {
	case GroupOrderPlacement:
		return &PlacementContext{}
	case GroupOrderTracking:
		return &TrackingContext{}
	case GroupSupport:
		return &SupportContext{}
	case GroupReview:
		return &ReviewContext{}
	}
	return nil
}

// contextEnvelope is the persisted form of a FlowContext.
type contextEnvelope struct {
	Flow Group           `json:"flow"`
	Data json.RawMessage `json:"data"`
}

func encodeContext(c FlowContext) (json.RawMessage, error) {
	if c == nil {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contextEnvelope{Flow: c.Group(), Data: data})
}

func decodeContext(raw json.RawMessage) (FlowContext, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env contextEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	c := newContext(env.Flow)
	if c == nil {
		return nil, fmt.Errorf("unknown flow %q", env.Flow)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, c); err != nil {
			return nil, err
		}
	}
	return c, nil
}
