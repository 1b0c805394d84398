// Package session holds per-customer conversation state: the finite state machine that drives
// multi-step flows, the typed flow contexts, remembered customer details, and a sharded
// in-memory cache backed by the store.
package session

import (
	"slices"
	"strings"
)

// State is a conversation state. The string values are persisted.
type State string

const (
	StateIdle State = "idle"

	StateTrackingStart              State = "order_tracking_start"
	StateTrackingAwaitingIdentifier State = "order_tracking_awaiting_identifier"
	StateTrackingSelectingOrder     State = "order_tracking_selecting_order"

	StatePlacementStart             State = "order_placement_start"
	StatePlacementAskingProduct     State = "order_placement_asking_product"
	StatePlacementSelectingProduct  State = "order_placement_selecting_product"
	StatePlacementConfirmingProduct State = "order_placement_confirming_product"
	StatePlacementAskingAction      State = "order_placement_asking_action"
	StatePlacementShowingDetails    State = "order_placement_showing_details"
	StatePlacementAwaitingQuantity  State = "order_placement_awaiting_quantity"
	StatePlacementAwaitingName      State = "order_placement_awaiting_name"
	StatePlacementAwaitingPhone     State = "order_placement_awaiting_phone"
	StatePlacementSelectingDistrict State = "order_placement_selecting_district"
	StatePlacementSelectingLocation State = "order_placement_selecting_location"
	StatePlacementAwaitingLandmark  State = "order_placement_awaiting_landmark"
	StatePlacementConfirming        State = "order_placement_confirming"

	StateSupportStart            State = "support_start"
	StateSupportAwaitingCategory State = "support_awaiting_category"
	StateSupportAwaitingDetails  State = "support_awaiting_details"
	StateSupportAwaitingEmail    State = "support_awaiting_email"
	StateSupportConfirming       State = "support_confirming"

	StateReviewSelectingProduct State = "review_selecting_product"
	StateReviewAwaitingRating   State = "review_awaiting_rating"
	StateReviewAwaitingTitle    State = "review_awaiting_title"
	StateReviewAwaitingComment  State = "review_awaiting_comment"
	StateReviewConfirming       State = "review_confirming"
)

// Group names a flow; every non-idle state belongs to exactly one.
type Group string

const (
	GroupNone           Group = ""
	GroupOrderTracking  Group = "order_tracking"
	GroupOrderPlacement Group = "order_placement"
	GroupSupport        Group = "support"
	GroupReview         Group = "review"
)

// Flows in step order. NextState and PreviousState walk these lists.
var (
	trackingFlow = []State{
		StateTrackingStart,
		StateTrackingAwaitingIdentifier,
		StateTrackingSelectingOrder,
	}
	placementFlow = []State{
		StatePlacementStart,
		StatePlacementAskingProduct,
		StatePlacementSelectingProduct,
		StatePlacementConfirmingProduct,
		StatePlacementAskingAction,
		StatePlacementShowingDetails,
		StatePlacementAwaitingQuantity,
		StatePlacementAwaitingName,
		StatePlacementAwaitingPhone,
		StatePlacementSelectingDistrict,
		StatePlacementSelectingLocation,
		StatePlacementAwaitingLandmark,
		StatePlacementConfirming,
	}
	supportFlow = []State{
		StateSupportStart,
		StateSupportAwaitingCategory,
		StateSupportAwaitingDetails,
		StateSupportAwaitingEmail,
		StateSupportConfirming,
	}
	reviewFlow = []State{
		StateReviewSelectingProduct,
		StateReviewAwaitingRating,
		StateReviewAwaitingTitle,
		StateReviewAwaitingComment,
		StateReviewConfirming,
	}
)

var groupOf = func() map[State]Group {
	m := make(map[State]Group)
	for _, s := range trackingFlow {
		m[s] = GroupOrderTracking
	}
	for _, s := range placementFlow {
		m[s] = GroupOrderPlacement
	}
	for _, s := range supportFlow {
		m[s] = GroupSupport
	}
	for _, s := range reviewFlow {
		m[s] = GroupReview
	}
	return m
}()

// ParseState maps a persisted value to a State. Unknown values decode to StateIdle.
func ParseState(v string) State {
	s := State(v)
	if _, ok := groupOf[s]; ok {
		return s
	}
	return StateIdle
}

// HandlerGroup returns the flow owning s, or GroupNone for idle and unknown states.
func HandlerGroup(s State) Group {
	return groupOf[s]
}

// IsInFlow reports whether the session is inside a multi-step flow.
func IsInFlow(sess *Session) bool {
	return sess.State != StateIdle
}

var (
	cancelKeywords  = []string{"cancel", "stop", "nevermind", "never mind", "quit", "exit", "go back", "start over"}
	confirmExact    = []string{"yes", "y", "yeah", "yep", "ok", "okay", "sure", "confirm"}
	confirmKeywords = []string{"yes", "yeah", "yep", "sure", "ok", "okay", "confirm", "correct", "right", "proceed"}
	rejectExact     = []string{"no", "n", "nope", "nah", "cancel"}
	rejectKeywords  = []string{"no", "nope", "nah", "wrong", "incorrect", "change", "different"}
)

// ShouldCancel reports whether message asks to abandon the current flow.
func ShouldCancel(message string) bool {
	return containsAny(normalize(message), cancelKeywords)
}

// IsConfirmation reports whether message agrees. Exact short answers are checked first.
func IsConfirmation(message string) bool {
	m := normalize(message)
	if slices.Contains(confirmExact, m) {
		return true
	}
	return containsAny(m, confirmKeywords)
}

// IsRejection reports whether message declines. Exact short answers are checked first.
func IsRejection(message string) bool {
	m := normalize(message)
	if slices.Contains(rejectExact, m) {
		return true
	}
	return containsAny(m, rejectKeywords)
}

func normalize(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}

// containsAny matches keywords on word boundaries, so "no" does not fire inside "know".
func containsAny(message string, keywords []string) bool {
	padded := " " + strings.Join(strings.FieldsFunc(message, isSeparator), " ") + " "
	for _, kw := range keywords {
		if strings.Contains(padded, " "+kw+" ") {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
		return false
	case r > 127:
		return false
	}
	return true
}

func flowOf(s State) []State {
	switch groupOf[s] {
	case GroupOrderTracking:
		return trackingFlow
	case GroupOrderPlacement:
		return placementFlow
	case GroupSupport:
		return supportFlow
	case GroupReview:
		return reviewFlow
	}
	return nil
}

// NextState returns the step after s in its flow, or StateIdle at the end of a flow.
func NextState(s State) State {
	flow := flowOf(s)
	i := slices.Index(flow, s)
	if i < 0 || i == len(flow)-1 {
		return StateIdle
	}
	return flow[i+1]
}

// PreviousState returns the step before s in its flow, or StateIdle at the start of a flow.
func PreviousState(s State) State {
	flow := flowOf(s)
	i := slices.Index(flow, s)
	if i <= 0 {
		return StateIdle
	}
	return flow[i-1]
}

// CanSkip reports whether sess already holds the answer the state would ask for.
func CanSkip(s State, sess *Session) bool {
	switch s {
	case StatePlacementAwaitingName:
		return sess.UserName != ""
	case StatePlacementAwaitingPhone:
		return sess.UserPhone != ""
	case StatePlacementSelectingDistrict:
		return sess.UserLocation != ""
	case StateSupportAwaitingEmail:
		return sess.UserEmail != ""
	}
	return false
}

var prompts = map[State]string{
	StateTrackingAwaitingIdentifier: "Please provide your **order ID** or **phone number** to track your order.",
	StateTrackingSelectingOrder:     "Which order would you like to see details for?",
	StatePlacementSelectingProduct:  "Which product would you like to order?",
	StatePlacementConfirmingProduct: "Would you like to order this product?",
	StatePlacementAwaitingQuantity:  "How many would you like? (Default: 1)",
	StatePlacementAwaitingName:      "What is your name for the delivery?",
	StatePlacementAwaitingPhone:     "Please provide your phone number (10 digits).",
	StatePlacementSelectingDistrict: "Select your district for delivery.",
	StatePlacementSelectingLocation: "Select your location within the district.",
	StatePlacementAwaitingLandmark:  "Any nearby landmark? (Type 'skip' if none)",
	StatePlacementConfirming:        "Please confirm your order. Type 'yes' to place or 'no' to cancel.",
	StateSupportAwaitingCategory:    "What type of issue do you have?\n1. Order Issue\n2. Product Question\n3. Complaint\n4. Return/Refund\n5. Other",
	StateSupportAwaitingDetails:     "Please describe your issue in detail.",
	StateSupportAwaitingEmail:       "What's your email address so we can respond?",
	StateSupportConfirming:          "Submit this support request?",
	StateReviewSelectingProduct:     "Which product would you like to review?",
	StateReviewAwaitingRating:       "How would you rate this product? (1-5 stars)",
	StateReviewAwaitingTitle:        "Give your review a short title.",
	StateReviewAwaitingComment:      "Write your review comment.",
	StateReviewConfirming:           "Submit this review?",
}

// Prompt returns the question asked on entering s, or "" when s asks nothing.
func Prompt(s State) string {
	return prompts[s]
}
