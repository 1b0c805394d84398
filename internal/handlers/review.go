package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/ovnchat/internal/entity"
	"github.com/BTreeMap/ovnchat/internal/intent"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
)

const (
	reviewFeaturedLimit = 4
	reviewOptionsLimit  = 6
	reviewsShown        = 5
	maxTitleRunes       = 100
	minCommentRunes     = 10
	maxCommentRunes     = 500
)

var ineligibleMessages = map[string]string{
	models.ReasonLoginRequired:   "You need to be logged in to write a review.",
	models.ReasonAlreadyReviewed: "You've already reviewed this product.",
	models.ReasonNoPurchase:      "You can only review products from your delivered orders.",
}

// Review shows product reviews and collects new ones.
type Review struct {
	base
}

// NewReview returns the review handler.
func NewReview(d Deps) *Review {
	return &Review{base: newBase(d)}
}

// CanHandle implements Handler.
func (h *Review) CanHandle(in intent.Intent, state session.State) bool {
	if state == session.StateIdle {
		return in == intent.ReviewView || in == intent.ReviewSubmit
	}
	return session.HandlerGroup(state) == session.GroupReview
}

// Handle implements Handler.
func (h *Review) Handle(ctx context.Context, msg string, sess *session.Session, e Entities) Response {
	switch sess.State {
	case session.StateIdle:
		switch e.Intent {
		case intent.ReviewView:
			return h.view(ctx, msg, sess)
		case intent.ReviewSubmit:
			return h.start(ctx, msg, sess)
		}
	case session.StateReviewSelectingProduct:
		return h.selectProduct(ctx, msg, sess)
	case session.StateReviewAwaitingRating:
		return h.rating(msg, sess, e)
	case session.StateReviewAwaitingTitle:
		return h.title(msg, sess)
	case session.StateReviewAwaitingComment:
		return h.comment(msg, sess)
	case session.StateReviewConfirming:
		return h.confirm(ctx, msg, sess)
	}
	return Response{
		Message:      "Would you like to view reviews or write a review?",
		QuickReplies: []string{"View Reviews", "Write Review"},
	}
}

// resolveProduct finds the product a message names, falling back to the last one viewed.
func (h *Review) resolveProduct(ctx context.Context, msg string, sess *session.Session) (models.Product, bool) {
	if keywords := entity.ProductKeywords(msg); len(keywords) > 0 {
		if p, ok := h.findByName(ctx, strings.Join(keywords, " ")); ok {
			return p, true
		}
	}
	if len(sess.LastViewedProducts) > 0 {
		return sess.LastViewedProducts[0], true
	}
	return models.Product{}, false
}

func (h *Review) view(ctx context.Context, msg string, sess *session.Session) Response {
	if p, ok := h.resolveProduct(ctx, msg, sess); ok {
		return h.showReviews(ctx, p)
	}
	options := h.featured(ctx, reviewFeaturedLimit)
	if len(options) == 0 {
		return Response{
			Message:      "Please specify which product you'd like to see reviews for.",
			QuickReplies: []string{"Show Products", "Browse All"},
		}
	}
	rc := sess.Review()
	rc.Action = session.ReviewActionView
	rc.ProductOptions = options
	return Response{
		Message:   "Which product would you like to see reviews for?",
		Products:  options,
		NextState: session.StateReviewSelectingProduct,
	}
}

func (h *Review) showReviews(ctx context.Context, p models.Product) Response {
	res := h.Backend.ProductReviews(ctx, p.ID)
	if res.Error != "" && len(res.Reviews) == 0 {
		return Response{
			Message:      "Couldn't load reviews: " + res.Error,
			QuickReplies: []string{"Try Again", "Browse Products"},
		}
	}
	name := productName(&p, 40)
	if len(res.Reviews) == 0 {
		return Response{
			Message:      fmt.Sprintf("**%s**\n\nNo reviews yet for this product. Be the first to review!", name),
			Products:     []models.Product{p},
			QuickReplies: []string{"Write Review", "Browse Products"},
		}
	}
	return Response{
		Message:      FormatReviews(name, res),
		Products:     []models.Product{p},
		QuickReplies: []string{"Write Review", "See More", "Browse Products"},
	}
}

func ratingBar(rating int) string {
	rating = min(max(rating, 0), 5)
	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}

// FormatReviews renders a product's review listing.
func FormatReviews(name string, res models.ReviewsResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", name)
	fmt.Fprintf(&b, "**Overall Rating:** %s (%.1f/5 from %d reviews)\n\n", ratingBar(int(res.AverageRating)), res.AverageRating, res.TotalReviews)

	if len(res.RatingDistribution) > 0 {
		b.WriteString("**Rating Distribution:**\n")
		for r := 5; r >= 1; r-- {
			count := res.RatingDistribution[r]
			fmt.Fprintf(&b, "  %d★ %s (%d)\n", r, strings.Repeat("█", min(count, 10)), count)
		}
		b.WriteString("\n")
	}

	b.WriteString("**Recent Reviews:**\n\n")
	reviews := res.Reviews
	if len(reviews) > reviewsShown {
		reviews = reviews[:reviewsShown]
	}
	for _, r := range reviews {
		user := r.User
		if user == "" {
			user = "Anonymous"
		}
		verified := ""
		if r.IsVerifiedPurchase {
			verified = " ✓"
		}
		fmt.Fprintf(&b, "**%s** %s%s\n", user, strings.Repeat("★", min(max(r.Rating, 0), 5)), verified)
		if r.Title != "" {
			fmt.Fprintf(&b, "*%s*\n", r.Title)
		}
		fmt.Fprintf(&b, "%s...\n\n", models.TruncateRunes(r.Comment, 150))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Review) start(ctx context.Context, msg string, sess *session.Session) Response {
	if p, ok := h.resolveProduct(ctx, msg, sess); ok {
		return h.checkEligibility(ctx, p, sess)
	}
	options := h.products(ctx)
	if len(options) > reviewOptionsLimit {
		options = options[:reviewOptionsLimit]
	}
	if len(options) == 0 {
		return Response{
			Message:      "Please specify which product you'd like to review.",
			QuickReplies: []string{"Show Products"},
		}
	}
	rc := sess.Review()
	rc.Action = session.ReviewActionSubmit
	rc.ProductOptions = options
	return Response{
		Message:   "Which product would you like to review?",
		Products:  options,
		NextState: session.StateReviewSelectingProduct,
	}
}

func (h *Review) checkEligibility(ctx context.Context, p models.Product, sess *session.Session) Response {
	res := h.Backend.CanReview(ctx, p.ID)
	if !res.CanReview {
		text := res.Message
		if text == "" {
			text = ineligibleMessages[res.Reason]
		}
		if text == "" {
			text = "Unable to review at this time."
		}
		slog.Debug("Review.checkEligibility: not allowed", "session_id", sess.SessionID, "product_id", p.ID, "reason", res.Reason)
		return Response{
			Message:      fmt.Sprintf("**%s**\n\n%s", productName(&p, 40), text),
			Products:     []models.Product{p},
			ResetState:   true,
			QuickReplies: []string{"View Reviews", "Browse Products"},
		}
	}

	rc := sess.Review()
	rc.Action = session.ReviewActionSubmit
	rc.Product = &p
	rc.OrderID = res.OrderID
	return Response{
		Message:      fmt.Sprintf("**Review: %s**\n\nHow would you rate this product? (1-5 stars)", productName(&p, 40)),
		Products:     []models.Product{p},
		NextState:    session.StateReviewAwaitingRating,
		QuickReplies: []string{"⭐ 1", "⭐⭐ 2", "⭐⭐⭐ 3", "⭐⭐⭐⭐ 4", "⭐⭐⭐⭐⭐ 5"},
	}
}

func (h *Review) selectProduct(ctx context.Context, msg string, sess *session.Session) Response {
	rc := sess.Review()
	choose := func(p models.Product) Response {
		if rc.Action == session.ReviewActionSubmit {
			return h.checkEligibility(ctx, p, sess)
		}
		resp := h.showReviews(ctx, p)
		resp.ResetState = true
		return resp
	}

	text := strings.TrimSpace(strings.ReplaceAll(msg, "⭐", ""))
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(rc.ProductOptions) {
		return choose(rc.ProductOptions[n-1])
	}
	if p, ok := h.findByName(ctx, msg); ok {
		return choose(p)
	}
	return Response{
		Message:   "Please select a product from the list or search for a specific product.",
		Products:  rc.ProductOptions,
		NextState: session.StateReviewSelectingProduct,
	}
}

// parseRating reads a 1-5 rating from text or a row of star emoji; 0 means none.
func parseRating(msg string, e Entities) int {
	rating := e.Rating
	if rating == 0 {
		rating = entity.Rating(msg)
	}
	if rating == 0 {
		stars := strings.Count(msg, "⭐")
		if stars == 0 {
			stars = strings.Count(msg, "★")
		}
		if stars >= 1 && stars <= 5 {
			rating = stars
		}
	}
	if rating < 1 || rating > 5 {
		return 0
	}
	return rating
}

func (h *Review) rating(msg string, sess *session.Session, e Entities) Response {
	rating := parseRating(msg, e)
	if rating == 0 {
		return Response{
			Message:      "Please rate from 1 to 5 stars.",
			NextState:    session.StateReviewAwaitingRating,
			QuickReplies: []string{"1", "2", "3", "4", "5"},
		}
	}
	sess.Review().Rating = rating
	return Response{
		Message:      fmt.Sprintf("Rating: %s\n\nGive your review a short title (or type 'skip'):", ratingBar(rating)),
		NextState:    session.StateReviewAwaitingTitle,
		QuickReplies: []string{"Skip"},
	}
}

func (h *Review) title(msg string, sess *session.Session) Response {
	rc := sess.Review()
	if isSkip(msg) {
		rc.Title = ""
	} else {
		rc.Title = models.TruncateRunes(strings.TrimSpace(msg), maxTitleRunes)
	}
	return Response{
		Message:   "Now write your review. Share your experience with this product:",
		NextState: session.StateReviewAwaitingComment,
	}
}

func (h *Review) comment(msg string, sess *session.Session) Response {
	text := strings.TrimSpace(msg)
	if len([]rune(text)) < minCommentRunes {
		return Response{
			Message:   "Please write a bit more about your experience (at least 10 characters).",
			NextState: session.StateReviewAwaitingComment,
		}
	}
	rc := sess.Review()
	rc.Comment = models.TruncateRunes(text, maxCommentRunes)

	var b strings.Builder
	b.WriteString("**Review Summary**\n\n")
	fmt.Fprintf(&b, "**Product:** %s\n", productName(rc.Product, 40))
	fmt.Fprintf(&b, "**Rating:** %s\n", ratingBar(rc.Rating))
	if rc.Title != "" {
		fmt.Fprintf(&b, "**Title:** %s\n", rc.Title)
	}
	fmt.Fprintf(&b, "**Review:** %s...\n\n", models.TruncateRunes(rc.Comment, 200))
	b.WriteString("**Submit this review?**")
	return Response{
		Message:      b.String(),
		Products:     productSlice(rc.Product),
		NextState:    session.StateReviewConfirming,
		QuickReplies: confirmReplies,
	}
}

func (h *Review) confirm(ctx context.Context, msg string, sess *session.Session) Response {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "cancel") || h.isRejection(ctx, msg) {
		return Response{
			Message:      "Review cancelled. Is there anything else I can help with?",
			ResetState:   true,
			QuickReplies: afterSupportReplies,
		}
	}
	if strings.Contains(lower, "submit") || h.isConfirmation(ctx, msg) {
		return h.submit(ctx, sess)
	}
	return Response{
		Message:      "Please type 'submit' to post your review or 'cancel' to cancel.",
		NextState:    session.StateReviewConfirming,
		QuickReplies: confirmReplies,
	}
}

func (h *Review) submit(ctx context.Context, sess *session.Session) Response {
	rc := sess.Review()
	if rc.Product == nil {
		return Response{
			Message:      models.FriendlyError(models.ErrorKindReviewFailed, false),
			ResetState:   true,
			QuickReplies: models.ErrorQuickReplies(models.ErrorKindReviewFailed),
		}
	}
	res := h.Backend.SubmitReview(ctx, rc.Product.ID, models.ReviewRequest{
		Rating:  rc.Rating,
		Title:   rc.Title,
		Comment: rc.Comment,
		OrderID: rc.OrderID,
	})
	if !res.Success {
		errText := res.Error
		if errText == "" {
			errText = "Unknown error"
		}
		slog.Warn("Review.submit: review failed", "session_id", sess.SessionID, "product_id", rc.Product.ID, "error", errText)
		return Response{
			Message:      "Sorry, there was an error submitting your review:\n" + errText,
			ResetState:   true,
			QuickReplies: []string{"Try Again", "Browse Products"},
		}
	}

	slog.Info("Review.submit: review posted", "session_id", sess.SessionID, "product_id", rc.Product.ID, "rating", rc.Rating)
	h.record(ctx, store.EventReviewSubmitted, sess, intent.ReviewSubmit, map[string]any{
		"product_id": rc.Product.ID,
		"rating":     rc.Rating,
	})
	return Response{
		Message: fmt.Sprintf("**Review Submitted!** ✅\n\nThank you for reviewing **%s**!\n\n"+
			"Your review will be visible after approval.", productName(rc.Product, 40)),
		ResetState:   true,
		QuickReplies: []string{"Write Another Review", "Browse Products"},
	}
}
