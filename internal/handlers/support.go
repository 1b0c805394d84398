package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ovnchat/internal/entity"
	"github.com/BTreeMap/ovnchat/internal/intent"
	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/security"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
)

// Support ticket categories.
const (
	CategoryOrder     = "order"
	CategoryProduct   = "product"
	CategoryComplaint = "complaint"
	CategoryReturn    = "return"
	CategoryFeedback  = "feedback"
	CategoryGeneral   = "general"
)

const minDetailsRunes = 10

// SupportCategories maps a category to the name shown to customers.
var SupportCategories = map[string]string{
	CategoryOrder:     "Order Related Issue",
	CategoryProduct:   "Product Information",
	CategoryComplaint: "Complaint",
	CategoryReturn:    "Return/Refund Request",
	CategoryFeedback:  "Feedback",
	CategoryGeneral:   "General Inquiry",
}

// categoryKeywords is ordered; ties go to the earlier category.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryOrder, []string{"order", "delivery", "shipping", "track", "late", "delayed", "missing"}},
	{CategoryProduct, []string{"product", "item", "quality", "size", "color", "specs"}},
	{CategoryComplaint, []string{"complaint", "bad", "terrible", "worst", "angry", "disappointed"}},
	{CategoryReturn, []string{"return", "refund", "exchange", "damaged", "broken", "defective", "wrong"}},
	{CategoryFeedback, []string{"feedback", "suggestion", "improve", "idea"}},
	{CategoryGeneral, []string{"help", "question", "ask", "info", "information"}},
}

var categoryChoices = map[string]string{
	"1": CategoryOrder, "order": CategoryOrder, "order issue": CategoryOrder, "delivery": CategoryOrder,
	"2": CategoryProduct, "product": CategoryProduct, "product question": CategoryProduct,
	"3": CategoryComplaint, "complaint": CategoryComplaint,
	"4": CategoryReturn, "return": CategoryReturn, "refund": CategoryReturn, "return/refund": CategoryReturn,
	"5": CategoryFeedback, "feedback": CategoryFeedback, "suggestion": CategoryFeedback,
	"6": CategoryGeneral, "other": CategoryGeneral, "general": CategoryGeneral,
}

var categoryPrompts = map[string]string{
	CategoryOrder:     "Please describe your order issue. Include your order number if you have it.",
	CategoryProduct:   "What would you like to know about our products?",
	CategoryComplaint: "I'm sorry to hear you're having issues. Please describe what happened.",
	CategoryReturn:    "Please describe what you'd like to return/refund and the reason.",
	CategoryFeedback:  "We'd love to hear your feedback! Please share your thoughts.",
	CategoryGeneral:   "Please describe how we can help you.",
}

// DetectCategory scores each category by keyword hits and returns the best, or "" when
// nothing matches.
func DetectCategory(msg string) string {
	lower := strings.ToLower(msg)
	best, bestScore := "", 0
	for _, c := range categoryKeywords {
		score := 0
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = c.category, score
		}
	}
	return best
}

func categoryName(category string) string {
	if name, ok := SupportCategories[category]; ok {
		return name
	}
	return SupportCategories[CategoryGeneral]
}

// Support collects a support ticket and files it through the contact endpoint.
type Support struct {
	base
}

// NewSupport returns the support handler.
func NewSupport(d Deps) *Support {
	return &Support{base: newBase(d)}
}

// CanHandle implements Handler.
func (h *Support) CanHandle(in intent.Intent, state session.State) bool {
	if state == session.StateIdle {
		return in == intent.Support
	}
	return session.HandlerGroup(state) == session.GroupSupport
}

// Handle implements Handler.
func (h *Support) Handle(ctx context.Context, msg string, sess *session.Session, e Entities) Response {
	switch sess.State {
	case session.StateSupportAwaitingCategory:
		return h.category(msg, sess)
	case session.StateSupportAwaitingDetails:
		return h.details(ctx, msg, sess, e)
	case session.StateSupportAwaitingEmail:
		return h.email(ctx, msg, sess, e)
	case session.StateSupportConfirming:
		return h.confirm(ctx, msg, sess)
	default:
		return h.start(msg, sess)
	}
}

func (h *Support) start(msg string, sess *session.Session) Response {
	sc := sess.Support()
	if category := DetectCategory(msg); category != "" {
		sc.Category = category
		return Response{
			Message: fmt.Sprintf("I understand you need help with a **%s**.\n\n"+
				"Please describe your issue in detail so we can assist you better.", categoryName(category)),
			NextState: session.StateSupportAwaitingDetails,
		}
	}
	return Response{
		Message: "I'm here to help! What type of issue do you have?\n\n" +
			"1. **Order Issue** - Delivery, tracking, missing items\n" +
			"2. **Product Question** - Product info, availability\n" +
			"3. **Complaint** - Service or quality issues\n" +
			"4. **Return/Refund** - Return or get refund\n" +
			"5. **Feedback** - Suggestions or ideas\n" +
			"6. **Other** - General inquiry",
		NextState:    session.StateSupportAwaitingCategory,
		QuickReplies: []string{"Order Issue", "Return/Refund", "Complaint", "Other"},
	}
}

func (h *Support) category(msg string, sess *session.Session) Response {
	category, ok := categoryChoices[strings.ToLower(strings.TrimSpace(msg))]
	if !ok {
		category = DetectCategory(msg)
	}
	if category == "" {
		category = CategoryGeneral
	}
	sess.Support().Category = category
	return Response{
		Message:   fmt.Sprintf("**%s**\n\n%s", categoryName(category), categoryPrompts[category]),
		NextState: session.StateSupportAwaitingDetails,
	}
}

func (h *Support) details(ctx context.Context, msg string, sess *session.Session, e Entities) Response {
	text := strings.TrimSpace(msg)
	if len([]rune(text)) < minDetailsRunes {
		return Response{
			Message:   "Please provide more details so we can help you better.",
			NextState: session.StateSupportAwaitingDetails,
		}
	}
	sc := sess.Support()
	sc.Message = text
	if e.Email != "" {
		sc.Email = e.Email
		h.remember(ctx, sess, session.Memory{Email: e.Email})
	}

	if session.CanSkip(session.StateSupportAwaitingEmail, sess) {
		return Response{
			Message:      fmt.Sprintf("Should I use **%s** for updates?", sess.UserEmail),
			NextState:    session.StateSupportAwaitingEmail,
			QuickReplies: []string{"Yes", "Use different email"},
		}
	}
	return Response{
		Message:   "Please provide your email address so we can respond to you.",
		NextState: session.StateSupportAwaitingEmail,
	}
}

func (h *Support) email(ctx context.Context, msg string, sess *session.Session, e Entities) Response {
	sc := sess.Support()
	if sess.UserEmail != "" && h.isConfirmation(ctx, msg) {
		sc.Email = sess.UserEmail
		return h.summary(sess)
	}

	candidate := e.Email
	if candidate == "" {
		candidate = entity.Email(msg)
	}
	ok, email, _ := security.ValidateEmail(candidate)
	if !ok {
		return Response{
			Message:   "Please provide a valid email address.",
			NextState: session.StateSupportAwaitingEmail,
		}
	}
	sc.Email = email
	h.remember(ctx, sess, session.Memory{Email: email})
	return h.summary(sess)
}

func (h *Support) summary(sess *session.Session) Response {
	sc := sess.Support()
	email := sc.Email
	if email == "" {
		email = sess.UserEmail
	}
	phone := sess.UserPhone
	if phone == "" {
		phone = "Not provided"
	}
	var b strings.Builder
	b.WriteString("**Support Ticket Summary**\n\n")
	fmt.Fprintf(&b, "**Category:** %s\n", categoryName(sc.Category))
	fmt.Fprintf(&b, "**Issue:** %s...\n", models.TruncateRunes(sc.Message, 200))
	fmt.Fprintf(&b, "**Email:** %s\n", email)
	fmt.Fprintf(&b, "**Phone:** %s\n\n", phone)
	b.WriteString("**Submit this support request?**")
	return Response{
		Message:      b.String(),
		NextState:    session.StateSupportConfirming,
		QuickReplies: confirmReplies,
	}
}

func (h *Support) confirm(ctx context.Context, msg string, sess *session.Session) Response {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "cancel") || h.isRejection(ctx, msg) {
		return Response{
			Message:      "Support request cancelled. Is there anything else I can help with?",
			ResetState:   true,
			QuickReplies: afterSupportReplies,
		}
	}
	if strings.Contains(lower, "submit") || h.isConfirmation(ctx, msg) {
		return h.submit(ctx, sess)
	}
	return Response{
		Message:      "Please type 'submit' to send your request or 'cancel' to cancel.",
		NextState:    session.StateSupportConfirming,
		QuickReplies: confirmReplies,
	}
}

func (h *Support) submit(ctx context.Context, sess *session.Session) Response {
	sc := sess.Support()
	name := sess.UserName
	if name == "" {
		name = "Chat User"
	}
	email := sc.Email
	if email == "" {
		email = sess.UserEmail
	}
	category := sc.Category
	if category == "" {
		category = CategoryGeneral
	}

	res := h.Backend.SubmitContact(ctx, models.ContactRequest{
		Name:    name,
		Email:   email,
		Phone:   sess.UserPhone,
		Subject: category,
		Message: sc.Message,
	})
	if !res.Success {
		errText := res.Error
		if errText == "" {
			errText = "Unknown error"
		}
		slog.Warn("Support.submit: ticket failed", "session_id", sess.SessionID, "error", errText)
		return Response{
			Message:      fmt.Sprintf("Sorry, there was an error submitting your request:\n%s\n\nPlease try again or contact us directly.", errText),
			ResetState:   true,
			QuickReplies: []string{"Try Again", "Browse Products"},
		}
	}

	ticketID := res.ID
	if ticketID == "" {
		ticketID = "N/A"
	}
	slog.Info("Support.submit: ticket filed", "session_id", sess.SessionID, "ticket_id", ticketID, "category", category)
	h.record(ctx, store.EventSupportTicket, sess, intent.Support, map[string]any{
		"ticket_id": ticketID,
		"category":  category,
	})
	h.remember(ctx, sess, session.Memory{Email: email})

	return Response{
		Message: fmt.Sprintf("**Support Request Submitted!** ✅\n\n**Reference #:** %s\n\n"+
			"Our team will review your request and respond within 24-48 hours to %s.\n\n"+
			"Thank you for contacting OVN Store!", ticketID, email),
		ResetState:   true,
		QuickReplies: afterSupportReplies,
		Metadata:     map[string]any{"ticket_id": ticketID},
	}
}
