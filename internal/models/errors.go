package models

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// Sentinel errors shared across the chatbot. Callers wrap them with fmt.Errorf("...: %w") and
// test with errors.Is.
var (
	// ErrValidation marks user input that failed a format check (phone, email, order id).
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited marks a request rejected by the per-session rate limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrExternalService marks a failure of the backend API or the persistence store.
	ErrExternalService = errors.New("external service error")
	// ErrAIUnavailable marks an LLM call that failed or returned unusable output.
	ErrAIUnavailable = errors.New("ai unavailable")
	// ErrNotFound marks a missing product, order or session.
	ErrNotFound = errors.New("not found")
	// ErrCircuitOpen is returned when a circuit breaker rejects a call without attempting it.
	ErrCircuitOpen = errors.New("service unavailable: circuit open")
)

// RateLimitError carries the number of seconds a client should wait.
type RateLimitError struct {
	WaitSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry in %ds", e.WaitSeconds)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ErrorKind names a user-facing failure category.
type ErrorKind string

const (
	ErrorKindConnection      ErrorKind = "connection_error"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindRateLimited     ErrorKind = "rate_limited"
	ErrorKindProductNotFound ErrorKind = "product_not_found"
	ErrorKindOrderNotFound   ErrorKind = "order_not_found"
	ErrorKindOrderFailed     ErrorKind = "order_failed"
	ErrorKindInvalidPhone    ErrorKind = "invalid_phone"
	ErrorKindInvalidEmail    ErrorKind = "invalid_email"
	ErrorKindInvalidOrderID  ErrorKind = "invalid_order_id"
	ErrorKindAIUnavailable   ErrorKind = "ai_unavailable"
	ErrorKindAPI             ErrorKind = "api_error"
	ErrorKindServer          ErrorKind = "server_error"
	ErrorKindEmptyMessage    ErrorKind = "empty_message"
	ErrorKindTooLong         ErrorKind = "message_too_long"
	ErrorKindSessionExpired  ErrorKind = "session_expired"
	ErrorKindSupportFailed   ErrorKind = "support_failed"
	ErrorKindReviewFailed    ErrorKind = "review_failed"
	ErrorKindCannotReview    ErrorKind = "cannot_review"
	ErrorKindUnknown         ErrorKind = "unknown_error"
)

var friendlyErrors = map[ErrorKind][]string{
	ErrorKindConnection: {
		"I'm having trouble connecting right now. Please try again in a moment.",
		"Oops! Connection hiccup. Give me a second and try again.",
		"Having some network issues. Please try again shortly.",
	},
	ErrorKindTimeout: {
		"That took longer than expected. Let me try again...",
		"Sorry, that request timed out. Please try once more.",
		"The response is taking too long. Let's try again.",
	},
	ErrorKindRateLimited: {
		"Whoa, slow down! Please wait a few seconds before sending more messages.",
		"You're sending messages too fast! Take a breather and try again.",
		"Please wait a moment before sending another message.",
	},
	ErrorKindProductNotFound: {
		"I couldn't find that product. Try searching with different keywords!",
		"Hmm, no products match that search. Want to try different words?",
		"No results found. Try a different search term.",
	},
	ErrorKindOrderNotFound: {
		"I couldn't find that order. Please check the order ID and try again.",
		"No order found with that ID. Double-check and try again?",
		"That order doesn't exist in our system. Please verify the order number.",
	},
	ErrorKindOrderFailed: {
		"There was an issue placing your order. Please try again or contact support.",
		"Something went wrong with your order. Let's try again.",
		"Order couldn't be placed. Please try once more.",
	},
	ErrorKindInvalidPhone: {
		"Please enter a valid 10-digit phone number (e.g., 9841234567)",
		"That doesn't look like a valid phone number. Try: 98XXXXXXXX",
		"Invalid phone format. Please use a 10-digit Nepal number.",
	},
	ErrorKindInvalidEmail: {
		"Please enter a valid email address (e.g., name@example.com)",
		"That email doesn't look right. Can you check it?",
		"Invalid email format. Please try again.",
	},
	ErrorKindInvalidOrderID: {
		"Please enter a valid order ID",
		"That doesn't look like a valid order number. Check and try again.",
		"Invalid order ID format.",
	},
	ErrorKindAIUnavailable: {
		"My AI assistant is taking a short break. Using backup mode!",
		"AI is busy right now, but I can still help you!",
		"Switching to quick-response mode. How can I help?",
	},
	ErrorKindAPI: {
		"Something went wrong on our end. Please try again.",
		"We hit a small bump. Let's try that again.",
		"Technical hiccup! Please retry your request.",
	},
	ErrorKindServer: {
		"Something went wrong on our end. Our team has been notified.",
		"We're experiencing some issues. Please try again in a moment.",
		"Unexpected error occurred. We're looking into it!",
	},
	ErrorKindEmptyMessage: {
		"Please type a message to continue.",
		"I didn't catch that. What would you like to do?",
		"Your message was empty. How can I help you?",
	},
	ErrorKindTooLong: {
		"That message is too long. Please keep it under 1000 characters.",
		"Whoa, that's a lot! Can you make it shorter?",
		"Message too long. Please shorten it and try again.",
	},
	ErrorKindSessionExpired: {
		"Your session has expired. Let's start fresh!",
		"We lost track of our conversation. Starting over!",
		"Session timeout. How can I help you today?",
	},
	ErrorKindSupportFailed: {
		"Couldn't submit your support request. Please try again.",
		"Support ticket submission failed. Let's try once more.",
		"Error submitting request. Please retry.",
	},
	ErrorKindReviewFailed: {
		"Couldn't submit your review. Please try again.",
		"Review submission failed. Let's try once more.",
		"Error posting review. Please retry.",
	},
	ErrorKindCannotReview: {
		"You need to purchase this product before reviewing it.",
		"Reviews are only for verified purchases.",
		"Please buy this product first to leave a review.",
	},
	ErrorKindUnknown: {
		"Something unexpected happened. Please try again.",
		"Oops! An error occurred. Let's try that again.",
		"Hit a snag there. Please retry your request.",
	},
}

var nepaliErrors = map[ErrorKind][]string{
	ErrorKindConnection: {
		"Connection ma problem chha. Feri try garnus.",
		"Network issue chha. Ali bera ma try garnus.",
	},
	ErrorKindRateLimited: {
		"Dherai chito message pathaudai hunuhunchha. Ali dhilo garnus.",
		"Bistarai! Kehi second pachi try garnus.",
	},
	ErrorKindProductNotFound: {
		"Tyo product bhetiyena. Arko naam le try garnus.",
		"Product khojina sakena. Different keyword use garnus.",
	},
	ErrorKindOrderNotFound: {
		"Order bhetiyena. Order ID check garera feri try garnus.",
		"Tyo order chaina. Number ramrari hernus.",
	},
	ErrorKindInvalidPhone: {
		"Thik phone number dinus (10 digits)",
		"Phone number milena. 98XXXXXXXX format ma dinus.",
	},
}

// ErrorPick chooses a variant index in [0, n). Tests replace it for deterministic output.
var ErrorPick = func(n int) int { return rand.IntN(n) }

// FriendlyError returns a plain-language message for kind, in Roman Nepali when requested and
// available. Unknown kinds fall back to the generic message bank.
func FriendlyError(kind ErrorKind, nepali bool) string {
	var bank []string
	if nepali {
		bank = nepaliErrors[kind]
	}
	if len(bank) == 0 {
		bank = friendlyErrors[kind]
	}
	if len(bank) == 0 {
		bank = friendlyErrors[ErrorKindUnknown]
	}
	return bank[ErrorPick(len(bank))]
}

// FriendlyErrorWithSuggestion appends a suggestion paragraph to a friendly message.
func FriendlyErrorWithSuggestion(kind ErrorKind, suggestion string, nepali bool) string {
	msg := FriendlyError(kind, nepali)
	if suggestion != "" {
		msg += "\n\n" + suggestion
	}
	return msg
}

// RateLimitedMessage renders the rate-limit message with the wait time appended.
func RateLimitedMessage(waitSeconds int, nepali bool) string {
	msg := FriendlyError(ErrorKindRateLimited, nepali)
	if waitSeconds > 0 {
		msg += fmt.Sprintf(" (%ds)", waitSeconds)
	}
	return msg
}

// WaitMessage describes a wait of the given length.
func WaitMessage(seconds int) string {
	switch {
	case seconds <= 5:
		return fmt.Sprintf("Please wait %d seconds...", seconds)
	case seconds <= 30:
		return fmt.Sprintf("Please wait about %d seconds. Almost there!", seconds)
	default:
		return fmt.Sprintf("Please try again in %d minute(s).", seconds/60)
	}
}

// ErrorQuickReplies returns the follow-up suggestions shown with an error of the given kind.
func ErrorQuickReplies(kind ErrorKind) []string {
	switch kind {
	case ErrorKindProductNotFound:
		return []string{"Browse Products", "Flash Sales", "Categories"}
	case ErrorKindOrderNotFound, ErrorKindInvalidOrderID:
		return []string{"Use Phone Number", "Try Again"}
	case ErrorKindConnection, ErrorKindTimeout, ErrorKindServer:
		return []string{"Try Again", "Get Help"}
	default:
		return []string{"Start Over", "Get Help"}
	}
}

// KindForError maps a wrapped sentinel error to the user-facing kind.
func KindForError(err error) ErrorKind {
	var rl *RateLimitError
	switch {
	case err == nil:
		return ErrorKindUnknown
	case errors.As(err, &rl), errors.Is(err, ErrRateLimited):
		return ErrorKindRateLimited
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrExternalService):
		return ErrorKindConnection
	case errors.Is(err, ErrAIUnavailable):
		return ErrorKindAIUnavailable
	case errors.Is(err, ErrNotFound):
		return ErrorKindProductNotFound
	case errors.Is(err, ErrValidation):
		return ErrorKindAPI
	default:
		return ErrorKindUnknown
	}
}
