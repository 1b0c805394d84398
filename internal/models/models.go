// Package models holds the records shared across the OVN Store chatbot: catalog products,
// backend orders and reviews, channel messages, the JSON envelope and the error taxonomy.
package models

// MessageStatus tracks a reply after it leaves the bot on a chat channel.
type MessageStatus string

// Reply progress as reported by the channel. Failed is terminal.
const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Receipt is the channel's acknowledgement for a reply sent to a customer.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Inbound is a customer message picked up from a chat channel. ID is the channel's own
// message id; redeliveries share it.
type Inbound struct {
	ID   string `json:"id,omitempty"`
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// Envelope status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// APIResponse is the body of every admin and chat API reply that is not a chat turn.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

func Success(result any) APIResponse {
	return APIResponse{Status: StatusOK, Result: result}
}

// SuccessWithMessage is Success with a note for the dashboard, e.g. "session cleared".
func SuccessWithMessage(message string, result any) APIResponse {
	return APIResponse{Status: StatusOK, Message: message, Result: result}
}

// Error reports a failed request. message is shown to the caller as is.
func Error(message string) APIResponse {
	return APIResponse{Status: StatusError, Message: message}
}
