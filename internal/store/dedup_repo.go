package store

import (
	"context"
	"time"
)

// DedupRecord is an inbound channel message that has already been seen.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	SessionID   string     `json:"session_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo suppresses redelivered inbound messages from WhatsApp and Twilio.
type DedupRepo interface {
	// RecordInbound stores messageID and returns false if it was already recorded.
	RecordInbound(ctx context.Context, messageID, sessionID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(ctx context.Context, messageID string) error

	// PruneDedup deletes records received before cutoff and reports how many.
	PruneDedup(ctx context.Context, cutoff time.Time) (int, error)
}
