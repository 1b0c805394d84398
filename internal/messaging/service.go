// Package messaging connects chat channels (WhatsApp through whatsmeow or Twilio) to the shop
// assistant. A Service delivers outbound text and emits inbound customer messages; Bridge
// answers those messages with the chatbot.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ovnchat/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer of the receipt and response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds a send on a full channel before the event is dropped.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned by a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// Service is a chat channel.
type Service interface {
	// SendMessage sends body to the E.164 number to.
	SendMessage(ctx context.Context, to string, body string) error
	// Start begins receiving inbound messages.
	Start(ctx context.Context) error
	// Stop stops the service and closes its channels.
	Stop() error
	// Receipts returns outbound message receipts.
	Receipts() <-chan models.Receipt
	// Responses returns inbound customer messages. From is an E.164 number.
	Responses() <-chan models.Inbound
}

// channels holds the channels shared by the services. Emits after close are dropped.
type channels struct {
	name      string
	receipts  chan models.Receipt
	responses chan models.Inbound
	mu        sync.RWMutex
	stopped   bool
}

func newChannels(name string) *channels {
	return &channels{
		name:      name,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Inbound, DefaultChannelBufferSize),
	}
}

func (e *channels) isStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}

func (e *channels) emitReceipt(r models.Receipt) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return
	}
	select {
	case e.receipts <- r:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(e.name+".emitReceipt: receipts channel full, dropping receipt", "to", r.To)
	}
}

func (e *channels) emitResponse(r models.Inbound) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		slog.Warn(e.name+".emitResponse: service stopped, dropping message", "from", r.From)
		return
	}
	select {
	case e.responses <- r:
		slog.Debug(e.name+".emitResponse: inbound message queued", "from", r.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(e.name+".emitResponse: responses channel full, dropping message", "from", r.From)
	}
}

// shutdown stops emission and closes both channels once.
func (e *channels) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	close(e.receipts)
	close(e.responses)
}
