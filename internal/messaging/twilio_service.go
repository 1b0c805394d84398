package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/twiliowhatsapp"
)

// TwilioService is a Service over the Twilio API. Inbound messages arrive through
// WebhookHandler.
type TwilioService struct {
	*channels
	client twiliowhatsapp.Sender
}

// NewTwilioService wraps client.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{channels: newChannels("TwilioService"), client: client}
}

// Start is a no-op; Twilio pushes inbound messages to the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the channels.
func (s *TwilioService) Stop() error {
	s.shutdown()
	return nil
}

// SendMessage sends body and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("TwilioService.SendMessage: send failed", "to", to, "error", err)
		return err
	}
	s.emitReceipt(models.Receipt{To: to, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts implements Service.
func (s *TwilioService) Receipts() <-chan models.Receipt { return s.receipts }

// Responses implements Service.
func (s *TwilioService) Responses() <-chan models.Inbound { return s.responses }

// WebhookHandler accepts Twilio's inbound message form (POST /webhook/twilio).
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("TwilioService.WebhookHandler: bad form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	from := strings.TrimPrefix(r.FormValue("From"), twiliowhatsapp.AddressPrefix)
	body := r.FormValue("Body")
	if from == "" || body == "" {
		slog.Warn("TwilioService.WebhookHandler: missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	s.emitResponse(models.Inbound{
		ID:   r.FormValue("MessageSid"),
		From: from,
		Body: body,
		Time: time.Now().Unix(),
	})
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
