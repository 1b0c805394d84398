package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService is a Service over a whatsmeow client.
type WhatsAppService struct {
	*channels
	client   whatsapp.Sender
	waClient *whatsapp.Client
	handler  uint32
}

// NewWhatsAppService wraps client. Inbound messages are only received when client is a
// *whatsapp.Client; other senders (mocks) only send.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	s := &WhatsAppService{channels: newChannels("WhatsAppService"), client: client}
	if wa, ok := client.(*whatsapp.Client); ok {
		s.waClient = wa
	}
	return s
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.WA() == nil {
		slog.Debug("WhatsAppService.Start: no live client, inbound disabled")
		return nil
	}
	s.handler = s.waClient.WA().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleMessage(v)
		case *events.Receipt:
			s.handleReceipt(v)
		}
	})
	slog.Info("WhatsAppService.Start: listening for messages")
	return nil
}

// Stop removes the event handler and closes the channels.
func (s *WhatsAppService) Stop() error {
	if s.waClient != nil && s.waClient.WA() != nil && s.handler != 0 {
		s.waClient.WA().RemoveEventHandler(s.handler)
	}
	s.shutdown()
	slog.Info("WhatsAppService.Stop: stopped")
	return nil
}

// SendMessage sends body and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "to", to, "error", err)
		return err
	}
	s.emitReceipt(models.Receipt{To: to, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts implements Service.
func (s *WhatsAppService) Receipts() <-chan models.Receipt { return s.receipts }

// Responses implements Service.
func (s *WhatsAppService) Responses() <-chan models.Inbound { return s.responses }

// messageText returns the text of a plain or extended text message.
func messageText(evt *events.Message) (string, bool) {
	if evt.Message == nil {
		return "", false
	}
	if evt.Message.Conversation != nil {
		return evt.Message.GetConversation(), true
	}
	if ext := evt.Message.GetExtendedTextMessage(); ext != nil && ext.Text != nil {
		return ext.GetText(), true
	}
	return "", false
}

func (s *WhatsAppService) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	text, ok := messageText(evt)
	if !ok {
		slog.Debug("WhatsAppService.handleMessage: ignoring non-text message", "from", evt.Info.Sender.User)
		return
	}
	s.emitResponse(models.Inbound{
		ID:   string(evt.Info.ID),
		From: "+" + evt.Info.Sender.User,
		Body: text,
		Time: evt.Info.Timestamp.Unix(),
	})
}

func (s *WhatsAppService) handleReceipt(evt *events.Receipt) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return
	}
	s.emitReceipt(models.Receipt{To: "+" + evt.MessageSource.Sender.User, Status: status, Time: evt.Timestamp.Unix()})
}
