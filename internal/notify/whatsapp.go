package notify

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// WhatsAppSender messages WhatsApp users. recipient is the user part of the
// JID, normally the phone number.
type WhatsAppSender struct {
	Client *whatsmeow.Client
}

func (w WhatsAppSender) Send(ctx context.Context, recipient, text string) error {
	if !w.Client.IsConnected() {
		return fmt.Errorf("whatsapp client not connected")
	}
	jid := types.NewJID(recipient, types.DefaultUserServer)
	if _, err := w.Client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)}); err != nil {
		return fmt.Errorf("send whatsapp message to %s: %w", recipient, err)
	}
	return nil
}
