package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"tapcoin/internal/game"

	_ "github.com/lib/pq"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// WhatsApp answers commands sent to the linked WhatsApp account. Device keys
// live in Postgres so restarts do not require re-pairing.
type WhatsApp struct {
	client  *whatsmeow.Client
	handler *Handler
	log     *slog.Logger
}

func NewWhatsApp(ctx context.Context, databaseURL string, handler *Handler, logger *slog.Logger) (*WhatsApp, error) {
	if logger == nil {
		logger = slog.Default()
	}
	container, err := sqlstore.New(ctx, "postgres", databaseURL, slogWALogger{logger.With("component", "whatsmeow-store")})
	if err != nil {
		return nil, fmt.Errorf("whatsapp device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp device: %w", err)
	}
	client := whatsmeow.NewClient(device, slogWALogger{logger.With("component", "whatsmeow")})
	w := &WhatsApp{client: client, handler: handler, log: logger}
	client.AddEventHandler(w.onEvent)
	return w, nil
}

// Client exposes the underlying client so notifications can reuse it.
func (w *WhatsApp) Client() *whatsmeow.Client {
	return w.client
}

// Connect logs in, printing a pairing QR code to the terminal when the device
// has never been linked.
func (w *WhatsApp) Connect(ctx context.Context) error {
	if w.client.Store.ID != nil {
		if err := w.client.Connect(); err != nil {
			return fmt.Errorf("connect whatsapp: %w", err)
		}
		w.log.Info("whatsapp connected", "jid", w.client.Store.ID.String())
		return nil
	}

	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp qr channel: %w", err)
	}
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			fmt.Fprintln(os.Stderr, "Scan this code with WhatsApp > Linked devices:")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stderr)
		case "success":
			w.log.Info("whatsapp device paired")
			return nil
		case "timeout":
			return fmt.Errorf("whatsapp pairing timed out")
		default:
			if evt.Error != nil {
				return fmt.Errorf("whatsapp pairing: %w", evt.Error)
			}
		}
	}
	return nil
}

func (w *WhatsApp) Disconnect() {
	w.client.Disconnect()
}

func (w *WhatsApp) onEvent(evt any) {
	msg, ok := evt.(*events.Message)
	if !ok || msg.Info.IsFromMe || msg.Info.IsGroup {
		return
	}
	text := msg.Message.GetConversation()
	if text == "" {
		text = msg.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		return
	}
	// Event handlers run on the client's receive loop; do not block it.
	go w.reply(msg, text)
}

func (w *WhatsApp) reply(msg *events.Message, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sender := msg.Info.Sender.ToNonAD()
	out := w.handler.Handle(ctx, Incoming{
		PlayerID: "wa:" + sender.User,
		Profile:  game.Profile{DisplayName: msg.Info.PushName},
		Text:     text,
	})
	if out == "" {
		return
	}
	if _, err := w.client.SendMessage(ctx, msg.Info.Chat, &waE2E.Message{Conversation: proto.String(out)}); err != nil {
		w.log.Warn("whatsapp reply failed", "chat", msg.Info.Chat.String(), "err", err)
	}
}

// slogWALogger adapts slog to whatsmeow's logger interface.
type slogWALogger struct {
	l *slog.Logger
}

func (s slogWALogger) Errorf(msg string, args ...any) { s.l.Error(fmt.Sprintf(msg, args...)) }
func (s slogWALogger) Warnf(msg string, args ...any)  { s.l.Warn(fmt.Sprintf(msg, args...)) }
func (s slogWALogger) Infof(msg string, args ...any)  { s.l.Info(fmt.Sprintf(msg, args...)) }
func (s slogWALogger) Debugf(msg string, args ...any) { s.l.Debug(fmt.Sprintf(msg, args...)) }
func (s slogWALogger) Sub(module string) waLog.Logger {
	return slogWALogger{s.l.With("module", module)}
}
