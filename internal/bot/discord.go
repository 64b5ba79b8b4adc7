package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tapcoin/internal/game"

	"github.com/bwmarrin/discordgo"
)

// Discord answers commands in guild channels and DMs.
type Discord struct {
	session *discordgo.Session
	handler *Handler
	log     *slog.Logger
}

func NewDiscord(token string, handler *Handler, logger *slog.Logger) (*Discord, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	d := &Discord{session: s, handler: handler, log: logger}
	s.AddHandler(d.onMessage)
	return d, nil
}

// Session exposes the underlying session so notifications can reuse it.
func (d *Discord) Session() *discordgo.Session {
	return d.session
}

func (d *Discord) Open() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	d.log.Info("discord bot connected")
	return nil
}

func (d *Discord) Close() error {
	return d.session.Close()
}

func (d *Discord) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	reply := d.handler.Handle(ctx, Incoming{
		PlayerID: "discord:" + m.Author.ID,
		Profile:  game.Profile{Username: m.Author.Username, DisplayName: m.Author.GlobalName},
		Text:     m.Content,
	})
	if reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply, discordgo.WithContext(ctx)); err != nil {
		d.log.Warn("discord reply failed", "channel_id", m.ChannelID, "err", err)
	}
}
