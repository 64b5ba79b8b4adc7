package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordSender DMs Discord users. recipient is the Discord user id.
type DiscordSender struct {
	Session *discordgo.Session
}

func (d DiscordSender) Send(ctx context.Context, recipient, text string) error {
	ch, err := d.Session.UserChannelCreate(recipient, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", recipient, err)
	}
	if _, err := d.Session.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm to %s: %w", recipient, err)
	}
	return nil
}
