package services

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/daywarden/daywarden/daywarden/config"
	"github.com/daywarden/daywarden/daywarden/database/models"
	"github.com/daywarden/daywarden/daywarden/engine"
)

// NotifierService delivers the engine's user-facing channel messages and the
// per-guild log-channel embeds.
type NotifierService struct {
	client bot.Client
}

func NewNotifierService(client bot.Client) *NotifierService {
	return &NotifierService{client: client}
}

func (n *NotifierService) ChannelMessage(ctx context.Context, channelID snowflake.ID, text string) error {
	_, err := n.client.Rest().CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetContent(text).
		Build(), rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to send message to channel %d: %w", channelID, err)
	}
	return nil
}

func (n *NotifierService) LogEvent(ctx context.Context, guild *models.Guild, event engine.Event) error {
	if !guild.HasLogChannel() {
		return nil
	}

	title, color := eventAppearance(event.Kind)
	builder := discord.NewEmbedBuilder().
		SetTitle(title).
		SetColor(color).
		AddField("Channel", fmt.Sprintf("<#%d>", event.Schedule.Channel), true).
		AddField("Role", fmt.Sprintf("<@&%d>", event.Schedule.Role), true).
		SetFooterText(fmt.Sprintf("Schedule #%d", event.Schedule.ID)).
		SetTimestamp(time.Now())

	if event.Kind == engine.EventDelay {
		builder.AddField("Postponed to", event.NewClose, true).
			AddField("Delays used", fmt.Sprintf("%d/%d", event.DelaysUsed, event.DelaysMax), true)
	}

	_, err := n.client.Rest().CreateMessage(snowflake.ID(guild.LogChannel), discord.NewMessageCreateBuilder().
		SetEmbeds(builder.Build()).
		Build(), rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to send log embed to channel %d: %w", guild.LogChannel, err)
	}
	return nil
}

func eventAppearance(kind engine.EventKind) (title string, color int) {
	switch kind {
	case engine.EventOpen:
		return "🔓 Channel opened", config.SuccessColor
	case engine.EventOpenSkip:
		return "Open skipped, channel was already open", config.NeutralColor
	case engine.EventClose:
		return "🔒 Channel closed", config.ErrorColor
	case engine.EventCloseSkip:
		return "Close skipped, channel was already closed", config.NeutralColor
	case engine.EventDelay:
		return "⏳ Close postponed", config.WarningColor
	case engine.EventWarning:
		return "⚠️ Close warning sent", config.WarningColor
	default:
		return string(kind), config.InfoColor
	}
}
