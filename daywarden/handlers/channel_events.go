package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"

	"github.com/daywarden/daywarden/daywarden"
)

// ChannelDeleteHandler removes every schedule targeting a deleted channel;
// a schedule without its channel can never fire again.
func ChannelDeleteHandler(b *daywarden.Bot) bot.EventListener {
	return bot.NewListenerFunc(func(e *events.GuildChannelDelete) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		channelID := int64(e.ChannelID)
		if err := b.ScheduleRepository.DeleteByChannel(ctx, channelID); err != nil {
			slog.Error("Failed to delete schedules for removed channel",
				slog.String("type", "db"),
				slog.Int64("guild_id", int64(e.GuildID)),
				slog.Int64("channel", channelID),
				slog.Any("error", err))
			return
		}

		slog.Info("Removed schedules for deleted channel",
			slog.String("type", "sys"),
			slog.Int64("guild_id", int64(e.GuildID)),
			slog.Int64("channel", channelID))
	})
}
