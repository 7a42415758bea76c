package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"

	"github.com/daywarden/daywarden/daywarden"
)

// GuildJoinHandler records a guild on first contact and reactivates its
// record when the bot rejoins. Records are never deleted on leave, so a
// rejoin restores the previous configuration.
func GuildJoinHandler(b *daywarden.Bot) bot.EventListener {
	return bot.NewListenerFunc(func(e *events.GuildJoin) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		guildID := int64(e.GuildID)
		if _, err := b.GuildRepository.EnsureExists(ctx, guildID); err != nil {
			slog.Error("Failed to record joined guild",
				slog.String("type", "db"),
				slog.Int64("guild_id", guildID),
				slog.Any("error", err))
			return
		}
		if err := b.ScheduleRepository.SetActiveByGuild(ctx, guildID, true); err != nil {
			slog.Error("Failed to reactivate schedules",
				slog.String("type", "db"),
				slog.Int64("guild_id", guildID),
				slog.Any("error", err))
			return
		}

		slog.Info("Guild joined",
			slog.String("type", "sys"),
			slog.Int64("guild_id", guildID))
	})
}

// GuildLeaveHandler deactivates the guild and its schedules when the bot is
// removed.
func GuildLeaveHandler(b *daywarden.Bot) bot.EventListener {
	return bot.NewListenerFunc(func(e *events.GuildLeave) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		guildID := int64(e.GuildID)
		if err := b.GuildRepository.SetActive(ctx, guildID, false); err != nil {
			slog.Error("Failed to deactivate left guild",
				slog.String("type", "db"),
				slog.Int64("guild_id", guildID),
				slog.Any("error", err))
			return
		}
		if err := b.ScheduleRepository.SetActiveByGuild(ctx, guildID, false); err != nil {
			slog.Error("Failed to deactivate schedules",
				slog.String("type", "db"),
				slog.Int64("guild_id", guildID),
				slog.Any("error", err))
			return
		}

		slog.Info("Guild left",
			slog.String("type", "sys"),
			slog.Int64("guild_id", guildID))
	})
}
