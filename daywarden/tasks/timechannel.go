// Package tasks holds the low-frequency background loops that run beside the
// schedule engine.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/daywarden/daywarden/daywarden/database/repositories"
	"github.com/daywarden/daywarden/daywarden/timeutil"
)

// Channel renames are hard rate limited by Discord to two per ten minutes,
// so the loop runs well below that.
const renameInterval = 10 * time.Minute

// TimeChannelUpdater renames each guild's configured time channel to the
// guild's current local time. Pure formatting plus an edit, no state.
type TimeChannelUpdater struct {
	client bot.Client
	guilds repositories.GuildRepository
	clock  *timeutil.Clock
}

func NewTimeChannelUpdater(client bot.Client, guilds repositories.GuildRepository) *TimeChannelUpdater {
	return &TimeChannelUpdater{
		client: client,
		guilds: guilds,
		clock:  timeutil.NewClock(),
	}
}

func (u *TimeChannelUpdater) Run(ctx context.Context) {
	ticker := time.NewTicker(renameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			u.updateAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (u *TimeChannelUpdater) updateAll(ctx context.Context) {
	guilds, err := u.guilds.GetActive(ctx)
	if err != nil {
		slog.Error("Failed to load guilds for time display",
			slog.String("type", "db"),
			slog.Any("error", err))
		return
	}

	now := time.Now().UTC()
	for _, guild := range guilds {
		if !guild.HasTimeChannel() {
			continue
		}
		if err := u.updateGuild(ctx, guild.TimeChannel, guild.Timezone, now); err != nil {
			slog.Warn("Failed to update time channel",
				slog.String("type", "sys"),
				slog.Int64("guild_id", guild.ID),
				slog.Int64("channel", guild.TimeChannel),
				slog.Any("error", err))
		}
	}
}

func (u *TimeChannelUpdater) updateGuild(ctx context.Context, channelID int64, timezone string, now time.Time) error {
	local, err := u.clock.LocalHHMM(timezone, now)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("🕒 %s", local)

	channel, err := u.client.Rest().GetChannel(snowflake.ID(channelID), rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to fetch time channel: %w", err)
	}

	var update discord.ChannelUpdate
	if channel.Type() == discord.ChannelTypeGuildVoice {
		update = discord.GuildVoiceChannelUpdate{Name: &name}
	} else {
		update = discord.GuildTextChannelUpdate{Name: &name}
	}

	if _, err := u.client.Rest().UpdateChannel(snowflake.ID(channelID), update, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to rename time channel: %w", err)
	}
	return nil
}
