package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/daywarden/daywarden/daywarden"
	"github.com/daywarden/daywarden/daywarden/config"
	"github.com/daywarden/daywarden/daywarden/database/models"
	"github.com/daywarden/daywarden/daywarden/utils"
)

var Warden = discord.SlashCommandCreate{
	Name:        "warden",
	Description: "Configure Daywarden for this server",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "timezone",
			Description: "Set the server timezone used for all schedules",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:         "zone",
					Description:  "IANA timezone name, e.g. Europe/Berlin",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "log-channel",
			Description: "Set the channel that receives schedule log embeds",
			Options:     channelOption("Channel for log embeds"),
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "time-channel",
			Description: "Set the channel renamed to show the local time",
			Options:     channelOption("Channel renamed to the local time"),
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "admin-channel",
			Description: "Set the channel for administrative notices",
			Options:     channelOption("Channel for administrative notices"),
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "warning-time",
			Description: "Minutes before closing to warn active channels",
			Options:     minutesOption(1, 60),
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "inactive-time",
			Description: "Lookback window in minutes for the activity check",
			Options:     minutesOption(1, 120),
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "delay-time",
			Description: "Minutes each postponement pushes the close",
			Options:     minutesOption(1, 120),
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "open-message",
			Description: "Set the default open message for all schedules",
			Options:     textOption("Default open message"),
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "close-message",
			Description: "Set the default close message for all schedules",
			Options:     textOption("Default close message"),
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "show",
			Description: "Show the current configuration",
		},
	},
}

func channelOption(description string) []discord.ApplicationCommandOption {
	return []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionChannel{
			Name:        "channel",
			Description: description,
			Required:    true,
		},
	}
}

func minutesOption(minValue, maxValue int) []discord.ApplicationCommandOption {
	return []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionInt{
			Name:        "minutes",
			Description: "Minutes",
			Required:    true,
			MinValue:    utils.Ptr(minValue),
			MaxValue:    utils.Ptr(maxValue),
		},
	}
}

func textOption(description string) []discord.ApplicationCommandOption {
	return []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "text",
			Description: description,
			Required:    true,
		},
	}
}

func WardenHandler(b *daywarden.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return utils.EH.CreateErrorEmbed(e, "This command only works in a server.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		guildID := int64(*e.GuildID())
		guild, err := b.GuildRepository.EnsureExists(ctx, guildID)
		if err != nil {
			slog.Error("Failed to ensure guild record",
				slog.String("type", "db"),
				slog.Int64("guild_id", guildID),
				slog.Any("error", err))
			return utils.EH.CreateErrorEmbed(e, "Failed to load the server configuration. Please try again later.")
		}

		data := e.SlashCommandInteractionData()
		sub := *data.SubCommandName

		switch sub {
		case "show":
			return wardenShow(e, guild)
		case "timezone":
			zone := data.String("zone")
			if _, err := time.LoadLocation(zone); err != nil {
				return utils.EH.CreateErrorEmbed(e, fmt.Sprintf("`%s` is not a known IANA timezone.", zone))
			}
			err = b.GuildRepository.UpdateTimezone(ctx, guildID, zone)
		case "log-channel":
			err = b.GuildRepository.UpdateLogChannel(ctx, guildID, int64(data.Channel("channel").ID))
		case "time-channel":
			err = b.GuildRepository.UpdateTimeChannel(ctx, guildID, int64(data.Channel("channel").ID))
		case "admin-channel":
			err = b.GuildRepository.UpdateAdminChannel(ctx, guildID, int64(data.Channel("channel").ID))
		case "warning-time":
			err = b.GuildRepository.UpdateWarningTime(ctx, guildID, data.Int("minutes"))
		case "inactive-time":
			err = b.GuildRepository.UpdateInactiveTime(ctx, guildID, data.Int("minutes"))
		case "delay-time":
			err = b.GuildRepository.UpdateDelayTime(ctx, guildID, data.Int("minutes"))
		case "open-message":
			err = b.GuildRepository.UpdateOpenMessage(ctx, guildID, data.String("text"))
		case "close-message":
			err = b.GuildRepository.UpdateCloseMessage(ctx, guildID, data.String("text"))
		default:
			return utils.EH.CreateErrorEmbed(e, "Unknown subcommand.")
		}

		if err != nil {
			slog.Error("Failed to update guild configuration",
				slog.String("type", "db"),
				slog.Int64("guild_id", guildID),
				slog.String("field", sub),
				slog.Any("error", err))
			return utils.EH.CreateErrorEmbed(e, "Failed to save the configuration. Please try again later.")
		}

		return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("Configuration updated: **%s**.", sub))
	}
}

func wardenShow(e *handler.CommandEvent, guild *models.Guild) error {
	embed := discord.NewEmbedBuilder().
		SetTitle("⚙️ Daywarden configuration").
		SetColor(config.InfoColor).
		AddField("Timezone", guild.Timezone, true).
		AddField("Warning time", fmt.Sprintf("%d min", guild.WarningTime), true).
		AddField("Inactivity window", fmt.Sprintf("%d min", guild.InactiveTime), true).
		AddField("Delay time", fmt.Sprintf("%d min", guild.DelayTime), true).
		AddField("Log channel", channelField(guild.LogChannel), true).
		AddField("Time channel", channelField(guild.TimeChannel), true).
		AddField("Admin channel", channelField(guild.AdminChannel), true)

	if guild.OpenMessage != "" {
		embed.AddField("Open message", guild.OpenMessage, false)
	}
	if guild.CloseMessage != "" {
		embed.AddField("Close message", guild.CloseMessage, false)
	}

	return e.CreateMessage(discord.MessageCreate{Embeds: []discord.Embed{embed.Build()}})
}

func channelField(id int64) string {
	if id == models.ChannelUnset {
		return "not set"
	}
	return fmt.Sprintf("<#%d>", id)
}
