package commands

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"

	"github.com/daywarden/daywarden/daywarden"
	"github.com/daywarden/daywarden/daywarden/database/models"
	"github.com/daywarden/daywarden/daywarden/database/repositories"
	"github.com/daywarden/daywarden/daywarden/timeutil"
	"github.com/daywarden/daywarden/daywarden/utils"
)

const schedulesPerPage = 5

var Schedule = discord.SlashCommandCreate{
	Name:        "schedule",
	Description: "Manage daily open/close schedules",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "create",
			Description: "Create a daily open/close schedule for a channel",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionChannel{
					Name:        "channel",
					Description: "Channel to open and close",
					Required:    true,
				},
				discord.ApplicationCommandOptionRole{
					Name:        "role",
					Description: "Role whose posting access is managed",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "open",
					Description: "Daily opening time (HH:MM, guild local time)",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "close",
					Description: "Daily closing time (HH:MM, guild local time)",
					Required:    true,
				},
				discord.ApplicationCommandOptionBool{
					Name:        "warning",
					Description: "Send a warning before closing",
				},
				discord.ApplicationCommandOptionBool{
					Name:        "dynamic",
					Description: "Postpone closing while the channel is active",
				},
				discord.ApplicationCommandOptionInt{
					Name:        "max-delays",
					Description: "Maximum number of postponements per day",
					MinValue:    utils.Ptr(0),
					MaxValue:    utils.Ptr(10),
				},
				discord.ApplicationCommandOptionBool{
					Name:        "silent",
					Description: "Suppress open/close messages in the channel",
				},
				discord.ApplicationCommandOptionString{
					Name:        "open-message",
					Description: "Extra text for the open message",
				},
				discord.ApplicationCommandOptionString{
					Name:        "close-message",
					Description: "Extra text for the close message",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "delete",
			Description: "Delete a schedule",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "id",
					Description: "Schedule id (see /schedule list)",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "list",
			Description: "List this guild's schedules",
		},
		discord.ApplicationCommandOptionSubCommandGroup{
			Name:        "set",
			Description: "Change one field of a schedule",
			Options: []discord.ApplicationCommandOptionSubCommand{
				setSubCommand("open", discord.ApplicationCommandOptionString{
					Name: "value", Description: "New opening time (HH:MM)", Required: true,
				}),
				setSubCommand("close", discord.ApplicationCommandOptionString{
					Name: "value", Description: "New closing time (HH:MM)", Required: true,
				}),
				setSubCommand("warning", discord.ApplicationCommandOptionBool{
					Name: "value", Description: "Send a warning before closing", Required: true,
				}),
				setSubCommand("dynamic", discord.ApplicationCommandOptionBool{
					Name: "value", Description: "Postpone closing while active", Required: true,
				}),
				setSubCommand("max-delays", discord.ApplicationCommandOptionInt{
					Name: "value", Description: "Maximum postponements per day", Required: true,
					MinValue: utils.Ptr(0), MaxValue: utils.Ptr(10),
				}),
				setSubCommand("silent", discord.ApplicationCommandOptionBool{
					Name: "value", Description: "Suppress open/close messages", Required: true,
				}),
				setSubCommand("open-message", discord.ApplicationCommandOptionString{
					Name: "value", Description: "Extra open text, or None to clear", Required: true,
				}),
				setSubCommand("close-message", discord.ApplicationCommandOptionString{
					Name: "value", Description: "Extra close text, or None to clear", Required: true,
				}),
			},
		},
	},
}

func setSubCommand(field string, value discord.ApplicationCommandOption) discord.ApplicationCommandOptionSubCommand {
	return discord.ApplicationCommandOptionSubCommand{
		Name:        field,
		Description: fmt.Sprintf("Change a schedule's %s field", field),
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "id",
				Description: "Schedule id (see /schedule list)",
				Required:    true,
			},
			value,
		},
	}
}

func ScheduleHandler(b *daywarden.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.GuildID() == nil {
			return utils.EH.CreateErrorEmbed(e, "This command only works in a server.")
		}

		data := e.SlashCommandInteractionData()
		if data.SubCommandGroupName != nil && *data.SubCommandGroupName == "set" {
			return scheduleSet(b, e, data)
		}

		switch *data.SubCommandName {
		case "create":
			return scheduleCreate(b, e, data)
		case "delete":
			return scheduleDelete(b, e, data)
		case "list":
			return scheduleList(b, e)
		default:
			return utils.EH.CreateErrorEmbed(e, "Unknown subcommand.")
		}
	}
}

func scheduleCreate(b *daywarden.Bot, e *handler.CommandEvent, data discord.SlashCommandInteractionData) error {
	openAt := strings.TrimSpace(data.String("open"))
	closeAt := strings.TrimSpace(data.String("close"))
	if !timeutil.ValidHHMM(openAt) {
		return utils.EH.CreateErrorEmbed(e, fmt.Sprintf("`%s` is not a valid HH:MM time.", openAt))
	}
	if !timeutil.ValidHHMM(closeAt) {
		return utils.EH.CreateErrorEmbed(e, fmt.Sprintf("`%s` is not a valid HH:MM time.", closeAt))
	}
	if openAt == closeAt {
		return utils.EH.CreateErrorEmbed(e, "Opening and closing times must differ.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	guildID := int64(*e.GuildID())
	if _, err := b.GuildRepository.EnsureExists(ctx, guildID); err != nil {
		slog.Error("Failed to ensure guild record",
			slog.String("type", "db"),
			slog.Int64("guild_id", guildID),
			slog.Any("error", err))
		return utils.EH.CreateErrorEmbed(e, "Failed to save the schedule. Please try again later.")
	}

	channel := data.Channel("channel")
	role := data.Role("role")

	schedule := &models.Schedule{
		GuildID:      guildID,
		Channel:      int64(channel.ID),
		Role:         int64(role.ID),
		Open:         openAt,
		Close:        closeAt,
		DynamicClose: models.NoDynamicClose,
		Warning:      data.Bool("warning"),
		Dynamic:      data.Bool("dynamic"),
		Silent:       data.Bool("silent"),
		OpenMessage:  models.NoCustomMessage,
		CloseMessage: models.NoCustomMessage,
		Active:       true,
	}
	if maxDelays, ok := data.OptInt("max-delays"); ok {
		schedule.MaxNumDelays = maxDelays
	}
	if text, ok := data.OptString("open-message"); ok {
		schedule.OpenMessage = text
	}
	if text, ok := data.OptString("close-message"); ok {
		schedule.CloseMessage = text
	}

	if err := b.ScheduleRepository.Create(ctx, schedule); err != nil {
		slog.Error("Failed to create schedule",
			slog.String("type", "db"),
			slog.Int64("guild_id", guildID),
			slog.Any("error", err))
		return utils.EH.CreateError(e, "Schedule Not Saved",
			"A schedule may already exist for this channel and role. Delete it first or edit it with /schedule set.")
	}

	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf(
		"Schedule #%d created: <#%d> opens at **%s** and closes at **%s**.",
		schedule.ID, schedule.Channel, schedule.Open, schedule.Close))
}

func scheduleDelete(b *daywarden.Bot, e *handler.CommandEvent, data discord.SlashCommandInteractionData) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := int64(data.Int("id"))
	schedule, err := guildSchedule(ctx, b, e, id)
	if err != nil {
		return utils.EH.CreateErrorEmbed(e, fmt.Sprintf("Schedule #%d was not found in this server.", id))
	}

	if err := b.ScheduleRepository.Delete(ctx, schedule.ID); err != nil {
		slog.Error("Failed to delete schedule",
			slog.String("type", "db"),
			slog.Int64("schedule_id", id),
			slog.Any("error", err))
		return utils.EH.CreateErrorEmbed(e, "Failed to delete the schedule. Please try again later.")
	}

	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("Schedule #%d for <#%d> deleted.", schedule.ID, schedule.Channel))
}

func scheduleList(b *daywarden.Bot, e *handler.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schedules, err := b.ScheduleRepository.GetByGuild(ctx, int64(*e.GuildID()))
	if err != nil {
		slog.Error("Failed to list schedules",
			slog.String("type", "db"),
			slog.Any("error", err))
		return utils.EH.CreateErrorEmbed(e, "Failed to load schedules. Please try again later.")
	}
	if len(schedules) == 0 {
		return utils.EH.CreateInfoEmbed(e, "No schedules yet. Create one with `/schedule create`.")
	}

	totalPages := int(math.Ceil(float64(len(schedules)) / float64(schedulesPerPage)))

	return b.Paginator.Create(e.Respond, paginator.Pages{
		ID:      e.ID().String(),
		Creator: e.User().ID,
		PageFunc: func(page int, embed *discord.EmbedBuilder) {
			startIdx := page * schedulesPerPage
			endIdx := min(startIdx+schedulesPerPage, len(schedules))

			var description strings.Builder
			for _, s := range schedules[startIdx:endIdx] {
				description.WriteString(formatSchedule(s))
			}

			embed.SetTitle("📋 Channel Schedules").
				SetDescription(description.String()).
				SetFooterText(fmt.Sprintf("Page %d/%d", page+1, totalPages))
		},
		Pages:      totalPages,
		ExpireMode: paginator.ExpireModeAfterLastUsage,
	}, false)
}

func formatSchedule(s models.Schedule) string {
	var flags []string
	if s.Warning {
		flags = append(flags, "warning")
	}
	if s.Dynamic {
		flags = append(flags, fmt.Sprintf("dynamic ×%d", s.MaxNumDelays))
	}
	if s.Silent {
		flags = append(flags, "silent")
	}
	if !s.Active {
		flags = append(flags, "inactive")
	}
	flagText := ""
	if len(flags) > 0 {
		flagText = " (" + strings.Join(flags, ", ") + ")"
	}

	line := fmt.Sprintf("**#%d** <#%d> <@&%d> — %s → %s%s\n", s.ID, s.Channel, s.Role, s.Open, s.Close, flagText)
	if s.DelayPending() {
		line += fmt.Sprintf("> closing postponed to %s (%d/%d delays used)\n", s.DynamicClose, s.CurrentDelayNum, s.MaxNumDelays)
	}
	return line
}

func scheduleSet(b *daywarden.Bot, e *handler.CommandEvent, data discord.SlashCommandInteractionData) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := int64(data.Int("id"))
	schedule, err := guildSchedule(ctx, b, e, id)
	if err != nil {
		return utils.EH.CreateErrorEmbed(e, fmt.Sprintf("Schedule #%d was not found in this server.", id))
	}

	field := *data.SubCommandName
	switch field {
	case "open", "close":
		value := strings.TrimSpace(data.String("value"))
		if !timeutil.ValidHHMM(value) {
			return utils.EH.CreateErrorEmbed(e, fmt.Sprintf("`%s` is not a valid HH:MM time.", value))
		}
		if field == "open" {
			err = b.ScheduleRepository.UpdateOpen(ctx, id, value)
		} else {
			err = b.ScheduleRepository.UpdateClose(ctx, id, value)
		}
	case "warning":
		err = b.ScheduleRepository.UpdateWarning(ctx, id, data.Bool("value"))
	case "dynamic":
		err = b.ScheduleRepository.UpdateDynamic(ctx, id, data.Bool("value"))
	case "max-delays":
		err = b.ScheduleRepository.UpdateMaxDelays(ctx, id, data.Int("value"))
	case "silent":
		err = b.ScheduleRepository.UpdateSilent(ctx, id, data.Bool("value"))
	case "open-message":
		err = b.ScheduleRepository.UpdateOpenMessage(ctx, id, data.String("value"))
	case "close-message":
		err = b.ScheduleRepository.UpdateCloseMessage(ctx, id, data.String("value"))
	default:
		return utils.EH.CreateErrorEmbed(e, "Unknown field.")
	}

	if err != nil {
		slog.Error("Failed to update schedule field",
			slog.String("type", "db"),
			slog.Int64("schedule_id", id),
			slog.String("field", field),
			slog.Any("error", err))
		return utils.EH.CreateErrorEmbed(e, "Failed to update the schedule. Please try again later.")
	}

	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("Schedule #%d updated: %s set for <#%d>.", schedule.ID, field, schedule.Channel))
}

// guildSchedule loads a schedule and verifies it belongs to the command's
// guild, so operators cannot touch another guild's rows by id.
func guildSchedule(ctx context.Context, b *daywarden.Bot, e *handler.CommandEvent, id int64) (*models.Schedule, error) {
	schedule, err := b.ScheduleRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule.GuildID != int64(*e.GuildID()) {
		return nil, repositories.ErrScheduleNotFound
	}
	return schedule, nil
}
