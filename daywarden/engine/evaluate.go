package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/daywarden/daywarden/daywarden/database/models"
	"github.com/daywarden/daywarden/daywarden/timeutil"
)

const (
	defaultOpenText  = "🔓 This channel is now open."
	defaultCloseText = "🔒 This channel is now closed."
)

// evaluate runs the trigger chain for one schedule. Triggers are checked in
// fixed priority order and at most one fires per tick: open, warning, close,
// delayed close. Every failure is logged here and never propagates to the
// rest of the tick.
func (e *Engine) evaluate(ctx context.Context, guild *models.Guild, sched *models.Schedule, nowLocal string, nowUTC time.Time) {
	if sched.Open == nowLocal {
		e.openTrigger(ctx, guild, sched)
		return
	}

	if sched.Warning {
		warnAt, err := timeutil.SubMinutes(sched.Close, guild.WarningTime)
		if err != nil {
			e.logScheduleError(sched, "invalid close time", err)
			return
		}
		if warnAt == nowLocal && e.warningTrigger(ctx, guild, sched, nowUTC) {
			return
		}
	}

	if sched.Close == nowLocal {
		e.closeTrigger(ctx, guild, sched, nowLocal, nowUTC, false)
		return
	}

	if sched.DelayPending() && sched.DynamicClose == nowLocal {
		e.closeTrigger(ctx, guild, sched, nowLocal, nowUTC, true)
	}
}

// openTrigger makes the channel writable for the schedule's role. Any stale
// delay state from a close that never happened the previous day is cleared
// first. The live overwrite decides whether there is anything to do: an
// already-neutral overwrite means some earlier run (or an operator) opened
// the channel, and re-running the same minute must not re-announce it.
func (e *Engine) openTrigger(ctx context.Context, guild *models.Guild, sched *models.Schedule) {
	if sched.DelayPending() || sched.CurrentDelayNum > 0 {
		if err := e.store.ClearDelayState(ctx, sched.ID); err != nil {
			e.logScheduleError(sched, "failed to clear stale delay state", err)
		} else {
			sched.DynamicClose = models.NoDynamicClose
			sched.CurrentDelayNum = 0
		}
	}

	state, err := e.perms.SendState(ctx, snowflake.ID(sched.Channel), snowflake.ID(sched.Role))
	if err != nil {
		e.logScheduleError(sched, "failed to read channel permissions", err)
		return
	}
	if state == PermissionNeutral {
		e.logEvent(ctx, guild, Event{Kind: EventOpenSkip, Schedule: *sched})
		return
	}

	if err := e.perms.SetSendState(ctx, snowflake.ID(sched.Channel), snowflake.ID(sched.Role), PermissionNeutral); err != nil {
		e.logScheduleError(sched, "failed to open channel", err)
		return
	}

	if !sched.Silent {
		text := composeMessage(guild.OpenMessage, defaultOpenText, sched.CustomOpenMessage)
		if err := e.notify.ChannelMessage(ctx, snowflake.ID(sched.Channel), text); err != nil {
			e.logScheduleError(sched, "failed to send open message", err)
		}
	}

	e.logEvent(ctx, guild, Event{Kind: EventOpen, Schedule: *sched})
}

// warningTrigger fires only when the channel saw human activity inside the
// guild's inactivity window; a warning into a dead channel is noise. Returns
// whether the schedule is done for this tick, so a fired warning suppresses
// the close evaluation even when the two times collide.
func (e *Engine) warningTrigger(ctx context.Context, guild *models.Guild, sched *models.Schedule, nowUTC time.Time) bool {
	since := nowUTC.Add(-time.Duration(guild.InactiveTime) * time.Minute)
	active, err := e.activity.HasHumanActivity(ctx, snowflake.ID(sched.Channel), since)
	if err != nil {
		e.logScheduleError(sched, "failed to check channel activity", err)
		return true
	}
	if !active {
		return false
	}

	var text string
	if sched.Dynamic {
		text = fmt.Sprintf("⚠️ This channel closes in %d minutes. Recent activity can postpone the closing.", guild.WarningTime)
	} else {
		text = fmt.Sprintf("⚠️ This channel closes in %d minutes.", guild.WarningTime)
	}
	if err := e.notify.ChannelMessage(ctx, snowflake.ID(sched.Channel), text); err != nil {
		e.logScheduleError(sched, "failed to send warning message", err)
	}

	e.logEvent(ctx, guild, Event{Kind: EventWarning, Schedule: *sched})
	return true
}

// closeTrigger handles both the static close time and a pending dynamic
// close (deferred=true). An overwrite that already denies send_messages
// short-circuits into close_skip, which is what keeps a retried tick from
// double-announcing. Activity inside the inactivity window defers the close
// while delay budget remains; otherwise the close is definitive.
func (e *Engine) closeTrigger(ctx context.Context, guild *models.Guild, sched *models.Schedule, nowLocal string, nowUTC time.Time, deferred bool) {
	state, err := e.perms.SendState(ctx, snowflake.ID(sched.Channel), snowflake.ID(sched.Role))
	if err != nil {
		e.logScheduleError(sched, "failed to read channel permissions", err)
		return
	}
	if state == PermissionDeny {
		e.logEvent(ctx, guild, Event{Kind: EventCloseSkip, Schedule: *sched})
		return
	}

	since := nowUTC.Add(-time.Duration(guild.InactiveTime) * time.Minute)
	active, err := e.activity.HasHumanActivity(ctx, snowflake.ID(sched.Channel), since)
	if err != nil {
		e.logScheduleError(sched, "failed to check channel activity", err)
		return
	}

	if active && sched.Dynamic && sched.DelayBudgetLeft() {
		e.delayClose(ctx, guild, sched, nowLocal, deferred)
		return
	}

	if !sched.Silent {
		text := composeMessage(guild.CloseMessage, defaultCloseText, sched.CustomCloseMessage)
		if err := e.notify.ChannelMessage(ctx, snowflake.ID(sched.Channel), text); err != nil {
			e.logScheduleError(sched, "failed to send close message", err)
		}
	}

	if err := e.perms.SetSendState(ctx, snowflake.ID(sched.Channel), snowflake.ID(sched.Role), PermissionDeny); err != nil {
		e.logScheduleError(sched, "failed to close channel", err)
		return
	}

	// The channel is in its correct live state now; a failed bookkeeping
	// write self-heals next tick through the live permission read.
	if sched.DelayPending() || sched.CurrentDelayNum > 0 {
		if err := e.store.ClearDelayState(ctx, sched.ID); err != nil {
			e.logScheduleError(sched, "failed to clear delay state", err)
		} else {
			sched.DynamicClose = models.NoDynamicClose
			sched.CurrentDelayNum = 0
		}
	}

	e.logEvent(ctx, guild, Event{Kind: EventClose, Schedule: *sched})
}

// delayClose pushes the close forward by the guild's delay window. The store
// write happens before any message so a crash mid-action cannot announce a
// delay that was never recorded.
func (e *Engine) delayClose(ctx context.Context, guild *models.Guild, sched *models.Schedule, nowLocal string, deferred bool) {
	newClose, err := timeutil.AddMinutes(nowLocal, guild.DelayTime)
	if err != nil {
		e.logScheduleError(sched, "failed to compute delayed close time", err)
		return
	}

	if err := e.store.SetDelayState(ctx, sched.ID, newClose, sched.CurrentDelayNum+1); err != nil {
		e.logScheduleError(sched, "failed to persist delay state", err)
		return
	}
	sched.DynamicClose = newClose
	sched.CurrentDelayNum++

	if deferred && !sched.DelayBudgetLeft() {
		text := fmt.Sprintf("⚠️ Still active, closing postponed to %s. This was the last postponement.", newClose)
		if err := e.notify.ChannelMessage(ctx, snowflake.ID(sched.Channel), text); err != nil {
			e.logScheduleError(sched, "failed to send final delay warning", err)
		}
	}

	e.logEvent(ctx, guild, Event{
		Kind:       EventDelay,
		Schedule:   *sched,
		DelaysUsed: sched.CurrentDelayNum,
		DelaysMax:  sched.MaxNumDelays,
		NewClose:   newClose,
	})
}

func (e *Engine) logEvent(ctx context.Context, guild *models.Guild, event Event) {
	if err := e.notify.LogEvent(ctx, guild, event); err != nil {
		slog.Error("Failed to send log event",
			slog.String("type", "engine"),
			slog.String("kind", string(event.Kind)),
			slog.Int64("schedule_id", event.Schedule.ID),
			slog.Any("error", err))
	}
}

func (e *Engine) logScheduleError(sched *models.Schedule, msg string, err error) {
	slog.Error(msg,
		slog.String("type", "engine"),
		slog.Int64("schedule_id", sched.ID),
		slog.Int64("guild_id", sched.GuildID),
		slog.Int64("channel", sched.Channel),
		slog.Any("error", err))
}

// composeMessage builds the user-facing text: the guild template (or the
// built-in fallback when unset) plus the schedule's own text when present.
func composeMessage(guildTemplate, fallback string, custom func() (string, bool)) string {
	text := guildTemplate
	if text == "" {
		text = fallback
	}
	if extra, ok := custom(); ok {
		text += "\n" + extra
	}
	return text
}
