// Package engine implements the per-minute schedule evaluation pass: it
// reconciles stored schedule state against the live channel permission state
// and decides whether each schedule opens, warns, delays or closes its channel.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/sync/errgroup"

	"github.com/daywarden/daywarden/daywarden/database/models"
	"github.com/daywarden/daywarden/daywarden/timeutil"
)

// PermissionState is the tri-state send_messages overwrite for a role on a
// channel. Neutral means the overwrite defers to the channel's inherited
// default.
type PermissionState int

const (
	PermissionNeutral PermissionState = iota
	PermissionAllow
	PermissionDeny
)

func (s PermissionState) String() string {
	switch s {
	case PermissionAllow:
		return "allow"
	case PermissionDeny:
		return "deny"
	default:
		return "neutral"
	}
}

// EventKind labels the action the engine took for one schedule in one tick.
type EventKind string

const (
	EventOpen      EventKind = "open"
	EventOpenSkip  EventKind = "open_skip"
	EventClose     EventKind = "close"
	EventCloseSkip EventKind = "close_skip"
	EventDelay     EventKind = "delay"
	EventWarning   EventKind = "warning"
)

// Event describes an engine action for log-channel notification.
type Event struct {
	Kind     EventKind
	Schedule models.Schedule
	// Delay accounting, meaningful for EventDelay.
	DelaysUsed int
	DelaysMax  int
	NewClose   string
}

// Store is the slice of the schedule store the engine consumes. Reads happen
// once per tick; the only writes are the delay bookkeeping fields.
type Store interface {
	ActiveGuilds(ctx context.Context) ([]models.Guild, error)
	ActiveSchedules(ctx context.Context) ([]models.Schedule, error)
	SetDelayState(ctx context.Context, scheduleID int64, dynamicClose string, delayNum int) error
	ClearDelayState(ctx context.Context, scheduleID int64) error
}

// PermissionGateway reads and writes the send_messages overwrite for a role
// on a channel. The read is the engine's ground truth for "is the channel
// currently open"; stored state is never trusted for that fact.
type PermissionGateway interface {
	SendState(ctx context.Context, channelID, roleID snowflake.ID) (PermissionState, error)
	SetSendState(ctx context.Context, channelID, roleID snowflake.ID, state PermissionState) error
}

// ActivityDetector reports whether any human (non-bot, and not the engine's
// own account) posted in a channel at or after the cutoff.
type ActivityDetector interface {
	HasHumanActivity(ctx context.Context, channelID snowflake.ID, since time.Time) (bool, error)
}

// Notifier delivers user-facing channel messages and log-channel embeds.
type Notifier interface {
	ChannelMessage(ctx context.Context, channelID snowflake.ID, text string) error
	LogEvent(ctx context.Context, guild *models.Guild, event Event) error
}

const (
	tickInterval   = time.Minute
	tickTimeout    = 50 * time.Second
	maxConcurrency = 8
)

type Engine struct {
	store    Store
	perms    PermissionGateway
	activity ActivityDetector
	notify   Notifier
	clock    *timeutil.Clock

	now   func() time.Time
	locks *scheduleLocks

	// Held for the duration of a tick; a tick that is still running when
	// the next timer fires causes that tick to be skipped, never overlapped.
	tickMu sync.Mutex
}

func New(store Store, perms PermissionGateway, activity ActivityDetector, notify Notifier) *Engine {
	return &Engine{
		store:    store,
		perms:    perms,
		activity: activity,
		notify:   notify,
		clock:    timeutil.NewClock(),
		now:      time.Now,
		locks:    newScheduleLocks(),
	}
}

// Run drives the tick loop until ctx is cancelled. The first tick is aligned
// to the top of the next minute; afterwards a tick fires every minute.
func (e *Engine) Run(ctx context.Context) {
	now := e.now()
	firstTick := now.Truncate(tickInterval).Add(tickInterval)
	slog.Info("Schedule engine starting",
		slog.String("type", "engine"),
		slog.Time("first_tick", firstTick))

	select {
	case <-time.After(firstTick.Sub(now)):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	e.runTick(ctx)
	for {
		select {
		case <-ticker.C:
			e.runTick(ctx)
		case <-ctx.Done():
			slog.Info("Schedule engine stopped", slog.String("type", "engine"))
			return
		}
	}
}

func (e *Engine) runTick(ctx context.Context) {
	if !e.tickMu.TryLock() {
		slog.Warn("Previous tick still running, skipping",
			slog.String("type", "engine"))
		return
	}
	defer e.tickMu.Unlock()

	tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
	defer cancel()

	start := e.now()
	if err := e.Tick(tickCtx, start.UTC()); err != nil {
		slog.Error("Tick failed",
			slog.String("type", "engine"),
			slog.Any("error", err))
		return
	}
	slog.Debug("Tick completed",
		slog.String("type", "engine"),
		slog.Duration("took", time.Since(start)))
}

// Tick runs one evaluation pass at the given UTC instant. Guilds and
// schedules are reloaded from the store at the start of every pass, grouped
// by timezone, and evaluated concurrently; no two evaluations of the same
// schedule ever run at once. Only a store read failure aborts the pass:
// every per-schedule failure is logged and isolated.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	guilds, err := e.store.ActiveGuilds(ctx)
	if err != nil {
		return err
	}
	schedules, err := e.store.ActiveSchedules(ctx)
	if err != nil {
		return err
	}
	if len(guilds) == 0 || len(schedules) == 0 {
		return nil
	}

	guildByID := make(map[int64]*models.Guild, len(guilds))
	byZone := make(map[string][]*models.Guild)
	for i := range guilds {
		g := &guilds[i]
		guildByID[g.ID] = g
		byZone[g.Timezone] = append(byZone[g.Timezone], g)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrency)

	for zone, zoneGuilds := range byZone {
		nowLocal, err := e.clock.LocalHHMM(zone, now)
		if err != nil {
			// Misconfigured timezone: skip this guild group, never crash.
			slog.Warn("Skipping guilds with invalid timezone",
				slog.String("type", "engine"),
				slog.String("timezone", zone),
				slog.Int("guilds", len(zoneGuilds)),
				slog.Any("error", err))
			continue
		}

		inZone := make(map[int64]bool, len(zoneGuilds))
		for _, g := range zoneGuilds {
			inZone[g.ID] = true
		}

		for i := range schedules {
			sched := schedules[i]
			if !inZone[sched.GuildID] {
				continue
			}
			guild := guildByID[sched.GuildID]
			nowLocal := nowLocal
			group.Go(func() error {
				unlock := e.locks.lock(sched.Channel, sched.Role)
				defer unlock()
				e.evaluate(groupCtx, guild, &sched, nowLocal, now)
				return nil
			})
		}
	}

	return group.Wait()
}
