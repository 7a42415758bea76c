package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daywarden/daywarden/daywarden/database/models"
	"github.com/daywarden/daywarden/daywarden/timeutil"
)

type fakeStore struct {
	mu        sync.Mutex
	guilds    []models.Guild
	schedules []models.Schedule

	guildsErr    error
	schedulesErr error
	setDelayErr  error
	clearErr     error

	setDelayCalls []delayCall
	clearCalls    []int64
	guildLoads    int
	scheduleLoads int
}

type delayCall struct {
	scheduleID   int64
	dynamicClose string
	delayNum     int
}

func (s *fakeStore) ActiveGuilds(ctx context.Context) ([]models.Guild, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guildLoads++
	if s.guildsErr != nil {
		return nil, s.guildsErr
	}
	return s.guilds, nil
}

func (s *fakeStore) ActiveSchedules(ctx context.Context) ([]models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLoads++
	if s.schedulesErr != nil {
		return nil, s.schedulesErr
	}
	return s.schedules, nil
}

func (s *fakeStore) SetDelayState(ctx context.Context, scheduleID int64, dynamicClose string, delayNum int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setDelayErr != nil {
		return s.setDelayErr
	}
	s.setDelayCalls = append(s.setDelayCalls, delayCall{scheduleID, dynamicClose, delayNum})
	return nil
}

func (s *fakeStore) ClearDelayState(ctx context.Context, scheduleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.clearCalls = append(s.clearCalls, scheduleID)
	return nil
}

type permKey struct {
	channel snowflake.ID
	role    snowflake.ID
}

type fakeGateway struct {
	mu      sync.Mutex
	states  map[permKey]PermissionState
	readErr error
	setErr  error

	reads  int
	writes []PermissionState
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{states: make(map[permKey]PermissionState)}
}

func (g *fakeGateway) set(channel, role int64, state PermissionState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[permKey{snowflake.ID(channel), snowflake.ID(role)}] = state
}

func (g *fakeGateway) SendState(ctx context.Context, channelID, roleID snowflake.ID) (PermissionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reads++
	if g.readErr != nil {
		return PermissionNeutral, g.readErr
	}
	return g.states[permKey{channelID, roleID}], nil
}

func (g *fakeGateway) SetSendState(ctx context.Context, channelID, roleID snowflake.ID, state PermissionState) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.setErr != nil {
		return g.setErr
	}
	g.states[permKey{channelID, roleID}] = state
	g.writes = append(g.writes, state)
	return nil
}

type fakeDetector struct {
	mu     sync.Mutex
	active map[snowflake.ID]bool
	err    error
	calls  int
}

func newFakeDetector() *fakeDetector {
	return &fakeDetector{active: make(map[snowflake.ID]bool)}
}

func (d *fakeDetector) HasHumanActivity(ctx context.Context, channelID snowflake.ID, since time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return false, d.err
	}
	return d.active[channelID], nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	events   []Event
	msgErr   error
}

func (n *fakeNotifier) ChannelMessage(ctx context.Context, channelID snowflake.ID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.msgErr != nil {
		return n.msgErr
	}
	n.messages = append(n.messages, text)
	return nil
}

func (n *fakeNotifier) LogEvent(ctx context.Context, guild *models.Guild, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) eventKinds() []EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]EventKind, len(n.events))
	for i, e := range n.events {
		kinds[i] = e.Kind
	}
	return kinds
}

type fixture struct {
	engine   *Engine
	store    *fakeStore
	gateway  *fakeGateway
	detector *fakeDetector
	notifier *fakeNotifier
}

func newFixture(guilds []models.Guild, schedules []models.Schedule) *fixture {
	store := &fakeStore{guilds: guilds, schedules: schedules}
	gateway := newFakeGateway()
	detector := newFakeDetector()
	notifier := &fakeNotifier{}
	return &fixture{
		engine:   New(store, gateway, detector, notifier),
		store:    store,
		gateway:  gateway,
		detector: detector,
		notifier: notifier,
	}
}

func testGuild() models.Guild {
	return models.Guild{
		ID:           100,
		Timezone:     "UTC",
		AdminChannel: models.ChannelUnset,
		LogChannel:   models.ChannelUnset,
		TimeChannel:  models.ChannelUnset,
		WarningTime:  models.DefaultWarningTime,
		InactiveTime: models.DefaultInactiveTime,
		DelayTime:    models.DefaultDelayTime,
		Active:       true,
	}
}

func testSchedule() models.Schedule {
	return models.Schedule{
		ID:           1,
		GuildID:      100,
		Channel:      200,
		Role:         300,
		Open:         "08:00",
		Close:        "22:00",
		DynamicClose: models.NoDynamicClose,
		OpenMessage:  models.NoCustomMessage,
		CloseMessage: models.NoCustomMessage,
		Active:       true,
	}
}

// utcAt builds a UTC instant whose local HH:MM in UTC equals the given time.
func utcAt(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	require.NoError(t, err)
	return time.Date(2026, 3, 14, parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
}

func TestTickOpensChannelAtOpenTime(t *testing.T) {
	sched := testSchedule()
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.gateway.set(sched.Channel, sched.Role, PermissionDeny)

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "08:00")))

	assert.Equal(t, []PermissionState{PermissionNeutral}, f.gateway.writes)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "open")
	assert.Equal(t, []EventKind{EventOpen}, f.notifier.eventKinds())
}

func TestTickOpenIsIdempotent(t *testing.T) {
	sched := testSchedule()
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.gateway.set(sched.Channel, sched.Role, PermissionNeutral)

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "08:00")))

	assert.Empty(t, f.gateway.writes, "already-open channel must not be rewritten")
	assert.Empty(t, f.notifier.messages, "already-open channel must not be re-announced")
	assert.Equal(t, []EventKind{EventOpenSkip}, f.notifier.eventKinds())
}

func TestTickOpenClearsStaleDelayState(t *testing.T) {
	sched := testSchedule()
	sched.DynamicClose = "23:30"
	sched.CurrentDelayNum = 2
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.gateway.set(sched.Channel, sched.Role, PermissionDeny)

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "08:00")))

	assert.Equal(t, []int64{sched.ID}, f.store.clearCalls)
	assert.Equal(t, []EventKind{EventOpen}, f.notifier.eventKinds())
}

func TestTickClosesChannelAtCloseTime(t *testing.T) {
	sched := testSchedule()
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.gateway.set(sched.Channel, sched.Role, PermissionNeutral)

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:00")))

	assert.Equal(t, []PermissionState{PermissionDeny}, f.gateway.writes)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "closed")
	assert.Equal(t, []EventKind{EventClose}, f.notifier.eventKinds())
}

func TestTickCloseIsIdempotent(t *testing.T) {
	sched := testSchedule()
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.gateway.set(sched.Channel, sched.Role, PermissionDeny)

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:00")))

	assert.Empty(t, f.gateway.writes)
	assert.Empty(t, f.notifier.messages)
	assert.Equal(t, []EventKind{EventCloseSkip}, f.notifier.eventKinds())
}

func TestTickSilentScheduleSendsNoMessages(t *testing.T) {
	sched := testSchedule()
	sched.Silent = true
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.gateway.set(sched.Channel, sched.Role, PermissionNeutral)

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:00")))

	assert.Empty(t, f.notifier.messages)
	assert.Equal(t, []PermissionState{PermissionDeny}, f.gateway.writes)
}

func TestTickCustomMessagesAreAppended(t *testing.T) {
	guild := testGuild()
	guild.CloseMessage = "Quiet hours start now."
	sched := testSchedule()
	sched.CloseMessage = "See you tomorrow!"
	f := newFixture([]models.Guild{guild}, []models.Schedule{sched})

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:00")))

	require.Len(t, f.notifier.messages, 1)
	assert.Equal(t, "Quiet hours start now.\nSee you tomorrow!", f.notifier.messages[0])
}

func TestTickDynamicCloseDelaysWhileActive(t *testing.T) {
	sched := testSchedule()
	sched.Dynamic = true
	sched.MaxNumDelays = 3
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.detector.active[snowflake.ID(sched.Channel)] = true

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:00")))

	require.Len(t, f.store.setDelayCalls, 1)
	assert.Equal(t, delayCall{sched.ID, "22:15", 1}, f.store.setDelayCalls[0])
	assert.Empty(t, f.gateway.writes, "delayed close must not touch permissions")
	assert.Equal(t, []EventKind{EventDelay}, f.notifier.eventKinds())
}

func TestTickDeferredCloseFiresAtDynamicClose(t *testing.T) {
	sched := testSchedule()
	sched.Dynamic = true
	sched.MaxNumDelays = 3
	sched.DynamicClose = "22:15"
	sched.CurrentDelayNum = 1
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:15")))

	assert.Equal(t, []PermissionState{PermissionDeny}, f.gateway.writes)
	assert.Equal(t, []int64{sched.ID}, f.store.clearCalls, "delay state must reset after the close lands")
	assert.Equal(t, []EventKind{EventClose}, f.notifier.eventKinds())
}

func TestTickDelayBudgetExhaustedForcesClose(t *testing.T) {
	sched := testSchedule()
	sched.Dynamic = true
	sched.MaxNumDelays = 2
	sched.DynamicClose = "22:30"
	sched.CurrentDelayNum = 2
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.detector.active[snowflake.ID(sched.Channel)] = true

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:30")))

	assert.Empty(t, f.store.setDelayCalls, "exhausted budget must not defer again")
	assert.Equal(t, []PermissionState{PermissionDeny}, f.gateway.writes)
	assert.Equal(t, []EventKind{EventClose}, f.notifier.eventKinds())
}

func TestTickFinalDelayAnnouncesLastPostponement(t *testing.T) {
	sched := testSchedule()
	sched.Dynamic = true
	sched.MaxNumDelays = 2
	sched.DynamicClose = "22:15"
	sched.CurrentDelayNum = 1
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.detector.active[snowflake.ID(sched.Channel)] = true

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:15")))

	require.Len(t, f.store.setDelayCalls, 1)
	assert.Equal(t, delayCall{sched.ID, "22:30", 2}, f.store.setDelayCalls[0])
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "last postponement")
}

func TestTickWarningFiresOnlyWithActivity(t *testing.T) {
	sched := testSchedule()
	sched.Warning = true
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.detector.active[snowflake.ID(sched.Channel)] = true

	// Default warning time is 10 minutes before the 22:00 close.
	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "21:50")))

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "closes in 10 minutes")
	assert.Equal(t, []EventKind{EventWarning}, f.notifier.eventKinds())
}

func TestTickWarningSilentWhenChannelInactive(t *testing.T) {
	sched := testSchedule()
	sched.Warning = true
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "21:50")))

	assert.Empty(t, f.notifier.messages)
	assert.Empty(t, f.notifier.events)
}

func TestTickWarningSuppressesCollidingClose(t *testing.T) {
	guild := testGuild()
	guild.WarningTime = 0
	sched := testSchedule()
	sched.Warning = true
	f := newFixture([]models.Guild{guild}, []models.Schedule{sched})
	f.detector.active[snowflake.ID(sched.Channel)] = true

	// Warning offset of zero makes the warning minute collide with the close
	// minute; the warning wins and the close waits for the next day.
	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:00")))

	assert.Equal(t, []EventKind{EventWarning}, f.notifier.eventKinds())
	assert.Empty(t, f.gateway.writes)
}

func TestTickActivityCheckFailureSkipsSchedule(t *testing.T) {
	sched := testSchedule()
	sched.Warning = true
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.detector.err = errors.New("rest: 503")

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "21:50")))

	assert.Empty(t, f.notifier.messages)
	assert.Empty(t, f.gateway.writes)
}

func TestTickPermissionReadFailureLeavesStateUntouched(t *testing.T) {
	sched := testSchedule()
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.gateway.readErr = errors.New("rest: 502")

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:00")))

	assert.Empty(t, f.gateway.writes)
	assert.Empty(t, f.notifier.messages)
	assert.Empty(t, f.store.setDelayCalls)
}

func TestTickScheduleFailureIsIsolated(t *testing.T) {
	healthy := testSchedule()
	broken := testSchedule()
	broken.ID = 2
	broken.Channel = 201
	broken.Close = "invalid"
	broken.Warning = true
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{broken, healthy})

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:00")))

	// The schedule with the unparseable close time fails alone; the healthy
	// one still closes.
	assert.Equal(t, []PermissionState{PermissionDeny}, f.gateway.writes)
	assert.Equal(t, []EventKind{EventClose}, f.notifier.eventKinds())
}

func TestTickInvalidTimezoneSkipsGuildGroup(t *testing.T) {
	badGuild := testGuild()
	badGuild.Timezone = "Mars/Olympus_Mons"
	goodGuild := testGuild()
	goodGuild.ID = 101

	badSched := testSchedule()
	goodSched := testSchedule()
	goodSched.ID = 2
	goodSched.GuildID = 101
	goodSched.Channel = 201

	f := newFixture([]models.Guild{badGuild, goodGuild}, []models.Schedule{badSched, goodSched})

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:00")))

	assert.Equal(t, []PermissionState{PermissionDeny}, f.gateway.writes)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, int64(2), f.notifier.events[0].Schedule.ID)
}

func TestTickTimezoneGrouping(t *testing.T) {
	berlin := testGuild()
	berlin.Timezone = "Europe/Berlin"
	utc := testGuild()
	utc.ID = 101

	berlinSched := testSchedule()
	utcSched := testSchedule()
	utcSched.ID = 2
	utcSched.GuildID = 101
	utcSched.Channel = 201

	f := newFixture([]models.Guild{berlin, utc}, []models.Schedule{berlinSched, utcSched})

	// 22:00 UTC is 23:00 in Berlin, so only the UTC guild closes.
	now := utcAt(t, "22:00")
	berlinLocal, err := timeutil.NewClock().LocalHHMM("Europe/Berlin", now)
	require.NoError(t, err)
	require.NotEqual(t, "22:00", berlinLocal)

	require.NoError(t, f.engine.Tick(context.Background(), now))

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, int64(2), f.notifier.events[0].Schedule.ID)
}

func TestTickStoreFailureAbortsPass(t *testing.T) {
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{testSchedule()})
	f.store.guildsErr = errors.New("db: connection reset")

	err := f.engine.Tick(context.Background(), utcAt(t, "22:00"))
	assert.Error(t, err)
	assert.Empty(t, f.gateway.writes)
}

func TestTickNoWorkWithoutSchedules(t *testing.T) {
	f := newFixture([]models.Guild{testGuild()}, nil)

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:00")))

	assert.Zero(t, f.gateway.reads)
	assert.Empty(t, f.notifier.events)
}

func TestTickDelayPersistFailureSendsNothing(t *testing.T) {
	sched := testSchedule()
	sched.Dynamic = true
	sched.MaxNumDelays = 1
	f := newFixture([]models.Guild{testGuild()}, []models.Schedule{sched})
	f.detector.active[snowflake.ID(sched.Channel)] = true
	f.store.setDelayErr = errors.New("db: timeout")

	require.NoError(t, f.engine.Tick(context.Background(), utcAt(t, "22:00")))

	assert.Empty(t, f.notifier.messages, "unrecorded delay must not be announced")
	assert.Empty(t, f.notifier.events)
}
