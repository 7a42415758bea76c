package repositories

import (
	"context"

	"github.com/daywarden/daywarden/daywarden/database/models"
)

// EngineStore bundles the two repositories into the narrow read/write surface
// the schedule engine consumes.
type EngineStore struct {
	guilds    GuildRepository
	schedules ScheduleRepository
}

func NewEngineStore(guilds GuildRepository, schedules ScheduleRepository) *EngineStore {
	return &EngineStore{guilds: guilds, schedules: schedules}
}

func (s *EngineStore) ActiveGuilds(ctx context.Context) ([]models.Guild, error) {
	return s.guilds.GetActive(ctx)
}

func (s *EngineStore) ActiveSchedules(ctx context.Context) ([]models.Schedule, error) {
	return s.schedules.GetActive(ctx)
}

func (s *EngineStore) SetDelayState(ctx context.Context, scheduleID int64, dynamicClose string, delayNum int) error {
	return s.schedules.SetDelayState(ctx, scheduleID, dynamicClose, delayNum)
}

func (s *EngineStore) ClearDelayState(ctx context.Context, scheduleID int64) error {
	return s.schedules.ClearDelayState(ctx, scheduleID)
}
