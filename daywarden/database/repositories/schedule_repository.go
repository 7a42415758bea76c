package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/daywarden/daywarden/daywarden/database/models"
)

var ErrScheduleNotFound = errors.New("schedule not found")

// ScheduleRepository persists schedule records. The engine only ever writes
// the delay bookkeeping (SetDelayState / ClearDelayState); everything else is
// operator surface. Each update touches a single column of a single row, so
// concurrent operator edits and engine writes never clobber each other.
type ScheduleRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Schedule, error)
	GetByGuild(ctx context.Context, guildID int64) ([]models.Schedule, error)
	GetActive(ctx context.Context) ([]models.Schedule, error)
	Create(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id int64) error
	DeleteByChannel(ctx context.Context, channel int64) error
	SetActiveByGuild(ctx context.Context, guildID int64, active bool) error

	SetDelayState(ctx context.Context, id int64, dynamicClose string, delayNum int) error
	ClearDelayState(ctx context.Context, id int64) error

	UpdateOpen(ctx context.Context, id int64, open string) error
	UpdateClose(ctx context.Context, id int64, close string) error
	UpdateWarning(ctx context.Context, id int64, warning bool) error
	UpdateDynamic(ctx context.Context, id int64, dynamic bool) error
	UpdateMaxDelays(ctx context.Context, id int64, maxDelays int) error
	UpdateSilent(ctx context.Context, id int64, silent bool) error
	UpdateOpenMessage(ctx context.Context, id int64, text string) error
	UpdateCloseMessage(ctx context.Context, id int64, text string) error
}

type scheduleRepository struct {
	db *bun.DB
}

func NewScheduleRepository(db *bun.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) GetByID(ctx context.Context, id int64) (*models.Schedule, error) {
	schedule := new(models.Schedule)
	err := r.db.NewSelect().
		Model(schedule).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule %d: %w", id, err)
	}
	return schedule, nil
}

func (r *scheduleRepository) GetByGuild(ctx context.Context, guildID int64) ([]models.Schedule, error) {
	var schedules []models.Schedule
	err := r.db.NewSelect().
		Model(&schedules).
		Where("guild_id = ?", guildID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules for guild %d: %w", guildID, err)
	}
	return schedules, nil
}

func (r *scheduleRepository) GetActive(ctx context.Context) ([]models.Schedule, error) {
	var schedules []models.Schedule
	err := r.db.NewSelect().
		Model(&schedules).
		Where("active = TRUE").
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}
	return schedules, nil
}

func (r *scheduleRepository) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule.DynamicClose == "" {
		schedule.DynamicClose = models.NoDynamicClose
	}
	if schedule.OpenMessage == "" {
		schedule.OpenMessage = models.NoCustomMessage
	}
	if schedule.CloseMessage == "" {
		schedule.CloseMessage = models.NoCustomMessage
	}
	schedule.CurrentDelayNum = 0
	schedule.CreatedAt = time.Now()
	schedule.UpdatedAt = time.Now()

	if _, err := r.db.NewInsert().Model(schedule).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.NewDelete().
		Model((*models.Schedule)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete schedule %d: %w", id, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// DeleteByChannel removes every schedule targeting a channel, used when the
// channel itself no longer exists.
func (r *scheduleRepository) DeleteByChannel(ctx context.Context, channel int64) error {
	_, err := r.db.NewDelete().
		Model((*models.Schedule)(nil)).
		Where("channel = ?", channel).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete schedules for channel %d: %w", channel, err)
	}
	return nil
}

func (r *scheduleRepository) SetActiveByGuild(ctx context.Context, guildID int64, active bool) error {
	_, err := r.db.NewUpdate().
		Model((*models.Schedule)(nil)).
		Set("active = ?", active).
		Set("updated_at = ?", time.Now()).
		Where("guild_id = ?", guildID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set schedules active=%t for guild %d: %w", active, guildID, err)
	}
	return nil
}

func (r *scheduleRepository) SetDelayState(ctx context.Context, id int64, dynamicClose string, delayNum int) error {
	result, err := r.db.NewUpdate().
		Model((*models.Schedule)(nil)).
		Set("dynamic_close = ?", dynamicClose).
		Set("current_delay_num = ?", delayNum).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set delay state for schedule %d: %w", id, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *scheduleRepository) ClearDelayState(ctx context.Context, id int64) error {
	return r.SetDelayState(ctx, id, models.NoDynamicClose, 0)
}

func (r *scheduleRepository) UpdateOpen(ctx context.Context, id int64, open string) error {
	return r.update(ctx, id, "open", open)
}

func (r *scheduleRepository) UpdateClose(ctx context.Context, id int64, close string) error {
	return r.update(ctx, id, "close", close)
}

func (r *scheduleRepository) UpdateWarning(ctx context.Context, id int64, warning bool) error {
	return r.update(ctx, id, "warning", warning)
}

func (r *scheduleRepository) UpdateDynamic(ctx context.Context, id int64, dynamic bool) error {
	return r.update(ctx, id, "dynamic", dynamic)
}

func (r *scheduleRepository) UpdateMaxDelays(ctx context.Context, id int64, maxDelays int) error {
	return r.update(ctx, id, "max_num_delays", maxDelays)
}

func (r *scheduleRepository) UpdateSilent(ctx context.Context, id int64, silent bool) error {
	return r.update(ctx, id, "silent", silent)
}

func (r *scheduleRepository) UpdateOpenMessage(ctx context.Context, id int64, text string) error {
	return r.update(ctx, id, "open_message", text)
}

func (r *scheduleRepository) UpdateCloseMessage(ctx context.Context, id int64, text string) error {
	return r.update(ctx, id, "close_message", text)
}

func (r *scheduleRepository) update(ctx context.Context, id int64, column string, value any) error {
	result, err := r.db.NewUpdate().
		Model((*models.Schedule)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update schedule %d %s: %w", id, column, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrScheduleNotFound
	}
	return nil
}
