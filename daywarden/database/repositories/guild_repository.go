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

var ErrGuildNotFound = errors.New("guild not found")

// GuildRepository persists guild records. Field updates are a closed set of
// named operations, one per configurable column; there is no generic
// update-by-field-name path.
type GuildRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Guild, error)
	GetActive(ctx context.Context) ([]models.Guild, error)
	// EnsureExists creates the guild record on first contact, or reactivates
	// an existing one. Returns the current record either way.
	EnsureExists(ctx context.Context, id int64) (*models.Guild, error)
	SetActive(ctx context.Context, id int64, active bool) error

	UpdateTimezone(ctx context.Context, id int64, timezone string) error
	UpdateAdminChannel(ctx context.Context, id int64, channel int64) error
	UpdateLogChannel(ctx context.Context, id int64, channel int64) error
	UpdateTimeChannel(ctx context.Context, id int64, channel int64) error
	UpdateWarningTime(ctx context.Context, id int64, minutes int) error
	UpdateInactiveTime(ctx context.Context, id int64, minutes int) error
	UpdateDelayTime(ctx context.Context, id int64, minutes int) error
	UpdateOpenMessage(ctx context.Context, id int64, text string) error
	UpdateCloseMessage(ctx context.Context, id int64, text string) error
}

type guildRepository struct {
	db *bun.DB
}

func NewGuildRepository(db *bun.DB) GuildRepository {
	return &guildRepository{db: db}
}

func (r *guildRepository) GetByID(ctx context.Context, id int64) (*models.Guild, error) {
	guild := new(models.Guild)
	err := r.db.NewSelect().
		Model(guild).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGuildNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guild %d: %w", id, err)
	}
	return guild, nil
}

func (r *guildRepository) GetActive(ctx context.Context) ([]models.Guild, error) {
	var guilds []models.Guild
	err := r.db.NewSelect().
		Model(&guilds).
		Where("active = TRUE").
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active guilds: %w", err)
	}
	return guilds, nil
}

func (r *guildRepository) EnsureExists(ctx context.Context, id int64) (*models.Guild, error) {
	guild := &models.Guild{
		ID:           id,
		Timezone:     "UTC",
		AdminChannel: models.ChannelUnset,
		LogChannel:   models.ChannelUnset,
		TimeChannel:  models.ChannelUnset,
		WarningTime:  models.DefaultWarningTime,
		InactiveTime: models.DefaultInactiveTime,
		DelayTime:    models.DefaultDelayTime,
		Active:       true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(guild).
		On("CONFLICT (id) DO UPDATE").
		Set("active = TRUE").
		Set("updated_at = ?", time.Now()).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure guild %d: %w", id, err)
	}
	return r.GetByID(ctx, id)
}

func (r *guildRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.update(ctx, id, "active", active)
}

func (r *guildRepository) UpdateTimezone(ctx context.Context, id int64, timezone string) error {
	return r.update(ctx, id, "timezone", timezone)
}

func (r *guildRepository) UpdateAdminChannel(ctx context.Context, id int64, channel int64) error {
	return r.update(ctx, id, "admin_channel", channel)
}

func (r *guildRepository) UpdateLogChannel(ctx context.Context, id int64, channel int64) error {
	return r.update(ctx, id, "log_channel", channel)
}

func (r *guildRepository) UpdateTimeChannel(ctx context.Context, id int64, channel int64) error {
	return r.update(ctx, id, "time_channel", channel)
}

func (r *guildRepository) UpdateWarningTime(ctx context.Context, id int64, minutes int) error {
	return r.update(ctx, id, "warning_time", minutes)
}

func (r *guildRepository) UpdateInactiveTime(ctx context.Context, id int64, minutes int) error {
	return r.update(ctx, id, "inactive_time", minutes)
}

func (r *guildRepository) UpdateDelayTime(ctx context.Context, id int64, minutes int) error {
	return r.update(ctx, id, "delay_time", minutes)
}

func (r *guildRepository) UpdateOpenMessage(ctx context.Context, id int64, text string) error {
	return r.update(ctx, id, "open_message", text)
}

func (r *guildRepository) UpdateCloseMessage(ctx context.Context, id int64, text string) error {
	return r.update(ctx, id, "close_message", text)
}

func (r *guildRepository) update(ctx context.Context, id int64, column string, value any) error {
	result, err := r.db.NewUpdate().
		Model((*models.Guild)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update guild %d %s: %w", id, column, err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrGuildNotFound
	}
	return nil
}
