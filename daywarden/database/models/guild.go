package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ChannelUnset marks a guild channel reference that has not been configured.
const ChannelUnset int64 = -1

// Default engine timings in minutes, applied when a guild is first recorded.
const (
	DefaultWarningTime  = 10
	DefaultInactiveTime = 10
	DefaultDelayTime    = 15
)

type Guild struct {
	bun.BaseModel `bun:"table:guilds,alias:g"`

	ID           int64  `bun:"id,pk"`
	Timezone     string `bun:"timezone,notnull,default:'UTC'"`
	AdminChannel int64  `bun:"admin_channel,notnull,default:-1"`
	LogChannel   int64  `bun:"log_channel,notnull,default:-1"`
	TimeChannel  int64  `bun:"time_channel,notnull,default:-1"`

	// Engine timings, minutes.
	WarningTime  int `bun:"warning_time,notnull"`
	InactiveTime int `bun:"inactive_time,notnull"`
	DelayTime    int `bun:"delay_time,notnull"`

	// Guild-level message templates, prepended to per-schedule custom text.
	OpenMessage  string `bun:"open_message,notnull,default:''"`
	CloseMessage string `bun:"close_message,notnull,default:''"`

	// Unrelated moderation feature flags, persisted with the guild record.
	RaidFilter bool `bun:"raid_filter,notnull,default:false"`
	JoinFilter bool `bun:"join_filter,notnull,default:false"`

	Active    bool      `bun:"active,notnull,default:true"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// HasLogChannel reports whether log embeds can be delivered for this guild.
func (g *Guild) HasLogChannel() bool {
	return g.LogChannel != ChannelUnset
}

// HasTimeChannel reports whether the time-display loop should touch this guild.
func (g *Guild) HasTimeChannel() bool {
	return g.TimeChannel != ChannelUnset
}
