package models

import (
	"time"

	"github.com/uptrace/bun"
)

// NoDynamicClose is the sentinel stored while no delayed close is pending.
const NoDynamicClose = "99:99"

// NoCustomMessage is the sentinel stored when a schedule carries no custom
// open or close text of its own.
const NoCustomMessage = "None"

// Schedule is one daily open/close cycle for a (channel, role) pair. The
// engine owns DynamicClose and CurrentDelayNum; every other field is written
// only through operator commands.
type Schedule struct {
	bun.BaseModel `bun:"table:schedules,alias:s"`

	ID      int64 `bun:"id,pk,autoincrement"`
	GuildID int64 `bun:"guild_id,notnull"`
	Channel int64 `bun:"channel,notnull"`
	Role    int64 `bun:"role,notnull"`

	Open         string `bun:"open,notnull"`
	Close        string `bun:"close,notnull"`
	DynamicClose string `bun:"dynamic_close,notnull,default:'99:99'"`

	Warning bool `bun:"warning,notnull,default:false"`
	Dynamic bool `bun:"dynamic,notnull,default:false"`

	MaxNumDelays    int `bun:"max_num_delays,notnull,default:0"`
	CurrentDelayNum int `bun:"current_delay_num,notnull,default:0"`

	Silent bool `bun:"silent,notnull,default:false"`

	OpenMessage  string `bun:"open_message,notnull,default:'None'"`
	CloseMessage string `bun:"close_message,notnull,default:'None'"`

	Active    bool      `bun:"active,notnull,default:true"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// DelayPending reports whether a deferred close is waiting to fire.
func (s *Schedule) DelayPending() bool {
	return s.DynamicClose != NoDynamicClose
}

// DelayBudgetLeft reports whether the schedule may defer its close again.
func (s *Schedule) DelayBudgetLeft() bool {
	return s.CurrentDelayNum < s.MaxNumDelays
}

// CustomOpenMessage returns the per-schedule open text, if any.
func (s *Schedule) CustomOpenMessage() (string, bool) {
	if s.OpenMessage == NoCustomMessage || s.OpenMessage == "" {
		return "", false
	}
	return s.OpenMessage, true
}

// CustomCloseMessage returns the per-schedule close text, if any.
func (s *Schedule) CustomCloseMessage() (string, bool) {
	if s.CloseMessage == NoCustomMessage || s.CloseMessage == "" {
		return "", false
	}
	return s.CloseMessage, true
}
