package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

const activityPageSize = 100

// ActivityService answers "did a human post here recently" from the channel's
// message history. The engine's own account is excluded by ID, separately
// from the general bot-author check, so messages from other bots don't count
// either.
type ActivityService struct {
	client bot.Client
	selfID atomic.Uint64
}

func NewActivityService(client bot.Client) *ActivityService {
	return &ActivityService{client: client}
}

// SetSelfID records the bot's own user ID, known once the gateway is ready.
func (s *ActivityService) SetSelfID(id snowflake.ID) {
	s.selfID.Store(uint64(id))
}

func (s *ActivityService) HasHumanActivity(ctx context.Context, channelID snowflake.ID, since time.Time) (bool, error) {
	selfID := snowflake.ID(s.selfID.Load())
	after := snowflake.New(since)

	for {
		messages, err := s.client.Rest().GetMessages(channelID, 0, 0, after, activityPageSize, rest.WithCtx(ctx))
		if err != nil {
			return false, fmt.Errorf("failed to fetch message history for channel %d: %w", channelID, err)
		}
		if len(messages) == 0 {
			return false, nil
		}

		for _, message := range messages {
			if message.Author.Bot {
				continue
			}
			if message.Author.ID == selfID {
				continue
			}
			return true, nil
		}

		if len(messages) < activityPageSize {
			return false, nil
		}
		// GetMessages with "after" returns newest first; keep paging from
		// the newest message seen.
		after = messages[0].ID
	}
}
