// Package services holds the Discord-facing collaborators the engine talks
// to: permission overwrites, channel activity, and notifications.
package services

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/daywarden/daywarden/daywarden/engine"
)

// PermissionService reads and writes the send_messages overwrite for a role
// on a channel through the Discord REST API. Reads always hit the API rather
// than any cache: the live overwrite is the engine's ground truth.
type PermissionService struct {
	client bot.Client
}

func NewPermissionService(client bot.Client) *PermissionService {
	return &PermissionService{client: client}
}

func (s *PermissionService) SendState(ctx context.Context, channelID, roleID snowflake.ID) (engine.PermissionState, error) {
	_, overwrite, err := s.roleOverwrite(ctx, channelID, roleID)
	if err != nil {
		return engine.PermissionNeutral, err
	}
	switch {
	case overwrite.Deny.Has(discord.PermissionSendMessages):
		return engine.PermissionDeny, nil
	case overwrite.Allow.Has(discord.PermissionSendMessages):
		return engine.PermissionAllow, nil
	default:
		return engine.PermissionNeutral, nil
	}
}

// SetSendState flips only the send_messages bit, carrying every other bit of
// the existing overwrite through unchanged. Discord replaces the whole
// overwrite on write, so this is a read-modify-write.
func (s *PermissionService) SetSendState(ctx context.Context, channelID, roleID snowflake.ID, state engine.PermissionState) error {
	_, overwrite, err := s.roleOverwrite(ctx, channelID, roleID)
	if err != nil {
		return err
	}

	allow := overwrite.Allow.Remove(discord.PermissionSendMessages)
	deny := overwrite.Deny.Remove(discord.PermissionSendMessages)
	switch state {
	case engine.PermissionAllow:
		allow = allow.Add(discord.PermissionSendMessages)
	case engine.PermissionDeny:
		deny = deny.Add(discord.PermissionSendMessages)
	}

	update := discord.RolePermissionOverwriteUpdate{
		Allow: &allow,
		Deny:  &deny,
	}
	if err := s.client.Rest().UpdatePermissionOverwrite(channelID, roleID, update, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to update channel permission: %w", err)
	}
	return nil
}

// roleOverwrite fetches the channel and extracts the role's overwrite. A
// channel with no overwrite for the role yields a zero-valued one, which
// reads as neutral.
func (s *PermissionService) roleOverwrite(ctx context.Context, channelID, roleID snowflake.ID) (discord.GuildChannel, discord.RolePermissionOverwrite, error) {
	channel, err := s.client.Rest().GetChannel(channelID, rest.WithCtx(ctx))
	if err != nil {
		return nil, discord.RolePermissionOverwrite{}, fmt.Errorf("failed to fetch channel %d: %w", channelID, err)
	}
	guildChannel, ok := channel.(discord.GuildChannel)
	if !ok {
		return nil, discord.RolePermissionOverwrite{}, fmt.Errorf("channel %d is not a guild channel", channelID)
	}

	for _, overwrite := range guildChannel.PermissionOverwrites() {
		if role, ok := overwrite.(discord.RolePermissionOverwrite); ok && role.RoleID == roleID {
			return guildChannel, role, nil
		}
	}
	return guildChannel, discord.RolePermissionOverwrite{RoleID: roleID}, nil
}
