package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScheduleDelayPending(t *testing.T) {
	s := Schedule{DynamicClose: NoDynamicClose}
	assert.False(t, s.DelayPending())

	s.DynamicClose = "22:15"
	assert.True(t, s.DelayPending())
}

func TestScheduleDelayBudgetLeft(t *testing.T) {
	s := Schedule{MaxNumDelays: 2}
	assert.True(t, s.DelayBudgetLeft())

	s.CurrentDelayNum = 1
	assert.True(t, s.DelayBudgetLeft())

	s.CurrentDelayNum = 2
	assert.False(t, s.DelayBudgetLeft())

	static := Schedule{}
	assert.False(t, static.DelayBudgetLeft())
}

func TestScheduleCustomMessages(t *testing.T) {
	s := Schedule{OpenMessage: NoCustomMessage, CloseMessage: ""}
	_, ok := s.CustomOpenMessage()
	assert.False(t, ok)
	_, ok = s.CustomCloseMessage()
	assert.False(t, ok)

	s.OpenMessage = "Good morning!"
	s.CloseMessage = "Good night!"

	text, ok := s.CustomOpenMessage()
	assert.True(t, ok)
	assert.Equal(t, "Good morning!", text)

	text, ok = s.CustomCloseMessage()
	assert.True(t, ok)
	assert.Equal(t, "Good night!", text)
}

func TestGuildChannelHelpers(t *testing.T) {
	g := Guild{LogChannel: ChannelUnset, TimeChannel: ChannelUnset}
	assert.False(t, g.HasLogChannel())
	assert.False(t, g.HasTimeChannel())

	g.LogChannel = 123
	g.TimeChannel = 456
	assert.True(t, g.HasLogChannel())
	assert.True(t, g.HasTimeChannel())
}
