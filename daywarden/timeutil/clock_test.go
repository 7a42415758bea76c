package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHHMM(t *testing.T) {
	tests := []struct {
		input   string
		hour    int
		minute  int
		wantErr bool
	}{
		{input: "00:00", hour: 0, minute: 0},
		{input: "08:30", hour: 8, minute: 30},
		{input: "23:59", hour: 23, minute: 59},
		{input: "24:00", wantErr: true},
		{input: "12:60", wantErr: true},
		{input: "99:99", wantErr: true},
		{input: "8:30", wantErr: true},
		{input: "", wantErr: true},
		{input: "noon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			hour, minute, err := ParseHHMM(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hour, hour)
			assert.Equal(t, tt.minute, minute)
		})
	}
}

func TestAddMinutes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		minutes int
		want    string
	}{
		{name: "no wrap", input: "10:00", minutes: 15, want: "10:15"},
		{name: "hour carry", input: "10:50", minutes: 15, want: "11:05"},
		{name: "midnight wrap", input: "23:50", minutes: 15, want: "00:05"},
		{name: "full day is identity", input: "08:00", minutes: 24 * 60, want: "08:00"},
		{name: "negative", input: "00:05", minutes: -15, want: "23:50"},
		{name: "zero", input: "12:00", minutes: 0, want: "12:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AddMinutes(tt.input, tt.minutes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := AddMinutes("99:99", 10)
	assert.Error(t, err)
}

func TestSubMinutes(t *testing.T) {
	got, err := SubMinutes("22:00", 10)
	require.NoError(t, err)
	assert.Equal(t, "21:50", got)

	got, err = SubMinutes("00:05", 10)
	require.NoError(t, err)
	assert.Equal(t, "23:55", got)
}

func TestValidHHMM(t *testing.T) {
	assert.True(t, ValidHHMM("08:00"))
	assert.True(t, ValidHHMM("23:59"))
	assert.False(t, ValidHHMM("99:99"))
	assert.False(t, ValidHHMM("8am"))
}

func TestLocalHHMM(t *testing.T) {
	clock := NewClock()
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	got, err := clock.LocalHHMM("UTC", now)
	require.NoError(t, err)
	assert.Equal(t, "12:00", got)

	// Mid-January is outside DST everywhere that observes it.
	got, err = clock.LocalHHMM("Europe/Berlin", now)
	require.NoError(t, err)
	assert.Equal(t, "13:00", got)

	got, err = clock.LocalHHMM("America/New_York", now)
	require.NoError(t, err)
	assert.Equal(t, "07:00", got)

	_, err = clock.LocalHHMM("Mars/Olympus_Mons", now)
	assert.Error(t, err)

	_, err = clock.LocalHHMM("", now)
	assert.Error(t, err)
}

func TestLocationCaching(t *testing.T) {
	clock := NewClock()

	first, err := clock.Location("Asia/Tokyo")
	require.NoError(t, err)
	second, err := clock.Location("Asia/Tokyo")
	require.NoError(t, err)
	assert.Same(t, first, second)
}
