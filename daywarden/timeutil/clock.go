// Package timeutil resolves wall-clock time per IANA timezone and does the
// "HH:MM" arithmetic the schedule engine compares against.
package timeutil

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const locationCacheSize = 64

// Clock converts UTC instants into per-timezone "HH:MM" strings. Loaded
// locations are cached since LoadLocation reads the zoneinfo database on
// every call.
type Clock struct {
	locations *lru.Cache
}

func NewClock() *Clock {
	cache, _ := lru.New(locationCacheSize)
	return &Clock{locations: cache}
}

// Location resolves an IANA timezone name, hitting the cache first.
func (c *Clock) Location(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("timezone is empty")
	}
	if cached, ok := c.locations.Get(name); ok {
		return cached.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	c.locations.Add(name, loc)
	return loc, nil
}

// LocalHHMM formats the given UTC instant as "HH:MM" in the named timezone.
func (c *Clock) LocalHHMM(timezone string, now time.Time) (string, error) {
	loc, err := c.Location(timezone)
	if err != nil {
		return "", err
	}
	return now.In(loc).Format("15:04"), nil
}

// ParseHHMM validates a wall-clock string and returns its hour and minute.
// The form is strict zero-padded "HH:MM" since schedule times are compared
// against Format("15:04") output by string equality.
func ParseHHMM(s string) (hour, minute int, err error) {
	if len(s) != 5 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// ValidHHMM reports whether s is a well-formed "HH:MM" wall-clock string.
func ValidHHMM(s string) bool {
	_, _, err := ParseHHMM(s)
	return err == nil
}

// AddMinutes shifts an "HH:MM" string forward, wrapping past midnight.
func AddMinutes(s string, minutes int) (string, error) {
	hour, minute, err := ParseHHMM(s)
	if err != nil {
		return "", err
	}
	total := (hour*60 + minute + minutes) % (24 * 60)
	if total < 0 {
		total += 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60), nil
}

// SubMinutes shifts an "HH:MM" string backward, wrapping past midnight.
func SubMinutes(s string, minutes int) (string, error) {
	return AddMinutes(s, -minutes)
}
