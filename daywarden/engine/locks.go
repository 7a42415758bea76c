package engine

import "sync"

type lockKey struct {
	channel int64
	role    int64
}

// scheduleLocks serializes evaluations that touch the same (channel, role)
// pair. The permission read-then-write inside an evaluation is not atomic, so
// two concurrent evaluations of the same pair could race each other.
type scheduleLocks struct {
	mu    sync.Mutex
	locks map[lockKey]*sync.Mutex
}

func newScheduleLocks() *scheduleLocks {
	return &scheduleLocks{locks: make(map[lockKey]*sync.Mutex)}
}

func (l *scheduleLocks) lock(channel, role int64) (unlock func()) {
	key := lockKey{channel: channel, role: role}

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
