package chat

import (
	"sync"
	"time"
)

// TypingIndicator tracks per-channel typing state with a bounded
// expiry, so a missed stop signal cannot leave an indicator on forever.
type TypingIndicator struct {
	expiry time.Duration
	onStop func(channelID string)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTypingIndicator builds an indicator with the given expiry. onStop
// is invoked when a channel's indicator expires and may be nil for
// platforms whose indicators expire on their own.
func NewTypingIndicator(expiry time.Duration, onStop func(channelID string)) *TypingIndicator {
	if expiry <= 0 {
		expiry = 2 * time.Second
	}
	return &TypingIndicator{
		expiry: expiry,
		onStop: onStop,
		timers: make(map[string]*time.Timer),
	}
}

// Trigger marks the channel as typing and (re)arms its expiry timer.
func (ti *TypingIndicator) Trigger(channelID string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if timer, ok := ti.timers[channelID]; ok {
		timer.Reset(ti.expiry)
		return
	}
	ti.timers[channelID] = time.AfterFunc(ti.expiry, func() {
		ti.expire(channelID)
	})
}

func (ti *TypingIndicator) expire(channelID string) {
	ti.mu.Lock()
	delete(ti.timers, channelID)
	ti.mu.Unlock()
	if ti.onStop != nil {
		ti.onStop(channelID)
	}
}

// Active reports whether the channel's indicator is currently on.
func (ti *TypingIndicator) Active(channelID string) bool {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	_, ok := ti.timers[channelID]
	return ok
}

// StopAll cancels every pending indicator without firing onStop.
func (ti *TypingIndicator) StopAll() {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	for id, timer := range ti.timers {
		timer.Stop()
		delete(ti.timers, id)
	}
}
