// Package activity keeps the bounded event history shown on the status
// page. Entries are replayed to new viewers and pushed live to current
// ones.
package activity

import (
	"sync"
	"time"
)

const subscriberBuffer = 16

type Entry struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

type Log struct {
	mu      sync.Mutex
	max     int
	entries []Entry
	subs    map[int]chan Entry
	nextSub int
	now     func() time.Time
}

func NewLog(max int) *Log {
	if max < 1 {
		max = 1
	}
	return &Log{
		max:  max,
		subs: make(map[int]chan Entry),
		now:  time.Now,
	}
}

// Append records an event, evicting the oldest entry once the log is
// full, and pushes it to every live subscriber. A subscriber that has
// fallen behind misses the entry rather than blocking the caller.
func (l *Log) Append(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{At: l.now(), Text: text}
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[1:]
	}

	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Snapshot returns the retained entries, oldest first.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Subscribe registers a live feed. The returned cancel func must be
// called when the viewer goes away.
func (l *Log) Subscribe() (<-chan Entry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan Entry, subscriberBuffer)
	l.subs[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
