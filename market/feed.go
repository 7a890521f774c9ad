package market

import "sync"

// feedBufSize is the per-subscriber channel depth. It absorbs the bursts a
// multi-event operation produces; subscribers that still fall behind are
// dropped rather than allowed to stall publishers.
const feedBufSize = 64

// Feed fans committed marketplace events out to in-process subscribers.
// Operations publish only after their transaction commits, so subscribers
// never observe an effect that rolled back.
type Feed struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newFeed() *Feed {
	return &Feed{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The feed owns the returned channel
// and closes it when the subscriber is dropped for falling behind.
func (f *Feed) Subscribe() chan Event {
	ch := make(chan Event, feedBufSize)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber. It is safe to call for channels the
// feed has already dropped.
func (f *Feed) Unsubscribe(ch chan Event) {
	f.mu.Lock()
	delete(f.subs, ch)
	f.mu.Unlock()
}

// publish delivers events without blocking: a subscriber whose buffer is
// full is removed and its channel closed.
func (f *Feed) publish(evs ...Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range evs {
		for ch := range f.subs {
			select {
			case ch <- ev:
			default:
				delete(f.subs, ch)
				close(ch)
			}
		}
	}
}
