// internal/events/bus.go
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event names emitted by the engine and the matcher.
const (
	LobbyCreated       = "lobby_created"
	LobbyDeleted       = "lobby_deleted"
	LobbyAllReady      = "lobby_all_ready"
	PlayerJoined       = "player_joined"
	PlayerLeft         = "player_left"
	PlayerReadyChanged = "player_ready_changed"
	PlayerDisconnected = "player_disconnected"
	PlayerKicked       = "player_kicked"
	BotJoined          = "bot_joined"
	BotLeft            = "bot_left"
	BotReadyChanged    = "bot_ready_changed"
	PartyCreated       = "party_created"
	PartyDisbanded     = "party_disbanded"
	MatchCreated       = "match_created"
)

// All lists every event name above.
var All = []string{
	LobbyCreated, LobbyDeleted, LobbyAllReady,
	PlayerJoined, PlayerLeft, PlayerReadyChanged, PlayerDisconnected, PlayerKicked,
	BotJoined, BotLeft, BotReadyChanged,
	PartyCreated, PartyDisbanded, MatchCreated,
}

// DefaultHistorySize bounds the replayable history.
const DefaultHistorySize = 1000

// Event is one emitted record.
type Event struct {
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToMap renders the event the way it is sent to remote observers.
func (e Event) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event":     e.Event,
		"data":      e.Data,
		"timestamp": float64(e.Timestamp.UnixNano()) / float64(time.Second),
	}
}

// Listener observes an event. A returned error is logged and never reaches
// the emitter.
type Listener func(Event) error

type subscription struct {
	id uint64
	fn Listener
}

// Bus is a synchronous pub/sub fabric with a bounded history ring.
//
// Listeners run on the emitting goroutine, in subscription order, after the
// bus lock is released, so a listener may emit or subscribe again.
type Bus struct {
	mu        sync.Mutex
	listeners map[string][]subscription
	nextID    uint64

	history []Event
	start   int
	size    int

	now    func() time.Time
	logger logrus.FieldLogger
}

// NewBus creates a bus holding up to DefaultHistorySize events.
func NewBus(logger logrus.FieldLogger) *Bus {
	return NewBusWithHistory(logger, DefaultHistorySize)
}

// NewBusWithHistory creates a bus with a custom history bound.
func NewBusWithHistory(logger logrus.FieldLogger, capacity int) *Bus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Bus{
		listeners: make(map[string][]subscription),
		history:   make([]Event, capacity),
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock overrides the timestamp source.
func (b *Bus) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	b.now = now
}

// On subscribes fn to name and returns an ID usable with Off.
func (b *Bus) On(name string, fn Listener) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.listeners[name] = append(b.listeners[name], subscription{id: b.nextID, fn: fn})
	return b.nextID
}

// OnAll subscribes fn to every name in names and returns the IDs in order.
func (b *Bus) OnAll(names []string, fn Listener) []uint64 {
	ids := make([]uint64, 0, len(names))
	for _, name := range names {
		ids = append(ids, b.On(name, fn))
	}
	return ids
}

// Off removes a subscription. Unknown IDs are ignored.
func (b *Bus) Off(name string, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.listeners[name]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		// Copy so an in-flight Emit keeps iterating its own snapshot.
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.listeners, name)
		} else {
			b.listeners[name] = next
		}
		return true
	}
	return false
}

// ListenerCount reports how many listeners are subscribed to name.
func (b *Bus) ListenerCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[name])
}

// Emit records the event in history and then delivers it to every listener
// of name. Listener errors and panics are logged and do not stop delivery.
func (b *Bus) Emit(name string, data map[string]interface{}) {
	if data == nil {
		data = make(map[string]interface{})
	}

	b.mu.Lock()
	ev := Event{Event: name, Data: data, Timestamp: b.now()}
	b.appendUnsafe(ev)
	subs := b.listeners[name]
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"event":       ev.Event,
				"listener_id": s.id,
				"panic":       fmt.Sprint(r),
			}).Error("event listener panicked")
		}
	}()
	if err := s.fn(ev); err != nil {
		b.logger.WithFields(logrus.Fields{
			"event":       ev.Event,
			"listener_id": s.id,
		}).WithError(err).Warn("event listener failed")
	}
}

// appendUnsafe writes ev into the ring, overwriting the oldest entry when full.
// Caller must hold b.mu.
func (b *Bus) appendUnsafe(ev Event) {
	capacity := len(b.history)
	if b.size < capacity {
		b.history[(b.start+b.size)%capacity] = ev
		b.size++
		return
	}
	b.history[b.start] = ev
	b.start = (b.start + 1) % capacity
}

// History returns up to limit of the most recent events, oldest first. A
// non-positive limit returns everything retained.
func (b *Bus) History(limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.size {
		limit = b.size
	}
	out := make([]Event, 0, limit)
	capacity := len(b.history)
	for i := b.size - limit; i < b.size; i++ {
		out = append(out, b.history[(b.start+i)%capacity])
	}
	return out
}

// HistoryLen reports how many events are retained.
func (b *Bus) HistoryLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.history {
		b.history[i] = Event{}
	}
	b.start = 0
	b.size = 0
}
