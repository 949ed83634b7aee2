package server

import (
	"encoding/json"
	"sync"

	"github.com/salvador2999/missions/internal/game"
)

// message is a JSON-encoded game event ready for a stream.
type message struct {
	Type string
	Data []byte
}

// Broker is an in-process pub/sub for game events, keyed by session ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan message]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan message]struct{}),
	}
}

// Subscribe returns a channel that receives the session's events.
func (b *Broker) Subscribe(sessionID string) chan message {
	ch := make(chan message, 16)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan message]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(sessionID string, ch chan message) {
	b.mu.Lock()
	delete(b.subs[sessionID], ch)
	if len(b.subs[sessionID]) == 0 {
		delete(b.subs, sessionID)
	}
	b.mu.Unlock()
}

// Notify implements game.Notifier. Slow subscribers miss events rather
// than block the game.
func (b *Broker) Notify(sessionID string, ev game.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	msg := message{Type: ev.Type, Data: data}

	b.mu.RLock()
	for ch := range b.subs[sessionID] {
		select {
		case ch <- msg:
		default:
		}
	}
	b.mu.RUnlock()
}

// Subscribers reports how many streams are open for a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

var _ game.Notifier = (*Broker)(nil)
