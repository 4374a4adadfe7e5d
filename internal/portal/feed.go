package portal

import (
	"sync"
	"time"

	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
)

// Event types published by Feed.
const (
	EventSelection = "selection"
	EventBatch     = "batch"
	EventChat      = "chat"
	EventTyping    = "typing"
	EventBusy      = "busy"
	EventNotice    = "notice"
)

// Event is one view refresh, serialized to SSE and WebSocket clients.
type Event struct {
	Type      string        `json:"type"`
	Selection *State        `json:"selection,omitempty"`
	Batch     *BatchView    `json:"batch,omitempty"`
	Chat      *chat.Session `json:"chat,omitempty"`
	Flag      *bool         `json:"flag,omitempty"`
	Notice    *Notice       `json:"notice,omitempty"`
	NoticeTTL int64         `json:"noticeTtlMs,omitempty"`
	Time      time.Time     `json:"time"`
}

const feedBuffer = 32

// Feed is a View that fans events out to subscribers. Slow subscribers miss
// events instead of blocking the controller.
type Feed struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

var _ View = (*Feed)(nil)

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func unregisters it and
// closes the channel.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Event, feedBuffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close drops every subscriber.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

func (f *Feed) publish(ev Event) {
	ev.Time = time.Now().UTC()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (f *Feed) SelectionChanged(s State) {
	f.publish(Event{Type: EventSelection, Selection: &s})
}

func (f *Feed) BatchChanged(b BatchView) {
	f.publish(Event{Type: EventBatch, Batch: &b})
}

func (f *Feed) ChatChanged(s chat.Session) {
	f.publish(Event{Type: EventChat, Chat: &s})
}

func (f *Feed) TypingChanged(v bool) {
	f.publish(Event{Type: EventTyping, Flag: &v})
}

func (f *Feed) BusyChanged(v bool) {
	f.publish(Event{Type: EventBusy, Flag: &v})
}

func (f *Feed) Notify(n Notice) {
	f.publish(Event{Type: EventNotice, Notice: &n, NoticeTTL: n.TTL.Milliseconds()})
}
