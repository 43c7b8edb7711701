package orderevents

import (
	"errors"
	"strings"
	"sync"
)

const DefaultSubscriberBuffer = 32

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidStream  = errors.New("invalid_stream")
)

// Hub delivers events to the subscribers of a stream. Sends never block: a
// subscriber whose buffer is full misses the event. Nothing is retained for
// late subscribers.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub  *Hub
	key  string
	id   uint64
	ch   chan Event
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish returns how many subscribers got the event and how many were
// skipped because they were full.
func (h *Hub) Publish(key string, event Event) (delivered, dropped int) {
	if h == nil {
		return 0, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, 0
	}
	h.mu.RLock()
	stream := h.streams[key]
	h.mu.RUnlock()
	if stream == nil {
		return 0, 0
	}

	stream.mu.Lock()
	subs := make([]chan Event, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped
}

func (h *Hub) Subscribe(key string) (*Subscription, error) {
	if h == nil {
		return nil, ErrHubUnavailable
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.HasSuffix(key, ":") {
		return nil, ErrInvalidStream
	}

	h.mu.Lock()
	current := h.streams[key]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[key] = current
	}
	current.mu.Lock()
	id := current.nextID
	current.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	current.subs[id] = ch
	current.mu.Unlock()
	h.mu.Unlock()

	return &Subscription{hub: h, key: key, id: id, ch: ch}, nil
}

// Subscribers counts the live subscriptions of a stream.
func (h *Hub) Subscribers(key string) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	stream := h.streams[strings.TrimSpace(key)]
	h.mu.RUnlock()
	if stream == nil {
		return 0
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return len(stream.subs)
}

func (h *Hub) unsubscribe(key string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stream := h.streams[key]
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, key)
	}
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.key, s.id)
	})
}
