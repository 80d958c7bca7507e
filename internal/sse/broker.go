// Package sse implements a Server-Sent Events broker that streams page
// changes and link pass progress to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	EventPageCreated  = "page.created"
	EventPageUpdated  = "page.updated"
	EventPageDeleted  = "page.deleted"
	EventReportStale  = "report.stale"
	EventLinkProgress = "link.progress"
	EventLinkFinished = "link.finished"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type pageEventReq struct {
	kind string
	path string
}

type progressReq struct {
	done  int
	total int
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop owns the client set and throttle timestamps. Public
// methods talk to it over channels.
type Broker struct {
	throttle time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	pageEventCh   chan pageEventReq
	progressCh    chan progressReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. throttle bounds how often report.stale and
// intermediate link.progress events are sent.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		throttle:      throttle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		pageEventCh:   make(chan pageEventReq, 256),
		progressCh:    make(chan progressReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastStale, lastProgress time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client: drop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.pageEventCh:
			data := map[string]string{"path": req.path}
			switch req.kind {
			case "created":
				broadcast(Event{Type: EventPageCreated, Data: data})
			case "updated":
				broadcast(Event{Type: EventPageUpdated, Data: data})
			case "deleted":
				broadcast(Event{Type: EventPageDeleted, Data: data})
			}

			now := time.Now()
			if now.Sub(lastStale) >= b.throttle {
				lastStale = now
				broadcast(Event{Type: EventReportStale, Data: map[string]string{}})
			}

		case req := <-b.progressCh:
			now := time.Now()
			if req.done < req.total && now.Sub(lastProgress) < b.throttle {
				continue
			}
			lastProgress = now
			broadcast(Event{Type: EventLinkProgress, Data: map[string]int{"done": req.done, "total": req.total}})

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishPageEvent publishes a page change and a throttled report.stale
// event. Its signature matches index.EventCallback.
func (b *Broker) PublishPageEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.pageEventCh <- pageEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// PublishLinkProgress publishes link pass progress. Intermediate updates
// are throttled; the final one (done == total) is always sent.
func (b *Broker) PublishLinkProgress(done, total int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.progressCh <- progressReq{done: done, total: total}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
