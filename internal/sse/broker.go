// Package sse pushes notebook change notifications to connected clients as
// Server-Sent Events.
package sse

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one outgoing notification.
type Event struct {
	Type string
	Data any
}

// Subscription is one client's view of the stream. Read frames from C and
// call Cancel when done; C is closed on Cancel or broker shutdown.
type Subscription struct {
	C      <-chan []byte
	cancel func()
}

// Cancel detaches the subscription and closes C.
func (s *Subscription) Cancel() { s.cancel() }

// feed is the state owned by the broker goroutine. Its methods run only on
// that goroutine.
type feed struct {
	subs     map[uint64]chan []byte
	nextID   uint64
	lastTree time.Time
}

func (f *feed) broadcast(frame []byte) {
	for _, ch := range f.subs {
		select {
		case ch <- frame:
		default:
			// Slow reader; drop the frame rather than stall the loop.
		}
	}
}

func (f *feed) emit(ev Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	f.nextID++
	var buf bytes.Buffer
	buf.WriteString("id: ")
	buf.WriteString(strconv.FormatUint(f.nextID, 10))
	buf.WriteString("\nevent: ")
	buf.WriteString(ev.Type)
	buf.WriteString("\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	f.broadcast(buf.Bytes())
}

// Broker fans notebook change events out to any number of SSE clients.
//
// A single goroutine owns the subscriber table; public methods hand it
// closures to run, so no mutex guards the table.
type Broker struct {
	treeMin   time.Duration
	keepalive time.Duration

	acts   chan func(*feed)
	subSeq atomic.Uint64

	stop     sync.Once
	stopping chan struct{}
	done     chan struct{}
}

// NewBroker starts a broker. treeThrottle caps how often the aggregate
// tree.changed event fires during bursts of structural changes.
func NewBroker(treeThrottle time.Duration) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = 2 * time.Second
	}
	b := &Broker{
		treeMin:   treeThrottle,
		keepalive: 25 * time.Second,
		acts:      make(chan func(*feed), 256),
		stopping:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.done)

	f := &feed{subs: make(map[uint64]chan []byte)}
	tick := time.NewTicker(b.keepalive)
	defer tick.Stop()

	for {
		select {
		case <-b.stopping:
			for _, ch := range f.subs {
				close(ch)
			}
			return
		case act := <-b.acts:
			act(f)
		case <-tick.C:
			// Comment frame; keeps idle connections alive through proxies.
			f.broadcast([]byte(": keepalive\n\n"))
		}
	}
}

// do runs fn on the broker goroutine and waits for it. Reports false when the
// broker shut down before fn could run.
func (b *Broker) do(fn func(*feed)) bool {
	ran := make(chan struct{})
	select {
	case b.acts <- func(f *feed) { fn(f); close(ran) }:
	case <-b.stopping:
		return false
	}
	select {
	case <-ran:
		return true
	case <-b.done:
		return false
	}
}

// post schedules fn on the broker goroutine without waiting. Dropped silently
// during shutdown.
func (b *Broker) post(fn func(*feed)) {
	select {
	case b.acts <- fn:
	case <-b.stopping:
	}
}

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	b.stop.Do(func() { close(b.stopping) })
	<-b.done
}

// Subscribe attaches a new client. After broker shutdown it still returns a
// usable Subscription whose channel is already closed.
func (b *Broker) Subscribe() *Subscription {
	ch := make(chan []byte, 64)
	id := b.subSeq.Add(1)
	if !b.do(func(f *feed) { f.subs[id] = ch }) {
		close(ch)
	}
	cancel := func() {
		// When do fails the shutdown path has closed ch already.
		b.do(func(f *feed) {
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
	return &Subscription{C: ch, cancel: cancel}
}

// Subscribers returns the number of connected clients.
func (b *Broker) Subscribers() int {
	n := 0
	b.do(func(f *feed) { n = len(f.subs) })
	return n
}

// Publish broadcasts an arbitrary event.
func (b *Broker) Publish(ev Event) {
	b.post(func(f *feed) { f.emit(ev) })
}

// PublishChange broadcasts a note change and, for structural changes, a
// throttled tree.changed event. kind is created, updated or deleted.
func (b *Broker) PublishChange(kind, path string) {
	b.post(func(f *feed) {
		switch kind {
		case "created", "updated", "deleted":
		default:
			return
		}
		f.emit(Event{Type: "note." + kind, Data: map[string]string{"path": path}})
		// Content edits do not change the tree shape.
		if kind == "updated" {
			return
		}
		if now := time.Now(); now.Sub(f.lastTree) >= b.treeMin {
			f.lastTree = now
			f.emit(Event{Type: "tree.changed", Data: map[string]string{}})
		}
	})
}

// ServeHTTP streams events to one client (GET /api/events).
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

	sub := b.Subscribe()
	defer sub.Cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, open := <-sub.C:
			if !open {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
