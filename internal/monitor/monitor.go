// Package monitor exposes state transitions over a WebSocket so a dashboard
// or a debugging session can watch the appliance without touching it.
package monitor

import (
	"context"
	"encoding/json"
	log "log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Transition struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// subscriber pairs a connection with its write lock. The replay write runs on
// the subscriber's handler goroutine while broadcasts arrive from the
// dispatch loop; gorilla allows only one concurrent writer per connection.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(tr Transition) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

type Feed struct {
	srv      *http.Server
	ln       net.Listener
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
	last *Transition
}

func New(addr string) *Feed {
	f := &Feed{
		subs: make(map[*subscriber]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", f.handleEvents)
	f.srv = &http.Server{Addr: addr, Handler: mux}

	return f
}

// Start begins serving. Returns once the listener is bound so a bad address
// fails fast instead of inside a goroutine.
func (f *Feed) Start() error {
	ln, err := net.Listen("tcp", f.srv.Addr)
	if err != nil {
		return err
	}
	f.ln = ln

	go func() {
		if err := f.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("monitor server failed", "err", err)
		}
	}()

	log.Info("monitor feed listening", "addr", ln.Addr())
	return nil
}

// Addr returns the bound address. Valid after Start.
func (f *Feed) Addr() string {
	if f.ln == nil {
		return f.srv.Addr
	}
	return f.ln.Addr().String()
}

func (f *Feed) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("monitor upgrade failed", "err", err)
		return
	}

	sub := &subscriber{conn: conn}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	last := f.last
	f.mu.Unlock()

	// New subscribers immediately learn the current state.
	if last != nil {
		if err := sub.write(*last); err != nil {
			f.drop(sub)
			return
		}
	}

	// Drain reads so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.drop(sub)
				return
			}
		}
	}()
}

// Broadcast sends a transition to every subscriber. Slow or dead subscribers
// are dropped, never waited on.
func (f *Feed) Broadcast(from, to string) {
	tr := Transition{From: from, To: to, At: time.Now()}

	f.mu.Lock()
	f.last = &tr
	subs := make([]*subscriber, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		if err := s.write(tr); err != nil {
			f.drop(s)
		}
	}
}

func (f *Feed) drop(sub *subscriber) {
	f.mu.Lock()
	delete(f.subs, sub)
	f.mu.Unlock()
	sub.conn.Close()
}

func (f *Feed) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	f.mu.Lock()
	for s := range f.subs {
		s.conn.Close()
	}
	f.subs = make(map[*subscriber]struct{})
	f.mu.Unlock()

	return f.srv.Shutdown(ctx)
}
