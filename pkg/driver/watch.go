package driver

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ChangeEvent represents one change delivered by a collection watch
type ChangeEvent struct {
	Operation  string                 `json:"operation"`
	Collection string                 `json:"collection"`
	DocumentID string                 `json:"_id,omitempty"`
	Document   map[string]interface{} `json:"document,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// watchRequest is the subscription message sent after connecting
type watchRequest struct {
	Collection string                 `json:"collection"`
	Filter     map[string]interface{} `json:"filter,omitempty"`
}

// Watcher is an active change subscription over a websocket. Events
// are delivered on the channel until the subscription is closed or the
// connection fails.
type Watcher struct {
	conn      *websocket.Conn
	events    chan ChangeEvent
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Watch subscribes to change events for the driver's collection,
// optionally filtered. The returned watcher must be closed by the
// caller.
func (h *HTTP) Watch(filter map[string]interface{}) (*Watcher, error) {
	wsURL := strings.Replace(h.baseURL, "http", "ws", 1) + h.collectionPath("/_watch")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect change stream: %w", err)
	}

	if err := conn.WriteJSON(&watchRequest{Collection: h.collection, Filter: filter}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	w := &Watcher{
		conn:   conn,
		events: make(chan ChangeEvent, 16),
		done:   make(chan struct{}),
	}
	go w.readLoop()

	return w, nil
}

func (w *Watcher) readLoop() {
	defer close(w.events)

	for {
		var event ChangeEvent
		if err := w.conn.ReadJSON(&event); err != nil {
			select {
			case <-w.done:
				// The caller closed the subscription; the read error is
				// just the torn-down connection.
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					w.setErr(err)
				}
			}
			return
		}

		// A full buffer must not pin this goroutine past Close.
		select {
		case w.events <- event:
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) setErr(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

// Events returns the channel change events are delivered on. The
// channel is closed when the subscription ends.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// Err returns the error that terminated the subscription, if any
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close terminates the subscription and closes the connection
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = w.conn.Close()
	})
	return err
}
