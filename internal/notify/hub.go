package notify

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/detection"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 32
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
)

// Hub broadcasts events to every connected websocket client. A client that
// falls behind loses events rather than stalling the pipeline.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[chan Event]struct{}
}

// NewHub returns a Hub accepting connections from any origin; the kiosk UI
// is served from a local file.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1 << 16,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a listener. Call the returned func to unsubscribe.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, clientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Clients returns the number of current subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) publish(eventType string, payload any) {
	ev := Event{Type: eventType, Payload: payload, Time: time.Now()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			slog.Warn("Dropping event for slow client", "type", eventType)
		}
	}
}

func (h *Hub) GenerateStart()                         { h.publish(EventGenerateStart, nil) }
func (h *Hub) Log(message string)                     { h.publish(EventLog, LogPayload{Text: message}) }
func (h *Hub) DetectionRequest(req detection.Request) { h.publish(EventDetectionRequest, req) }
func (h *Hub) GenerateComplete(dataURL string)        { h.publish(EventGenerateComplete, CompletePayload{DataURL: dataURL}) }
func (h *Hub) UploadResult(url string)                { h.publish(EventUploadResult, UploadPayload{URL: url}) }

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Unable to upgrade websocket", "err", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	slog.Info("Event client connected", "remote", r.RemoteAddr)

	// the read loop only exists to notice the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(maxMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			slog.Info("Event client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Warn("Unable to write event", "type", ev.Type, "err", err)
				return
			}
		}
	}
}
