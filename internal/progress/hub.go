package progress

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/studiowebux/chirpload/internal/scenario"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64 // payloads queued per subscriber before it is dropped
)

// Event types pushed to websocket subscribers
const (
	EventState         = "state"
	EventPhaseStarted  = "phase_started"
	EventTask          = "task"
	EventPhaseFinished = "phase_finished"
)

// Event is one progress message on the websocket stream
type Event struct {
	Type      string  `json:"type"`
	State     string  `json:"state,omitempty"`
	Phase     string  `json:"phase,omitempty"`
	Tag       string  `json:"tag,omitempty"`
	Index     int     `json:"index"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	ElapsedMs float64 `json:"elapsed_ms,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// Subscriber abstracts a streaming client. Send must not block: the hub
// loop calls it for every subscriber in turn.
type Subscriber interface {
	Send([]byte) error
	Close()
}

var errSlowSubscriber = errors.New("subscriber send buffer is full")

// wsClient queues payloads for its own writer goroutine so a slow
// connection only ever stalls itself
type wsClient struct {
	conn      *websocket.Conn
	logger    *zap.Logger
	send      chan []byte
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, logger *zap.Logger) *wsClient {
	c := &wsClient{
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *wsClient) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	default:
		return errSlowSubscriber
	}
}

// Close stops the writer once the queued payloads are written
func (c *wsClient) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.logger.Debug("websocket send failed", zap.Error(err))
			_ = c.conn.Close()
			// the read loop sees the closed conn and unregisters us
			for range c.send {
			}
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
		time.Now().Add(writeWait))
}

// Hub fans progress events out to websocket subscribers. It implements
// scenario.Listener; per-task events are thinned to about one percent
// steps and dropped rather than queued when the hub falls behind. A
// subscriber whose own queue fills up is disconnected.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients   map[Subscriber]struct{}
	register  chan Subscriber
	unreg     chan Subscriber
	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once

	count chan int // reports subscriber count, for tests and logs
	now   func() time.Time
}

// NewHub creates a hub and starts its loop
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		logger: logger.With(zap.String("component", "progress")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[Subscriber]struct{}),
		register:  make(chan Subscriber),
		unreg:     make(chan Subscriber),
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		count:     make(chan int),
		now:       time.Now,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unreg:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.Close()
			}
		case payload := <-h.broadcast:
			for c := range h.clients {
				if err := c.Send(payload); err != nil {
					h.logger.Debug("dropping progress subscriber", zap.Error(err))
					c.Close()
					delete(h.clients, c)
				}
			}
		case h.count <- len(h.clients):
		case <-h.done:
			// deliver what is already queued, then hang up
		drain:
			for {
				select {
				case payload := <-h.broadcast:
					for c := range h.clients {
						_ = c.Send(payload)
					}
				default:
					break drain
				}
			}
			for c := range h.clients {
				c.Close()
			}
			h.clients = nil
			return
		}
	}
}

// Register adds a subscriber
func (h *Hub) Register(c Subscriber) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister removes and closes a subscriber
func (h *Hub) Unregister(c Subscriber) {
	select {
	case h.unreg <- c:
	case <-h.done:
	}
}

// Subscribers returns the number of connected subscribers
func (h *Hub) Subscribers() int {
	select {
	case n := <-h.count:
		return n
	case <-h.done:
		return 0
	}
}

// Close disconnects every subscriber and stops the loop
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeHTTP upgrades the request and streams events until the client
// goes away or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := newWSClient(conn, h.logger)
	h.Register(client)
	h.logger.Debug("progress subscriber connected", zap.String("remote", r.RemoteAddr))

	go func() {
		defer h.Unregister(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Handler returns a mux serving the stream on /ws
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", h)
	return mux
}

func (h *Hub) StateChanged(state scenario.State, phase string) {
	h.publish(Event{Type: EventState, State: state.String(), Phase: phase}, true)
}

func (h *Hub) PhaseStarted(p scenario.PhaseInfo) {
	h.publish(phaseEvent(EventPhaseStarted, p, 0), true)
}

func (h *Hub) TaskDone(p scenario.PhaseInfo, completed int) {
	step := max(p.Total/100, 1)
	if completed%step != 0 && completed != p.Total {
		return
	}
	h.publish(phaseEvent(EventTask, p, completed), false)
}

func (h *Hub) PhaseFinished(p scenario.PhaseInfo, elapsed time.Duration) {
	ev := phaseEvent(EventPhaseFinished, p, p.Total)
	ev.ElapsedMs = float64(elapsed) / float64(time.Millisecond)
	h.publish(ev, true)
}

func phaseEvent(kind string, p scenario.PhaseInfo, completed int) Event {
	return Event{
		Type:      kind,
		Phase:     p.Name,
		Tag:       string(p.Tag),
		Index:     p.Index,
		Completed: completed,
		Total:     p.Total,
	}
}

// publish queues ev; when wait is false a full queue drops the event
func (h *Hub) publish(ev Event, wait bool) {
	ev.Timestamp = h.now().UTC().Format(time.RFC3339Nano)
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("failed to marshal progress event", zap.Error(err))
		return
	}

	if wait {
		select {
		case h.broadcast <- payload:
		case <-h.done:
		}
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}
