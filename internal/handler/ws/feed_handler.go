package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"callfeed-backend/internal/domain"
	"callfeed-backend/internal/events"
	"callfeed-backend/internal/service/history"
	"callfeed-backend/pkg/constants"
	"callfeed-backend/pkg/logger"
	"callfeed-backend/pkg/metrics"
)

// Frame types pushed to the client
const (
	FrameWindowReplaced = "window_replaced"
	FrameRowsUpdated    = "rows_updated"
)

// Command types accepted from the client
const (
	CommandSetFilter = "set_filter"
	CommandLoadMore  = "load_more"
	CommandViewport  = "viewport"
)

// ClientCommand is a control message from the client
type ClientCommand struct {
	Type       string `json:"type"`
	MissedOnly bool   `json:"missed_only,omitempty"`
	SearchTerm string `json:"search_term,omitempty"`
	Direction  string `json:"direction,omitempty"`
	AtTop      bool   `json:"at_top,omitempty"`
}

// ServerFrame is a window update pushed to the client
type ServerFrame struct {
	Type  string            `json:"type"`
	State history.LoadState `json:"state,omitempty"`
	Rows  []history.ViewRow `json:"rows"`
}

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Reject empty origins - require explicit origin for security
			return false
		}
		return allowedOrigins()[origin]
	},
}

func allowedOrigins() map[string]bool {
	allowed := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:3000": true,
		"http://127.0.0.1:8080": true,
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			allowed[strings.TrimSpace(origin)] = true
		}
	}
	return allowed
}

// FeedHandler serves per-connection call history feeds. Each connection
// gets its own controller, window and event pump; Redis record events are
// fanned out to every active session.
type FeedHandler struct {
	store         history.RecordStore
	search        history.SearchIndex
	conversations history.ConversationLookup
	liveness      history.GroupCallLiveness
	metrics       *metrics.Metrics

	pageSize       int
	windowCapacity int

	mu       sync.RWMutex
	sessions map[*feedSession]bool
}

// NewFeedHandler creates a feed handler over the given collaborators
func NewFeedHandler(
	store history.RecordStore,
	search history.SearchIndex,
	conversations history.ConversationLookup,
	liveness history.GroupCallLiveness,
	m *metrics.Metrics,
	pageSize, windowCapacity int,
) *FeedHandler {
	return &FeedHandler{
		store:          store,
		search:         search,
		conversations:  conversations,
		liveness:       liveness,
		metrics:        m,
		pageSize:       pageSize,
		windowCapacity: windowCapacity,
		sessions:       make(map[*feedSession]bool),
	}
}

// Dispatch fans a record event out to every active session. Wired as the
// handler of the Redis event subscriber; must not block.
func (h *FeedHandler) Dispatch(event events.Event) {
	var feedEvent history.Event
	switch event.Kind {
	case events.KindRecordInserted:
		if event.Key == nil {
			return
		}
		feedEvent = history.RecordInsertedEvent{Key: *event.Key}
	case events.KindRecordChanged:
		if event.Key == nil {
			return
		}
		feedEvent = history.RecordChangedEvent{Keys: []domain.CallRecordKey{*event.Key}}
	case events.KindCallStateChanged:
		feedEvent = history.CallStateChangedEvent{OldCallID: event.OldCallID, NewCallID: event.NewCallID}
	default:
		logger.Warn("Unknown record event kind", zap.String("kind", string(event.Kind)))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for session := range h.sessions {
		session.feed.Handle(feedEvent)
	}
}

// HandleFeed upgrades the connection and runs a feed session until the
// client disconnects
func (h *FeedHandler) HandleFeed(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(401, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := feedUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Any("user_id", userIDVal), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &feedSession{
		handler: h,
		conn:    conn,
		send:    make(chan []byte, 64),
		cancel:  cancel,
	}
	ctrl := history.NewController(
		history.NewLoader(h.store, h.search),
		history.NewDeriver(h.conversations, h.liveness),
		session,
		h.metrics,
		history.ControllerConfig{PageSize: h.pageSize, WindowCapacity: h.windowCapacity},
	)
	session.ctrl = ctrl
	session.feed = history.NewFeed(ctrl)

	h.register(session)
	h.metrics.WSConnectionOpened()

	go session.feed.Run(ctx)
	go session.writePump()

	// Initial load with the default (unfiltered) configuration
	session.feed.Handle(history.SetFilterEvent{})

	session.readPump(ctx)
}

func (h *FeedHandler) register(s *feedSession) {
	h.mu.Lock()
	h.sessions[s] = true
	h.mu.Unlock()
}

func (h *FeedHandler) unregister(s *feedSession) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

// feedSession is one WebSocket connection's controller, event pump and
// outbound queue. It implements history.Renderer: render callbacks run on
// the session's control goroutine and only enqueue frames.
type feedSession struct {
	handler *FeedHandler
	conn    *websocket.Conn
	ctrl    *history.Controller
	feed    *history.Feed
	send    chan []byte
	cancel  context.CancelFunc

	closeOnce sync.Once
}

// WindowReplaced pushes a full window snapshot
func (s *feedSession) WindowReplaced() {
	s.enqueue(ServerFrame{
		Type:  FrameWindowReplaced,
		State: s.ctrl.State(),
		Rows:  s.ctrl.Window().Rows(),
	})
}

// RowsUpdated pushes the refreshed rows for the given keys. Keys that are
// no longer in the window are skipped.
func (s *feedSession) RowsUpdated(keys []domain.CallRecordKey) {
	rows := make([]history.ViewRow, 0, len(keys))
	for _, key := range keys {
		if row, ok := s.ctrl.Window().Lookup(key); ok {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return
	}
	s.enqueue(ServerFrame{Type: FrameRowsUpdated, Rows: rows})
}

func (s *feedSession) enqueue(frame ServerFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		logger.Error("Failed to marshal feed frame", zap.String("type", frame.Type), zap.Error(err))
		return
	}
	select {
	case s.send <- payload:
		s.handler.metrics.RecordWSMessage("outbound", frame.Type)
	default:
		// Slow consumer: drop the connection rather than block the pump
		logger.Warn("Feed send queue full, closing connection")
		s.close()
	}
}

func (s *feedSession) close() {
	s.closeOnce.Do(func() {
		s.handler.unregister(s)
		s.handler.metrics.WSConnectionClosed()
		s.cancel()
		s.conn.Close()
	})
}

// readPump parses client commands and enqueues them on the session's feed
func (s *feedSession) readPump(ctx context.Context) {
	defer s.close()

	s.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("Feed connection closed", zap.Error(err))
			}
			return
		}

		var cmd ClientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			logger.Warn("Invalid feed command", zap.Error(err))
			continue
		}
		s.handler.metrics.RecordWSMessage("inbound", cmd.Type)

		event, ok := commandToEvent(cmd)
		if !ok {
			logger.Warn("Unknown feed command", zap.String("type", cmd.Type))
			continue
		}
		s.feed.Handle(event)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func commandToEvent(cmd ClientCommand) (history.Event, bool) {
	switch cmd.Type {
	case CommandSetFilter:
		return history.SetFilterEvent{Filter: history.Filter{
			MissedOnly: cmd.MissedOnly,
			SearchTerm: cmd.SearchTerm,
		}}, true
	case CommandLoadMore:
		direction := history.DirectionOlder
		if cmd.Direction == string(history.DirectionNewer) {
			direction = history.DirectionNewer
		}
		return history.LoadMoreEvent{Direction: direction}, true
	case CommandViewport:
		return history.ViewportEvent{AtTop: cmd.AtTop}, true
	default:
		return nil, false
	}
}

// writePump drains the send queue and keeps the connection alive with pings
func (s *feedSession) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval * 9 / 10)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
