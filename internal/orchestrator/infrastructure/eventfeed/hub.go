package eventfeed

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"av-trip/pkg/auth"
	"av-trip/pkg/events"
	"av-trip/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Period of sending Ping messages
	pingPeriod = (pongWait * 9) / 10

	// Send buffer size per subscriber
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// subscriber is one connected audit consumer.
type subscriber struct {
	principal string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *subscriber) writePump(log logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error("eventfeed_write_failed", err)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}

// Hub broadcasts change records to websocket subscribers. It implements
// events.Sink, so it can be wired wherever the RabbitMQ publisher is.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	jwtManager  *auth.JWTManager
	logger      logger.Logger
}

func NewHub(jwtManager *auth.JWTManager, log logger.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		jwtManager:  jwtManager,
		logger:      log,
	}
}

// Emit fans a change record out to every connected subscriber. A
// subscriber whose buffer is full loses the record rather than blocking
// the emitting operation.
func (h *Hub) Emit(record events.ChangeRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		h.logger.Error("eventfeed_marshal_failed", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subscribers {
		select {
		case s.send <- data:
		default:
			h.logger.WithFields(logger.LogFields{
				"principal": s.principal,
			}).Error("eventfeed_buffer_full", errors.New("dropping change record"))
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request and registers the caller as a feed
// subscriber. Authentication uses the same bearer token as the REST
// surface, passed as a query parameter because browsers cannot set
// headers on websocket upgrades.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Query().Get("token"), "Bearer ")
	claims, err := h.jwtManager.ParseToken(token)
	if err != nil {
		h.logger.Error("eventfeed_auth_failed", err)
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("eventfeed_upgrade_failed", err)
		return
	}

	s := &subscriber{
		principal: claims.Principal,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	total := len(h.subscribers)
	h.mu.Unlock()

	h.logger.WithFields(logger.LogFields{
		"principal": s.principal,
		"total":     total,
	}).Info("eventfeed_subscribed", "Subscriber connected")

	go s.writePump(h.logger)
	go h.readPump(s)
}

// readPump drains control frames and unregisters on disconnect.
func (h *Hub) readPump(s *subscriber) {
	defer func() {
		h.mu.Lock()
		delete(h.subscribers, s)
		h.mu.Unlock()
		s.close()
		h.logger.WithFields(logger.LogFields{
			"principal": s.principal,
		}).Info("eventfeed_unsubscribed", "Subscriber disconnected")
	}()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway) {
				h.logger.Error("eventfeed_read_error", err)
			}
			return
		}
	}
}
