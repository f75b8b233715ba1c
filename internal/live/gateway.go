package live

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"eventguard.org/internal/alert"
	"eventguard.org/internal/auth"
	"eventguard.org/internal/obs"
)

const (
	sendBufferSize = 16
	writeWait      = 10 * time.Second
)

var errSlowConsumer = errors.New("live: send buffer full, message dropped")

// Gateway is the websocket transport in front of the registry and
// dispatcher. It tracks every open socket (authenticated or not) so
// incident broadcasts reach all clients, while role-targeted alert
// fan-out goes through the registry.
type Gateway struct {
	registry   *Registry
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader

	mu    sync.RWMutex
	conns map[ConnID]*session
}

// NewGateway builds the transport and its dispatch pipeline over the
// given registry and ledger.
func NewGateway(registry *Registry, ledger alert.Ledger) *Gateway {
	g := &Gateway{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[ConnID]*session),
	}
	g.dispatcher = NewDispatcher(registry, ledger, g)
	return g
}

type session struct {
	id   ConnID
	conn *websocket.Conn
	send chan Envelope

	closeOnce sync.Once
	done      chan struct{}
}

func (s *session) enqueue(env Envelope) error {
	select {
	case <-s.done:
		return errSlowConsumer
	case s.send <- env:
		return nil
	default:
		// Drop when the client is slow to avoid blocking fan-out.
		return errSlowConsumer
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// writePump is the single writer for the socket. On shutdown it drains
// queued messages so a terminal auth-error still reaches the client.
func (s *session) writePump() {
	defer s.conn.Close()
	for {
		select {
		case env := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(env); err != nil {
				return
			}
		case <-s.done:
			for {
				select {
				case env := <-s.send:
					s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = s.conn.WriteJSON(env)
				default:
					deadline := time.Now().Add(writeWait)
					_ = s.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
					return
				}
			}
		}
	}
}

// HandleWS upgrades the request and runs the connection until the client
// goes away or the handshake fails terminally.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		obs.LogEvent("warn", "live", "websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	s := &session{
		id:   ConnID(uuid.NewString()),
		conn: conn,
		send: make(chan Envelope, sendBufferSize),
		done: make(chan struct{}),
	}

	g.mu.Lock()
	g.conns[s.id] = s
	g.mu.Unlock()

	go s.writePump()
	g.readLoop(r, s)

	g.registry.Deregister(s.id)
	g.mu.Lock()
	delete(g.conns, s.id)
	g.mu.Unlock()
	s.close()
}

func (g *Gateway) readLoop(r *http.Request, s *session) {
	for {
		var env Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Event {
		case EventAuthenticate:
			if terminal := g.handleAuthenticate(r, s, env.Data); terminal {
				s.close()
				return
			}
		case EventSendAlert:
			g.handleSendAlert(r, s, env.Data)
		default:
			obs.LogEvent("warn", "live", "unknown event ignored", map[string]any{
				"conn_id": string(s.id),
				"event":   env.Event,
			})
		}
	}
}

// handleAuthenticate runs the handshake. A failed handshake queues an
// auth-error for the client and reports terminal so the caller closes
// the connection.
func (g *Gateway) handleAuthenticate(r *http.Request, s *session, data json.RawMessage) bool {
	token := decodeToken(data)
	identity, err := g.registry.Authenticate(r.Context(), s.id, token)
	if err != nil {
		_ = g.Emit(s.id, EventAuthError, AuthFailure{Message: authFailureMessage(err)})
		obs.LogEvent("warn", "live", "socket authentication rejected", map[string]any{
			"conn_id": string(s.id),
			"error":   err.Error(),
		})
		return true
	}
	_ = g.Emit(s.id, EventAuthenticated, AuthAck{Status: true, User: identity})
	obs.LogEvent("info", "live", "socket authenticated", map[string]any{
		"conn_id": string(s.id),
		"user_id": identity.ID,
		"role":    identity.Role.String(),
	})
	return false
}

// handleSendAlert forwards the submission to the dispatcher. Failures are
// logged and dropped without a reply; the socket stays open.
func (g *Gateway) handleSendAlert(r *http.Request, s *session, data json.RawMessage) {
	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		obs.LogEvent("warn", "live", "malformed alert payload dropped", map[string]any{
			"conn_id": string(s.id),
			"error":   err.Error(),
		})
		return
	}
	if _, err := g.dispatcher.Submit(r.Context(), s.id, sub); err != nil {
		obs.LogEvent("warn", "live", "alert submission dropped", map[string]any{
			"conn_id": string(s.id),
			"error":   err.Error(),
		})
	}
}

func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Session expired, please log in again."
	case errors.Is(err, auth.ErrNotApproved):
		return "Account is awaiting approval."
	default:
		return "Invalid token, please log in again."
	}
}

// Emit delivers one event to a single connection. It implements the
// dispatcher's Emitter.
func (g *Gateway) Emit(id ConnID, event string, payload any) error {
	g.mu.RLock()
	s, ok := g.conns[id]
	g.mu.RUnlock()
	if !ok {
		return errors.New("live: connection gone")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.enqueue(Envelope{Event: event, Data: data})
}

// Broadcast delivers one event to every open socket, authenticated or
// not. Incident notifications use this path.
func (g *Gateway) Broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		obs.LogEvent("error", "live", "broadcast payload marshal failed", map[string]any{"error": err.Error()})
		return
	}
	env := Envelope{Event: event, Data: data}
	g.mu.RLock()
	sessions := make([]*session, 0, len(g.conns))
	for _, s := range g.conns {
		sessions = append(sessions, s)
	}
	g.mu.RUnlock()
	for _, s := range sessions {
		_ = s.enqueue(env)
	}
}
