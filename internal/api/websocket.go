package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ashmarby/folioline-core/internal/identity"
	"github.com/ashmarby/folioline-core/internal/portfolio"
	"github.com/ashmarby/folioline-core/internal/realtime"
)

// Client-to-server message types.
const (
	WSTypeJoinRoom  = "join_room"
	WSTypeLeaveRoom = "leave_room"
	WSTypePing      = "ping"
	WSTypePong      = "pong"
)

// WSMessage is a message received from a WebSocket client.
type WSMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSRoomPayload is the payload for join_room and leave_room messages.
type WSRoomPayload struct {
	RoomID string `json:"room_id"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsSession pairs an upgraded socket with its registry connection.
type wsSession struct {
	server *Server
	ws     *websocket.Conn
	conn   *realtime.Conn
}

// handleWebSocket authenticates the handshake and upgrades it. The
// credential comes from the Authorization header or, for browser
// clients that cannot set headers on WebSocket requests, a token query
// parameter. Authentication happens before the upgrade: a connection
// that fails it is refused outright and never reaches the registry.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	credential := identity.BearerFromHeader(r.Header.Get("Authorization"))
	if credential == "" {
		credential = r.URL.Query().Get("token")
	}

	ident, err := s.auth.Authenticate(r.Context(), credential)
	if err != nil {
		writeUnauthorized(w, "invalid or missing credential")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := realtime.NewConn(*ident, s.wsCfg.SendBufferSize)
	s.registry.Register(conn)
	s.logger.Debug("websocket client connected",
		"conn_id", conn.ID(),
		"user_id", ident.UserID,
		"connections", s.registry.ConnectionCount(),
	)

	session := &wsSession{server: s, ws: ws, conn: conn}
	go session.writePump()
	go session.readPump()
}

// readPump reads client messages until the socket closes, then removes
// the connection from the registry. Deregistration closes the outbound
// queue, which in turn stops the write pump.
func (sess *wsSession) readPump() {
	s := sess.server
	defer func() {
		s.registry.Deregister(sess.conn.ID())
		sess.ws.Close()
		s.logger.Debug("websocket client disconnected",
			"conn_id", sess.conn.ID(),
			"connections", s.registry.ConnectionCount(),
		)
	}()

	sess.ws.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	sess.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	sess.ws.SetPongHandler(func(string) error {
		return sess.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := sess.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "conn_id", sess.conn.ID(), "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		sess.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		sess.handleMessage(message)
	}
}

// writePump drains the connection's outbound queue into the socket and
// keeps the connection alive with protocol pings. It exits when the
// registry closes the queue or a write fails.
func (sess *wsSession) writePump() {
	pingInterval := time.Duration(sess.server.wsCfg.PingInterval) * time.Second
	pongWait := time.Duration(sess.server.wsCfg.PongTimeout) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sess.ws.Close()
	}()

	for {
		select {
		case message, ok := <-sess.conn.Outbound():
			if !ok {
				// Registry closed the queue on deregister
				//nolint:errcheck // Best-effort close message
				sess.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			sess.ws.SetWriteDeadline(time.Now().Add(pongWait))
			if err := sess.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			sess.ws.SetWriteDeadline(time.Now().Add(pongWait))
			if err := sess.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one incoming client message. Bad membership
// requests produce an error reply on the connection; they never close it.
func (sess *wsSession) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		sess.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeJoinRoom:
		sess.handleJoinRoom(msg)
	case WSTypeLeaveRoom:
		sess.handleLeaveRoom(msg)
	case WSTypePing:
		sess.sendResponse(msg.ID, WSTypePong, nil)
	default:
		sess.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleJoinRoom joins the connection to a room. Portfolio rooms are
// authorisation-gated: the portfolio must be published or owned by the
// caller. Joining again is a no-op that still acks.
func (sess *wsSession) handleJoinRoom(msg WSMessage) {
	roomID, ok := sess.roomFromPayload(msg)
	if !ok {
		return
	}

	kind, subject, err := realtime.ParseRoom(roomID)
	if err != nil {
		sess.sendError(msg.ID, "malformed room id: "+roomID)
		return
	}

	if kind == realtime.RoomKindPortfolio {
		allowed, err := sess.server.portfolios.CanAccess(context.Background(), subject, sess.conn.UserID())
		if err != nil {
			if errors.Is(err, portfolio.ErrPortfolioNotFound) {
				sess.sendError(msg.ID, "room not found: "+roomID)
				return
			}
			sess.server.logger.Error("room access check failed", "room_id", roomID, "error", err)
			sess.sendError(msg.ID, "room join failed")
			return
		}
		if !allowed {
			sess.sendError(msg.ID, "not authorised for room: "+roomID)
			return
		}
	}

	if err := sess.server.registry.Join(sess.conn.ID(), roomID); err != nil {
		sess.sendError(msg.ID, "room join failed")
		return
	}

	sess.sendResponse(msg.ID, realtime.MessageTypeResponse, map[string]any{"joined": roomID})
}

// handleLeaveRoom removes the connection from a room. The personal room
// is pinned; leaving it is rejected without affecting membership.
func (sess *wsSession) handleLeaveRoom(msg WSMessage) {
	roomID, ok := sess.roomFromPayload(msg)
	if !ok {
		return
	}

	if err := sess.server.registry.Leave(sess.conn.ID(), roomID); err != nil {
		switch {
		case errors.Is(err, realtime.ErrPersonalRoomLeave):
			sess.sendError(msg.ID, "personal room cannot be left")
		case errors.Is(err, realtime.ErrMalformedRoom):
			sess.sendError(msg.ID, "malformed room id: "+roomID)
		default:
			sess.sendError(msg.ID, "room leave failed")
		}
		return
	}

	sess.sendResponse(msg.ID, realtime.MessageTypeResponse, map[string]any{"left": roomID})
}

// roomFromPayload extracts the room ID from a membership message,
// replying with an error when it is missing.
func (sess *wsSession) roomFromPayload(msg WSMessage) (string, bool) {
	var payload WSRoomPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.RoomID == "" {
		sess.sendError(msg.ID, "room_id is required")
		return "", false
	}
	return payload.RoomID, true
}

// sendResponse queues a reply on the connection's outbound channel, so
// all socket writes go through the single write pump.
func (sess *wsSession) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(realtime.Envelope{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	sess.conn.TrySend(data)
}

// sendError sends an error reply to the client.
func (sess *wsSession) sendError(id, message string) {
	sess.sendResponse(id, realtime.MessageTypeError, map[string]string{"message": message})
}
