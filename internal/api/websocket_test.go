package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ashmarby/folioline-core/internal/portfolio"
	"github.com/ashmarby/folioline-core/internal/realtime"
)

const wsReadTimeout = 3 * time.Second

// dialWS opens a websocket session against the test server using the
// token query parameter.
func dialWS(t *testing.T, env *testEnv, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + env.srv.webSocketPath() + "?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	// Round-trip a ping so registration has completed before the test
	// triggers any broadcast.
	sendWS(t, ws, WSTypePing, "sync", struct{}{})
	if reply := readEnvelope(t, ws); reply.Type != WSTypePong {
		t.Fatalf("sync ping replied %+v", reply)
	}
	return ws
}

// readEnvelope reads one server message with a deadline.
func readEnvelope(t *testing.T, ws *websocket.Conn) realtime.Envelope {
	t.Helper()

	if err := ws.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("reading websocket message: %v", err)
	}

	var env realtime.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshalling envelope: %v", err)
	}
	return env
}

// sendWS writes a client message.
func sendWS(t *testing.T, ws *websocket.Conn, msgType, id string, payload any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshalling payload: %v", err)
	}
	msg := WSMessage{Type: msgType, ID: id, Payload: raw}
	if err := ws.WriteJSON(msg); err != nil {
		t.Fatalf("writing websocket message: %v", err)
	}
}

func TestWebSocketRejectsBadCredential(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + env.srv.webSocketPath() + "?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded with invalid credential")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %v, want 401", resp)
	}

	// A failed handshake never reaches the registry.
	if got := env.registry.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount = %d after rejected handshake, want 0", got)
	}
}

func TestWebSocketPersonalRoomNotification(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "owner@example.com", "password12345")
	token := env.login(t, "owner@example.com", "password12345")

	resp := env.request(t, http.MethodPost, "/api/v1/portfolios", token, map[string]string{
		"title": "Work", "slug": "work",
	})
	created := decodeBody[portfolio.Portfolio](t, resp)

	ws := dialWS(t, env, token)

	// A visitor submits the contact form; the owner hears about it in
	// their personal room without joining anything.
	resp = env.request(t, http.MethodPost, "/api/v1/portfolios/"+created.ID+"/contact", "", map[string]string{
		"sender_name":  "Visitor",
		"sender_email": "visitor@example.com",
		"body":         "I'd like to hire you.",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("contact status = %d", resp.StatusCode)
	}

	event := readEnvelope(t, ws)
	if event.Type != realtime.MessageTypeEvent || event.EventType != realtime.TypeNotification {
		t.Fatalf("got %s/%s, want event/notification", event.Type, event.EventType)
	}
	if !strings.HasPrefix(event.RoomID, "user:") {
		t.Errorf("notification delivered to %q, want the personal room", event.RoomID)
	}
}

func TestWebSocketJoinAndReceivePortfolioUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "owner@example.com", "password12345")
	env.createUser(t, "viewer@example.com", "password12345")
	ownerToken := env.login(t, "owner@example.com", "password12345")
	viewerToken := env.login(t, "viewer@example.com", "password12345")

	resp := env.request(t, http.MethodPost, "/api/v1/portfolios", ownerToken, map[string]string{
		"title": "Work", "slug": "work",
	})
	created := decodeBody[portfolio.Portfolio](t, resp)
	resp = env.request(t, http.MethodPatch, "/api/v1/portfolios/"+created.ID, ownerToken, map[string]any{
		"published": true,
	})
	resp.Body.Close()

	ws := dialWS(t, env, viewerToken)

	room := realtime.PortfolioRoom(created.ID)
	sendWS(t, ws, WSTypeJoinRoom, "1", WSRoomPayload{RoomID: room})
	ack := readEnvelope(t, ws)
	if ack.Type != realtime.MessageTypeResponse {
		t.Fatalf("join ack = %+v", ack)
	}

	// Owner edits; the viewer in the room sees the committed state.
	resp = env.request(t, http.MethodPatch, "/api/v1/portfolios/"+created.ID, ownerToken, map[string]any{
		"title": "New Title",
	})
	resp.Body.Close()

	event := readEnvelope(t, ws)
	if event.EventType != realtime.TypePortfolioUpdate || event.RoomID != room {
		t.Fatalf("event = %s in %s", event.EventType, event.RoomID)
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		t.Fatalf("re-marshalling payload: %v", err)
	}
	var update realtime.PortfolioUpdatePayload
	if err := json.Unmarshal(payload, &update); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if update.Title != "New Title" {
		t.Errorf("payload title = %q", update.Title)
	}
}

// assertNoMessage asserts no server frame arrives within a short window.
func assertNoMessage(t *testing.T, ws *websocket.Conn) {
	t.Helper()

	if err := ws.SetReadDeadline(time.Now().Add(300 * time.Millisecond)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	if _, data, err := ws.ReadMessage(); err == nil {
		t.Fatalf("unexpected message: %s", data)
	}
}

func TestWebSocketNonMemberReceivesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "owner@example.com", "password12345")
	env.createUser(t, "member@example.com", "password12345")
	env.createUser(t, "outsider@example.com", "password12345")
	ownerToken := env.login(t, "owner@example.com", "password12345")
	memberToken := env.login(t, "member@example.com", "password12345")
	outsiderToken := env.login(t, "outsider@example.com", "password12345")

	resp := env.request(t, http.MethodPost, "/api/v1/portfolios", ownerToken, map[string]string{
		"title": "Work", "slug": "work",
	})
	created := decodeBody[portfolio.Portfolio](t, resp)
	resp = env.request(t, http.MethodPatch, "/api/v1/portfolios/"+created.ID, ownerToken, map[string]any{
		"published": true,
	})
	resp.Body.Close()

	memberWS := dialWS(t, env, memberToken)
	outsiderWS := dialWS(t, env, outsiderToken)

	// Only one of the two live connections joins the room.
	sendWS(t, memberWS, WSTypeJoinRoom, "1", WSRoomPayload{RoomID: realtime.PortfolioRoom(created.ID)})
	if ack := readEnvelope(t, memberWS); ack.Type != realtime.MessageTypeResponse {
		t.Fatalf("join ack = %+v", ack)
	}

	resp = env.request(t, http.MethodPatch, "/api/v1/portfolios/"+created.ID, ownerToken, map[string]any{
		"title": "New Title",
	})
	resp.Body.Close()

	event := readEnvelope(t, memberWS)
	if event.EventType != realtime.TypePortfolioUpdate {
		t.Fatalf("member got %s, want portfolio_update", event.EventType)
	}

	// The connection that never joined hears nothing.
	assertNoMessage(t, outsiderWS)
}

func TestWebSocketDraftRoomJoinDenied(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "owner@example.com", "password12345")
	env.createUser(t, "viewer@example.com", "password12345")
	ownerToken := env.login(t, "owner@example.com", "password12345")
	viewerToken := env.login(t, "viewer@example.com", "password12345")

	resp := env.request(t, http.MethodPost, "/api/v1/portfolios", ownerToken, map[string]string{
		"title": "Draft", "slug": "draft",
	})
	created := decodeBody[portfolio.Portfolio](t, resp)

	ws := dialWS(t, env, viewerToken)

	sendWS(t, ws, WSTypeJoinRoom, "1", WSRoomPayload{RoomID: realtime.PortfolioRoom(created.ID)})
	reply := readEnvelope(t, ws)
	if reply.Type != realtime.MessageTypeError {
		t.Fatalf("join of unpublished portfolio replied %+v, want error", reply)
	}

	// The connection survives the rejected join.
	sendWS(t, ws, WSTypePing, "2", struct{}{})
	pong := readEnvelope(t, ws)
	if pong.Type != WSTypePong {
		t.Fatalf("ping after rejected join replied %+v", pong)
	}

	// Owner can join their own draft room.
	ownerWS := dialWS(t, env, ownerToken)
	sendWS(t, ownerWS, WSTypeJoinRoom, "1", WSRoomPayload{RoomID: realtime.PortfolioRoom(created.ID)})
	ack := readEnvelope(t, ownerWS)
	if ack.Type != realtime.MessageTypeResponse {
		t.Fatalf("owner join replied %+v", ack)
	}
}

func TestWebSocketCannotLeavePersonalRoom(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "owner@example.com", "password12345")
	token := env.login(t, "owner@example.com", "password12345")

	ws := dialWS(t, env, token)

	sendWS(t, ws, WSTypeLeaveRoom, "1", WSRoomPayload{RoomID: realtime.UserRoom(user.ID)})
	reply := readEnvelope(t, ws)
	if reply.Type != realtime.MessageTypeError {
		t.Fatalf("leave of personal room replied %+v, want error", reply)
	}
}

func TestWebSocketUnknownMessageType(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "owner@example.com", "password12345")
	token := env.login(t, "owner@example.com", "password12345")

	ws := dialWS(t, env, token)

	sendWS(t, ws, "teleport", "1", struct{}{})
	reply := readEnvelope(t, ws)
	if reply.Type != realtime.MessageTypeError {
		t.Fatalf("unknown type replied %+v, want error", reply)
	}
}
