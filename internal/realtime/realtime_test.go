package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ashmarby/folioline-core/internal/identity"
	"github.com/ashmarby/folioline-core/internal/infrastructure/logging"
)

func testIdentity(userID string) identity.Identity {
	return identity.Identity{UserID: userID, Email: userID + "@example.com", Name: "Test " + userID}
}

func testConn(userID string) *Conn {
	return NewConn(testIdentity(userID), 8)
}

// ─── Room IDs ───────────────────────────────────────────────────────

func TestParseRoom(t *testing.T) {
	tests := []struct {
		name     string
		roomID   string
		wantKind RoomKind
		wantID   string
		wantErr  bool
	}{
		{"user room", "user:usr-1a2b3c4d", RoomKindUser, "usr-1a2b3c4d", false},
		{"portfolio room", "portfolio:pf-9f8e7d6c", RoomKindPortfolio, "pf-9f8e7d6c", false},
		{"missing separator", "useralice", "", "", true},
		{"unknown prefix", "group:abc", "", "", true},
		{"empty resource id", "user:", "", "", true},
		{"empty string", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, id, err := ParseRoom(tt.roomID)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedRoom) {
					t.Fatalf("ParseRoom(%q) error = %v, want ErrMalformedRoom", tt.roomID, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRoom(%q) unexpected error: %v", tt.roomID, err)
			}
			if kind != tt.wantKind || id != tt.wantID {
				t.Errorf("ParseRoom(%q) = (%q, %q), want (%q, %q)", tt.roomID, kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestRoomConstructorsRoundTrip(t *testing.T) {
	if got := UserRoom("usr-1"); got != "user:usr-1" {
		t.Errorf("UserRoom = %q", got)
	}
	if got := PortfolioRoom("pf-1"); got != "portfolio:pf-1" {
		t.Errorf("PortfolioRoom = %q", got)
	}
}

// ─── Event construction ─────────────────────────────────────────────

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New("made_up_event", UserRoom("usr-1"), nil)
	if !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("error = %v, want ErrUnknownEventType", err)
	}
}

func TestNewEnforcesRoomFamily(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		roomID    string
		wantErr   bool
	}{
		{"notification to user room", TypeNotification, UserRoom("usr-1"), false},
		{"notification to portfolio room", TypeNotification, PortfolioRoom("pf-1"), true},
		{"contact form to user room", TypeContactFormSubmitted, UserRoom("usr-1"), false},
		{"contact form to portfolio room", TypeContactFormSubmitted, PortfolioRoom("pf-1"), true},
		{"portfolio update to portfolio room", TypePortfolioUpdate, PortfolioRoom("pf-1"), false},
		{"portfolio update to user room", TypePortfolioUpdate, UserRoom("usr-1"), true},
		{"analytics to portfolio room", TypeAnalyticsUpdate, PortfolioRoom("pf-1"), false},
		{"testimonial to user room", TypeTestimonialAdded, UserRoom("usr-1"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.eventType, tt.roomID, nil)
			if tt.wantErr {
				if !errors.Is(err, ErrEventRoomMismatch) {
					t.Fatalf("error = %v, want ErrEventRoomMismatch", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEventEncode(t *testing.T) {
	event, err := NewPortfolioUpdate(PortfolioUpdatePayload{
		PortfolioID: "pf-1",
		Title:       "My Work",
		Slug:        "my-work",
		Published:   true,
	})
	if err != nil {
		t.Fatalf("NewPortfolioUpdate: %v", err)
	}
	if event.EmittedAt.IsZero() {
		t.Error("EmittedAt not stamped")
	}

	data, err := event.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var env struct {
		Type      string                 `json:"type"`
		EventType string                 `json:"event_type"`
		RoomID    string                 `json:"room_id"`
		Timestamp string                 `json:"timestamp"`
		Payload   map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != MessageTypeEvent {
		t.Errorf("type = %q, want %q", env.Type, MessageTypeEvent)
	}
	if env.EventType != string(TypePortfolioUpdate) {
		t.Errorf("event_type = %q", env.EventType)
	}
	if env.RoomID != "portfolio:pf-1" {
		t.Errorf("room_id = %q", env.RoomID)
	}
	if env.Timestamp == "" {
		t.Error("timestamp missing")
	}
	if env.Payload["title"] != "My Work" {
		t.Errorf("payload title = %v", env.Payload["title"])
	}
}

// ─── Registry ───────────────────────────────────────────────────────

func TestRegisterAutoJoinsPersonalRoom(t *testing.T) {
	reg := NewRegistry()
	conn := testConn("usr-1")
	reg.Register(conn)

	if !reg.InRoom(conn.ID(), UserRoom("usr-1")) {
		t.Fatal("connection not in its personal room after Register")
	}
	if got := reg.ConnectionCount(); got != 1 {
		t.Errorf("ConnectionCount = %d, want 1", got)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	conn := testConn("usr-1")
	reg.Register(conn)

	room := PortfolioRoom("pf-1")
	for i := 0; i < 3; i++ {
		if err := reg.Join(conn.ID(), room); err != nil {
			t.Fatalf("Join #%d: %v", i+1, err)
		}
	}

	if got := len(reg.MembersOf(room)); got != 1 {
		t.Errorf("room has %d members after repeated joins, want 1", got)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	conn := testConn("usr-1")
	reg.Register(conn)

	room := PortfolioRoom("pf-1")
	if err := reg.Join(conn.ID(), room); err != nil {
		t.Fatalf("Join: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := reg.Leave(conn.ID(), room); err != nil {
			t.Fatalf("Leave #%d: %v", i+1, err)
		}
	}

	if reg.InRoom(conn.ID(), room) {
		t.Error("connection still in room after Leave")
	}
}

func TestLeavePersonalRoomRejected(t *testing.T) {
	reg := NewRegistry()
	conn := testConn("usr-1")
	reg.Register(conn)

	err := reg.Leave(conn.ID(), UserRoom("usr-1"))
	if !errors.Is(err, ErrPersonalRoomLeave) {
		t.Fatalf("error = %v, want ErrPersonalRoomLeave", err)
	}
	if !reg.InRoom(conn.ID(), UserRoom("usr-1")) {
		t.Error("connection removed from personal room despite rejection")
	}
}

func TestLeaveAnotherUsersPersonalRoomAllowed(t *testing.T) {
	// A connection somehow in someone else's user room may leave it;
	// only its own personal room is pinned.
	reg := NewRegistry()
	conn := testConn("usr-1")
	reg.Register(conn)

	if err := reg.Join(conn.ID(), UserRoom("usr-2")); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := reg.Leave(conn.ID(), UserRoom("usr-2")); err != nil {
		t.Fatalf("Leave: %v", err)
	}
}

func TestJoinUnknownConnection(t *testing.T) {
	reg := NewRegistry()
	err := reg.Join("conn-missing", PortfolioRoom("pf-1"))
	if !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("error = %v, want ErrUnknownConnection", err)
	}
}

func TestJoinMalformedRoom(t *testing.T) {
	reg := NewRegistry()
	conn := testConn("usr-1")
	reg.Register(conn)

	err := reg.Join(conn.ID(), "not-a-room")
	if !errors.Is(err, ErrMalformedRoom) {
		t.Fatalf("error = %v, want ErrMalformedRoom", err)
	}
}

func TestDeregisterRemovesFromAllRooms(t *testing.T) {
	reg := NewRegistry()
	conn := testConn("usr-1")
	reg.Register(conn)

	roomA := PortfolioRoom("pf-1")
	roomB := PortfolioRoom("pf-2")
	if err := reg.Join(conn.ID(), roomA); err != nil {
		t.Fatalf("Join roomA: %v", err)
	}
	if err := reg.Join(conn.ID(), roomB); err != nil {
		t.Fatalf("Join roomB: %v", err)
	}

	reg.Deregister(conn.ID())

	for _, room := range []string{roomA, roomB, UserRoom("usr-1")} {
		if len(reg.MembersOf(room)) != 0 {
			t.Errorf("room %s still has members after Deregister", room)
		}
	}
	if got := reg.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount = %d, want 0", got)
	}

	// The registry closed the outbound queue.
	if _, open := <-conn.Outbound(); open {
		t.Error("outbound channel still open after Deregister")
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	conn := testConn("usr-1")
	reg.Register(conn)

	reg.Deregister(conn.ID())
	reg.Deregister(conn.ID()) // must not panic on double close
}

func TestMembersOfIsSnapshot(t *testing.T) {
	reg := NewRegistry()
	alice := testConn("usr-1")
	bob := testConn("usr-2")
	reg.Register(alice)
	reg.Register(bob)

	room := PortfolioRoom("pf-1")
	if err := reg.Join(alice.ID(), room); err != nil {
		t.Fatalf("Join alice: %v", err)
	}
	if err := reg.Join(bob.ID(), room); err != nil {
		t.Fatalf("Join bob: %v", err)
	}

	snapshot := reg.MembersOf(room)
	if len(snapshot) != 2 {
		t.Fatalf("snapshot has %d members, want 2", len(snapshot))
	}

	// Mutating membership afterwards does not alter the snapshot.
	reg.Deregister(bob.ID())
	if len(snapshot) != 2 {
		t.Errorf("snapshot changed after Deregister: %d members", len(snapshot))
	}
	if got := len(reg.MembersOf(room)); got != 1 {
		t.Errorf("live membership = %d, want 1", got)
	}
}

func TestRoomsReverseIndex(t *testing.T) {
	reg := NewRegistry()
	conn := testConn("usr-1")
	reg.Register(conn)
	if err := reg.Join(conn.ID(), PortfolioRoom("pf-1")); err != nil {
		t.Fatalf("Join: %v", err)
	}

	rooms := reg.Rooms(conn.ID())
	if len(rooms) != 2 {
		t.Fatalf("Rooms = %v, want personal + portfolio", rooms)
	}
}

func TestCloseAll(t *testing.T) {
	reg := NewRegistry()
	for _, user := range []string{"usr-1", "usr-2", "usr-3"} {
		reg.Register(testConn(user))
	}

	reg.CloseAll()
	if got := reg.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount = %d after CloseAll, want 0", got)
	}
}

// ─── Conn send semantics ────────────────────────────────────────────

func TestTrySendDropsWhenBufferFull(t *testing.T) {
	conn := NewConn(testIdentity("usr-1"), 2)

	if !conn.TrySend([]byte("a")) || !conn.TrySend([]byte("b")) {
		t.Fatal("sends within capacity failed")
	}
	if conn.TrySend([]byte("c")) {
		t.Error("TrySend succeeded on full buffer")
	}

	// Earlier messages are intact; only the overflow was dropped.
	if got := string(<-conn.Outbound()); got != "a" {
		t.Errorf("first message = %q", got)
	}
	if got := string(<-conn.Outbound()); got != "b" {
		t.Errorf("second message = %q", got)
	}
}

func TestTrySendAfterCloseReportsFalse(t *testing.T) {
	reg := NewRegistry()
	conn := testConn("usr-1")
	reg.Register(conn)
	reg.Deregister(conn.ID())

	if conn.TrySend([]byte("late")) {
		t.Error("TrySend succeeded on closed connection")
	}
}

// ─── Dispatcher ─────────────────────────────────────────────────────

type staticMembers struct {
	conns []*Conn
}

func (s *staticMembers) MembersOf(string) []*Conn { return s.conns }

func TestDispatchFansOutToAllMembers(t *testing.T) {
	alice := NewConn(testIdentity("usr-1"), 4)
	bob := NewConn(testIdentity("usr-2"), 4)
	d := NewDispatcher(&staticMembers{conns: []*Conn{alice, bob}}, logging.Default())

	event, err := NewPortfolioUpdate(PortfolioUpdatePayload{PortfolioID: "pf-1", Title: "T", Slug: "t"})
	if err != nil {
		t.Fatalf("NewPortfolioUpdate: %v", err)
	}
	d.Dispatch(event)

	for _, conn := range []*Conn{alice, bob} {
		select {
		case msg := <-conn.Outbound():
			var env Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if env.EventType != TypePortfolioUpdate {
				t.Errorf("event_type = %q", env.EventType)
			}
		default:
			t.Errorf("connection %s received nothing", conn.ID())
		}
	}
}

func TestDispatchSkipsNonMembers(t *testing.T) {
	reg := NewRegistry()
	member := testConn("usr-1")
	outsider := testConn("usr-2")
	reg.Register(member)
	reg.Register(outsider)

	room := PortfolioRoom("pf-1")
	if err := reg.Join(member.ID(), room); err != nil {
		t.Fatalf("Join: %v", err)
	}

	d := NewDispatcher(reg, logging.Default())
	event, err := NewPortfolioUpdate(PortfolioUpdatePayload{PortfolioID: "pf-1", Title: "T", Slug: "t"})
	if err != nil {
		t.Fatalf("NewPortfolioUpdate: %v", err)
	}
	d.Dispatch(event)

	select {
	case <-member.Outbound():
	default:
		t.Error("room member received nothing")
	}
	select {
	case msg := <-outsider.Outbound():
		t.Errorf("connection outside the room received %s", msg)
	default:
	}
}

func TestDispatchEmptyRoomIsNoOp(t *testing.T) {
	d := NewDispatcher(&staticMembers{}, logging.Default())
	event, err := NewPortfolioUpdate(PortfolioUpdatePayload{PortfolioID: "pf-1", Title: "T", Slug: "t"})
	if err != nil {
		t.Fatalf("NewPortfolioUpdate: %v", err)
	}
	d.Dispatch(event) // must not panic or block
}

func TestDispatchSlowConsumerDoesNotStallRoom(t *testing.T) {
	slow := NewConn(testIdentity("usr-1"), 1)
	fast := NewConn(testIdentity("usr-2"), 4)
	slow.TrySend([]byte("backlog")) // fill the slow consumer's buffer

	d := NewDispatcher(&staticMembers{conns: []*Conn{slow, fast}}, logging.Default())
	event, err := NewPortfolioUpdate(PortfolioUpdatePayload{PortfolioID: "pf-1", Title: "T", Slug: "t"})
	if err != nil {
		t.Fatalf("NewPortfolioUpdate: %v", err)
	}
	d.Dispatch(event)

	select {
	case <-fast.Outbound():
	default:
		t.Error("fast consumer received nothing while slow consumer was full")
	}
}

func TestDispatchConcurrentWithDeregister(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, logging.Default())
	room := PortfolioRoom("pf-1")

	conns := make([]*Conn, 0, 20)
	for i := 0; i < 20; i++ {
		conn := testConn("usr-load")
		reg.Register(conn)
		if err := reg.Join(conn.ID(), room); err != nil {
			t.Fatalf("Join: %v", err)
		}
		conns = append(conns, conn)
	}

	event, err := NewPortfolioUpdate(PortfolioUpdatePayload{PortfolioID: "pf-1", Title: "T", Slug: "t"})
	if err != nil {
		t.Fatalf("NewPortfolioUpdate: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			d.Dispatch(event)
		}
	}()
	go func() {
		defer wg.Done()
		for _, conn := range conns {
			reg.Deregister(conn.ID())
		}
	}()
	wg.Wait()

	if got := reg.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount = %d after concurrent teardown, want 0", got)
	}
}
