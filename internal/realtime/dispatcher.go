package realtime

import (
	"github.com/ashmarby/folioline-core/internal/infrastructure/logging"
)

// MemberSource yields the current members of a room. The registry
// satisfies it; tests substitute fakes.
type MemberSource interface {
	MembersOf(roomID string) []*Conn
}

// Dispatcher fans events out to room members. It is fire-and-forget:
// encoding failures and slow consumers are logged and swallowed, never
// surfaced to the mutation path that triggered the event.
type Dispatcher struct {
	members MemberSource
	logger  *logging.Logger
}

// NewDispatcher creates a dispatcher over the given member source.
func NewDispatcher(members MemberSource, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{members: members, logger: logger}
}

// Dispatch encodes the event once and offers it to every current member
// of its target room sequentially. A member whose buffer is full has the
// message dropped for that member only; the rest of the room still
// receives it. Dispatching to an empty room is a no-op.
func (d *Dispatcher) Dispatch(event Event) {
	data, err := event.Encode()
	if err != nil {
		d.logger.Error("event encode failed",
			"event_type", event.Type,
			"room_id", event.Room,
			"error", err)
		return
	}

	members := d.members.MembersOf(event.Room)
	if len(members) == 0 {
		return
	}

	dropped := 0
	for _, conn := range members {
		if !conn.TrySend(data) {
			dropped++
			d.logger.Warn("event dropped for slow consumer",
				"event_type", event.Type,
				"room_id", event.Room,
				"conn_id", conn.ID())
		}
	}

	d.logger.Debug("event dispatched",
		"event_type", event.Type,
		"room_id", event.Room,
		"recipients", len(members)-dropped,
		"dropped", dropped)
}
