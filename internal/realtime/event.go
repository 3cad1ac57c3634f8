package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type identifies one of the closed set of broadcast event kinds.
type Type string

// The closed set of event types. Personal types are only ever dispatched
// into "user:" rooms; resource types only into "portfolio:" rooms.
const (
	TypeNotification         Type = "notification"
	TypePortfolioUpdate      Type = "portfolio_update"
	TypeSectionChanged       Type = "section_changed"
	TypeAnalyticsUpdate      Type = "analytics_update"
	TypeContactFormSubmitted Type = "contact_form_submitted"
	TypeTestimonialAdded     Type = "testimonial_added"
)

// ErrUnknownEventType indicates an event type outside the closed set.
var ErrUnknownEventType = errors.New("unknown event type")

// ErrEventRoomMismatch indicates an event targeted at a room family its
// type is not allowed to reach (e.g. a notification into a portfolio room).
var ErrEventRoomMismatch = errors.New("event type not valid for target room")

// personalTypes are only deliverable to personal rooms.
var personalTypes = map[Type]bool{
	TypeNotification:         true,
	TypeContactFormSubmitted: true,
}

// knownTypes is the full closed set.
var knownTypes = map[Type]bool{
	TypeNotification:         true,
	TypePortfolioUpdate:      true,
	TypeSectionChanged:       true,
	TypeAnalyticsUpdate:      true,
	TypeContactFormSubmitted: true,
	TypeTestimonialAdded:     true,
}

// Event is a transient broadcast unit. It exists only for the duration of
// a dispatch call and is never persisted or replayed.
type Event struct {
	Type      Type      `json:"event_type"`
	Room      string    `json:"room_id"`
	Payload   any       `json:"payload"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Fixed payload shapes, one per event type. The bridge constructs these
// from committed resources; they are checked at event construction.

// NotificationPayload is a personal alert delivered to a user's own room.
type NotificationPayload struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Body        string `json:"body,omitempty"`
	PortfolioID string `json:"portfolio_id,omitempty"`
}

// PortfolioUpdatePayload carries the portfolio fields after a committed edit.
type PortfolioUpdatePayload struct {
	PortfolioID string `json:"portfolio_id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Tagline     string `json:"tagline,omitempty"`
	Published   bool   `json:"published"`
}

// SectionChangedPayload carries a committed section change.
type SectionChangedPayload struct {
	PortfolioID string `json:"portfolio_id"`
	SectionID   string `json:"section_id"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Position    int    `json:"position"`
}

// AnalyticsUpdatePayload carries the counters after an increment committed.
type AnalyticsUpdatePayload struct {
	PortfolioID    string `json:"portfolio_id"`
	Views          int64  `json:"views"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// ContactFormSubmittedPayload carries a committed contact-form submission
// to the portfolio owner's personal room.
type ContactFormSubmittedPayload struct {
	PortfolioID string `json:"portfolio_id"`
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	Body        string `json:"body"`
}

// TestimonialAddedPayload carries a committed testimonial.
type TestimonialAddedPayload struct {
	PortfolioID string `json:"portfolio_id"`
	Testimonial string `json:"testimonial_id"`
	AuthorName  string `json:"author_name"`
	Quote       string `json:"quote"`
}

// New builds an event of an arbitrary closed-set type for an explicit room.
// It enforces the type/room-family pairing; this is the validation behind
// the generic notify contract used by the REST layer and the relay.
func New(eventType Type, roomID string, payload any) (Event, error) {
	if !knownTypes[eventType] {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	kind, _, err := ParseRoom(roomID)
	if err != nil {
		return Event{}, err
	}

	if personalTypes[eventType] != (kind == RoomKindUser) {
		return Event{}, fmt.Errorf("%w: %s into %s", ErrEventRoomMismatch, eventType, roomID)
	}

	return Event{
		Type:      eventType,
		Room:      roomID,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	}, nil
}

// NewNotification builds a personal notification for a user's own room.
func NewNotification(userID string, payload NotificationPayload) (Event, error) {
	return New(TypeNotification, UserRoom(userID), payload)
}

// NewPortfolioUpdate builds a portfolio_update for the portfolio's room.
func NewPortfolioUpdate(payload PortfolioUpdatePayload) (Event, error) {
	return New(TypePortfolioUpdate, PortfolioRoom(payload.PortfolioID), payload)
}

// NewSectionChanged builds a section_changed for the portfolio's room.
func NewSectionChanged(payload SectionChangedPayload) (Event, error) {
	return New(TypeSectionChanged, PortfolioRoom(payload.PortfolioID), payload)
}

// NewAnalyticsUpdate builds an analytics_update for the portfolio's room.
func NewAnalyticsUpdate(payload AnalyticsUpdatePayload) (Event, error) {
	return New(TypeAnalyticsUpdate, PortfolioRoom(payload.PortfolioID), payload)
}

// NewContactFormSubmitted builds a contact_form_submitted for the owner's
// personal room.
func NewContactFormSubmitted(ownerID string, payload ContactFormSubmittedPayload) (Event, error) {
	return New(TypeContactFormSubmitted, UserRoom(ownerID), payload)
}

// NewTestimonialAdded builds a testimonial_added for the portfolio's room.
func NewTestimonialAdded(payload TestimonialAddedPayload) (Event, error) {
	return New(TypeTestimonialAdded, PortfolioRoom(payload.PortfolioID), payload)
}

// Envelope is the wire framing for server-to-client messages.
type Envelope struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType Type   `json:"event_type,omitempty"`
	RoomID    string `json:"room_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Wire message type discriminators shared by the dispatcher and transport.
const (
	MessageTypeEvent    = "event"
	MessageTypeResponse = "response"
	MessageTypeError    = "error"
)

// Encode marshals the event into its wire envelope.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(Envelope{
		Type:      MessageTypeEvent,
		EventType: e.Type,
		RoomID:    e.Room,
		Timestamp: e.EmittedAt.Format(time.RFC3339),
		Payload:   e.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding event: %w", err)
	}
	return data, nil
}
