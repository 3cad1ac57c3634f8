package bridge

import (
	"github.com/ashmarby/folioline-core/internal/infrastructure/logging"
	"github.com/ashmarby/folioline-core/internal/portfolio"
	"github.com/ashmarby/folioline-core/internal/realtime"
)

// EventSink receives constructed events for fan-out. The realtime
// dispatcher satisfies it; tests substitute fakes.
type EventSink interface {
	Dispatch(event realtime.Event)
}

// EventRelay mirrors dispatched events onto an external broker. The
// mqtt client satisfies it.
type EventRelay interface {
	PublishEvent(eventType string, payload []byte) error
}

// ViewSink records view telemetry. The influxdb client satisfies it.
type ViewSink interface {
	WriteViewMetric(portfolioID string, views, uniqueVisitors int64, uniqueVisitor bool)
}

// Notifier turns committed mutations into realtime events. Every method
// is fire-and-forget: it runs after the database write has committed,
// and nothing here can fail the request that triggered it. Construction
// or delivery problems are logged and swallowed.
type Notifier struct {
	sink      EventSink
	relay     EventRelay // optional
	analytics ViewSink   // optional
	logger    *logging.Logger
}

// NewNotifier creates a notifier. relay and analytics may be nil.
func NewNotifier(sink EventSink, relay EventRelay, analytics ViewSink, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{
		sink:      sink,
		relay:     relay,
		analytics: analytics,
		logger:    logger,
	}
}

// PortfolioUpdated announces a committed portfolio edit to the
// portfolio's room.
func (n *Notifier) PortfolioUpdated(p *portfolio.Portfolio) {
	event, err := realtime.NewPortfolioUpdate(realtime.PortfolioUpdatePayload{
		PortfolioID: p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		Tagline:     p.Tagline,
		Published:   p.Published,
	})
	if err != nil {
		n.logger.Error("building portfolio_update event", "portfolio_id", p.ID, "error", err)
		return
	}
	n.emit(event)
}

// SectionChanged announces a committed section edit: first the granular
// section_changed, then a portfolio_update so coarse subscribers refresh.
// The two events are emitted in that order on the calling goroutine.
func (n *Notifier) SectionChanged(p *portfolio.Portfolio, s *portfolio.Section) {
	event, err := realtime.NewSectionChanged(realtime.SectionChangedPayload{
		PortfolioID: s.PortfolioID,
		SectionID:   s.ID,
		Kind:        s.Kind,
		Title:       s.Title,
		Position:    s.Position,
	})
	if err != nil {
		n.logger.Error("building section_changed event", "section_id", s.ID, "error", err)
		return
	}
	n.emit(event)

	n.PortfolioUpdated(p)
}

// AnalyticsIncremented announces committed view counters to the
// portfolio's room and records the sample in the telemetry sink.
func (n *Notifier) AnalyticsIncremented(a *portfolio.Analytics, uniqueVisitor bool) {
	if n.analytics != nil {
		n.analytics.WriteViewMetric(a.PortfolioID, a.Views, a.UniqueVisitors, uniqueVisitor)
	}

	event, err := realtime.NewAnalyticsUpdate(realtime.AnalyticsUpdatePayload{
		PortfolioID:    a.PortfolioID,
		Views:          a.Views,
		UniqueVisitors: a.UniqueVisitors,
	})
	if err != nil {
		n.logger.Error("building analytics_update event", "portfolio_id", a.PortfolioID, "error", err)
		return
	}
	n.emit(event)
}

// ContactFormReceived alerts the portfolio owner about a committed
// contact-form submission. Exactly one notification goes to the owner's
// personal room; the portfolio room hears nothing, since submissions are
// private to the owner.
func (n *Notifier) ContactFormReceived(ownerID string, m *portfolio.ContactMessage) {
	event, err := realtime.NewNotification(ownerID, realtime.NotificationPayload{
		Kind:        "contact_form_submitted",
		Title:       "New contact message from " + m.SenderName,
		Body:        m.Body,
		PortfolioID: m.PortfolioID,
	})
	if err != nil {
		n.logger.Error("building contact notification", "portfolio_id", m.PortfolioID, "error", err)
		return
	}
	n.emit(event)
}

// TestimonialAdded announces a committed testimonial to the portfolio's
// room and notifies the owner personally.
func (n *Notifier) TestimonialAdded(ownerID string, t *portfolio.Testimonial) {
	event, err := realtime.NewTestimonialAdded(realtime.TestimonialAddedPayload{
		PortfolioID: t.PortfolioID,
		Testimonial: t.ID,
		AuthorName:  t.AuthorName,
		Quote:       t.Quote,
	})
	if err != nil {
		n.logger.Error("building testimonial_added event", "testimonial_id", t.ID, "error", err)
		return
	}
	n.emit(event)

	alert, err := realtime.NewNotification(ownerID, realtime.NotificationPayload{
		Kind:        "testimonial_added",
		Title:       t.AuthorName + " left a testimonial",
		Body:        t.Quote,
		PortfolioID: t.PortfolioID,
	})
	if err != nil {
		n.logger.Error("building testimonial notification", "testimonial_id", t.ID, "error", err)
		return
	}
	n.emit(alert)
}

// Notify emits an arbitrary closed-set event to an explicit room. Used
// by the relay ingest path; the type/room pairing is validated at
// construction.
func (n *Notifier) Notify(eventType realtime.Type, roomID string, payload any) {
	event, err := realtime.New(eventType, roomID, payload)
	if err != nil {
		n.logger.Error("building relayed event",
			"event_type", eventType,
			"room_id", roomID,
			"error", err)
		return
	}
	n.emit(event)
}

// emit fans the event out locally and mirrors it onto the relay.
func (n *Notifier) emit(event realtime.Event) {
	n.sink.Dispatch(event)

	if n.relay == nil {
		return
	}

	data, err := event.Encode()
	if err != nil {
		n.logger.Error("encoding event for relay", "event_type", event.Type, "error", err)
		return
	}
	if err := n.relay.PublishEvent(string(event.Type), data); err != nil {
		n.logger.Warn("relay mirror failed",
			"event_type", event.Type,
			"room_id", event.Room,
			"error", err)
	}
}
