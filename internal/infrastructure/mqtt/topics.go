package mqtt

import "fmt"

// Topic prefixes for the folioline relay hierarchy.
//
// Outbound events mirror every dispatched broadcast so sibling services
// (mailers, search indexers) can observe them. Inbound ingest topics let
// those services inject events back into the realtime layer.
const (
	// TopicPrefixEvents is the base for outbound event mirror topics.
	TopicPrefixEvents = "folioline/events"

	// TopicPrefixIngest is the base for inbound event injection topics.
	TopicPrefixIngest = "folioline/ingest"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "folioline/system"
)

// Topics provides builders for relay topics. Using these helpers keeps
// topic naming consistent between the publisher and subscribers.
type Topics struct{}

// Event returns the outbound mirror topic for a dispatched event type.
//
// Example: folioline/events/portfolio_update
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvents, eventType)
}

// IngestAll returns the wildcard subscription covering every inbound
// ingest topic.
//
// Example: folioline/ingest/#
func (Topics) IngestAll() string {
	return TopicPrefixIngest + "/#"
}

// Ingest returns the inbound topic for a specific event type.
//
// Example: folioline/ingest/notification
func (Topics) Ingest(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixIngest, eventType)
}

// SystemStatus returns the service online/offline status topic.
//
// Example: folioline/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
