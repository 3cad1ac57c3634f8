// Package mqtt is the optional event relay transport. When enabled, the
// bridge mirrors every dispatched broadcast onto folioline/events/* so
// sibling services can observe them, and a subscription on
// folioline/ingest/# lets those services inject events back into the
// realtime layer. The relay carries the same transient events the
// websocket layer does; nothing is stored or replayed.
package mqtt
