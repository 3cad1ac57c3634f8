// Package realtime implements the connection registry, room membership
// model and event fan-out for live websocket sessions.
//
// Rooms are named channels with canonical IDs: "user:<user_id>" is a
// personal room every connection auto-joins at registration and can
// never leave, "portfolio:<portfolio_id>" is a resource room joined and
// left explicitly. Events are transient typed broadcasts; they are
// encoded once per dispatch and offered to each member's bounded queue
// without blocking, so one slow consumer never stalls the room.
package realtime
