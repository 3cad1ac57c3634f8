package realtime

import (
	"errors"
	"fmt"
	"strings"
)

// RoomKind distinguishes the two canonical room families.
type RoomKind string

const (
	// RoomKindUser is a personal room ("user:<user_id>"). Every connection
	// is joined to its identity's personal room for its whole lifetime.
	RoomKindUser RoomKind = "user"

	// RoomKindPortfolio is a resource room ("portfolio:<portfolio_id>")
	// joined by explicit client request.
	RoomKindPortfolio RoomKind = "portfolio"
)

// Room membership errors. These are client-visible: a bad join/leave is
// reported on the connection without closing it.
var (
	ErrMalformedRoom     = errors.New("malformed room id")
	ErrPersonalRoomLeave = errors.New("personal room cannot be left")
	ErrUnknownConnection = errors.New("unknown connection")
)

// UserRoom returns the canonical personal room ID for a user.
func UserRoom(userID string) string {
	return string(RoomKindUser) + ":" + userID
}

// PortfolioRoom returns the canonical resource room ID for a portfolio.
func PortfolioRoom(portfolioID string) string {
	return string(RoomKindPortfolio) + ":" + portfolioID
}

// ParseRoom validates a room ID and splits it into kind and subject.
// Only the two canonical forms are accepted; anything else is malformed.
func ParseRoom(roomID string) (RoomKind, string, error) {
	kind, subject, found := strings.Cut(roomID, ":")
	if !found || subject == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedRoom, roomID)
	}

	switch RoomKind(kind) {
	case RoomKindUser, RoomKindPortfolio:
		return RoomKind(kind), subject, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrMalformedRoom, roomID)
	}
}
