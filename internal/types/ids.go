package types

import (
	"time"

	"github.com/google/uuid"
)

// NewRouteID generates a UUIDv7 route identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRouteID() RouteID {
	return RouteID(uuid.Must(uuid.NewV7()).String())
}

// NewRecordID generates a UUIDv7 identifier for records that arrive without one.
func NewRecordID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseRouteID validates and converts a string to RouteID.
func ParseRouteID(s string) (RouteID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RouteID(s), nil
}

// RouteIDTime extracts the registration time embedded in a UUIDv7 route ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func RouteIDTime(id RouteID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
