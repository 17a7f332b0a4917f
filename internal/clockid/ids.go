package clockid

import "github.com/google/uuid"

// NewSessionID mints an opaque session identifier.
func NewSessionID() string { return uuid.NewString() }

// NewID mints a generic opaque identifier (bookings, slots, interviews,
// turns that need a durable id beyond their dense sequence number).
func NewID() string { return uuid.NewString() }

// NewNonce mints a random value used once inside a signed access token.
func NewNonce() string { return uuid.NewString() }
