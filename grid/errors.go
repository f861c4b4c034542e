package grid

import "errors"

// Sentinel errors of the engine. Venue adapter errors are wrapped with
// ErrVenueUnavailable or ErrOrderRejected so callers can branch on them
// with errors.Is.
var (
	// ErrInvalidConfiguration marks bad sizing or guard inputs. The
	// offending operation fails; nothing is retried.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrVenueUnavailable marks a transient venue/network failure. The
	// tick is abandoned and retried on the next loop iteration.
	ErrVenueUnavailable = errors.New("venue unavailable")

	// ErrOrderRejected marks a submission the venue declined. The layer
	// stays unplaced and is retried on the next build.
	ErrOrderRejected = errors.New("order rejected")
)
