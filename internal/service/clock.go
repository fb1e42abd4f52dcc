package service

import (
	"time"

	"go.opentelemetry.io/otel"
)

// Clock returns the current instant.  Services take one so tests can pin
// time; production code passes nil and gets UTC wall time.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

var tracer = otel.Tracer("github.com/iliyamo/training-booking/internal/service")
