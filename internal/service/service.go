// Package service contains the business rules of Accomplo.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces ownership, orchestrates
//	Repository (data layer)  → reads/writes one of the storage backends
//
// Services accept primitives and the caller's user ID, never *http.Request,
// and return apperror kinds the handlers translate into status codes. They
// depend on repository interfaces only, so tests inject in-memory fakes.
package service

import "time"

// Clock returns the current instant. Services take one so tests can pin
// "now" to a Wednesday morning or a Sunday evening.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
