// Package shutdown provides the dataflow-wide cancellation token every
// built operator owns a reference to: dropping it signals every derived
// operator to discard pending work at its next activation.
package shutdown

import "sync/atomic"

// Token is a cooperative cancellation signal. It is cheap to copy (holds
// only a pointer) and safe for concurrent use by multiple worker
// goroutines, each polling Cancelled() at its own activation boundaries
// rather than blocking on a channel close.
type Token struct {
	cancelled *atomic.Bool
}

// New returns a fresh, live token.
func New() Token {
	return Token{cancelled: new(atomic.Bool)}
}

// Cancel trips the token. Idempotent.
func (t Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t Token) Cancelled() bool {
	return t.cancelled.Load()
}
