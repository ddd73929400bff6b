package sessions

import (
	"context"
	"errors"
)

type storeKey struct{}

// ErrNoProvider is the panic value when a Store is requested from a context
// that was never given one. That is a wiring bug, not a runtime condition.
var ErrNoProvider = errors.New("sessions: store accessed outside of its provider")

// WithStore returns a child context carrying s.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// Lookup returns the provided Store, if any.
func Lookup(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(storeKey{}).(*Store)
	return s, ok && s != nil
}

// FromContext returns the provided Store and panics with ErrNoProvider when
// there is none.
func FromContext(ctx context.Context) *Store {
	s, ok := Lookup(ctx)
	if !ok {
		panic(ErrNoProvider)
	}
	return s
}
