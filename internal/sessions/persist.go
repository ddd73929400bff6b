package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uikit-demo/session-service/internal/models"
	"github.com/uikit-demo/session-service/internal/storage"
	"github.com/uikit-demo/session-service/pkg/logger"
	"github.com/uikit-demo/session-service/pkg/metrics"
)

// Outcome classifies the last read of the persisted record. Everything but
// OutcomeFound means "no session" to callers; the distinction is kept for
// diagnostics only.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeFound
	OutcomeMalformed
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "none"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Diagnostics exposes what the public API hides: whether "logged out"
// came from an empty store or a failing one.
type Diagnostics struct {
	Backend         string  `json:"backend"`
	LastRead        Outcome `json:"lastRead"`
	LastError       string  `json:"lastError,omitempty"`
	StorageFailures int     `json:"storageFailures"`
}

var errMalformed = errors.New("persisted session is malformed")

func (s *Store) Diagnostics() Diagnostics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diag
}

func (s *Store) load(ctx context.Context) (*models.User, Outcome) {
	var raw string
	err := guard("get", func() error {
		var gerr error
		raw, gerr = s.storage.Get(ctx, s.opts.StorageKey)
		return gerr
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.recordRead(OutcomeNone, nil)
		return nil, OutcomeNone
	case err != nil:
		s.storageFailed("get", err)
		s.recordRead(OutcomeUnavailable, err)
		return nil, OutcomeUnavailable
	}

	u, err := decodeUser(raw)
	if err != nil {
		logger.Warnf("ignoring persisted session under %q: %v", s.opts.StorageKey, err)
		s.recordRead(OutcomeMalformed, err)
		return nil, OutcomeMalformed
	}
	s.recordRead(OutcomeFound, nil)
	return u, OutcomeFound
}

func (s *Store) save(ctx context.Context, u *models.User) {
	b, err := json.Marshal(u)
	if err != nil {
		s.storageFailed("encode", err)
		return
	}
	if err := guard("set", func() error { return s.storage.Set(ctx, s.opts.StorageKey, string(b)) }); err != nil {
		s.storageFailed("set", err)
	}
}

func (s *Store) remove(ctx context.Context) {
	if err := guard("remove", func() error { return s.storage.Remove(ctx, s.opts.StorageKey) }); err != nil {
		s.storageFailed("remove", err)
	}
}

func (s *Store) recordRead(o Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diag.LastRead = o
	if err != nil {
		s.diag.LastError = err.Error()
	} else {
		s.diag.LastError = ""
	}
}

func (s *Store) storageFailed(op string, err error) {
	backend := s.storage.Backend()
	logger.Warnf("session storage %s failed (backend=%s): %v", op, backend, err)
	metrics.StorageErrors.WithLabelValues(op, backend).Inc()
	s.mu.Lock()
	s.diag.StorageFailures++
	s.diag.LastError = err.Error()
	s.mu.Unlock()
}

func decodeUser(raw string) (*models.User, error) {
	var u *models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if u == nil {
		return nil, errMalformed
	}
	return u, nil
}

// guard turns a panicking backend into an ordinary error.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("storage %s panicked: %v", op, r)
		}
	}()
	return fn()
}
