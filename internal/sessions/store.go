// Package sessions owns the client session: who is logged in, how that
// survives a restart, and the values derived from it.
package sessions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/uikit-demo/session-service/internal/models"
	"github.com/uikit-demo/session-service/internal/storage"
	"github.com/uikit-demo/session-service/internal/users"
	"github.com/uikit-demo/session-service/pkg/logger"
	"github.com/uikit-demo/session-service/pkg/metrics"
)

const (
	DefaultStorageKey = "user"
	DefaultUserID     = "1"
	DefaultLoginDelay = time.Second
)

// MergePolicy decides whether a stored profile is carried into a new login.
type MergePolicy int

const (
	// MergeAlways keeps the stored profile on every login, whatever the email.
	MergeAlways MergePolicy = iota
	// MergeSameEmail keeps the stored profile only when the email matches.
	MergeSameEmail
)

// ParseMergePolicy accepts "always" and "same-email".
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "always":
		return MergeAlways, nil
	case "same-email":
		return MergeSameEmail, nil
	}
	return MergeAlways, fmt.Errorf("unknown merge policy %q", s)
}

// Options configures a Store. LoginDelay is used as given (zero disables it);
// the remaining zero values fall back to defaults.
type Options struct {
	StorageKey     string
	UserID         string
	LoginDelay     time.Duration
	MergePolicy    MergePolicy
	AvatarTemplate string
	Authenticator  Authenticator
	Clock          func() time.Time
}

// State is a consistent snapshot of the public session state.
type State struct {
	User            *models.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	IsLoading       bool         `json:"isLoading"`
}

// Store is the single authority for the logged-in user. It writes every
// change through to storage and never surfaces storage failures to callers.
//
// A new Store reports IsLoading until Restore has run.
type Store struct {
	storage storage.Storage
	opts    Options

	// commitMu serializes read-merge-write sequences against storage.
	commitMu sync.Mutex

	mu        sync.RWMutex
	user      *models.User
	restoring bool
	inflight  int
	diag      Diagnostics
}

func NewStore(st storage.Storage, opts Options) *Store {
	if opts.StorageKey == "" {
		opts.StorageKey = DefaultStorageKey
	}
	if opts.UserID == "" {
		opts.UserID = DefaultUserID
	}
	if opts.Authenticator == nil {
		opts.Authenticator = AllowAll
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.AvatarTemplate == "" {
		opts.AvatarTemplate = users.DefaultAvatarTemplate
	}
	return &Store{
		storage:   st,
		opts:      opts,
		restoring: true,
		diag:      Diagnostics{Backend: st.Backend()},
	}
}

// Restore resumes a persisted session: the stored record gets a fresh
// LastLogin and is written back. Absent, unreadable or malformed data
// leaves the store logged out.
func (s *Store) Restore(ctx context.Context) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	defer s.setRestoring(false)

	u, outcome := s.load(ctx)
	metrics.SessionRestores.WithLabelValues(outcome.String()).Inc()
	if outcome != OutcomeFound {
		logger.Debugf("session restore: %s", outcome)
		return
	}
	u.LastLogin = s.now()
	s.setUser(u)
	s.save(ctx, u)
	logger.Infof("session restored for %s", u.Email)
}

// Login simulates an authentication round trip. After LoginDelay the
// Authenticator is consulted; a rejection is returned as is. Otherwise the
// stored profile is merged (or a new one is created), made current and
// persisted.
//
// A failed login, whether rejected or cancelled during the delay, leaves the
// store logged out. Once the delay has passed a successful commit always
// completes. Overlapping logins resolve last-write-wins.
func (s *Store) Login(ctx context.Context, email, password string) error {
	start := time.Now()
	s.beginLogin()
	defer s.endLogin()
	defer func() { metrics.LoginLatency.Observe(time.Since(start).Seconds()) }()

	if err := sleep(ctx, s.opts.LoginDelay); err != nil {
		metrics.SessionLogins.WithLabelValues("canceled").Inc()
		s.abandonLogin(ctx)
		return err
	}
	if err := s.opts.Authenticator.Authenticate(ctx, email, password); err != nil {
		metrics.SessionLogins.WithLabelValues("rejected").Inc()
		logger.Infof("login rejected for %q: %v", email, err)
		s.abandonLogin(ctx)
		return err
	}

	ctx = context.WithoutCancel(ctx)
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	now := s.now()
	prev, outcome := s.load(ctx)
	result := "created"
	var u *models.User
	if outcome == OutcomeFound && s.shouldMerge(prev, email) {
		u = users.MergeOnLogin(prev, email, now)
		result = "merged"
	} else {
		u = users.NewProfile(s.opts.UserID, email, now, s.opts.AvatarTemplate)
	}
	s.setUser(u)
	s.save(ctx, u)
	metrics.SessionLogins.WithLabelValues(result).Inc()
	logger.Debugf("login %s for %s", result, email)
	return nil
}

// abandonLogin drops the current user and the persisted record after a
// failed login.
func (s *Store) abandonLogin(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.setUser(nil)
	s.remove(ctx)
}

// Logout clears the in-memory user and the persisted record. Idempotent.
func (s *Store) Logout(ctx context.Context) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.setUser(nil)
	s.remove(ctx)
	metrics.SessionLogouts.Inc()
}

// UpdateProfile applies name/bio to the current user and persists it.
// It is a no-op when nobody is logged in.
func (s *Store) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	cur := s.User()
	if cur == nil {
		return
	}
	u := users.ApplyUpdate(cur, upd)
	s.setUser(u)
	s.save(ctx, u)
	metrics.ProfileUpdates.Inc()
}

// User returns a copy of the current user, or nil when logged out.
func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone()
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// IsLoading reports a pending restore or at least one login in flight.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restoring || s.inflight > 0
}

// Restored reports whether Restore has finished.
func (s *Store) Restored() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.restoring
}

func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		User:            s.user.Clone(),
		IsAuthenticated: s.user != nil,
		IsLoading:       s.restoring || s.inflight > 0,
	}
}

// SessionDuration formats the time since the current user's LastLogin.
// ok is false when nobody is logged in.
func (s *Store) SessionDuration() (d string, ok bool) {
	u := s.User()
	if u == nil {
		return "", false
	}
	return SessionDuration(u.LastLogin, s.opts.Clock()), true
}

func (s *Store) shouldMerge(prev *models.User, email string) bool {
	if s.opts.MergePolicy == MergeSameEmail {
		return strings.EqualFold(prev.Email, email)
	}
	return true
}

// now is millisecond precision UTC so stored timestamps round-trip exactly.
func (s *Store) now() time.Time {
	return s.opts.Clock().UTC().Truncate(time.Millisecond)
}

func (s *Store) setUser(u *models.User) {
	s.mu.Lock()
	s.user = u.Clone()
	s.mu.Unlock()
	if u != nil {
		metrics.SessionActive.Set(1)
	} else {
		metrics.SessionActive.Set(0)
	}
}

func (s *Store) setRestoring(v bool) {
	s.mu.Lock()
	s.restoring = v
	s.mu.Unlock()
}

func (s *Store) beginLogin() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

func (s *Store) endLogin() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
