package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uikit-demo/session-service/internal/models"
	"github.com/uikit-demo/session-service/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// faultyStorage fails every primitive, either by error or by panic.
type faultyStorage struct {
	panics bool
}

var errStorageDown = errors.New("quota exceeded")

func (f *faultyStorage) fail() error {
	if f.panics {
		panic("storage disabled")
	}
	return errStorageDown
}

func (f *faultyStorage) Get(ctx context.Context, key string) (string, error) { return "", f.fail() }
func (f *faultyStorage) Set(ctx context.Context, key, value string) error    { return f.fail() }
func (f *faultyStorage) Remove(ctx context.Context, key string) error        { return f.fail() }
func (f *faultyStorage) Backend() string                                     { return "faulty" }

// flakyStorage fails reads while down is set.
type flakyStorage struct {
	storage.Storage
	down bool
}

func (f *flakyStorage) Get(ctx context.Context, key string) (string, error) {
	if f.down {
		return "", errStorageDown
	}
	return f.Storage.Get(ctx, key)
}

func newTestStore(st storage.Storage, clock *fakeClock) *Store {
	return NewStore(st, Options{Clock: clock.Now})
}

func persisted(t *testing.T, st storage.Storage) *models.User {
	t.Helper()
	raw, err := st.Get(context.Background(), DefaultStorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	var u models.User
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	return &u
}

func seed(t *testing.T, st storage.Storage, u *models.User) {
	t.Helper()
	b, err := json.Marshal(u)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), DefaultStorageKey, string(b)))
}

func requireSameUser(t *testing.T, want, got *models.User) {
	t.Helper()
	require.NotNil(t, got)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Email, got.Email)
	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.Avatar, got.Avatar)
	require.Equal(t, want.Bio, got.Bio)
	require.True(t, want.AccountCreated.Equal(got.AccountCreated), "accountCreated %v != %v", want.AccountCreated, got.AccountCreated)
	require.True(t, want.LastLogin.Equal(got.LastLogin), "lastLogin %v != %v", want.LastLogin, got.LastLogin)
}

func TestNewStore_LoadingUntilRestore(t *testing.T) {
	s := newTestStore(storage.NewMemoryStorage(), newFakeClock())
	require.True(t, s.IsLoading())
	require.False(t, s.Restored())
	require.False(t, s.IsAuthenticated())

	s.Restore(context.Background())
	require.False(t, s.IsLoading())
	require.True(t, s.Restored())
	require.False(t, s.IsAuthenticated())
	require.Nil(t, s.User())
	require.Equal(t, OutcomeNone, s.Diagnostics().LastRead)
}

func TestLogin_NewUserDefaults(t *testing.T) {
	st := storage.NewMemoryStorage()
	clock := newFakeClock()
	s := newTestStore(st, clock)
	s.Restore(context.Background())

	require.NoError(t, s.Login(context.Background(), "alice@example.com", ""))

	u := s.User()
	require.NotNil(t, u)
	require.Equal(t, DefaultUserID, u.ID)
	require.Equal(t, "alice@example.com", u.Email)
	require.Equal(t, "alice", u.Name)
	require.NotEmpty(t, u.Avatar)
	require.Equal(t, "", u.Bio)
	require.True(t, u.AccountCreated.Equal(u.LastLogin))
	require.True(t, u.LastLogin.Equal(clock.Now()))
	require.True(t, s.IsAuthenticated())
	require.False(t, s.IsLoading())

	// write-through
	requireSameUser(t, u, persisted(t, st))
}

func TestLogin_PreservesStoredProfile(t *testing.T) {
	st := storage.NewMemoryStorage()
	clock := newFakeClock()
	created := clock.Now().Add(-30 * 24 * time.Hour)
	prev := &models.User{
		ID: "1", Email: "old@example.com", Name: "Ada", Avatar: "https://img.local/ada.png",
		Bio: "likes engines", AccountCreated: created, LastLogin: created.Add(time.Hour),
	}
	seed(t, st, prev)

	s := newTestStore(st, clock)
	require.NoError(t, s.Login(context.Background(), "new@example.com", "secret"))

	u := s.User()
	require.Equal(t, "new@example.com", u.Email)
	require.True(t, u.LastLogin.Equal(clock.Now()))
	require.Equal(t, prev.Name, u.Name)
	require.Equal(t, prev.Bio, u.Bio)
	require.Equal(t, prev.Avatar, u.Avatar)
	require.Equal(t, prev.ID, u.ID)
	require.True(t, u.AccountCreated.Equal(created))
	requireSameUser(t, u, persisted(t, st))
}

func TestLogin_MergeSameEmailPolicy(t *testing.T) {
	st := storage.NewMemoryStorage()
	clock := newFakeClock()
	created := clock.Now().Add(-time.Hour)
	seed(t, st, &models.User{ID: "1", Email: "ada@example.com", Name: "Ada", Avatar: "a", Bio: "b",
		AccountCreated: created, LastLogin: created})

	s := NewStore(st, Options{Clock: clock.Now, MergePolicy: MergeSameEmail})

	require.NoError(t, s.Login(context.Background(), "ADA@example.com", ""))
	require.Equal(t, "Ada", s.User().Name)
	require.True(t, s.User().AccountCreated.Equal(created))

	require.NoError(t, s.Login(context.Background(), "grace@example.com", ""))
	u := s.User()
	require.Equal(t, "grace", u.Name)
	require.Equal(t, "", u.Bio)
	require.True(t, u.AccountCreated.Equal(u.LastLogin))
}

func TestParseMergePolicy(t *testing.T) {
	p, err := ParseMergePolicy("same-email")
	require.NoError(t, err)
	require.Equal(t, MergeSameEmail, p)

	p, err = ParseMergePolicy("")
	require.NoError(t, err)
	require.Equal(t, MergeAlways, p)

	_, err = ParseMergePolicy("sometimes")
	require.Error(t, err)
}

func TestLogout_Idempotent(t *testing.T) {
	ctx := context.Background()

	// from a logged-out store
	st := storage.NewMemoryStorage()
	s := newTestStore(st, newFakeClock())
	s.Restore(ctx)
	s.Logout(ctx)
	s.Logout(ctx)
	require.False(t, s.IsAuthenticated())
	require.Nil(t, persisted(t, st))

	// from a logged-in store
	require.NoError(t, s.Login(ctx, "alice@example.com", ""))
	s.Logout(ctx)
	once := s.Snapshot()
	s.Logout(ctx)
	require.Equal(t, once, s.Snapshot())
	require.Nil(t, s.User())
	require.Nil(t, persisted(t, st))
}

func TestRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStorage()
	clock := newFakeClock()

	s := newTestStore(st, clock)
	s.Restore(ctx)
	require.NoError(t, s.Login(ctx, "alice@example.com", ""))
	bio := "hello"
	s.UpdateProfile(ctx, models.ProfileUpdate{Bio: &bio})
	last := s.User()

	clock.Advance(90 * time.Minute)
	reloaded := newTestStore(st, clock)
	reloaded.Restore(ctx)

	got := reloaded.User()
	require.NotNil(t, got)
	require.True(t, reloaded.IsAuthenticated())
	require.False(t, reloaded.IsLoading())
	require.Equal(t, OutcomeFound, reloaded.Diagnostics().LastRead)

	require.Equal(t, last.ID, got.ID)
	require.Equal(t, last.Email, got.Email)
	require.Equal(t, last.Name, got.Name)
	require.Equal(t, last.Avatar, got.Avatar)
	require.Equal(t, "hello", got.Bio)
	require.True(t, last.AccountCreated.Equal(got.AccountCreated))
	require.False(t, got.LastLogin.Before(last.LastLogin))
	require.True(t, got.LastLogin.Equal(clock.Now()))

	// restore writes the stamped record back
	requireSameUser(t, got, persisted(t, st))
}

func TestRestore_RedisAcrossRestart(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()
	clock := newFakeClock()

	first := newTestStore(storage.NewRedisStorage(redis.NewClient(&redis.Options{Addr: m.Addr()}), "test:"), clock)
	first.Restore(ctx)
	require.NoError(t, first.Login(ctx, "alice@example.com", ""))
	require.True(t, m.Exists("test:user"))

	clock.Advance(time.Minute)
	second := newTestStore(storage.NewRedisStorage(redis.NewClient(&redis.Options{Addr: m.Addr()}), "test:"), clock)
	second.Restore(ctx)
	require.Equal(t, "alice@example.com", second.User().Email)
	require.True(t, second.User().LastLogin.After(first.User().LastLogin))

	second.Logout(ctx)
	require.False(t, m.Exists("test:user"))
}

func TestUpdateProfile_OnlyTouchesGivenField(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStorage()
	clock := newFakeClock()
	s := newTestStore(st, clock)
	require.NoError(t, s.Login(ctx, "alice@example.com", ""))
	before := s.User()

	clock.Advance(time.Hour)
	bio := "x"
	s.UpdateProfile(ctx, models.ProfileUpdate{Bio: &bio})

	after := s.User()
	require.Equal(t, "x", after.Bio)
	before.Bio = "x"
	requireSameUser(t, before, after)
	requireSameUser(t, after, persisted(t, st))

	name := "Alice L."
	s.UpdateProfile(ctx, models.ProfileUpdate{Name: &name})
	require.Equal(t, "Alice L.", s.User().Name)
	require.Equal(t, "x", s.User().Bio)
}

func TestUpdateProfile_NoopWhenLoggedOut(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStorage()
	s := newTestStore(st, newFakeClock())
	s.Restore(ctx)

	bio := "x"
	s.UpdateProfile(ctx, models.ProfileUpdate{Bio: &bio})
	require.Nil(t, s.User())
	require.Nil(t, persisted(t, st))
}

func TestStorageFailureResilience(t *testing.T) {
	for _, tc := range []struct {
		name   string
		panics bool
	}{{"errors", false}, {"panics", true}} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(&faultyStorage{panics: tc.panics}, newFakeClock())

			require.NotPanics(t, func() { s.Restore(ctx) })
			require.False(t, s.IsAuthenticated())
			require.False(t, s.IsLoading())
			require.Equal(t, OutcomeUnavailable, s.Diagnostics().LastRead)

			require.NotPanics(t, func() {
				require.NoError(t, s.Login(ctx, "alice@example.com", ""))
			})
			require.True(t, s.IsAuthenticated())
			require.Equal(t, "alice", s.User().Name)

			bio := "offline"
			require.NotPanics(t, func() { s.UpdateProfile(ctx, models.ProfileUpdate{Bio: &bio}) })
			require.Equal(t, "offline", s.User().Bio)

			require.NotPanics(t, func() { s.Logout(ctx) })
			require.False(t, s.IsAuthenticated())

			d := s.Diagnostics()
			require.Equal(t, "faulty", d.Backend)
			require.GreaterOrEqual(t, d.StorageFailures, 4)
			require.NotEmpty(t, d.LastError)
		})
	}
}

func TestDiagnostics_ClearsErrorAfterGoodRead(t *testing.T) {
	ctx := context.Background()
	st := &flakyStorage{Storage: storage.NewMemoryStorage(), down: true}
	seed(t, st, &models.User{ID: "1", Email: "alice@example.com", Name: "alice"})
	s := newTestStore(st, newFakeClock())

	s.Restore(ctx)
	d := s.Diagnostics()
	require.Equal(t, OutcomeUnavailable, d.LastRead)
	require.Contains(t, d.LastError, errStorageDown.Error())
	require.Equal(t, 1, d.StorageFailures)

	st.down = false
	require.NoError(t, s.Login(ctx, "alice@example.com", ""))
	d = s.Diagnostics()
	require.Equal(t, OutcomeFound, d.LastRead)
	require.Empty(t, d.LastError)
	require.Equal(t, 1, d.StorageFailures)
}

func TestMalformedDataResilience(t *testing.T) {
	for _, raw := range []string{"{not json", "null", "", `"just a string"`} {
		t.Run(raw, func(t *testing.T) {
			ctx := context.Background()
			st := storage.NewMemoryStorage()
			require.NoError(t, st.Set(ctx, DefaultStorageKey, raw))

			s := newTestStore(st, newFakeClock())
			require.NotPanics(t, func() { s.Restore(ctx) })
			require.False(t, s.IsAuthenticated())
			require.Equal(t, OutcomeMalformed, s.Diagnostics().LastRead)

			require.NoError(t, s.Login(ctx, "bob@example.com", ""))
			u := s.User()
			require.Equal(t, "bob", u.Name)
			require.Equal(t, "", u.Bio)
			require.True(t, u.AccountCreated.Equal(u.LastLogin))
			requireSameUser(t, u, persisted(t, st))
		})
	}
}

func TestLogin_RejectedLeavesStoreLoggedOut(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStorage()
	s := NewStore(st, Options{Clock: newFakeClock().Now, Authenticator: RequireEmail()})
	s.Restore(ctx)

	err := s.Login(ctx, "   ", "pw")
	require.ErrorIs(t, err, ErrEmailRequired)
	require.False(t, s.IsAuthenticated())
	require.False(t, s.IsLoading())
	require.Nil(t, persisted(t, st))

	require.NoError(t, s.Login(ctx, "alice@example.com", ""))
	require.NotNil(t, persisted(t, st))

	require.ErrorIs(t, s.Login(ctx, "", ""), ErrEmailRequired)
	require.False(t, s.IsAuthenticated())
	require.Nil(t, s.User())
	require.False(t, s.IsLoading())
	require.Nil(t, persisted(t, st))
}

func TestLogin_CustomAuthenticatorSeesPassword(t *testing.T) {
	var gotPassword string
	auth := AuthenticatorFunc(func(_ context.Context, _, password string) error {
		gotPassword = password
		return nil
	})
	s := NewStore(storage.NewMemoryStorage(), Options{Authenticator: auth})
	require.NoError(t, s.Login(context.Background(), "alice@example.com", "hunter2"))
	require.Equal(t, "hunter2", gotPassword)
}

func TestLogin_CanceledDuringDelay(t *testing.T) {
	st := storage.NewMemoryStorage()
	s := NewStore(st, Options{LoginDelay: time.Hour})
	s.Restore(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Login(ctx, "alice@example.com", "") }()

	require.Eventually(t, s.IsLoading, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("login did not return after cancel")
	}
	require.False(t, s.IsLoading())
	require.False(t, s.IsAuthenticated())
	require.Nil(t, persisted(t, st))
}

func TestLogin_CanceledDropsRestoredSession(t *testing.T) {
	st := storage.NewMemoryStorage()
	seed(t, st, &models.User{ID: "1", Email: "alice@example.com", Name: "alice"})
	s := NewStore(st, Options{LoginDelay: time.Hour})
	s.Restore(context.Background())
	require.True(t, s.IsAuthenticated())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Login(ctx, "bob@example.com", ""), context.Canceled)
	require.False(t, s.IsAuthenticated())
	require.False(t, s.IsLoading())
	require.Nil(t, persisted(t, st))
}

func TestLogin_LoadingWhileAnyLoginInFlight(t *testing.T) {
	release := make(chan struct{})
	auth := AuthenticatorFunc(func(_ context.Context, email, _ string) error {
		if email == "slow@example.com" {
			<-release
		}
		return nil
	})
	s := NewStore(storage.NewMemoryStorage(), Options{Authenticator: auth})
	s.Restore(context.Background())
	require.False(t, s.IsLoading())

	slow := make(chan error, 1)
	go func() { slow <- s.Login(context.Background(), "slow@example.com", "") }()
	require.Eventually(t, s.IsLoading, time.Second, time.Millisecond)

	// a second login finishing first must not clear the flag
	require.NoError(t, s.Login(context.Background(), "fast@example.com", ""))
	require.True(t, s.IsLoading())
	require.Equal(t, "fast@example.com", s.User().Email)

	close(release)
	require.NoError(t, <-slow)
	require.False(t, s.IsLoading())
	require.Equal(t, "slow@example.com", s.User().Email)
}

func TestLogin_OverlappingCallsAgree(t *testing.T) {
	st := storage.NewMemoryStorage()
	s := NewStore(st, Options{LoginDelay: 10 * time.Millisecond})
	s.Restore(context.Background())

	var wg sync.WaitGroup
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		wg.Add(1)
		go func(e string) {
			defer wg.Done()
			assert.NoError(t, s.Login(context.Background(), e, ""))
		}(email)
	}
	wg.Wait()

	// last write wins, and memory matches storage whichever one that was
	require.False(t, s.IsLoading())
	requireSameUser(t, s.User(), persisted(t, st))
}

func TestPersistedJSONShape(t *testing.T) {
	st := storage.NewMemoryStorage()
	s := newTestStore(st, newFakeClock())
	require.NoError(t, s.Login(context.Background(), "alice@example.com", ""))

	raw, err := st.Get(context.Background(), DefaultStorageKey)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	for _, k := range []string{"id", "email", "name", "avatar", "bio", "accountCreated", "lastLogin"} {
		require.Contains(t, m, k)
	}
	require.Equal(t, "2026-03-14T09:26:53.589Z", m["lastLogin"])
	require.Equal(t, "2026-03-14T09:26:53.589Z", m["accountCreated"])
}

func TestStore_SessionDuration(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(storage.NewMemoryStorage(), clock)

	_, ok := s.SessionDuration()
	require.False(t, ok)

	require.NoError(t, s.Login(context.Background(), "alice@example.com", ""))
	clock.Advance(5 * time.Minute)
	d, ok := s.SessionDuration()
	require.True(t, ok)
	require.Equal(t, "5 minutes", d)
}
