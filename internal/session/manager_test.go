package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sessionauth/sessionauth-go/internal/crypto"
	"github.com/sessionauth/sessionauth-go/internal/errutil"
	"github.com/sessionauth/sessionauth-go/internal/model"
	"github.com/sessionauth/sessionauth-go/internal/repository"
)

type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*model.Session
	createErr error
	getErr    error
	deleteErr error
	sweepErr  error
	sweeps    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*model.Session)}
}

func (f *fakeStore) Create(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.sessions[s.TokenHash] = s
	return nil
}

func (f *fakeStore) GetByTokenHash(_ context.Context, tokenHash string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[tokenHash]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeStore) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.sessions[tokenHash]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	if f.sweepErr != nil {
		return 0, f.sweepErr
	}
	var n int64
	for k, s := range f.sessions {
		if s.IsExpiredAt(now) {
			delete(f.sessions, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeStore) sweepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

type fakeCookies struct {
	token     string
	expiresAt time.Time
	cleared   bool
	setErr    error
}

func (c *fakeCookies) SetSession(token string, expiresAt time.Time) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.token = token
	c.expiresAt = expiresAt
	c.cleared = false
	return nil
}

func (c *fakeCookies) ClearSession() {
	c.token = ""
	c.cleared = true
}

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(store Store) *Manager {
	m := NewManager(store, time.Hour)
	m.now = func() time.Time { return fixedNow }
	return m
}

func TestManager_Create(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)
	cookies := &fakeCookies{}
	sc := NewContext("", cookies)

	require.NoError(t, m.Create(context.Background(), sc, 7))

	require.NotEmpty(t, sc.Token())
	assert.Equal(t, sc.Token(), cookies.token)
	assert.Equal(t, fixedNow.Add(time.Hour), cookies.expiresAt)

	s, err := store.GetByTokenHash(context.Background(), crypto.HashSessionToken(sc.Token()))
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.UserID)
	assert.Equal(t, fixedNow, s.CreatedAt)
	assert.NotEqual(t, sc.Token(), s.TokenHash)
}

func TestManager_Create_ReplacesExistingSession(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)
	sc := NewContext("", &fakeCookies{})

	require.NoError(t, m.Create(context.Background(), sc, 1))
	first := sc.Token()

	require.NoError(t, m.Create(context.Background(), sc, 2))

	assert.NotEqual(t, first, sc.Token())
	assert.Equal(t, 1, store.count())

	userID, ok, err := m.CurrentUserID(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), userID)

	stale := NewContext(first, nil)
	_, ok, err = m.CurrentUserID(context.Background(), stale)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_Create_UnknownExistingTokenIsIgnored(t *testing.T) {
	m := newTestManager(newFakeStore())
	sc := NewContext("stale-token", &fakeCookies{})

	require.NoError(t, m.Create(context.Background(), sc, 3))
	assert.NotEqual(t, "stale-token", sc.Token())
}

func TestManager_Create_Errors(t *testing.T) {
	t.Run("replace failure", func(t *testing.T) {
		store := newFakeStore()
		store.deleteErr = errors.New("db down")
		m := newTestManager(store)
		sc := NewContext("old", &fakeCookies{})

		err := m.Create(context.Background(), sc, 1)
		errutil.AssertErrorCode(t, err, "SESSION_REPLACE_FAILED")
		assert.Equal(t, "old", sc.Token())
	})

	t.Run("store failure", func(t *testing.T) {
		store := newFakeStore()
		store.createErr = errors.New("db down")
		m := newTestManager(store)
		cookies := &fakeCookies{}
		sc := NewContext("", cookies)

		err := m.Create(context.Background(), sc, 1)
		errutil.AssertErrorCode(t, err, "SESSION_CREATE_FAILED")
		assert.Empty(t, sc.Token())
		assert.Empty(t, cookies.token)
	})

	t.Run("cookie failure", func(t *testing.T) {
		m := newTestManager(newFakeStore())
		sc := NewContext("", &fakeCookies{setErr: errors.New("sign failed")})

		err := m.Create(context.Background(), sc, 1)
		errutil.AssertErrorCode(t, err, "SESSION_COOKIE_FAILED")
		assert.Empty(t, sc.Token())
	})
}

func TestManager_CurrentUserID(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		m := newTestManager(newFakeStore())

		_, ok, err := m.CurrentUserID(context.Background(), NewContext("", nil))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown token", func(t *testing.T) {
		m := newTestManager(newFakeStore())

		_, ok, err := m.CurrentUserID(context.Background(), NewContext("nope", nil))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired", func(t *testing.T) {
		m := newTestManager(newFakeStore())
		sc := NewContext("", nil)
		require.NoError(t, m.Create(context.Background(), sc, 9))

		m.now = func() time.Time { return fixedNow.Add(time.Hour) }

		_, ok, err := m.CurrentUserID(context.Background(), sc)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("store failure", func(t *testing.T) {
		store := newFakeStore()
		store.getErr = errors.New("db down")
		m := newTestManager(store)

		_, ok, err := m.CurrentUserID(context.Background(), NewContext("tok", nil))
		assert.False(t, ok)
		errutil.AssertErrorCode(t, err, "SESSION_LOOKUP_FAILED")
	})
}

func TestManager_Destroy(t *testing.T) {
	t.Run("existing session", func(t *testing.T) {
		store := newFakeStore()
		m := newTestManager(store)
		cookies := &fakeCookies{}
		sc := NewContext("", cookies)
		require.NoError(t, m.Create(context.Background(), sc, 5))

		assert.True(t, m.Destroy(context.Background(), sc))
		assert.Empty(t, sc.Token())
		assert.True(t, cookies.cleared)
		assert.Equal(t, 0, store.count())
	})

	t.Run("no session still succeeds", func(t *testing.T) {
		m := newTestManager(newFakeStore())
		cookies := &fakeCookies{}
		sc := NewContext("", cookies)

		assert.True(t, m.Destroy(context.Background(), sc))
		assert.True(t, cookies.cleared)
	})

	t.Run("unknown token still succeeds", func(t *testing.T) {
		m := newTestManager(newFakeStore())
		sc := NewContext("gone", &fakeCookies{})

		assert.True(t, m.Destroy(context.Background(), sc))
		assert.Empty(t, sc.Token())
	})

	t.Run("store failure", func(t *testing.T) {
		store := newFakeStore()
		store.deleteErr = errors.New("db down")
		m := newTestManager(store)
		cookies := &fakeCookies{}
		sc := NewContext("tok", cookies)

		assert.False(t, m.Destroy(context.Background(), sc))
		assert.Empty(t, sc.Token())
		assert.True(t, cookies.cleared)
	})

	t.Run("nil cookies", func(t *testing.T) {
		m := newTestManager(newFakeStore())
		assert.True(t, m.Destroy(context.Background(), NewContext("", nil)))
	})
}

func TestManager_Sweep(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store)

	for i := range 3 {
		require.NoError(t, m.Create(context.Background(), NewContext("", nil), int64(i)))
	}
	m.ttl = 2 * time.Hour
	live := NewContext("", nil)
	require.NoError(t, m.Create(context.Background(), live, 99))

	m.now = func() time.Time { return fixedNow.Add(90 * time.Minute) }

	n, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, store.count())

	userID, ok, err := m.CurrentUserID(context.Background(), live)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(99), userID)
}

func TestManager_Sweep_Error(t *testing.T) {
	store := newFakeStore()
	store.sweepErr = errors.New("db down")

	_, err := newTestManager(store).Sweep(context.Background())
	errutil.AssertErrorCode(t, err, "SESSION_SWEEP_FAILED")
}

func TestManager_RunSweeper(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newFakeStore()
	m := newTestManager(store)
	var observed atomic.Int32
	m.OnSweep(func(int64) { observed.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.sweepCount() >= 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return observed.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestManager_RunSweeper_KeepsRunningOnError(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newFakeStore()
	store.sweepErr = errors.New("db down")
	m := newTestManager(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.sweepCount() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
