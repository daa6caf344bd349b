package score

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/trustgate/internal/gateway/clock"
)

type fakeStore struct {
	scores map[string]int
	err    error
}

func (s *fakeStore) GetScore(_ context.Context, principalID string) (int, bool, error) {
	if s.err != nil {
		return 0, false, s.err
	}
	v, ok := s.scores[principalID]
	return v, ok, nil
}

func TestHashPrincipal_DeterministicAndWellFormed(t *testing.T) {
	a := HashPrincipal("user-1")
	b := HashPrincipal("user-1")
	c := HashPrincipal("user-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestDirectProvider_ReturnsStoredScore(t *testing.T) {
	store := &fakeStore{scores: map[string]int{"high_user": 95}}
	p := NewDirectProvider(store, nil)
	assert.Equal(t, 95, p.GetScore(context.Background(), "high_user"))
}

func TestDirectProvider_MissingRecordFailsClosed(t *testing.T) {
	store := &fakeStore{scores: map[string]int{}}
	p := NewDirectProvider(store, nil)
	assert.Equal(t, 0, p.GetScore(context.Background(), "nobody"))
}

func TestDirectProvider_StoreErrorFailsClosed(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	p := NewDirectProvider(store, nil)
	assert.Equal(t, 0, p.GetScore(context.Background(), "x"))
}

func TestDirectProvider_OutOfRangeScoreFailsClosed(t *testing.T) {
	store := &fakeStore{scores: map[string]int{"weird": 150}}
	p := NewDirectProvider(store, nil)
	assert.Equal(t, 0, p.GetScore(context.Background(), "weird"))
}

func TestCachedProvider_MissPopulatesCacheThenHits(t *testing.T) {
	fake := clockwork.NewFakeClock()
	cache := NewMemoryCache(300*time.Second, clock.New(fake))
	store := &fakeStore{scores: map[string]int{"med_user": 60}}
	p := NewCachedProvider(store, cache, nil)

	assert.Equal(t, 60, p.GetScore(context.Background(), "med_user"))

	// Drain the store so only a cache hit could satisfy the second call.
	store.scores = map[string]int{}
	assert.Equal(t, 60, p.GetScore(context.Background(), "med_user"))
}

func TestCachedProvider_ExpiredCacheEntryFallsBackToStore(t *testing.T) {
	fake := clockwork.NewFakeClock()
	cache := NewMemoryCache(10*time.Second, clock.New(fake))
	store := &fakeStore{scores: map[string]int{"u": 80}}
	p := NewCachedProvider(store, cache, nil)

	require.Equal(t, 80, p.GetScore(context.Background(), "u"))

	store.scores["u"] = 20
	fake.Advance(11 * time.Second)
	assert.Equal(t, 20, p.GetScore(context.Background(), "u"), "expired cache entry must re-consult the store")
}

func TestRemoteProvider_SuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score": 42}`))
	}))
	defer srv.Close()

	p := NewRemoteProvider(srv.URL, "secret-key", srv.Client(), nil)
	assert.Equal(t, 42, p.GetScore(context.Background(), "user-1"))
}

func TestRemoteProvider_NonTwoXXFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewRemoteProvider(srv.URL, "k", srv.Client(), nil)
	assert.Equal(t, 0, p.GetScore(context.Background(), "user-1"))
}

func TestRemoteProvider_MalformedBodyFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	p := NewRemoteProvider(srv.URL, "k", srv.Client(), nil)
	assert.Equal(t, 0, p.GetScore(context.Background(), "user-1"))
}

func TestRemoteProvider_TimeoutFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"score": 99}`))
	}))
	defer srv.Close()

	p := NewRemoteProvider(srv.URL, "k", srv.Client(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, 0, p.GetScore(ctx, "user-1"))
}

func TestRemoteProvider_ConnectionFailureFailsClosed(t *testing.T) {
	p := NewRemoteProvider("http://127.0.0.1:1", "k", nil, nil)
	assert.Equal(t, 0, p.GetScore(context.Background(), "user-1"))
}
