package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/repository"
)

type fakeAccounts struct {
	mu    sync.Mutex
	ids   map[string]uint
	err   error
	calls int
}

func (f *fakeAccounts) FindIDByCredential(_ context.Context, credential string) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	id, ok := f.ids[credential]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

func (f *fakeAccounts) FindByEmail(context.Context, string) (models.Account, error) {
	return models.Account{}, repository.ErrNotFound
}

type memCache struct {
	mu      sync.Mutex
	values  map[string]string
	failGet bool
}

func newMemCache() *memCache { return &memCache{values: map[string]string{}} }

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return "", errors.New("connection refused")
	}
	v, ok := c.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func TestDBResolver(t *testing.T) {
	accounts := &fakeAccounts{ids: map[string]uint{"A1": 7}}
	r := NewDBResolver(accounts)

	id, err := r.Resolve(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)

	_, err = r.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestDBResolverStorageError(t *testing.T) {
	boom := errors.New("db down")
	r := NewDBResolver(&fakeAccounts{err: boom})

	_, err := r.Resolve(context.Background(), "A1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrAccountNotFound))
}

func TestCachedResolverReadsThrough(t *testing.T) {
	accounts := &fakeAccounts{ids: map[string]uint{"A1": 7}}
	cache := newMemCache()
	r := NewCachedResolver(NewDBResolver(accounts), cache, time.Minute, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := r.Resolve(ctx, "A1")
		require.NoError(t, err)
		assert.Equal(t, uint(7), id)
	}
	assert.Equal(t, 1, accounts.calls)
	assert.Equal(t, "7", cache.values[cacheKey("A1")])
}

func TestCachedResolverDoesNotCacheMisses(t *testing.T) {
	accounts := &fakeAccounts{ids: map[string]uint{}}
	cache := newMemCache()
	r := NewCachedResolver(NewDBResolver(accounts), cache, time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, err := r.Resolve(ctx, "A2")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Empty(t, cache.values)

	accounts.ids["A2"] = 9
	id, err := r.Resolve(ctx, "A2")
	require.NoError(t, err)
	assert.Equal(t, uint(9), id)
}

func TestCachedResolverInvalidate(t *testing.T) {
	accounts := &fakeAccounts{ids: map[string]uint{"A1": 7}}
	cache := newMemCache()
	r := NewCachedResolver(NewDBResolver(accounts), cache, time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, err := r.Resolve(ctx, "A1")
	require.NoError(t, err)

	accounts.ids["A1"] = 8
	require.NoError(t, r.Invalidate(ctx, "A1"))

	id, err := r.Resolve(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, uint(8), id)
}

func TestCachedResolverFallsThroughOnCacheFailure(t *testing.T) {
	accounts := &fakeAccounts{ids: map[string]uint{"A1": 7}}
	cache := newMemCache()
	cache.failGet = true
	r := NewCachedResolver(NewDBResolver(accounts), cache, time.Minute, zerolog.Nop())

	id, err := r.Resolve(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
}

func TestCachedResolverIgnoresCorruptEntry(t *testing.T) {
	accounts := &fakeAccounts{ids: map[string]uint{"A1": 7}}
	cache := newMemCache()
	cache.values[cacheKey("A1")] = "not-a-number"
	r := NewCachedResolver(NewDBResolver(accounts), cache, time.Minute, zerolog.Nop())

	id, err := r.Resolve(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
	assert.Equal(t, "7", cache.values[cacheKey("A1")])
}

func TestCachedResolverKeyHidesCredential(t *testing.T) {
	accounts := &fakeAccounts{ids: map[string]uint{"secret-token": 3}}
	cache := newMemCache()
	r := NewCachedResolver(NewDBResolver(accounts), cache, time.Minute, zerolog.Nop())

	_, err := r.Resolve(context.Background(), "secret-token")
	require.NoError(t, err)

	require.Len(t, cache.values, 1)
	for key := range cache.values {
		assert.True(t, strings.HasPrefix(key, cacheKeyPrefix))
		assert.NotContains(t, key, "secret-token")
	}
}
