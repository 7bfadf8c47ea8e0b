package cron

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKeyLocker keeps owner tokens in a map. ReleaseLock compares and deletes
// in one step, the way the Redis script does.
type fakeKeyLocker struct {
	owners     map[string]string
	ttls       map[string]time.Duration
	seq        int
	releaseErr error
	releases   int
}

func newFakeKeyLocker() *fakeKeyLocker {
	return &fakeKeyLocker{owners: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKeyLocker) AcquireLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if _, held := f.owners[key]; held {
		return "", false, nil
	}
	f.seq++
	token := fmt.Sprintf("token-%d", f.seq)
	f.owners[key] = token
	f.ttls[key] = ttl
	return token, true, nil
}

func (f *fakeKeyLocker) ReleaseLock(_ context.Context, key, token string) error {
	f.releases++
	if f.releaseErr != nil {
		return f.releaseErr
	}
	if f.owners[key] == token {
		delete(f.owners, key)
	}
	return nil
}

func TestSharedCycleLockAcquireAndRelease(t *testing.T) {
	locker := newFakeKeyLocker()
	lock, err := NewSharedCycleLock(locker, "booking:cron:lock", 0)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, defaultCycleLockTTL, locker.ttls["booking:cron:lock"])

	other, err := NewSharedCycleLock(locker, "booking:cron:lock", time.Second)
	require.NoError(t, err)
	ok, err = other.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "second instance must not acquire a held lock")

	require.NoError(t, other.Release(context.Background()))
	assert.Contains(t, locker.owners, "booking:cron:lock", "an instance that never acquired does not release")

	require.NoError(t, lock.Release(context.Background()))
	assert.NotContains(t, locker.owners, "booking:cron:lock")
}

func TestSharedCycleLockKeepsKeyTakenByAnotherInstance(t *testing.T) {
	locker := newFakeKeyLocker()
	lock, err := NewSharedCycleLock(locker, "k", time.Second)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// The TTL lapsed and another instance took the key.
	locker.owners["k"] = "someone-else"

	require.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, "someone-else", locker.owners["k"])
}

func TestSharedCycleLockReleaseAfterExpiry(t *testing.T) {
	locker := newFakeKeyLocker()
	lock, err := NewSharedCycleLock(locker, "k", time.Second)
	require.NoError(t, err)

	_, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	delete(locker.owners, "k")

	assert.NoError(t, lock.Release(context.Background()))
	assert.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, 1, locker.releases, "a released token is not sent twice")
}

func TestSharedCycleLockReleaseSurfacesErrors(t *testing.T) {
	locker := newFakeKeyLocker()
	lock, err := NewSharedCycleLock(locker, "k", time.Second)
	require.NoError(t, err)

	_, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	locker.releaseErr = errors.New("i/o timeout")

	assert.Error(t, lock.Release(context.Background()))

	locker.releaseErr = nil
	require.NoError(t, lock.Release(context.Background()), "the token survives a failed release")
	assert.NotContains(t, locker.owners, "k")
}

func TestNewSharedCycleLockValidation(t *testing.T) {
	_, err := NewSharedCycleLock(nil, "k", time.Second)
	assert.Error(t, err)

	_, err = NewSharedCycleLock(newFakeKeyLocker(), "", time.Second)
	assert.Error(t, err)
}
