package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, locker Locker) {
	t.Helper()

	var (
		wg      sync.WaitGroup
		holders int32
		maxSeen int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "session-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&holders, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&holders, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	locker := NewLocalLocker()
	exerciseMutualExclusion(t, locker)
	assert.Equal(t, 0, locker.size())
}

func TestLocalLocker_KeysAreIndependent(t *testing.T) {
	locker := NewLocalLocker()

	unlockA, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	locker := NewLocalLocker()

	unlock, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, locker.size())
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	_, client := newRedis(t)
	locker := NewRedisLocker(client, 5*time.Second)
	locker.retryInterval = time.Millisecond
	exerciseMutualExclusion(t, locker)
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewRedisLocker(client, time.Second)
	locker.retryInterval = time.Millisecond

	unlock, err := locker.Lock(context.Background(), "s")
	require.NoError(t, err)

	// the key expires and another holder takes it
	mr.FastForward(2 * time.Second)
	unlockOther, err := locker.Lock(context.Background(), "s")
	require.NoError(t, err)

	unlock()
	assert.True(t, mr.Exists("interview:lock:s"))

	unlockOther()
	assert.False(t, mr.Exists("interview:lock:s"))
}

func TestRedisLocker_ContextCancelled(t *testing.T) {
	_, client := newRedis(t)
	locker := NewRedisLocker(client, time.Minute)
	locker.retryInterval = time.Millisecond

	unlock, err := locker.Lock(context.Background(), "s")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "s")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
