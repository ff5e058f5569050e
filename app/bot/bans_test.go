package bot

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/tg-rspamd/app/storage"
)

func prepStore(t *testing.T) (*storage.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return storage.NewRedisWithClient(rdb), mr
}

func TestBanDecay_Reduce(t *testing.T) {
	store, mr := prepStore(t)
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	due := strconv.FormatInt(now.Add(-time.Minute).Unix(), 10)
	future := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)

	mr.HSet("tg:users:1", "banned_q", "2", "ban_reduction_time", due)
	mr.HSet("tg:users:2", "banned_q", "0", "ban_reduction_time", due)
	mr.HSet("tg:users:3", "banned_q", "1", "ban_reduction_time", future)
	mr.HSet("tg:users:4", "banned_q", "1")

	bd := NewBanDecay(store)
	bd.now = func() time.Time { return now }
	n, err := bd.Reduce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, "1", mr.HGet("tg:users:1", "banned_q"))
	assert.Equal(t, strconv.FormatInt(now.Add(BanReductionPeriod).Unix(), 10), mr.HGet("tg:users:1", "ban_reduction_time"))

	assert.Equal(t, "", mr.HGet("tg:users:2", "ban_reduction_time"), "cleared for zero counter")
	assert.Equal(t, "1", mr.HGet("tg:users:3", "banned_q"), "not due yet")
	assert.Equal(t, future, mr.HGet("tg:users:3", "ban_reduction_time"))
	assert.Equal(t, "1", mr.HGet("tg:users:4", "banned_q"), "no reduction time")

	// next pass two days later decrements user 1 again
	bd.now = func() time.Time { return now.Add(BanReductionPeriod + time.Second) }
	n, err = bd.Reduce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "users 1 and 3 are due")
	assert.Equal(t, "0", mr.HGet("tg:users:1", "banned_q"))
	assert.Equal(t, "0", mr.HGet("tg:users:3", "banned_q"))
}

func TestBanDecay_Run(t *testing.T) {
	store, mr := prepStore(t)
	mr.HSet("tg:users:10", "banned_q", "3", "ban_reduction_time", "1")
	bd := NewBanDecay(store)

	t.Run("invalid schedule", func(t *testing.T) {
		err := bd.Run(context.Background(), "not a schedule")
		require.Error(t, err)
		assert.Equal(t, "3", mr.HGet("tg:users:10", "banned_q"), "nothing reduced")
	})

	t.Run("reduces on start", func(t *testing.T) {
		mr.HSet("tg:users:11", "banned_q", "2", "ban_reduction_time", "1")
		defer mr.Del("tg:users:11")
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		err := bd.Run(ctx, "@every 1h")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, "1", mr.HGet("tg:users:11", "banned_q"))
		assert.Equal(t, "2", mr.HGet("tg:users:10", "banned_q"))
	})

	t.Run("runs on schedule", func(t *testing.T) {
		mr.HSet("tg:users:12", "banned_q", "3")
		ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
		defer cancel()
		go func() {
			// make user 12 due after the reduction on start
			time.Sleep(200 * time.Millisecond)
			mr.HSet("tg:users:12", "ban_reduction_time", "1")
		}()
		err := bd.Run(ctx, "@every 1s")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, "2", mr.HGet("tg:users:12", "banned_q"))
		assert.Equal(t, "2", mr.HGet("tg:users:10", "banned_q"), "not due again for two days")
	})
}
