package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reputation is a user reputation. Bad is increased on every spam action, good on clean messages.
type Reputation struct {
	Bad  int64 `json:"bad"`
	Good int64 `json:"good"`
}

// Score returns the reputation score, positive means bad
func (r Reputation) Score() int64 { return r.Bad - r.Good }

// RepField is a field of the reputation hash
type RepField string

// enum of reputation fields
const (
	RepBad  RepField = "bad"
	RepGood RepField = "good"
)

// PendingReduction is a user with ban counter due to be reduced
type PendingReduction struct {
	UserID  int64
	BannedQ int64
	DueAt   time.Time
}

// IncrBan increments the ban counter of the user and returns the previous value
func (r *Redis) IncrBan(ctx context.Context, uid int64) (prev int64, err error) {
	cur, err := r.rdb.HIncrBy(ctx, UserKey(uid), FieldBannedQ, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("can't increment ban counter for %d: %w", uid, err)
	}
	return cur - 1, nil
}

// BanCount returns the ban counter of the user
func (r *Redis) BanCount(ctx context.Context, uid int64) (int64, error) {
	res, err := r.rdb.HGet(ctx, UserKey(uid), FieldBannedQ).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("can't get ban counter for %d: %w", uid, err)
	}
	return res, nil
}

// SetBanReduction sets the time the ban counter of the user should be reduced
func (r *Redis) SetBanReduction(ctx context.Context, uid int64, at time.Time) error {
	if err := r.rdb.HSet(ctx, UserKey(uid), FieldBanReduction, at.Unix()).Err(); err != nil {
		return fmt.Errorf("can't set ban reduction time for %d: %w", uid, err)
	}
	return nil
}

// MarkPermBanned marks user as permanently banned
func (r *Redis) MarkPermBanned(ctx context.Context, uid int64) error {
	if err := r.rdb.HSet(ctx, UserKey(uid), FieldPermBanned, 1, FieldBanned, 1).Err(); err != nil {
		return fmt.Errorf("can't mark %d as banned: %w", uid, err)
	}
	return nil
}

// User returns all fields of the user hash
func (r *Redis) User(ctx context.Context, uid int64) (map[string]string, error) {
	res, err := r.rdb.HGetAll(ctx, UserKey(uid)).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get user %d: %w", uid, err)
	}
	return res, nil
}

// PendingReductions scans all users and calls fn for each one with ban reduction time before now
func (r *Redis) PendingReductions(ctx context.Context, now time.Time, fn func(PendingReduction) error) error {
	iter := r.rdb.Scan(ctx, 0, UsersPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		uid, err := strconv.ParseInt(strings.TrimPrefix(key, UsersPrefix), 10, 64)
		if err != nil {
			continue // not a user hash, i.e. tg:users:123:something
		}
		vals, err := r.rdb.HMGet(ctx, key, FieldBanReduction, FieldBannedQ).Result()
		if err != nil {
			return fmt.Errorf("can't read %s: %w", key, err)
		}
		dueAt, ok := toInt64(vals[0])
		if !ok || dueAt > now.Unix() {
			continue
		}
		bannedQ, _ := toInt64(vals[1])
		if err := fn(PendingReduction{UserID: uid, BannedQ: bannedQ, DueAt: time.Unix(dueAt, 0)}); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("can't scan users: %w", err)
	}
	return nil
}

// DecrementBan decrements ban counter of the user and schedules the next reduction
func (r *Redis) DecrementBan(ctx context.Context, uid int64, next time.Time) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, UserKey(uid), FieldBannedQ, -1)
		pipe.HSet(ctx, UserKey(uid), FieldBanReduction, next.Unix())
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't decrement ban counter for %d: %w", uid, err)
	}
	log.Printf("[DEBUG] ban counter decremented for %d, next reduction at %s", uid, next.Format(time.RFC3339))
	return nil
}

// ClearBanReduction removes ban reduction time of the user
func (r *Redis) ClearBanReduction(ctx context.Context, uid int64) error {
	if err := r.rdb.HDel(ctx, UserKey(uid), FieldBanReduction).Err(); err != nil {
		return fmt.Errorf("can't clear ban reduction for %d: %w", uid, err)
	}
	return nil
}

// Reputation returns reputation of the user
func (r *Redis) Reputation(ctx context.Context, uid int64) (Reputation, error) {
	vals, err := r.rdb.HMGet(ctx, ReputationKey(uid), string(RepBad), string(RepGood)).Result()
	if err != nil {
		return Reputation{}, fmt.Errorf("can't get reputation of %d: %w", uid, err)
	}
	bad, _ := toInt64(vals[0])
	good, _ := toInt64(vals[1])
	return Reputation{Bad: bad, Good: good}, nil
}

// AdjustReputation changes a reputation field of the user and refreshes reputation ttl
func (r *Redis) AdjustReputation(ctx context.Context, uid int64, field RepField, delta int64) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, ReputationKey(uid), string(field), delta)
		pipe.Expire(ctx, ReputationKey(uid), reputationTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't adjust %s reputation of %d: %w", field, uid, err)
	}
	return nil
}

// toInt64 converts HMGET value to int64, false if value is missing or not a number
func toInt64(v interface{}) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	res, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return res, true
}
