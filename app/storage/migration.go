package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
)

// MigrationReport summarizes reputation migration
type MigrationReport struct {
	Migrated int
	Skipped  int
	Failed   int
}

func (m MigrationReport) String() string {
	return fmt.Sprintf("migrated: %d, skipped: %d, failed: %d", m.Migrated, m.Skipped, m.Failed)
}

// MigrateReputation moves legacy "rep" field of user hashes to the reputation hash.
// Positive rep becomes bad reputation, negative rep becomes good one, zero rep is skipped.
// The legacy field is removed only after the new hash is written and verified.
func (r *Redis) MigrateReputation(ctx context.Context) (MigrationReport, error) {
	report := MigrationReport{}
	errs := new(multierror.Error)

	iter := r.rdb.Scan(ctx, 0, UsersPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		uid, err := strconv.ParseInt(strings.TrimPrefix(key, UsersPrefix), 10, 64)
		if err != nil {
			continue
		}
		rep, err := r.rdb.HGet(ctx, key, FieldRep).Int64()
		if errors.Is(err, redis.Nil) {
			report.Skipped++
			continue
		}
		if err != nil {
			report.Failed++
			errs = multierror.Append(errs, fmt.Errorf("can't read rep of %d: %w", uid, err))
			continue
		}
		if rep == 0 {
			report.Skipped++ // nothing to carry over, current reputation kept as is
			continue
		}
		if err := r.migrateUserRep(ctx, uid, rep); err != nil {
			report.Failed++
			errs = multierror.Append(errs, err)
			continue
		}
		report.Migrated++
	}
	if err := iter.Err(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("can't scan users: %w", err))
	}

	log.Printf("[INFO] reputation migration done, %s", report)
	return report, errs.ErrorOrNil()
}

func (r *Redis) migrateUserRep(ctx context.Context, uid, rep int64) error {
	want := Reputation{Bad: rep}
	if rep < 0 {
		want = Reputation{Good: -rep}
	}

	repKey := ReputationKey(uid)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, repKey, string(RepBad), want.Bad, string(RepGood), want.Good)
		pipe.Expire(ctx, repKey, reputationTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't write reputation of %d: %w", uid, err)
	}

	got, err := r.Reputation(ctx, uid)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("reputation of %d not verified, want %+v, got %+v", uid, want, got)
	}

	if err := r.rdb.HDel(ctx, UserKey(uid), FieldRep).Err(); err != nil {
		return fmt.Errorf("can't remove legacy rep of %d: %w", uid, err)
	}
	return nil
}
