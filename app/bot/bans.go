package bot

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/umputun/tg-rspamd/app/storage"
)

// BanReductionPeriod is the time after which the ban counter of the user is decremented
const BanReductionPeriod = 48 * time.Hour

// BanStore is a subset of redis state with ban counters
type BanStore interface {
	PendingReductions(ctx context.Context, now time.Time, fn func(storage.PendingReduction) error) error
	DecrementBan(ctx context.Context, uid int64, next time.Time) error
	ClearBanReduction(ctx context.Context, uid int64) error
}

// BanDecay decrements ban counters of users periodically, so a user gets
// a permanent ban only for repeated spam within a short time
type BanDecay struct {
	store BanStore
	now   func() time.Time
}

// NewBanDecay makes BanDecay
func NewBanDecay(store BanStore) *BanDecay {
	return &BanDecay{store: store, now: time.Now}
}

// Run reduces ban counters right away and then on cron schedule, i.e. "@every 1h", until context canceled
func (b *BanDecay) Run(ctx context.Context, schedule string) error {
	job := func() {
		n, err := b.Reduce(ctx)
		if err != nil {
			log.Printf("[WARN] ban decay failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[INFO] ban counters reduced for %d users", n)
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))))
	if _, err := c.AddFunc(schedule, job); err != nil {
		return fmt.Errorf("invalid ban decay schedule %q: %w", schedule, err)
	}
	log.Printf("[INFO] ban decay started, schedule %q", schedule)
	job()
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// Reduce processes users with due reduction time. Users with non-zero ban counter get it decremented
// and the next reduction scheduled, others get the reduction time removed. Returns the number of decremented users.
func (b *BanDecay) Reduce(ctx context.Context) (int, error) {
	now := b.now()
	count := 0
	err := b.store.PendingReductions(ctx, now, func(p storage.PendingReduction) error {
		if p.BannedQ > 0 {
			if err := b.store.DecrementBan(ctx, p.UserID, now.Add(BanReductionPeriod)); err != nil {
				return err
			}
			count++
			return nil
		}
		return b.store.ClearBanReduction(ctx, p.UserID)
	})
	if err != nil {
		return count, fmt.Errorf("can't reduce ban counters: %w", err)
	}
	return count, nil
}
