package learning

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/umputun/tg-rspamd/app/rspamd"
)

// bayes redis keys
const (
	bayesLearnedPrefix  = "tg:bayes:learned:"
	bayesSpamMessages   = "tg:bayes:spam_messages"
	bayesHamMessages    = "tg:bayes:ham_messages"
	bayesSpamTokens     = "tg:bayes:spam_tokens"
	bayesHamTokens      = "tg:bayes:ham_tokens"
	bayesLearnedTTL     = 7 * 24 * time.Hour
	minLearnContentSize = 10
)

// classifier thresholds
const (
	MinSpamMessages = 200
	MinHamMessages  = 200

	AutoLearnSpamScore = 6.0
	AutoLearnHamScore  = -0.5
)

// BayesStats is a state of bayes classifier
type BayesStats struct {
	SpamTokens   int64 `json:"spam_tokens"`
	HamTokens    int64 `json:"ham_tokens"`
	SpamMessages int64 `json:"spam_messages"`
	HamMessages  int64 `json:"ham_messages"`
	Total        int64 `json:"total_messages"`
	SpamRatio    int64 `json:"spam_ratio_percent"`
}

// BayesInfo is BayesStats with readiness and training progress
type BayesInfo struct {
	BayesStats
	Ready        bool  `json:"is_ready"`
	MinSpam      int64 `json:"min_spam_required"`
	MinHam       int64 `json:"min_ham_required"`
	SpamProgress int64 `json:"spam_progress_percent"`
	HamProgress  int64 `json:"ham_progress_percent"`
}

// Status returns human-readable readiness
func (i BayesInfo) Status() string {
	if i.Ready {
		return "Ready"
	}
	return "Training"
}

// Bayes learns messages with rspamd bayes classifier and keeps learning records
type Bayes struct {
	rdb    redis.UniversalClient
	client RspamdClient
	neural *Neural
}

// NewBayes makes bayes manager. Neural is optional, if set its training stats are updated on every learned message.
func NewBayes(rdb redis.UniversalClient, client RspamdClient, neural *Neural) *Bayes {
	return &Bayes{rdb: rdb, client: client, neural: neural}
}

// LearnSpam learns the message as spam
func (b *Bayes) LearnSpam(ctx context.Context, msg rspamd.Message) error {
	return b.learn(ctx, ClassSpam, msg)
}

// LearnHam learns the message as ham
func (b *Bayes) LearnHam(ctx context.Context, msg rspamd.Message) error {
	return b.learn(ctx, ClassHam, msg)
}

// AutoLearn learns the message if its score is confidently spam or ham. Messages failed validation are skipped.
// Returns the learned class, empty if nothing learned.
func (b *Bayes) AutoLearn(ctx context.Context, msg rspamd.Message, score float64) (Class, error) {
	var class Class
	switch {
	case score >= AutoLearnSpamScore:
		class = ClassSpam
	case score <= AutoLearnHamScore:
		class = ClassHam
	default:
		return "", nil
	}
	if err := b.learn(ctx, class, msg); err != nil {
		if errors.Is(err, ErrInvalidContent) {
			return "", nil
		}
		return "", err
	}
	return class, nil
}

// Validate checks the message can be learned
func (b *Bayes) Validate(ctx context.Context, msg rspamd.Message) error {
	if strings.TrimSpace(msg.Text) == "" {
		return fmt.Errorf("%w: empty message %s", ErrInvalidContent, MessageKey(msg))
	}
	if len(msg.Text) < minLearnContentSize {
		return fmt.Errorf("%w: message too short (%d chars), minimum %d characters required",
			ErrInvalidContent, len(msg.Text), minLearnContentSize)
	}
	class, learned, err := b.Learned(ctx, MessageKey(msg))
	if err != nil {
		return err
	}
	if learned {
		return fmt.Errorf("%w: message %s has already been learned as %s", ErrInvalidContent, MessageKey(msg), class)
	}
	return nil
}

// Learned returns class the message was learned as, false if not learned
func (b *Bayes) Learned(ctx context.Context, id string) (Class, bool, error) {
	for _, class := range []Class{ClassSpam, ClassHam} {
		n, err := b.rdb.Exists(ctx, bayesLearnedPrefix+string(class)+":"+id).Result()
		if err != nil {
			return "", false, fmt.Errorf("can't check learned %s: %w", id, err)
		}
		if n > 0 {
			return class, true, nil
		}
	}
	return "", false, nil
}

// Stats returns bayes classifier stats
func (b *Bayes) Stats(ctx context.Context) (BayesStats, error) {
	pipe := b.rdb.Pipeline()
	spamTokens := pipe.SCard(ctx, bayesSpamTokens)
	hamTokens := pipe.SCard(ctx, bayesHamTokens)
	spamMsgs := pipe.Get(ctx, bayesSpamMessages)
	hamMsgs := pipe.Get(ctx, bayesHamMessages)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return BayesStats{}, fmt.Errorf("can't get bayes stats: %w", err)
	}

	res := BayesStats{SpamTokens: spamTokens.Val(), HamTokens: hamTokens.Val()}
	res.SpamMessages, _ = spamMsgs.Int64()
	res.HamMessages, _ = hamMsgs.Int64()
	res.Total = res.SpamMessages + res.HamMessages
	if res.Total > 0 {
		res.SpamRatio = res.SpamMessages * 100 / res.Total
	}
	return res, nil
}

// IsReady checks if the classifier learned enough spam and ham
func (b *Bayes) IsReady(ctx context.Context) (bool, error) {
	st, err := b.Stats(ctx)
	if err != nil {
		return false, err
	}
	return st.SpamMessages >= MinSpamMessages && st.HamMessages >= MinHamMessages, nil
}

// Info returns stats with readiness and progress
func (b *Bayes) Info(ctx context.Context) (BayesInfo, error) {
	st, err := b.Stats(ctx)
	if err != nil {
		return BayesInfo{}, err
	}
	return BayesInfo{
		BayesStats:   st,
		Ready:        st.SpamMessages >= MinSpamMessages && st.HamMessages >= MinHamMessages,
		MinSpam:      MinSpamMessages,
		MinHam:       MinHamMessages,
		SpamProgress: progress(st.SpamMessages, MinSpamMessages),
		HamProgress:  progress(st.HamMessages, MinHamMessages),
	}, nil
}

// Reset removes all bayes tracking data
func (b *Bayes) Reset(ctx context.Context) error {
	keys := []string{bayesSpamTokens, bayesHamTokens, bayesSpamMessages, bayesHamMessages}
	iter := b.rdb.Scan(ctx, 0, bayesLearnedPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("can't scan learned messages: %w", err)
	}
	if err := b.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("can't reset bayes data: %w", err)
	}
	log.Printf("[INFO] bayes data reset, %d keys removed", len(keys))
	return nil
}

func (b *Bayes) learn(ctx context.Context, class Class, msg rspamd.Message) error {
	if err := b.Validate(ctx, msg); err != nil {
		return err
	}

	var err error
	switch class {
	case ClassSpam:
		err = b.client.LearnSpam(ctx, msg)
	case ClassHam:
		err = b.client.LearnHam(ctx, msg)
	default:
		return fmt.Errorf("unknown class %q", class)
	}
	if err != nil {
		return fmt.Errorf("can't learn %s as %s: %w", MessageKey(msg), class, err)
	}

	counter := bayesSpamMessages
	if class == ClassHam {
		counter = bayesHamMessages
	}
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, bayesLearnedPrefix+string(class)+":"+MessageKey(msg), "1", bayesLearnedTTL)
		pipe.Incr(ctx, counter)
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't record learned %s: %w", MessageKey(msg), err)
	}

	if b.neural != nil {
		if err := b.neural.recordTraining(ctx, class, MessageKey(msg), msg.Text); err != nil {
			log.Printf("[WARN] can't update neural stats for %s: %v", MessageKey(msg), err)
		}
	}
	log.Printf("[INFO] message %s learned as %s", MessageKey(msg), class)
	return nil
}

func progress(val, limit int64) int64 {
	if limit <= 0 {
		return 0
	}
	return min(val*100/limit, 100)
}
