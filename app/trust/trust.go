// Package trust marks messages of bots and admins as trusted and softens scoring of replies to them.
// Trust is limited by per-user rate limits, selective trust rules and anti-evasion checks of the reply text.
package trust

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/umputun/tg-rspamd/app/storage"
	"github.com/umputun/tg-rspamd/lib/textfeat"
)

// Reputations provides user reputation
type Reputations interface {
	Reputation(ctx context.Context, uid int64) (storage.Reputation, error)
}

// redis keys
const (
	trustedPrefix      = "tg:trusted:"
	metadataSuffix     = ":metadata"
	repliesPrefix      = "tg:replies:"
	rateTrustedPrefix  = "tg:rate:trusted:"
	rateRepliesPrefix  = "tg:rate:replies:"
	spamPatternsPrefix = "tg:spam:replies:"
	configKey          = "tg:trust:config"
)

const (
	trustedTTL      = 24 * time.Hour
	replyTTL        = 7 * 24 * time.Hour
	rateWindow      = time.Hour
	spamPatternsTTL = time.Hour

	// MaxTrustedPerHour limits trusted messages a user can create per hour
	MaxTrustedPerHour = 10
	// MaxRepliesPerHour limits tracked replies to trusted messages per user per hour
	MaxRepliesPerHour = 50
	// MinReputationForTrust is the lowest bad-minus-good reputation score a trusted sender can have
	MinReputationForTrust = -2
	// MaxMessageAge is the oldest message selective trust accepts
	MaxMessageAge = time.Hour
)

// anti-evasion limits of a reply to a trusted message
const (
	maxLinksInReply   = 2
	maxPhonesInReply  = 1
	maxInvitesInReply = 0
	maxCapsInReply    = 0.5
	maxEmojiInReply   = 5
	minCapsLetters    = 10
)

// Type is a type of trusted message
type Type string

// enum of trusted message types
const (
	TypeBot      Type = "bot"
	TypeAdmin    Type = "admin"
	TypeVerified Type = "verified"
)

// ParseType converts string to Type
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeBot, TypeAdmin, TypeVerified:
		return t, nil
	}
	return "", fmt.Errorf("invalid trust type %q, must be bot, admin or verified", s)
}

// Level returns score reduction for replies to the message of this type
func (t Type) Level() float64 {
	switch t {
	case TypeBot:
		return -3
	case TypeAdmin:
		return -2
	case TypeVerified:
		return -1
	}
	return 0
}

// Metadata describes a trusted message
type Metadata struct {
	MsgID    int
	ChatID   int64
	SenderID int64
	Type     Type
	Time     time.Time
}

// Stats is a summary of trusted messages and tracked replies
type Stats struct {
	Trusted int `json:"trusted"`
	Replies int `json:"replies"`
}

// RateStats is a summary of rate limit counters
type RateStats struct {
	TrustedUsers int   `json:"trusted_users"`
	TrustedTotal int64 `json:"trusted_total"`
	ReplyUsers   int   `json:"reply_users"`
	ReplyTotal   int64 `json:"reply_total"`
}

// EvasionStats is a summary of tracked reply spam patterns
type EvasionStats struct {
	Users    int `json:"users"`
	Patterns int `json:"patterns"`
}

// Manager keeps trusted messages, replies to them and rate limits in redis
type Manager struct {
	rdb  redis.UniversalClient
	reps Reputations
	now  func() time.Time
}

// NewManager makes trust manager
func NewManager(rdb redis.UniversalClient, reps Reputations) *Manager {
	return &Manager{rdb: rdb, reps: reps, now: time.Now}
}

// CheckRate increments the counter at key unless it already reached maxCount.
// Returns false if the limit is reached.
func (m *Manager) CheckRate(ctx context.Context, key string, maxCount int64, window time.Duration) (bool, error) {
	cur, err := m.counter(ctx, key)
	if err != nil {
		return false, err
	}
	if cur >= maxCount {
		return false, nil
	}
	if err := m.rdb.Set(ctx, key, cur+1, window).Err(); err != nil {
		return false, fmt.Errorf("can't set rate counter %s: %w", key, err)
	}
	return true, nil
}

// PeekRate checks the counter at key without incrementing it
func (m *Manager) PeekRate(ctx context.Context, key string, maxCount int64) (bool, error) {
	cur, err := m.counter(ctx, key)
	if err != nil {
		return false, err
	}
	return cur < maxCount, nil
}

// CanCreateTrusted checks and counts the trusted messages rate of the user
func (m *Manager) CanCreateTrusted(ctx context.Context, uid int64) (bool, error) {
	cfg, err := m.Config(ctx)
	if err != nil {
		return false, err
	}
	if !cfg.RateLimit {
		return true, nil
	}
	return m.CheckRate(ctx, rateTrustedPrefix+strconv.FormatInt(uid, 10), MaxTrustedPerHour, rateWindow)
}

// CanReply checks and counts the replies rate of the user
func (m *Manager) CanReply(ctx context.Context, uid int64) (bool, error) {
	cfg, err := m.Config(ctx)
	if err != nil {
		return false, err
	}
	if !cfg.RateLimit {
		return true, nil
	}
	return m.CheckRate(ctx, rateRepliesPrefix+strconv.FormatInt(uid, 10), MaxRepliesPerHour, rateWindow)
}

// ShouldTrust applies selective trust rules to the message
func (m *Manager) ShouldTrust(ctx context.Context, md Metadata) (bool, error) {
	cfg, err := m.Config(ctx)
	if err != nil {
		return false, err
	}
	if !cfg.SelectiveTrust {
		return true, nil
	}

	switch md.Type {
	case TypeBot:
		if !cfg.TrustBot {
			return false, nil
		}
	case TypeAdmin:
		if !cfg.TrustAdmin {
			return false, nil
		}
	case TypeVerified:
		if !cfg.TrustVerified {
			return false, nil
		}
	default:
		return false, nil
	}

	if cfg.TrustGoodReputation {
		rep, err := m.reps.Reputation(ctx, md.SenderID)
		if err != nil {
			return false, fmt.Errorf("can't get reputation of %d: %w", md.SenderID, err)
		}
		if rep.Score() < MinReputationForTrust {
			return false, nil
		}
	}

	if cfg.TrustRecentOnly && m.now().Sub(md.Time) > MaxMessageAge {
		return false, nil
	}
	return true, nil
}

// MarkTrustedAdvanced marks the message as trusted if the sender is within rate limit
// and the message passes selective trust rules
func (m *Manager) MarkTrustedAdvanced(ctx context.Context, md Metadata) (bool, error) {
	ok, err := m.CanCreateTrusted(ctx, md.SenderID)
	if err != nil || !ok {
		return false, err
	}
	if ok, err = m.ShouldTrust(ctx, md); err != nil || !ok {
		return false, err
	}
	if err := m.MarkTrusted(ctx, md); err != nil {
		return false, err
	}
	return true, nil
}

// MarkTrusted marks the message as trusted for a day, with no checks
func (m *Manager) MarkTrusted(ctx context.Context, md Metadata) error {
	if md.Time.IsZero() {
		md.Time = m.now()
	}
	key := trustedPrefix + strconv.Itoa(md.MsgID)
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, "1", trustedTTL)
		pipe.HSet(ctx, key+metadataSuffix,
			"trusted_sender", md.SenderID,
			"trusted_chat", md.ChatID,
			"trusted_timestamp", md.Time.Unix(),
			"trusted_type", string(md.Type))
		pipe.Expire(ctx, key+metadataSuffix, trustedTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't mark message %d trusted: %w", md.MsgID, err)
	}
	log.Printf("[DEBUG] message %d in chat %d marked as trusted (%s)", md.MsgID, md.ChatID, md.Type)
	return nil
}

// IsTrusted checks if the message is trusted
func (m *Manager) IsTrusted(ctx context.Context, msgID int) (bool, error) {
	n, err := m.rdb.Exists(ctx, trustedPrefix+strconv.Itoa(msgID)).Result()
	if err != nil {
		return false, fmt.Errorf("can't check trusted message %d: %w", msgID, err)
	}
	return n > 0, nil
}

// Metadata returns metadata of the trusted message, false if the message is not trusted
func (m *Manager) Metadata(ctx context.Context, msgID int) (Metadata, bool, error) {
	vals, err := m.rdb.HGetAll(ctx, trustedPrefix+strconv.Itoa(msgID)+metadataSuffix).Result()
	if err != nil {
		return Metadata{}, false, fmt.Errorf("can't get metadata of %d: %w", msgID, err)
	}
	if len(vals) == 0 {
		return Metadata{}, false, nil
	}
	res := Metadata{MsgID: msgID}
	if res.SenderID, err = strconv.ParseInt(vals["trusted_sender"], 10, 64); err != nil {
		return Metadata{}, false, fmt.Errorf("bad sender of trusted message %d: %w", msgID, err)
	}
	if res.ChatID, err = strconv.ParseInt(vals["trusted_chat"], 10, 64); err != nil {
		return Metadata{}, false, fmt.Errorf("bad chat of trusted message %d: %w", msgID, err)
	}
	ts, err := strconv.ParseInt(vals["trusted_timestamp"], 10, 64)
	if err != nil {
		return Metadata{}, false, fmt.Errorf("bad timestamp of trusted message %d: %w", msgID, err)
	}
	res.Time = time.Unix(ts, 0)
	if res.Type, err = ParseType(vals["trusted_type"]); err != nil {
		return Metadata{}, false, err
	}
	return res, true, nil
}

// TrackReply records the reply to the trusted message for a week
func (m *Manager) TrackReply(ctx context.Context, chatID int64, trustedID, replyID int) error {
	key := fmt.Sprintf("%s%d:%d:%d", repliesPrefix, chatID, trustedID, replyID)
	if err := m.rdb.Set(ctx, key, "1", replyTTL).Err(); err != nil {
		return fmt.Errorf("can't track reply %d: %w", replyID, err)
	}
	return nil
}

// ReplyToTrusted returns the trusted message the reply was tracked for
func (m *Manager) ReplyToTrusted(ctx context.Context, chatID int64, replyID int) (int, bool, error) {
	pattern := fmt.Sprintf("%s%d:*:%d", repliesPrefix, chatID, replyID)
	iter := m.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		parts := strings.Split(iter.Val(), ":")
		if len(parts) != 5 {
			continue
		}
		trustedID, err := strconv.Atoi(parts[3])
		if err != nil {
			continue
		}
		return trustedID, true, nil
	}
	if err := iter.Err(); err != nil {
		return 0, false, fmt.Errorf("can't scan replies: %w", err)
	}
	return 0, false, nil
}

// ReplySpamPatterns checks the reply text for evasion patterns, i.e. links or phones stuffed into a reply
// to a trusted message. Detected patterns are remembered for the user for an hour.
func (m *Manager) ReplySpamPatterns(ctx context.Context, uid int64, text string) ([]string, error) {
	cfg, err := m.Config(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.AntiEvasion {
		return nil, nil
	}

	f := textfeat.Extract(text)
	var patterns []string
	if f.LinkCount > maxLinksInReply {
		patterns = append(patterns, "TG_REPLY_LINK_SPAM")
	}
	if f.PhoneCount > maxPhonesInReply {
		patterns = append(patterns, "TG_REPLY_PHONE_SPAM")
	}
	if f.InviteCount > maxInvitesInReply {
		patterns = append(patterns, "TG_REPLY_INVITE_SPAM")
	}
	if f.Letters > minCapsLetters && f.CapsRatio > maxCapsInReply {
		patterns = append(patterns, "TG_REPLY_CAPS_SPAM")
	}
	if f.EmojiCount > maxEmojiInReply {
		patterns = append(patterns, "TG_REPLY_EMOJI_SPAM")
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	key := spamPatternsPrefix + strconv.FormatInt(uid, 10)
	_, err = m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range patterns {
			pipe.SAdd(ctx, key, p)
		}
		pipe.Expire(ctx, key, spamPatternsTTL)
		return nil
	})
	if err != nil {
		return patterns, fmt.Errorf("can't track spam patterns of %d: %w", uid, err)
	}
	return patterns, nil
}

// SpamPatterns returns reply spam patterns recorded for the user
func (m *Manager) SpamPatterns(ctx context.Context, uid int64) ([]string, error) {
	res, err := m.rdb.SMembers(ctx, spamPatternsPrefix+strconv.FormatInt(uid, 10)).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get spam patterns of %d: %w", uid, err)
	}
	return res, nil
}

// ScoreReduction returns score reduction for a reply of the user to a message of type t.
// Users with recorded spam patterns get half of it.
func (m *Manager) ScoreReduction(ctx context.Context, uid int64, t Type) (float64, error) {
	cfg, err := m.Config(ctx)
	if err != nil {
		return 0, err
	}
	reduction := t.Level()
	patterns, err := m.SpamPatterns(ctx, uid)
	if err != nil {
		return 0, err
	}
	if len(patterns) > 0 {
		reduction *= 0.5
	}
	if reduction < cfg.MaxReduction {
		reduction = cfg.MaxReduction
	}
	return reduction, nil
}

// Stats counts trusted messages and tracked replies
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	res := Stats{}
	err := m.scan(ctx, trustedPrefix+"*", func(key string) error {
		if !strings.HasSuffix(key, metadataSuffix) {
			res.Trusted++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	err = m.scan(ctx, repliesPrefix+"*", func(string) error {
		res.Replies++
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return res, nil
}

// RateLimitStats sums rate limit counters of all users
func (m *Manager) RateLimitStats(ctx context.Context) (RateStats, error) {
	res := RateStats{}
	err := m.scan(ctx, rateTrustedPrefix+"*", func(key string) error {
		cnt, err := m.counter(ctx, key)
		res.TrustedUsers++
		res.TrustedTotal += cnt
		return err
	})
	if err != nil {
		return RateStats{}, err
	}
	err = m.scan(ctx, rateRepliesPrefix+"*", func(key string) error {
		cnt, err := m.counter(ctx, key)
		res.ReplyUsers++
		res.ReplyTotal += cnt
		return err
	})
	if err != nil {
		return RateStats{}, err
	}
	return res, nil
}

// UserRate returns current trusted messages and replies counters of the user
func (m *Manager) UserRate(ctx context.Context, uid int64) (trusted, replies int64, err error) {
	if trusted, err = m.counter(ctx, rateTrustedPrefix+strconv.FormatInt(uid, 10)); err != nil {
		return 0, 0, err
	}
	if replies, err = m.counter(ctx, rateRepliesPrefix+strconv.FormatInt(uid, 10)); err != nil {
		return 0, 0, err
	}
	return trusted, replies, nil
}

// ResetRateLimit removes rate limit counters of the user
func (m *Manager) ResetRateLimit(ctx context.Context, uid int64) error {
	id := strconv.FormatInt(uid, 10)
	if err := m.rdb.Del(ctx, rateTrustedPrefix+id, rateRepliesPrefix+id).Err(); err != nil {
		return fmt.Errorf("can't reset rate limits of %d: %w", uid, err)
	}
	return nil
}

// AntiEvasionStats counts users with recorded spam patterns and the patterns
func (m *Manager) AntiEvasionStats(ctx context.Context) (EvasionStats, error) {
	res := EvasionStats{}
	err := m.scan(ctx, spamPatternsPrefix+"*", func(key string) error {
		n, err := m.rdb.SCard(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("can't count %s: %w", key, err)
		}
		res.Users++
		res.Patterns += int(n)
		return nil
	})
	if err != nil {
		return EvasionStats{}, err
	}
	return res, nil
}

func (m *Manager) counter(ctx context.Context, key string) (int64, error) {
	res, err := m.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("can't get counter %s: %w", key, err)
	}
	return res, nil
}

func (m *Manager) scan(ctx context.Context, pattern string, fn func(key string) error) error {
	iter := m.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("can't scan %s: %w", pattern, err)
	}
	return nil
}
