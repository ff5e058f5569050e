package trust

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Config is reply-aware filtering configuration, kept in redis hash and changed by admin commands
type Config struct {
	RateLimit           bool    `json:"rate_limit"`
	AntiEvasion         bool    `json:"anti_evasion"`
	SelectiveTrust      bool    `json:"selective_trust"`
	MaxReduction        float64 `json:"max_reduction"`
	MinSpamScore        float64 `json:"min_spam_score"`
	TrustBot            bool    `json:"trust_bot"`
	TrustAdmin          bool    `json:"trust_admin"`
	TrustVerified       bool    `json:"trust_verified"`
	TrustGoodReputation bool    `json:"trust_good_reputation"`
	TrustRecentOnly     bool    `json:"trust_recent_only"`
}

// DefaultConfig returns config used for missing fields
func DefaultConfig() Config {
	return Config{
		RateLimit:           true,
		AntiEvasion:         true,
		SelectiveTrust:      true,
		MaxReduction:        -5,
		MinSpamScore:        1,
		TrustBot:            true,
		TrustAdmin:          true,
		TrustVerified:       false,
		TrustGoodReputation: true,
		TrustRecentOnly:     true,
	}
}

// ReplySettings lists settings changed by /replyconfig
var ReplySettings = []string{"rate_limit", "anti_evasion", "selective_trust", "max_reduction", "min_spam_score"}

// TrustRules lists settings changed by /selectivetrust
var TrustRules = []string{"trust_bot", "trust_admin", "trust_verified", "trust_good_reputation", "trust_recent_only"}

// Config returns current configuration, defaults for anything not set
func (m *Manager) Config(ctx context.Context) (Config, error) {
	vals, err := m.rdb.HGetAll(ctx, configKey).Result()
	if err != nil {
		return Config{}, fmt.Errorf("can't get trust config: %w", err)
	}
	res := DefaultConfig()
	for k, v := range vals {
		if err := res.set(k, v); err != nil {
			return Config{}, err
		}
	}
	return res, nil
}

// SetConfig validates and stores a config setting
func (m *Manager) SetConfig(ctx context.Context, name, value string) (Config, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.ToLower(strings.TrimSpace(value))
	cfg, err := m.Config(ctx)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.set(name, value); err != nil {
		return Config{}, err
	}
	if err := m.rdb.HSet(ctx, configKey, name, value).Err(); err != nil {
		return Config{}, fmt.Errorf("can't store trust setting %s: %w", name, err)
	}
	return cfg, nil
}

// Values returns config as name to value map, used for display
func (c Config) Values() map[string]string {
	return map[string]string{
		"rate_limit":            strconv.FormatBool(c.RateLimit),
		"anti_evasion":          strconv.FormatBool(c.AntiEvasion),
		"selective_trust":       strconv.FormatBool(c.SelectiveTrust),
		"max_reduction":         strconv.FormatFloat(c.MaxReduction, 'f', -1, 64),
		"min_spam_score":        strconv.FormatFloat(c.MinSpamScore, 'f', -1, 64),
		"trust_bot":             strconv.FormatBool(c.TrustBot),
		"trust_admin":           strconv.FormatBool(c.TrustAdmin),
		"trust_verified":        strconv.FormatBool(c.TrustVerified),
		"trust_good_reputation": strconv.FormatBool(c.TrustGoodReputation),
		"trust_recent_only":     strconv.FormatBool(c.TrustRecentOnly),
	}
}

// String returns sorted "name: value" lines
func (c Config) String() string {
	vals := c.Values()
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+vals[k])
	}
	return strings.Join(lines, "\n")
}

func (c *Config) set(name, value string) error {
	boolPtr := map[string]*bool{
		"rate_limit":            &c.RateLimit,
		"anti_evasion":          &c.AntiEvasion,
		"selective_trust":       &c.SelectiveTrust,
		"trust_bot":             &c.TrustBot,
		"trust_admin":           &c.TrustAdmin,
		"trust_verified":        &c.TrustVerified,
		"trust_good_reputation": &c.TrustGoodReputation,
		"trust_recent_only":     &c.TrustRecentOnly,
	}
	if p, ok := boolPtr[name]; ok {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value %q for %s, must be true or false", value, name)
		}
		*p = v
		return nil
	}

	switch name {
	case "max_reduction":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v > 0 {
			return fmt.Errorf("invalid value %q for %s, must be a non-positive number", value, name)
		}
		c.MaxReduction = v
	case "min_spam_score":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("invalid value %q for %s, must be a non-negative number", value, name)
		}
		c.MinSpamScore = v
	default:
		return fmt.Errorf("unknown trust setting %q", name)
	}
	return nil
}
