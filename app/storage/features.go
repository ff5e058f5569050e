package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// DefaultFeatures are the features enabled for every chat unless disabled
var DefaultFeatures = []string{
	"flood", "repeat", "suspicious", "ban", "perm_ban", "link_spam", "mentions", "caps", "emoji_spam",
	"first_fast", "first_slow", "silent", "whitelist", "blacklist", "invite_link", "phone_spam", "spam_chat",
	"shortener", "gibberish", "reply_aware", "trusted_replies",
}

// GlobalFeatures returns the global set of enabled features, seeding it with defaults if empty
func (r *Redis) GlobalFeatures(ctx context.Context) ([]string, error) {
	res, err := r.rdb.SMembers(ctx, EnabledFeaturesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get enabled features: %w", err)
	}
	if len(res) == 0 {
		args := make([]interface{}, 0, len(DefaultFeatures))
		for _, f := range DefaultFeatures {
			args = append(args, f)
		}
		if err := r.rdb.SAdd(ctx, EnabledFeaturesKey, args...).Err(); err != nil {
			return nil, fmt.Errorf("can't seed enabled features: %w", err)
		}
		res = slices.Clone(DefaultFeatures)
	}
	slices.Sort(res)
	return res, nil
}

// AddGlobalFeature adds a feature to the global set, used for custom rule symbols
func (r *Redis) AddGlobalFeature(ctx context.Context, name string) error {
	if _, err := r.GlobalFeatures(ctx); err != nil { // make sure defaults are seeded first
		return err
	}
	if err := r.rdb.SAdd(ctx, EnabledFeaturesKey, name).Err(); err != nil {
		return fmt.Errorf("can't add feature %s: %w", name, err)
	}
	return nil
}

// Features returns features enabled for the chat, i.e. global features except disabled for the chat
func (r *Redis) Features(ctx context.Context, chatID int64) ([]string, error) {
	global, err := r.GlobalFeatures(ctx)
	if err != nil {
		return nil, err
	}
	disabled, err := r.rdb.SMembers(ctx, ChatKey(chatID)+disabledSuffix).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get disabled features of %d: %w", chatID, err)
	}
	res := make([]string, 0, len(global))
	for _, f := range global {
		if slices.Contains(disabled, f) {
			continue
		}
		res = append(res, f)
	}
	return res, nil
}

// FeatureEnabled checks if the feature is enabled for the chat
func (r *Redis) FeatureEnabled(ctx context.Context, chatID int64, name string) (bool, error) {
	features, err := r.Features(ctx, chatID)
	if err != nil {
		return false, err
	}
	return slices.Contains(features, name), nil
}

// EnableFeature enables the feature for the chat
func (r *Redis) EnableFeature(ctx context.Context, chatID int64, name string) error {
	name, err := r.knownFeature(ctx, name)
	if err != nil {
		return err
	}
	if err := r.rdb.SRem(ctx, ChatKey(chatID)+disabledSuffix, name).Err(); err != nil {
		return fmt.Errorf("can't enable %s for %d: %w", name, chatID, err)
	}
	return nil
}

// DisableFeature disables the feature for the chat
func (r *Redis) DisableFeature(ctx context.Context, chatID int64, name string) error {
	name, err := r.knownFeature(ctx, name)
	if err != nil {
		return err
	}
	if err := r.rdb.SAdd(ctx, ChatKey(chatID)+disabledSuffix, name).Err(); err != nil {
		return fmt.Errorf("can't disable %s for %d: %w", name, chatID, err)
	}
	return nil
}

func (r *Redis) knownFeature(ctx context.Context, name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	global, err := r.GlobalFeatures(ctx)
	if err != nil {
		return "", err
	}
	for _, f := range global {
		if strings.ToLower(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown feature %q", name)
}
