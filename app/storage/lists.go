package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ListKind is a kind of list, white or black
type ListKind string

// enum of list kinds
const (
	Whitelist ListKind = "whitelist"
	Blacklist ListKind = "blacklist"
)

// ListTarget is what the list holds, users or words
type ListTarget string

// enum of list targets
const (
	ListUsers ListTarget = "users"
	ListWords ListTarget = "words"
)

// ErrBadList returned for unknown list kind or target
var ErrBadList = errors.New("unknown list")

// ListKey returns redis key of the list, i.e. tg:whitelist:users
func ListKey(kind ListKind, target ListTarget) (string, error) {
	if kind != Whitelist && kind != Blacklist {
		return "", fmt.Errorf("%w kind %q", ErrBadList, kind)
	}
	if target != ListUsers && target != ListWords {
		return "", fmt.Errorf("%w target %q", ErrBadList, target)
	}
	return "tg:" + string(kind) + ":" + string(target), nil
}

// ParseListTarget converts command argument (user, users, word, words) to ListTarget
func ParseListTarget(s string) (ListTarget, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "users":
		return ListUsers, nil
	case "word", "words":
		return ListWords, nil
	}
	return "", fmt.Errorf("%w target %q", ErrBadList, s)
}

// ListAdd adds value to the list, returns false if it was already there.
// Words are stored in lower case.
func (r *Redis) ListAdd(ctx context.Context, kind ListKind, target ListTarget, value string) (bool, error) {
	key, err := ListKey(kind, target)
	if err != nil {
		return false, err
	}
	n, err := r.rdb.SAdd(ctx, key, normalizeListValue(target, value)).Result()
	if err != nil {
		return false, fmt.Errorf("can't add %q to %s: %w", value, key, err)
	}
	return n > 0, nil
}

// ListRemove removes value from the list, returns false if it was not there
func (r *Redis) ListRemove(ctx context.Context, kind ListKind, target ListTarget, value string) (bool, error) {
	key, err := ListKey(kind, target)
	if err != nil {
		return false, err
	}
	n, err := r.rdb.SRem(ctx, key, normalizeListValue(target, value)).Result()
	if err != nil {
		return false, fmt.Errorf("can't remove %q from %s: %w", value, key, err)
	}
	return n > 0, nil
}

// ListFind searches the list. Query "*" returns all members, a member of the list returns itself,
// anything else is used as a regular expression matched against all members.
func (r *Redis) ListFind(ctx context.Context, kind ListKind, target ListTarget, query string) ([]string, error) {
	key, err := ListKey(kind, target)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query != "*" {
		ok, err := r.rdb.SIsMember(ctx, key, normalizeListValue(target, query)).Result()
		if err != nil {
			return nil, fmt.Errorf("can't check %q in %s: %w", query, key, err)
		}
		if ok {
			return []string{normalizeListValue(target, query)}, nil
		}
	}

	members, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get members of %s: %w", key, err)
	}
	slices.Sort(members)
	if query == "*" {
		return members, nil
	}

	re, err := regexp.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", query, err)
	}
	res := []string{}
	for _, m := range members {
		if re.MatchString(m) {
			res = append(res, m)
		}
	}
	return res, nil
}

// InList checks if value is in the list
func (r *Redis) InList(ctx context.Context, kind ListKind, target ListTarget, value string) (bool, error) {
	key, err := ListKey(kind, target)
	if err != nil {
		return false, err
	}
	ok, err := r.rdb.SIsMember(ctx, key, normalizeListValue(target, value)).Result()
	if err != nil {
		return false, fmt.Errorf("can't check %q in %s: %w", value, key, err)
	}
	return ok, nil
}

// ListedWord returns the first word of the list found in the text, case-insensitive
func (r *Redis) ListedWord(ctx context.Context, kind ListKind, text string) (string, bool, error) {
	key, err := ListKey(kind, ListWords)
	if err != nil {
		return "", false, err
	}
	words, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return "", false, fmt.Errorf("can't get members of %s: %w", key, err)
	}
	slices.Sort(words)
	lower := strings.ToLower(text)
	for _, w := range words {
		if w != "" && strings.Contains(lower, w) {
			return w, true, nil
		}
	}
	return "", false, nil
}

func normalizeListValue(target ListTarget, value string) string {
	value = strings.TrimSpace(value)
	if target == ListWords {
		return strings.ToLower(value)
	}
	return value
}
