package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// AdminChat returns the admin chat set for the chat, false if not set
func (r *Redis) AdminChat(ctx context.Context, chatID int64) (int64, bool, error) {
	res, err := r.rdb.HGet(ctx, ChatKey(chatID), FieldAdminChat).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("can't get admin chat of %d: %w", chatID, err)
	}
	return res, true, nil
}

// SetAdminChat sets the chat receiving notifications about moderation in chatID
func (r *Redis) SetAdminChat(ctx context.Context, chatID, adminChatID int64) error {
	if err := r.rdb.HSet(ctx, ChatKey(chatID), FieldAdminChat, adminChatID).Err(); err != nil {
		return fmt.Errorf("can't set admin chat of %d: %w", chatID, err)
	}
	return nil
}

// SetChatName stores the chat title
func (r *Redis) SetChatName(ctx context.Context, chatID int64, name string) error {
	if err := r.rdb.HSet(ctx, ChatKey(chatID), FieldName, name).Err(); err != nil {
		return fmt.Errorf("can't set name of %d: %w", chatID, err)
	}
	return nil
}

// IncrChatField increments a counter in the chat hash, i.e. deleted or warned
func (r *Redis) IncrChatField(ctx context.Context, chatID int64, field string, delta int64) error {
	if err := r.rdb.HIncrBy(ctx, ChatKey(chatID), field, delta).Err(); err != nil {
		return fmt.Errorf("can't increment %s of %d: %w", field, chatID, err)
	}
	return nil
}

// ChatStats returns all fields of the chat hash
func (r *Redis) ChatStats(ctx context.Context, chatID int64) (map[string]string, error) {
	res, err := r.rdb.HGetAll(ctx, ChatKey(chatID)).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get stats of %d: %w", chatID, err)
	}
	return res, nil
}

// AddBotChat registers the chat the bot was added to for the admin
func (r *Redis) AddBotChat(ctx context.Context, adminID, chatID int64) error {
	return r.sadd(ctx, adminKey(adminID, botChatsSuffix), chatID)
}

// RemoveBotChat removes the chat the bot left from the admin chats
func (r *Redis) RemoveBotChat(ctx context.Context, adminID, chatID int64) error {
	if err := r.rdb.SRem(ctx, adminKey(adminID, botChatsSuffix), chatID).Err(); err != nil {
		return fmt.Errorf("can't remove bot chat %d of %d: %w", chatID, adminID, err)
	}
	return nil
}

// BotChats returns chats with the bot where the user is an admin
func (r *Redis) BotChats(ctx context.Context, adminID int64) ([]int64, error) {
	return r.smembersIDs(ctx, adminKey(adminID, botChatsSuffix))
}

// AddAdminChat registers the chat as an admin (control) chat of the user
func (r *Redis) AddAdminChat(ctx context.Context, uid, chatID int64) error {
	return r.sadd(ctx, adminKey(uid, adminChatsSuffix), chatID)
}

// AdminChats returns admin (control) chats of the user
func (r *Redis) AdminChats(ctx context.Context, uid int64) ([]int64, error) {
	return r.smembersIDs(ctx, adminKey(uid, adminChatsSuffix))
}

// AddModeratedChat registers chatID as moderated from the admin chat
func (r *Redis) AddModeratedChat(ctx context.Context, adminChatID, chatID int64) error {
	return r.sadd(ctx, adminKey(adminChatID, moderatedChatsSuffix), chatID)
}

// ModeratedChats returns chats moderated from the admin chat
func (r *Redis) ModeratedChats(ctx context.Context, adminChatID int64) ([]int64, error) {
	return r.smembersIDs(ctx, adminKey(adminChatID, moderatedChatsSuffix))
}

// SaveMessage keeps the message text for a week, so it can be learned later by id
func (r *Redis) SaveMessage(ctx context.Context, chatID int64, msgID int, text string) error {
	if err := r.rdb.Set(ctx, messageKey(chatID, msgID), text, messageTTL).Err(); err != nil {
		return fmt.Errorf("can't save message %d: %w", msgID, err)
	}
	return nil
}

// LoadMessage returns the saved message text, ErrNotFound if expired or never saved
func (r *Redis) LoadMessage(ctx context.Context, chatID int64, msgID int) (string, error) {
	res, err := r.rdb.Get(ctx, messageKey(chatID, msgID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("can't load message %d: %w", msgID, err)
	}
	return res, nil
}

func (r *Redis) sadd(ctx context.Context, key string, id int64) error {
	if err := r.rdb.SAdd(ctx, key, strconv.FormatInt(id, 10)).Err(); err != nil {
		return fmt.Errorf("can't add %d to %s: %w", id, key, err)
	}
	return nil
}

func (r *Redis) smembersIDs(ctx context.Context, key string) ([]int64, error) {
	vals, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get members of %s: %w", key, err)
	}
	return parseIDs(vals), nil
}
