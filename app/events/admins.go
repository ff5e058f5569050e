package events

import (
	"fmt"
	"log"
	"slices"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"
	cache "github.com/go-pkgz/expirable-cache/v3"
)

const (
	defaultAdminsTTL = 5 * time.Minute
	maxCachedChats   = 1000
)

// chatAdmins looks up chat administrators and keeps them in a short-lived cache,
// so every message doesn't hit telegram api
type chatAdmins struct {
	tbAPI TbAPI
	ttl   time.Duration
	cache cache.Cache[int64, []int64]
}

func newChatAdmins(tbAPI TbAPI, ttl time.Duration) *chatAdmins {
	if ttl <= 0 {
		ttl = defaultAdminsTTL
	}
	return &chatAdmins{
		tbAPI: tbAPI,
		ttl:   ttl,
		cache: cache.NewCache[int64, []int64]().WithMaxKeys(maxCachedChats).WithTTL(ttl),
	}
}

// list returns ids of chat administrators. Private chats have no administrators.
func (c *chatAdmins) list(chatID int64) ([]int64, error) {
	if chatID > 0 {
		return nil, nil
	}
	if ids, ok := c.cache.Get(chatID); ok {
		return ids, nil
	}
	admins, err := c.tbAPI.GetChatAdministrators(tbapi.ChatAdministratorsConfig{ChatConfig: tbapi.ChatConfig{ChatID: chatID}})
	if err != nil {
		return nil, fmt.Errorf("failed to get administrators of %d: %w", chatID, err)
	}
	ids := make([]int64, 0, len(admins))
	for _, admin := range admins {
		if admin.User == nil || admin.User.IsBot {
			continue
		}
		ids = append(ids, admin.User.ID)
	}
	c.cache.Set(chatID, ids, c.ttl)
	return ids, nil
}

// isAdmin checks if the user is an administrator of the chat, false on lookup errors
func (c *chatAdmins) isAdmin(chatID, uid int64) bool {
	ids, err := c.list(chatID)
	if err != nil {
		log.Printf("[WARN] %v", err)
		return false
	}
	return slices.Contains(ids, uid)
}
