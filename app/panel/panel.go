// Package panel implements the admin panel: a dedicated chat with a set of panel admins,
// each granted permissions by a group preset. Panel state, audit log and settings are kept in redis.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redis keys
const (
	chatKey            = "admin:panel:chat_id"
	membersKey         = "admin:panel:members"
	permissionsKey     = "admin:panel:permissions"
	auditLogKey        = "admin:panel:audit_log"
	settingsKey        = "admin:panel:settings"
	monitoredChatsKey  = "admin:panel:monitored_chats"
	emergencyKey       = "admin:emergency_stop"
	emergencyAtKey     = "admin:emergency_stop_timestamp"
	emergencyByKey     = "admin:emergency_stop_by"
	maxAuditLogEntries = 1000
)

var (
	// ErrNotSetup returned when the panel chat was never set up
	ErrNotSetup = errors.New("admin panel is not set up")
	// ErrAlreadyAdmin returned by AddAdmin for an existing panel admin
	ErrAlreadyAdmin = errors.New("user is already a panel admin")
	// ErrNotAdmin returned when the user is not a panel admin
	ErrNotAdmin = errors.New("user is not a panel admin")
)

// Status of the admin panel
type Status int

// enum of statuses
const (
	StatusNotSetup Status = iota
	StatusActive
	StatusMaintenance
	StatusDisabled
)

func (s Status) String() string {
	switch s {
	case StatusNotSetup:
		return "Not Setup"
	case StatusActive:
		return "Active"
	case StatusMaintenance:
		return "Maintenance"
	case StatusDisabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// User identifies a telegram user acting on the panel
type User struct {
	ID          int64
	UserName    string
	DisplayName string
}

// AdminUser is a panel admin record, stored as json in the permissions hash
type AdminUser struct {
	UserID       int64      `json:"user_id"`
	UserName     string     `json:"username,omitempty"`
	DisplayName  string     `json:"display_name"`
	Group        Group      `json:"group"`
	Permissions  Permission `json:"-"`
	AddedBy      int64      `json:"added_by"`
	AddedAt      time.Time  `json:"added_at"`
	LastActivity time.Time  `json:"last_activity"`
}

// MarshalJSON stores permissions as a list of names
func (a AdminUser) MarshalJSON() ([]byte, error) {
	type plain AdminUser
	return json.Marshal(struct {
		plain
		Permissions []string `json:"permissions"`
	}{plain: plain(a), Permissions: a.Permissions.Names()})
}

// UnmarshalJSON restores permissions from a list of names
func (a *AdminUser) UnmarshalJSON(data []byte) error {
	type plain AdminUser
	var v struct {
		plain
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = AdminUser(v.plain)
	a.Permissions = permissionsFromNames(v.Permissions)
	return nil
}

// AuditEntry is a single record of the audit log
type AuditEntry struct {
	Time     time.Time `json:"timestamp"`
	UserID   int64     `json:"user_id"`
	UserName string    `json:"user_name"`
	Action   string    `json:"action"`
	Details  string    `json:"details,omitempty"`
}

// Emergency describes emergency stop state
type Emergency struct {
	Stopped bool
	At      time.Time
	By      int64
}

// Panel manages admin panel state in redis
type Panel struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// New makes Panel with redis client
func New(rdb redis.UniversalClient) *Panel {
	return &Panel{rdb: rdb, now: time.Now}
}

// Setup makes chatID the panel chat and its creator an administrator
func (p *Panel) Setup(ctx context.Context, chatID int64, by User) error {
	if err := p.rdb.Set(ctx, chatKey, chatID, 0).Err(); err != nil {
		return fmt.Errorf("can't store panel chat: %w", err)
	}
	admin := p.newAdmin(by, GroupAdministrator, by.ID)
	if err := p.storeAdmin(ctx, admin); err != nil {
		return fmt.Errorf("can't add panel creator: %w", err)
	}
	log.Printf("[INFO] admin panel set up in chat %d by %d", chatID, by.ID)
	return nil
}

// ChatID returns panel chat, false if the panel is not set up
func (p *Panel) ChatID(ctx context.Context) (int64, bool, error) {
	id, err := p.rdb.Get(ctx, chatKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("can't get panel chat: %w", err)
	}
	return id, true, nil
}

// Status returns current panel status. Maintenance wins over emergency stop.
func (p *Panel) Status(ctx context.Context) (Status, error) {
	_, ok, err := p.ChatID(ctx)
	if err != nil {
		return StatusNotSetup, err
	}
	if !ok {
		return StatusNotSetup, nil
	}
	maint, err := p.rdb.HGet(ctx, settingsKey, "maintenance_mode").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return StatusNotSetup, fmt.Errorf("can't get maintenance mode: %w", err)
	}
	if maint == "true" {
		return StatusMaintenance, nil
	}
	stopped, err := p.Stopped(ctx)
	if err != nil {
		return StatusNotSetup, err
	}
	if stopped {
		return StatusDisabled, nil
	}
	return StatusActive, nil
}

// AddAdmin adds user to the panel with group permissions, viewer if group is empty
func (p *Panel) AddAdmin(ctx context.Context, user User, group Group, by int64) (AdminUser, error) {
	if group == "" {
		group = GroupViewer
	}
	if _, err := ParseGroup(string(group)); err != nil {
		return AdminUser{}, err
	}
	member, err := p.rdb.SIsMember(ctx, membersKey, user.ID).Result()
	if err != nil {
		return AdminUser{}, fmt.Errorf("can't check panel member %d: %w", user.ID, err)
	}
	if member {
		return AdminUser{}, fmt.Errorf("%d: %w", user.ID, ErrAlreadyAdmin)
	}
	admin := p.newAdmin(user, group, by)
	if err := p.storeAdmin(ctx, admin); err != nil {
		return AdminUser{}, err
	}
	return admin, nil
}

// RemoveAdmin removes user from the panel
func (p *Panel) RemoveAdmin(ctx context.Context, uid int64) error {
	var removed *redis.IntCmd
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, membersKey, uid)
		pipe.HDel(ctx, permissionsKey, strconv.FormatInt(uid, 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't remove panel admin %d: %w", uid, err)
	}
	if removed.Val() == 0 {
		return fmt.Errorf("%d: %w", uid, ErrNotAdmin)
	}
	return nil
}

// Admin returns panel admin record, false if uid is not a panel admin
func (p *Panel) Admin(ctx context.Context, uid int64) (AdminUser, bool, error) {
	member, err := p.rdb.SIsMember(ctx, membersKey, uid).Result()
	if err != nil {
		return AdminUser{}, false, fmt.Errorf("can't check panel member %d: %w", uid, err)
	}
	if !member {
		return AdminUser{}, false, nil
	}
	data, err := p.rdb.HGet(ctx, permissionsKey, strconv.FormatInt(uid, 10)).Result()
	if errors.Is(err, redis.Nil) {
		// member without a record has no permissions
		return AdminUser{UserID: uid}, true, nil
	}
	if err != nil {
		return AdminUser{}, false, fmt.Errorf("can't get panel admin %d: %w", uid, err)
	}
	var res AdminUser
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return AdminUser{}, false, fmt.Errorf("can't decode panel admin %d: %w", uid, err)
	}
	return res, true, nil
}

// Admins returns all panel admins ordered by user id
func (p *Panel) Admins(ctx context.Context) ([]AdminUser, error) {
	vals, err := p.rdb.HGetAll(ctx, permissionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get panel admins: %w", err)
	}
	res := make([]AdminUser, 0, len(vals))
	for k, v := range vals {
		var a AdminUser
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			log.Printf("[WARN] can't decode panel admin %s: %v", k, err)
			continue
		}
		res = append(res, a)
	}
	slices.SortFunc(res, func(a, b AdminUser) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		default:
			return 0
		}
	})
	return res, nil
}

// SetPermissions replaces admin permissions with the group preset
func (p *Panel) SetPermissions(ctx context.Context, uid int64, group Group, by int64) (AdminUser, error) {
	if _, err := ParseGroup(string(group)); err != nil {
		return AdminUser{}, err
	}
	admin, ok, err := p.Admin(ctx, uid)
	if err != nil {
		return AdminUser{}, err
	}
	if !ok {
		return AdminUser{}, fmt.Errorf("%d: %w", uid, ErrNotAdmin)
	}
	admin.Group = group
	admin.Permissions = group.Permissions()
	admin.LastActivity = p.now()
	if err := p.storeAdmin(ctx, admin); err != nil {
		return AdminUser{}, err
	}
	log.Printf("[INFO] panel admin %d permissions set to %s by %d", uid, group, by)
	return admin, nil
}

// HasPermission checks if uid is a panel admin granted perm, touches last activity on success
func (p *Panel) HasPermission(ctx context.Context, uid int64, perm Permission) (bool, error) {
	admin, ok, err := p.Admin(ctx, uid)
	if err != nil || !ok {
		return false, err
	}
	if !admin.Permissions.Has(perm) {
		return false, nil
	}
	admin.LastActivity = p.now()
	if err := p.storeAdmin(ctx, admin); err != nil {
		log.Printf("[WARN] can't update activity of panel admin %d: %v", uid, err)
	}
	return true, nil
}

// Audit appends an entry to the audit log, keeping the last maxAuditLogEntries records
func (p *Panel) Audit(ctx context.Context, entry AuditEntry) error {
	if entry.Time.IsZero() {
		entry.Time = p.now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("can't encode audit entry: %w", err)
	}
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, auditLogKey, data)
		pipe.LTrim(ctx, auditLogKey, 0, maxAuditLogEntries-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't add audit entry: %w", err)
	}
	return nil
}

// AuditLog returns entries made since the given time, newest first
func (p *Panel) AuditLog(ctx context.Context, since time.Time) ([]AuditEntry, error) {
	vals, err := p.rdb.LRange(ctx, auditLogKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get audit log: %w", err)
	}
	res := []AuditEntry{}
	for _, v := range vals {
		var e AuditEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		if e.Time.Before(since) {
			continue
		}
		res = append(res, e)
	}
	slices.SortStableFunc(res, func(a, b AuditEntry) int { return b.Time.Compare(a.Time) })
	return res, nil
}

// Configure validates and stores a panel setting, returns a human-readable result.
// Unknown settings are stored without validation.
func (p *Panel) Configure(ctx context.Context, name, value string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	if name == "" {
		return "", errors.New("empty setting name")
	}

	stored, msg, err := validateSetting(name, value)
	if err != nil {
		return "", err
	}
	if err := p.rdb.HSet(ctx, settingsKey, name, stored).Err(); err != nil {
		return "", fmt.Errorf("can't store setting %s: %w", name, err)
	}
	return msg, nil
}

func validateSetting(name, value string) (stored, msg string, err error) {
	switch name {
	case "spam_threshold":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 || v > 1 {
			return "", "", errors.New("spam threshold must be a number between 0.0 and 1.0")
		}
		return strconv.FormatFloat(v, 'f', -1, 64), "Spam detection threshold updated", nil
	case "reputation_decay_rate":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 {
			return "", "", errors.New("reputation decay rate must be a non-negative number")
		}
		return strconv.FormatFloat(v, 'f', -1, 64), "Reputation decay rate updated", nil
	case "max_ban_duration":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil || v == 0 {
			return "", "", errors.New("max ban duration must be a positive integer (hours)")
		}
		return strconv.FormatUint(v, 10), "Maximum ban duration updated", nil
	case "auto_ban_enabled", "bayes_learning_enabled", "maintenance_mode":
		v, ok := parseSwitch(value)
		if !ok {
			return "", "", fmt.Errorf("%s must be true/false, yes/no, 1/0, or on/off", name)
		}
		state := "disabled"
		if v {
			state = "enabled"
		}
		return strconv.FormatBool(v), fmt.Sprintf("%s %s", strings.ReplaceAll(name, "_", " "), state), nil
	case "notification_level":
		v := strings.ToLower(value)
		switch v {
		case "all", "high", "medium", "low", "none":
			return v, "Notification level updated", nil
		}
		return "", "", errors.New("notification level must be: all, high, medium, low, or none")
	default:
		return value, fmt.Sprintf("Unknown setting '%s' stored (no validation performed)", name), nil
	}
}

func parseSwitch(s string) (val, ok bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "1", "on":
		return true, true
	case "false", "no", "0", "off":
		return false, true
	}
	return false, false
}

// Settings returns all stored panel settings
func (p *Panel) Settings(ctx context.Context) (map[string]string, error) {
	res, err := p.rdb.HGetAll(ctx, settingsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get panel settings: %w", err)
	}
	return res, nil
}

// EmergencyStop stops moderation until Resume
func (p *Panel) EmergencyStop(ctx context.Context, by int64) error {
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, emergencyKey, "true", 0)
		pipe.Set(ctx, emergencyAtKey, p.now().Unix(), 0)
		pipe.Set(ctx, emergencyByKey, by, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't set emergency stop: %w", err)
	}
	log.Printf("[WARN] emergency stop by %d", by)
	return nil
}

// Resume clears emergency stop
func (p *Panel) Resume(ctx context.Context) error {
	if err := p.rdb.Del(ctx, emergencyKey, emergencyAtKey, emergencyByKey).Err(); err != nil {
		return fmt.Errorf("can't clear emergency stop: %w", err)
	}
	log.Printf("[INFO] monitoring resumed")
	return nil
}

// Stopped checks if emergency stop is active
func (p *Panel) Stopped(ctx context.Context) (bool, error) {
	v, err := p.rdb.Get(ctx, emergencyKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("can't get emergency stop: %w", err)
	}
	return v == "true", nil
}

// Emergency returns emergency stop state with who and when stopped
func (p *Panel) Emergency(ctx context.Context) (Emergency, error) {
	vals, err := p.rdb.MGet(ctx, emergencyKey, emergencyAtKey, emergencyByKey).Result()
	if err != nil {
		return Emergency{}, fmt.Errorf("can't get emergency stop: %w", err)
	}
	res := Emergency{}
	if s, ok := vals[0].(string); ok {
		res.Stopped = s == "true"
	}
	if s, ok := vals[1].(string); ok {
		if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
			res.At = time.Unix(ts, 0)
		}
	}
	if s, ok := vals[2].(string); ok {
		res.By, _ = strconv.ParseInt(s, 10, 64)
	}
	return res, nil
}

// AddMonitoredChat adds chat to the list of chats the panel watches
func (p *Panel) AddMonitoredChat(ctx context.Context, chatID int64) (bool, error) {
	n, err := p.rdb.SAdd(ctx, monitoredChatsKey, chatID).Result()
	if err != nil {
		return false, fmt.Errorf("can't add monitored chat %d: %w", chatID, err)
	}
	return n > 0, nil
}

// RemoveMonitoredChat removes chat from monitored, false if it was not there
func (p *Panel) RemoveMonitoredChat(ctx context.Context, chatID int64) (bool, error) {
	n, err := p.rdb.SRem(ctx, monitoredChatsKey, chatID).Result()
	if err != nil {
		return false, fmt.Errorf("can't remove monitored chat %d: %w", chatID, err)
	}
	return n > 0, nil
}

// MonitoredChats returns sorted monitored chat ids
func (p *Panel) MonitoredChats(ctx context.Context) ([]int64, error) {
	vals, err := p.rdb.SMembers(ctx, monitoredChatsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("can't get monitored chats: %w", err)
	}
	res := make([]int64, 0, len(vals))
	for _, v := range vals {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			res = append(res, id)
		}
	}
	slices.Sort(res)
	return res, nil
}

func (p *Panel) newAdmin(user User, group Group, by int64) AdminUser {
	name := user.DisplayName
	if name == "" {
		name = user.UserName
	}
	now := p.now()
	return AdminUser{
		UserID:       user.ID,
		UserName:     user.UserName,
		DisplayName:  name,
		Group:        group,
		Permissions:  group.Permissions(),
		AddedBy:      by,
		AddedAt:      now,
		LastActivity: now,
	}
}

func (p *Panel) storeAdmin(ctx context.Context, admin AdminUser) error {
	data, err := json.Marshal(admin)
	if err != nil {
		return fmt.Errorf("can't encode panel admin %d: %w", admin.UserID, err)
	}
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, membersKey, admin.UserID)
		pipe.HSet(ctx, permissionsKey, strconv.FormatInt(admin.UserID, 10), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("can't store panel admin %d: %w", admin.UserID, err)
	}
	return nil
}
