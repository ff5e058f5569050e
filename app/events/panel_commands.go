package events

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	tbapi "github.com/OvyFlash/telegram-bot-api"

	"github.com/umputun/tg-rspamd/app/panel"
)

// panelCommand is a panel command handler with the permission it requires
type panelCommand struct {
	perm panel.Permission
	fn   cmdHandler
}

const (
	defaultAuditHours  = 24
	maxAuditLogEntries = 20
)

const panelHelpText = `*Admin panel commands*
/setupadminpanel - use this chat as admin panel
/dashboard - panel summary
/panelstatus - panel status
/addadmin <user id> [viewer|moderator|manager|administrator] - add panel admin
/removeadmin <user id> - remove panel admin
/setpermissions <user id> <group> - change admin group
/listadmins - list panel admins
/monitoredchats - list monitored chats
/addchat [chat id], /removechat [chat id] - manage monitored chats
/configure <name> <value> - change bot setting
/showconfig - show settings
/auditlog [hours] - recent panel actions
/emergencystop, /resumemonitoring - stop and resume moderation`

// dashboardActions maps panel:<action> callbacks to panel commands
var dashboardActions = map[string]string{
	"status": "panelstatus",
	"admins": "listadmins",
	"chats":  "monitoredchats",
	"audit":  "auditlog",
	"config": "showconfig",
}

func (l *TelegramListener) panelCommands() map[string]panelCommand {
	return map[string]panelCommand{
		"setupadminpanel":  {perm: panel.PermNone, fn: l.cmdSetupPanel},
		"panelhelp":        {perm: panel.PermNone, fn: l.cmdPanelHelp},
		"addadmin":         {perm: panel.PermManageUsers, fn: l.cmdAddAdmin},
		"removeadmin":      {perm: panel.PermManageUsers, fn: l.cmdRemoveAdmin},
		"setpermissions":   {perm: panel.PermManageUsers, fn: l.cmdSetPermissions},
		"listadmins":       {perm: panel.PermViewStats, fn: l.cmdListAdmins},
		"panelstatus":      {perm: panel.PermViewStats, fn: l.cmdPanelStatus},
		"monitoredchats":   {perm: panel.PermViewStats, fn: l.cmdMonitoredChats},
		"dashboard":        {perm: panel.PermViewStats, fn: l.cmdDashboard},
		"addchat":          {perm: panel.PermManageChats, fn: l.monitoredChatCommand(true)},
		"removechat":       {perm: panel.PermManageChats, fn: l.monitoredChatCommand(false)},
		"configure":        {perm: panel.PermConfigureBot, fn: l.cmdConfigure},
		"auditlog":         {perm: panel.PermViewAuditLog, fn: l.cmdAuditLog},
		"emergencystop":    {perm: panel.PermEmergencyControl, fn: l.cmdEmergencyStop},
		"resumemonitoring": {perm: panel.PermEmergencyControl, fn: l.cmdResume},
		"showconfig":       {perm: panel.PermViewConfig, fn: l.cmdShowConfig},
	}
}

// runPanelCommand checks permissions, runs the command and records it in the audit log.
// Superusers have all permissions.
func (l *TelegramListener) runPanelCommand(ctx context.Context, pc panelCommand, req cmdRequest) (cmdResponse, error) {
	isSuper := l.SuperUsers.IsSuper(req.user.Username, req.user.ID)
	_, isSetup, err := l.Panel.ChatID(ctx)
	if err != nil {
		return cmdResponse{}, err
	}

	switch {
	case req.name == "setupadminpanel":
		if !isSuper && (isSetup || !l.admins.isAdmin(req.chat.ID, req.user.ID)) {
			return cmdResponse{text: "Permission denied, admin panel can be set up by a superuser or by a chat admin " +
				"if no panel exists"}, nil
		}
	case pc.perm == panel.PermNone:
	case !isSetup:
		return cmdResponse{}, fmt.Errorf("%w, use /setupadminpanel", panel.ErrNotSetup)
	case !isSuper:
		ok, err := l.Panel.HasPermission(ctx, req.user.ID, pc.perm)
		if err != nil {
			return cmdResponse{}, err
		}
		if !ok {
			log.Printf("[INFO] /%s denied for %s, %s required", req.name, userLabel(req.user), pc.perm)
			return cmdResponse{text: fmt.Sprintf("Permission denied, /%s requires %s", req.name, pc.perm)}, nil
		}
	}

	resp, err := pc.fn(ctx, req)
	if err != nil {
		return cmdResponse{}, err
	}
	if pc.perm != panel.PermNone || req.name == "setupadminpanel" {
		entry := panel.AuditEntry{UserID: req.user.ID, UserName: req.user.Username, Action: req.name, Details: req.args}
		if err := l.Panel.Audit(ctx, entry); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}
	return resp, nil
}

func (l *TelegramListener) cmdPanelHelp(_ context.Context, _ cmdRequest) (cmdResponse, error) {
	return cmdResponse{text: panelHelpText}, nil
}

func (l *TelegramListener) cmdSetupPanel(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	by := panel.User{ID: req.user.ID, UserName: req.user.Username, DisplayName: req.user.DisplayName}
	if err := l.Panel.Setup(ctx, req.chat.ID, by); err != nil {
		return cmdResponse{}, err
	}
	log.Printf("[INFO] admin panel set up in %d by %s", req.chat.ID, userLabel(req.user))
	return cmdResponse{text: fmt.Sprintf("Admin panel set up in this chat, %s is the administrator. See /panelhelp",
		escapeMarkDownV1Text(userLabel(req.user)))}, nil
}

// cmdAddAdmin adds panel admin, args are "user id [group]". Replying to a message of the user works as well.
func (l *TelegramListener) cmdAddAdmin(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	fields := strings.Fields(req.args)
	user := panel.User{}
	groupArg := ""
	switch {
	case req.reply != nil && req.reply.From != nil && (len(fields) == 0 || !isNumber(fields[0])):
		user = panel.User{ID: req.reply.From.ID, UserName: req.reply.From.UserName,
			DisplayName: strings.TrimSpace(req.reply.From.FirstName + " " + req.reply.From.LastName)}
		if len(fields) > 0 {
			groupArg = fields[0]
		}
	case len(fields) > 0:
		uid, err := parseUserID(fields[0], "addadmin")
		if err != nil {
			return cmdResponse{}, err
		}
		user.ID = uid
		if len(fields) > 1 {
			groupArg = fields[1]
		}
	default:
		return cmdResponse{}, errors.New("usage: /addadmin <user id> [group]")
	}

	group := panel.GroupViewer
	if groupArg != "" {
		var err error
		if group, err = panel.ParseGroup(groupArg); err != nil {
			return cmdResponse{}, err
		}
	}
	admin, err := l.Panel.AddAdmin(ctx, user, group, req.user.ID)
	if err != nil {
		return cmdResponse{}, err
	}
	return cmdResponse{text: fmt.Sprintf("User %d added as %s\npermissions: %s",
		admin.UserID, admin.Group.DisplayName(), escapeMarkDownV1Text(admin.Permissions.String()))}, nil
}

func (l *TelegramListener) cmdRemoveAdmin(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	uid, err := parseUserID(req.args, "removeadmin")
	if err != nil {
		return cmdResponse{}, err
	}
	if uid == req.user.ID {
		return cmdResponse{}, errors.New("can't remove yourself")
	}
	if err := l.Panel.RemoveAdmin(ctx, uid); err != nil {
		return cmdResponse{}, err
	}
	return cmdResponse{text: fmt.Sprintf("User %d removed from panel admins", uid)}, nil
}

func (l *TelegramListener) cmdSetPermissions(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	fields := strings.Fields(req.args)
	if len(fields) != 2 {
		return cmdResponse{}, errors.New("usage: /setpermissions <user id> <group>")
	}
	uid, err := parseUserID(fields[0], "setpermissions")
	if err != nil {
		return cmdResponse{}, err
	}
	group, err := panel.ParseGroup(fields[1])
	if err != nil {
		return cmdResponse{}, err
	}
	admin, err := l.Panel.SetPermissions(ctx, uid, group, req.user.ID)
	if err != nil {
		return cmdResponse{}, err
	}
	return cmdResponse{text: fmt.Sprintf("User %d is %s now\npermissions: %s",
		admin.UserID, admin.Group.DisplayName(), escapeMarkDownV1Text(admin.Permissions.String()))}, nil
}

func (l *TelegramListener) cmdListAdmins(ctx context.Context, _ cmdRequest) (cmdResponse, error) {
	admins, err := l.Panel.Admins(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	if len(admins) == 0 {
		return cmdResponse{text: "No panel admins"}, nil
	}
	lines := []string{fmt.Sprintf("*Panel admins (%d)*", len(admins))}
	for _, a := range admins {
		name := a.DisplayName
		if a.UserName != "" {
			name = "@" + a.UserName
		}
		activity := "never"
		if !a.LastActivity.IsZero() {
			activity = a.LastActivity.Format(l.timeFormat)
		}
		lines = append(lines, fmt.Sprintf("%d %s - %s, last active %s",
			a.UserID, escapeMarkDownV1Text(name), a.Group.DisplayName(), activity))
	}
	return cmdResponse{text: strings.Join(lines, "\n")}, nil
}

func (l *TelegramListener) cmdPanelStatus(ctx context.Context, _ cmdRequest) (cmdResponse, error) {
	status, err := l.Panel.Status(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	em, err := l.Panel.Emergency(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	admins, err := l.Panel.Admins(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	chats, err := l.Panel.MonitoredChats(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	lines := []string{
		"*Admin panel status: " + status.String() + "*",
		fmt.Sprintf("admins: %d", len(admins)),
		fmt.Sprintf("monitored chats: %d", len(chats)),
	}
	if em.Stopped {
		lines = append(lines, fmt.Sprintf("emergency stop by %d at %s", em.By, em.At.Format(l.timeFormat)))
	}
	return cmdResponse{text: strings.Join(lines, "\n")}, nil
}

func (l *TelegramListener) cmdMonitoredChats(ctx context.Context, _ cmdRequest) (cmdResponse, error) {
	chats, err := l.Panel.MonitoredChats(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	if len(chats) == 0 {
		return cmdResponse{text: "No monitored chats"}, nil
	}
	lines := []string{fmt.Sprintf("*Monitored chats (%d)*", len(chats))}
	for _, id := range chats {
		lines = append(lines, fmt.Sprintf("%d %s", id, escapeMarkDownV1Text(l.chatName(ctx, id))))
	}
	return cmdResponse{text: strings.Join(lines, "\n")}, nil
}

// monitoredChatCommand makes handler of /addchat and /removechat, chat id defaults to the current chat
func (l *TelegramListener) monitoredChatCommand(add bool) cmdHandler {
	return func(ctx context.Context, req cmdRequest) (cmdResponse, error) {
		chatID := req.chat.ID
		if req.args != "" {
			id, err := strconv.ParseInt(req.args, 10, 64)
			if err != nil {
				return cmdResponse{}, fmt.Errorf("invalid chat id %q", req.args)
			}
			chatID = id
		}
		if add {
			added, err := l.Panel.AddMonitoredChat(ctx, chatID)
			if err != nil {
				return cmdResponse{}, err
			}
			if !added {
				return cmdResponse{text: fmt.Sprintf("Chat %d is already monitored", chatID)}, nil
			}
			return cmdResponse{text: fmt.Sprintf("Chat %d added to monitored chats", chatID)}, nil
		}
		removed, err := l.Panel.RemoveMonitoredChat(ctx, chatID)
		if err != nil {
			return cmdResponse{}, err
		}
		if !removed {
			return cmdResponse{text: fmt.Sprintf("Chat %d is not monitored", chatID)}, nil
		}
		return cmdResponse{text: fmt.Sprintf("Chat %d removed from monitored chats", chatID)}, nil
	}
}

func (l *TelegramListener) cmdDashboard(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	resp, err := l.cmdPanelStatus(ctx, req)
	if err != nil {
		return cmdResponse{}, err
	}
	kb := tbapi.NewInlineKeyboardMarkup(
		tbapi.NewInlineKeyboardRow(
			tbapi.NewInlineKeyboardButtonData("📊 Status", "panel:status"),
			tbapi.NewInlineKeyboardButtonData("👥 Admins", "panel:admins"),
		),
		tbapi.NewInlineKeyboardRow(
			tbapi.NewInlineKeyboardButtonData("💬 Chats", "panel:chats"),
			tbapi.NewInlineKeyboardButtonData("📜 Audit log", "panel:audit"),
		),
		tbapi.NewInlineKeyboardRow(
			tbapi.NewInlineKeyboardButtonData("⚙️ Config", "panel:config"),
		),
	)
	resp.keyboard = &kb
	return resp, nil
}

func (l *TelegramListener) cmdConfigure(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	name, value, ok := strings.Cut(req.args, " ")
	if !ok || strings.TrimSpace(value) == "" {
		return cmdResponse{}, errors.New("usage: /configure <name> <value>")
	}
	msg, err := l.Panel.Configure(ctx, name, value)
	if err != nil {
		return cmdResponse{}, err
	}
	log.Printf("[INFO] setting %s changed by %s: %s", name, userLabel(req.user), msg)
	return cmdResponse{text: escapeMarkDownV1Text(msg)}, nil
}

func (l *TelegramListener) cmdShowConfig(ctx context.Context, _ cmdRequest) (cmdResponse, error) {
	settings, err := l.Panel.Settings(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	cfg, err := l.Trust.Config(ctx)
	if err != nil {
		return cmdResponse{}, err
	}
	lines := []string{"*Bot settings*"}
	if len(settings) == 0 {
		lines = append(lines, "defaults")
	}
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, escapeMarkDownV1Text(fmt.Sprintf("%s: %s", k, settings[k])))
	}
	lines = append(lines, "", "*Trust settings*", escapeMarkDownV1Text(cfg.String()))
	return cmdResponse{text: strings.Join(lines, "\n")}, nil
}

// cmdAuditLog shows the latest audit entries for the last N hours, 24 by default
func (l *TelegramListener) cmdAuditLog(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	hours := defaultAuditHours
	if req.args != "" {
		h, err := strconv.Atoi(req.args)
		if err != nil || h <= 0 {
			return cmdResponse{}, errors.New("usage: /auditlog [hours]")
		}
		hours = h
	}
	entries, err := l.Panel.AuditLog(ctx, l.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return cmdResponse{}, err
	}
	if len(entries) == 0 {
		return cmdResponse{text: fmt.Sprintf("No panel actions in the last %d hours", hours)}, nil
	}
	lines := []string{fmt.Sprintf("*Audit log, last %d hours*", hours)}
	for i, e := range entries {
		if i >= maxAuditLogEntries {
			lines = append(lines, fmt.Sprintf("and %d more", len(entries)-maxAuditLogEntries))
			break
		}
		line := fmt.Sprintf("%s %s /%s %s", e.Time.Format(l.timeFormat), auditUser(e), e.Action, e.Details)
		lines = append(lines, escapeMarkDownV1Text(strings.TrimSpace(line)))
	}
	return cmdResponse{text: strings.Join(lines, "\n")}, nil
}

func (l *TelegramListener) cmdEmergencyStop(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	if err := l.Panel.EmergencyStop(ctx, req.user.ID); err != nil {
		return cmdResponse{}, err
	}
	log.Printf("[WARN] emergency stop by %s", userLabel(req.user))
	return cmdResponse{text: "🛑 Emergency stop, moderation is disabled. Use /resumemonitoring to resume"}, nil
}

func (l *TelegramListener) cmdResume(ctx context.Context, req cmdRequest) (cmdResponse, error) {
	if err := l.Panel.Resume(ctx); err != nil {
		return cmdResponse{}, err
	}
	log.Printf("[INFO] moderation resumed by %s", userLabel(req.user))
	return cmdResponse{text: "✅ Moderation resumed"}, nil
}

func auditUser(e panel.AuditEntry) string {
	if e.UserName != "" {
		return "@" + e.UserName
	}
	return strconv.FormatInt(e.UserID, 10)
}

func isNumber(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
