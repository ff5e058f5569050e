package panel

import (
	"fmt"
	"strings"
)

// Permission is a set of admin panel permissions
type Permission uint16

// enum of permissions, full access implies all others
const (
	PermViewStats Permission = 1 << iota
	PermManageChats
	PermManageUsers
	PermConfigureBot
	PermViewAuditLog
	PermEmergencyControl
	PermViewConfig
	PermFullAccess

	PermNone Permission = 0
)

var permNames = []struct {
	perm Permission
	name string
}{
	{PermViewStats, "view_stats"},
	{PermManageChats, "manage_chats"},
	{PermManageUsers, "manage_users"},
	{PermConfigureBot, "configure_bot"},
	{PermViewAuditLog, "view_audit_log"},
	{PermEmergencyControl, "emergency_control"},
	{PermViewConfig, "view_config"},
	{PermFullAccess, "full_access"},
}

// Has checks if the set grants p
func (p Permission) Has(perm Permission) bool {
	if p&PermFullAccess != 0 {
		return true
	}
	return perm != PermNone && p&perm == perm
}

// Names returns names of permissions in the set
func (p Permission) Names() []string {
	res := []string{}
	for _, pn := range permNames {
		if p&pn.perm != 0 {
			res = append(res, pn.name)
		}
	}
	return res
}

// String returns comma-separated names, "none" for empty set
func (p Permission) String() string {
	if p == PermNone {
		return "none"
	}
	return strings.Join(p.Names(), ", ")
}

// ParsePermission parses a single permission name
func ParsePermission(s string) (Permission, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, pn := range permNames {
		if pn.name == s {
			return pn.perm, nil
		}
	}
	return PermNone, fmt.Errorf("unknown permission %q", s)
}

// permissionsFromNames builds a set from names, unknown names are skipped
func permissionsFromNames(names []string) Permission {
	var res Permission
	for _, n := range names {
		if p, err := ParsePermission(n); err == nil {
			res |= p
		}
	}
	return res
}

// Group is a named permission preset
type Group string

// enum of groups
const (
	GroupViewer        Group = "viewer"
	GroupModerator     Group = "moderator"
	GroupManager       Group = "manager"
	GroupAdministrator Group = "administrator"
)

// Groups lists all groups from least to most privileged
var Groups = []Group{GroupViewer, GroupModerator, GroupManager, GroupAdministrator}

// ParseGroup parses group name, case-insensitive
func ParseGroup(s string) (Group, error) {
	g := Group(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Groups {
		if g == known {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown group %q, must be one of viewer, moderator, manager, administrator", s)
}

// Permissions returns permissions granted by the group
func (g Group) Permissions() Permission {
	switch g {
	case GroupViewer:
		return PermViewStats | PermViewAuditLog
	case GroupModerator:
		return GroupViewer.Permissions() | PermManageChats
	case GroupManager:
		return GroupModerator.Permissions() | PermManageUsers | PermConfigureBot | PermViewConfig
	case GroupAdministrator:
		return PermFullAccess
	default:
		return PermNone
	}
}

// DisplayName returns capitalized group name
func (g Group) DisplayName() string {
	switch g {
	case GroupViewer:
		return "Viewer"
	case GroupModerator:
		return "Moderator"
	case GroupManager:
		return "Manager"
	case GroupAdministrator:
		return "Administrator"
	default:
		return "Unknown"
	}
}
