package events

import (
	"strconv"
	"strings"
)

// SuperUsers are users allowed to run any command in any chat, set by username or numeric id.
// Superusers are never moderated.
type SuperUsers []string

// IsSuper checks if username or user id is in the list of super users
func (s SuperUsers) IsSuper(userName string, uid int64) bool {
	id := strconv.FormatInt(uid, 10)
	for _, super := range s {
		super = strings.TrimPrefix(strings.TrimSpace(super), "/")
		if super == "" {
			continue
		}
		if userName != "" && strings.EqualFold(strings.TrimPrefix(userName, "@"), strings.TrimPrefix(super, "@")) {
			return true
		}
		if uid != 0 && super == id {
			return true
		}
	}
	return false
}
