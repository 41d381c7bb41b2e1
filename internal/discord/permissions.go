package discord

import (
	"github.com/warblehq/warble/internal/config"
)

// Checker decides whether a message may trigger a response, based on
// the configured user, role, and channel allow/block lists. Empty allow
// lists mean everyone and everywhere; block lists always win.
type Checker struct {
	perms    config.Permissions
	allowDMs bool
}

// NewChecker builds a checker from the permissions config.
func NewChecker(perms config.Permissions, allowDMs bool) *Checker {
	return &Checker{perms: perms, allowDMs: allowDMs}
}

// Allowed reports whether the author may use the bot in this channel.
// channelIDs should include the channel itself plus any parent (thread
// parent or category) so list entries match at any level.
func (c *Checker) Allowed(userID string, roleIDs, channelIDs []string, isDM bool) bool {
	if contains(c.perms.Users.BlockedIDs, userID) || anyIn(c.perms.Roles.BlockedIDs, roleIDs) {
		return false
	}
	if anyIn(c.perms.Channels.BlockedIDs, channelIDs) {
		return false
	}

	allowAllUsers := len(c.perms.Users.AllowedIDs) == 0 && len(c.perms.Roles.AllowedIDs) == 0
	userOK := contains(c.perms.AdminIDs, userID) ||
		allowAllUsers ||
		contains(c.perms.Users.AllowedIDs, userID) ||
		anyIn(c.perms.Roles.AllowedIDs, roleIDs)
	if !userOK {
		return false
	}

	if isDM {
		return c.allowDMs
	}
	return len(c.perms.Channels.AllowedIDs) == 0 || anyIn(c.perms.Channels.AllowedIDs, channelIDs)
}

// IsAdmin reports whether the user is in the admin list.
func (c *Checker) IsAdmin(userID string) bool {
	return contains(c.perms.AdminIDs, userID)
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func anyIn(list, ids []string) bool {
	for _, id := range ids {
		if contains(list, id) {
			return true
		}
	}
	return false
}
