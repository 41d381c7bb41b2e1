package discord

import (
	"testing"

	"github.com/warblehq/warble/internal/config"
)

func TestCheckerAllowed(t *testing.T) {
	tests := []struct {
		name       string
		perms      config.Permissions
		allowDMs   bool
		userID     string
		roleIDs    []string
		channelIDs []string
		isDM       bool
		want       bool
	}{
		{
			name:       "empty lists allow everyone",
			userID:     "u1",
			channelIDs: []string{"c1"},
			want:       true,
		},
		{
			name:       "blocked user wins",
			perms:      config.Permissions{Users: config.IDSet{BlockedIDs: []string{"u1"}}},
			userID:     "u1",
			channelIDs: []string{"c1"},
			want:       false,
		},
		{
			name:       "allow list restricts users",
			perms:      config.Permissions{Users: config.IDSet{AllowedIDs: []string{"u2"}}},
			userID:     "u1",
			channelIDs: []string{"c1"},
			want:       false,
		},
		{
			name:       "allowed role admits user",
			perms:      config.Permissions{Users: config.IDSet{AllowedIDs: []string{"u2"}}, Roles: config.IDSet{AllowedIDs: []string{"r1"}}},
			userID:     "u1",
			roleIDs:    []string{"r1", "r9"},
			channelIDs: []string{"c1"},
			want:       true,
		},
		{
			name:       "blocked role wins over allowed user",
			perms:      config.Permissions{Users: config.IDSet{AllowedIDs: []string{"u1"}}, Roles: config.IDSet{BlockedIDs: []string{"r1"}}},
			userID:     "u1",
			roleIDs:    []string{"r1"},
			channelIDs: []string{"c1"},
			want:       false,
		},
		{
			name:       "admin bypasses user allow list",
			perms:      config.Permissions{AdminIDs: []string{"u1"}, Users: config.IDSet{AllowedIDs: []string{"u2"}}},
			userID:     "u1",
			channelIDs: []string{"c1"},
			want:       true,
		},
		{
			name:       "channel block matches parent",
			perms:      config.Permissions{Channels: config.IDSet{BlockedIDs: []string{"parent"}}},
			userID:     "u1",
			channelIDs: []string{"thread", "parent"},
			want:       false,
		},
		{
			name:       "channel allow list restricts",
			perms:      config.Permissions{Channels: config.IDSet{AllowedIDs: []string{"c2"}}},
			userID:     "u1",
			channelIDs: []string{"c1"},
			want:       false,
		},
		{
			name:     "dm honors allow_dms",
			userID:   "u1",
			isDM:     true,
			allowDMs: false,
			want:     false,
		},
		{
			name:     "dm allowed ignores channel allow list",
			perms:    config.Permissions{Channels: config.IDSet{AllowedIDs: []string{"c2"}}},
			userID:   "u1",
			isDM:     true,
			allowDMs: true,
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(tt.perms, tt.allowDMs)
			if got := c.Allowed(tt.userID, tt.roleIDs, tt.channelIDs, tt.isDM); got != tt.want {
				t.Errorf("Allowed() = %v, want %v", got, tt.want)
			}
		})
	}
}
