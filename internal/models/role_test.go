package models

import (
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestRoleDowngrade(t *testing.T) {
	tests := []struct {
		resolved  Role
		requested Role
		expected  Role
	}{
		{RoleAdmin, RoleObserver, RoleObserver},
		{RoleAdmin, RoleBidder, RoleBidder},
		{RoleAdmin, "", RoleAdmin},
		{RoleBidder, RoleAdmin, RoleBidder},
		{RoleObserver, RoleBidder, RoleObserver},
		{RoleBidder, "superuser", RoleBidder},
	}
	for _, tt := range tests {
		check.Equal(t, tt.expected, tt.resolved.Downgrade(tt.requested))
	}
}
