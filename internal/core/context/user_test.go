package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserContext_Roles(t *testing.T) {
	staff := &UserContext{UserID: "picker-1", Roles: []string{"warehouse_staff"}}
	admin := &UserContext{UserID: "root", IsAdmin: true}

	assert.True(t, staff.HasAnyRole("sale_manager", "warehouse_staff"))
	assert.False(t, staff.HasAnyRole("warehouse_manager"))
	assert.True(t, admin.HasAnyRole("warehouse_manager"))

	var anonymous *UserContext
	assert.False(t, anonymous.HasAnyRole("warehouse_staff"))
	assert.False(t, anonymous.IsAssignee("picker-1"))
}

func TestUserContext_IsAssignee(t *testing.T) {
	u := &UserContext{UserID: "picker-1"}
	assert.True(t, u.IsAssignee("picker-1"))
	assert.False(t, u.IsAssignee("picker-2"))
	assert.False(t, (&UserContext{}).IsAssignee(""))
}

func TestGetUserID(t *testing.T) {
	assert.Empty(t, GetUserID(context.Background()))
	ctx := WithUser(context.Background(), &UserContext{UserID: "wh-mgr"})
	assert.Equal(t, "wh-mgr", GetUserID(ctx))
}
