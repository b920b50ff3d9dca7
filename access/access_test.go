package access_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/types"
)

const (
	admin    types.Address = "0xadmin"
	approver types.Address = "0xapprover"
	stranger types.Address = "0xstranger"
)

func newController(t *testing.T, opts ...access.Option) *access.Controller {
	t.Helper()
	c, err := access.New(admin, opts...)
	require.NoError(t, err)
	return c
}

func TestNewRejectsZeroAdmin(t *testing.T) {
	_, err := access.New(types.ZeroAddress)
	require.ErrorIs(t, err, access.ErrZeroAddress)
}

func TestGrantAndRevoke(t *testing.T) {
	var changes []access.Change
	c := newController(t, access.WithListener(func(ch access.Change) { changes = append(changes, ch) }))

	require.True(t, c.HasRole(access.RoleAdmin, admin))
	require.False(t, c.HasRole(access.RoleApprover, approver))

	require.NoError(t, c.GrantRole(admin, access.RoleApprover, approver))
	require.True(t, c.HasRole(access.RoleApprover, approver))

	// granting twice is a no-op
	require.NoError(t, c.GrantRole(admin, access.RoleApprover, approver))
	require.Len(t, changes, 1)
	require.True(t, changes[0].Granted)

	require.NoError(t, c.RevokeRole(admin, access.RoleApprover, approver))
	require.False(t, c.HasRole(access.RoleApprover, approver))
	require.Len(t, changes, 2)
	require.False(t, changes[1].Granted)
}

func TestGrantRequiresAdmin(t *testing.T) {
	c := newController(t)

	err := c.GrantRole(stranger, access.RoleApprover, stranger)
	require.ErrorIs(t, err, access.ErrUnauthorized)

	var ue *access.UnauthorizedError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, access.RoleAdmin, ue.Role)
	require.Equal(t, stranger, ue.Caller)
}

func TestGrantRejectsZeroAddress(t *testing.T) {
	c := newController(t)
	require.ErrorIs(t, c.GrantRole(admin, access.RoleApprover, types.ZeroAddress), access.ErrZeroAddress)
}

func TestAdminCannotRemoveItself(t *testing.T) {
	c := newController(t)

	require.ErrorIs(t, c.RevokeRole(admin, access.RoleAdmin, admin), access.ErrAdminSelfRevoke)
	require.ErrorIs(t, c.RenounceRole(admin, access.RoleAdmin, admin), access.ErrAdminSelfRevoke)
	require.True(t, c.HasRole(access.RoleAdmin, admin))
}

func TestAnotherAdminCanRevokeAdmin(t *testing.T) {
	c := newController(t)
	second := types.Address("0xsecond")

	require.NoError(t, c.GrantRole(admin, access.RoleAdmin, second))
	require.NoError(t, c.RevokeRole(second, access.RoleAdmin, admin))
	require.False(t, c.HasRole(access.RoleAdmin, admin))
	require.Equal(t, []types.Address{second}, c.Members(access.RoleAdmin))
}

func TestNonAdminCannotRevoke(t *testing.T) {
	c := newController(t)
	require.NoError(t, c.GrantRole(admin, access.RoleApprover, approver))

	require.ErrorIs(t, c.RevokeRole(approver, access.RoleAdmin, admin), access.ErrUnauthorized)
	require.True(t, c.HasRole(access.RoleAdmin, admin))
}

func TestRenounce(t *testing.T) {
	c := newController(t)
	require.NoError(t, c.GrantRole(admin, access.RoleApprover, approver))

	require.ErrorIs(t, c.RenounceRole(stranger, access.RoleApprover, approver), access.ErrRenounceForOthers)
	require.True(t, c.HasRole(access.RoleApprover, approver))

	require.NoError(t, c.RenounceRole(approver, access.RoleApprover, approver))
	require.False(t, c.HasRole(access.RoleApprover, approver))
}

func TestRequireAny(t *testing.T) {
	c := newController(t)
	require.NoError(t, c.GrantRole(admin, access.RoleSystem, approver))

	require.NoError(t, access.RequireAny(c, approver, access.RoleDAO, access.RoleSystem))
	require.ErrorIs(t, access.RequireAny(c, stranger, access.RoleDAO, access.RoleSystem), access.ErrUnauthorized)
	require.ErrorIs(t, access.Require(nil, access.RoleDAO, admin), access.ErrUnauthorized)
}
