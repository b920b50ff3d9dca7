// Package access holds role assignments and answers authorization queries.
//
// Every mutating escrow operation asks a Checker whether the caller holds
// the role the operation requires before touching any state.
package access

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/xraph/escrow/types"
)

// Role names a capability.
type Role string

// Roles consulted by escrow operations.
const (
	RoleAdmin    Role = "admin"
	RoleApprover Role = "approver"
	RoleRefunder Role = "refunder"
	RoleDAO      Role = "dao" // processor: fee settings, processing, pushes
	RoleSystem   Role = "system"
)

// Roles that can be granted but are not consulted by any escrow operation.
const (
	RolePauser   Role = "pauser"
	RoleUpgrader Role = "upgrader"
	RoleVault    Role = "vault"
)

var (
	ErrUnauthorized      = errors.New("escrow: unauthorized access")
	ErrZeroAddress       = types.ErrZeroAddress
	ErrAdminSelfRevoke   = errors.New("escrow: admin cannot revoke or renounce its own admin role")
	ErrRenounceForOthers = errors.New("escrow: can only renounce roles for self")
)

// UnauthorizedError reports the role a caller was missing.
type UnauthorizedError struct {
	Role   Role
	Caller types.Address
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("escrow: unauthorized access: %s lacks role %s", e.Caller, e.Role)
}

// Is lets errors.Is match ErrUnauthorized.
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// Checker answers authorization queries.
type Checker interface {
	HasRole(role Role, who types.Address) bool
}

// Require returns an *UnauthorizedError when who lacks role.
func Require(c Checker, role Role, who types.Address) error {
	if c == nil || !c.HasRole(role, who) {
		return &UnauthorizedError{Role: role, Caller: who}
	}
	return nil
}

// RequireAny succeeds if who holds at least one of roles.
func RequireAny(c Checker, who types.Address, roles ...Role) error {
	for _, r := range roles {
		if c != nil && c.HasRole(r, who) {
			return nil
		}
	}
	if len(roles) == 0 {
		return &UnauthorizedError{Caller: who}
	}
	return &UnauthorizedError{Role: roles[0], Caller: who}
}

// Change describes a grant or revocation.
type Change struct {
	Role    Role
	Account types.Address
	Sender  types.Address
	Granted bool
}

// Listener observes role changes.
type Listener func(Change)

// Controller is the in-memory role registry.
type Controller struct {
	mu        sync.RWMutex
	members   map[Role]map[types.Address]struct{}
	listeners []Listener
	logger    *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithListener registers a callback fired after every effective grant or
// revocation.
func WithListener(l Listener) Option {
	return func(c *Controller) { c.listeners = append(c.listeners, l) }
}

// New creates a Controller with admin as its first administrator.
func New(admin types.Address, opts ...Option) (*Controller, error) {
	if admin.IsZero() {
		return nil, ErrZeroAddress
	}
	c := &Controller{
		members: make(map[Role]map[types.Address]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.add(RoleAdmin, admin)
	return c, nil
}

// OnChange registers a listener after construction.
func (c *Controller) OnChange(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// HasRole implements Checker.
func (c *Controller) HasRole(role Role, who types.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[role][who]
	return ok
}

// GrantRole gives account the role. Only admins may grant.
func (c *Controller) GrantRole(caller types.Address, role Role, account types.Address) error {
	if account.IsZero() {
		return ErrZeroAddress
	}

	c.mu.Lock()
	if _, ok := c.members[RoleAdmin][caller]; !ok {
		c.mu.Unlock()
		return &UnauthorizedError{Role: RoleAdmin, Caller: caller}
	}
	added := c.add(role, account)
	listeners := c.listeners
	c.mu.Unlock()

	if added {
		c.logger.Info("role granted", "role", role, "account", account, "sender", caller)
		notify(listeners, Change{Role: role, Account: account, Sender: caller, Granted: true})
	}
	return nil
}

// RevokeRole removes role from account. Only admins may revoke, and an
// admin cannot revoke its own admin role.
func (c *Controller) RevokeRole(caller types.Address, role Role, account types.Address) error {
	c.mu.Lock()
	if _, ok := c.members[RoleAdmin][caller]; !ok {
		c.mu.Unlock()
		return &UnauthorizedError{Role: RoleAdmin, Caller: caller}
	}
	if role == RoleAdmin && account == caller {
		c.mu.Unlock()
		return ErrAdminSelfRevoke
	}
	removed := c.remove(role, account)
	listeners := c.listeners
	c.mu.Unlock()

	if removed {
		c.logger.Info("role revoked", "role", role, "account", account, "sender", caller)
		notify(listeners, Change{Role: role, Account: account, Sender: caller})
	}
	return nil
}

// RenounceRole drops a role held by the caller itself. The admin role
// cannot be renounced.
func (c *Controller) RenounceRole(caller types.Address, role Role, account types.Address) error {
	if account != caller {
		return ErrRenounceForOthers
	}
	if role == RoleAdmin {
		return ErrAdminSelfRevoke
	}

	c.mu.Lock()
	removed := c.remove(role, account)
	listeners := c.listeners
	c.mu.Unlock()

	if removed {
		c.logger.Info("role renounced", "role", role, "account", account)
		notify(listeners, Change{Role: role, Account: account, Sender: caller})
	}
	return nil
}

// Members lists the identities holding role, sorted.
func (c *Controller) Members(role Role) []types.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.Address, 0, len(c.members[role]))
	for a := range c.members[role] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Controller) add(role Role, account types.Address) bool {
	set, ok := c.members[role]
	if !ok {
		set = make(map[types.Address]struct{})
		c.members[role] = set
	}
	if _, exists := set[account]; exists {
		return false
	}
	set[account] = struct{}{}
	return true
}

func (c *Controller) remove(role Role, account types.Address) bool {
	set := c.members[role]
	if _, ok := set[account]; !ok {
		return false
	}
	delete(set, account)
	return true
}

func notify(listeners []Listener, ch Change) {
	for _, l := range listeners {
		l(ch)
	}
}
