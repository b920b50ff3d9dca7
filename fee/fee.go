// Package fee holds the platform fee rate and the vault that receives fees.
package fee

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/types"
)

// DefaultBps is the fee rate applied until the dao changes it (1%).
const DefaultBps uint16 = 100

// ErrInvalidBps is returned for a rate above 10000 bps.
var ErrInvalidBps = errors.New("escrow: fee bps out of range")

// Settings is a point-in-time copy of the fee configuration.
type Settings struct {
	Bps   uint16        `json:"fee_bps"`
	Vault types.Address `json:"vault_address"`
	types.Entity
}

// HasVault reports whether a vault address is configured.
func (s Settings) HasVault() bool { return !s.Vault.IsZero() }

// Config is the mutable fee configuration. Mutators require access.RoleDAO.
type Config struct {
	mu       sync.RWMutex
	settings Settings
	access   access.Checker
}

// New creates a Config with the default rate and no vault.
func New(checker access.Checker) *Config {
	return &Config{
		settings: Settings{Bps: DefaultBps, Entity: types.NewEntity()},
		access:   checker,
	}
}

// FeeBps returns the current rate in basis points.
func (c *Config) FeeBps() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Bps
}

// VaultAddress returns the configured vault, or the zero address.
func (c *Config) VaultAddress() types.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Vault
}

// Settings returns a copy of the current configuration.
func (c *Config) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// SetFeeBps changes the rate.
func (c *Config) SetFeeBps(caller types.Address, bps uint16) error {
	if err := access.Require(c.access, access.RoleDAO, caller); err != nil {
		return err
	}
	if bps > types.BpsDenominator {
		return fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Bps = bps
	c.settings.Touch()
	return nil
}

// SetVaultAddress changes the vault. The zero address unsets it.
func (c *Config) SetVaultAddress(caller types.Address, vault types.Address) error {
	if err := access.Require(c.access, access.RoleDAO, caller); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Vault = vault
	c.settings.Touch()
	return nil
}

// Split applies the current rate to total.
func (c *Config) Split(total types.Amount) (net, fee types.Amount) {
	return total.SplitBps(c.FeeBps())
}

// Restore replaces the configuration with a persisted copy, bypassing role
// checks. It is meant for loading state at startup.
func (c *Config) Restore(s Settings) error {
	if s.Bps > types.BpsDenominator {
		return fmt.Errorf("%w: %d", ErrInvalidBps, s.Bps)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
	return nil
}
