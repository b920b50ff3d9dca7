package extension

import (
	"time"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/transport"
)

// Option configures the escrow Forge extension.
type Option func(*Extension)

// WithStore sets the store for the gateway. Defaults to the memory store.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithTransport sets the currency rail. Defaults to a native wallet whose
// custody account comes from Config.Custody.
func WithTransport(t transport.Transport) Option {
	return func(e *Extension) {
		e.rail = t
	}
}

// WithAccess sets the role checker. Defaults to an access.Controller
// seeded with Config.Admin.
func WithAccess(c access.Checker) Option {
	return func(e *Extension) {
		e.roles = c
	}
}

// WithGatewayOption passes an escrow.Option through to the gateway.
func WithGatewayOption(opt escrow.Option) Option {
	return func(e *Extension) {
		e.gatewayOpts = append(e.gatewayOpts, opt)
	}
}

// WithPlugin registers an escrow plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.gatewayOpts = append(e.gatewayOpts, escrow.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithAdmin sets the first administrator of the built-in role controller.
func WithAdmin(addr string) Option {
	return func(e *Extension) { e.config.Admin = addr }
}

// WithFeeBps sets the initial fee rate.
func WithFeeBps(bps uint16) Option {
	return func(e *Extension) { e.config.FeeBps = &bps }
}

// WithVaultAddress sets the initial fee vault.
func WithVaultAddress(addr string) Option {
	return func(e *Extension) { e.config.VaultAddress = addr }
}

// WithMergePolicy sets how repeat placements from another payer are handled.
func WithMergePolicy(policy string) Option {
	return func(e *Extension) { e.config.MergePolicy = policy }
}

// WithJournalBatchSize sets the number of events to buffer before flushing.
func WithJournalBatchSize(size int) Option {
	return func(e *Extension) { e.config.JournalBatchSize = size }
}

// WithJournalFlushInterval sets how frequently the journal buffer is flushed.
func WithJournalFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.JournalFlushInterval = d }
}

// WithDisplayDecimals records major-unit amounts in the journal using the
// rail's number of decimals.
func WithDisplayDecimals(decimals int32) Option {
	return func(e *Extension) { e.config.DisplayDecimals = decimals }
}
