// Package extension provides the Forge extension adapter for the escrow
// gateway.
//
// It implements the forge.Extension interface to integrate the gateway
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.escrow" or "escrow" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/store/memory"
	"github.com/xraph/escrow/transport"
	"github.com/xraph/escrow/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "escrow"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Bucketed escrow ledger and payment gateway"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the escrow gateway as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	gateway     *escrow.Gateway
	store       store.Store
	rail        transport.Transport
	roles       access.Checker
	gatewayOpts []escrow.Option
}

// New creates a new escrow Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Gateway returns the underlying gateway.
// This is nil until Register is called.
func (e *Extension) Gateway() *escrow.Gateway { return e.gateway }

// Register implements [forge.Extension]. It loads configuration,
// builds the gateway, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.buildDependencies(); err != nil {
		return err
	}

	opts, err := e.buildGatewayOpts()
	if err != nil {
		return err
	}

	e.gateway = escrow.New(e.store, e.rail, e.roles, opts...)

	return vessel.Provide(fapp.Container(), func() (*escrow.Gateway, error) {
		return e.gateway, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.gateway == nil {
		return errors.New("escrow: extension not initialized")
	}

	if err := e.gateway.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.gateway != nil {
		if err := e.gateway.Stop(); err != nil && !errors.Is(err, escrow.ErrNotStarted) {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("escrow: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildDependencies fills in the store, rail and role checker that were not
// supplied programmatically.
func (e *Extension) buildDependencies() error {
	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	if e.rail == nil {
		e.rail = transport.NewNativeWallet(types.Address(e.config.Custody))
	}

	if e.roles == nil {
		ctl, err := access.New(types.Address(e.config.Admin))
		if err != nil {
			return fmt.Errorf("escrow: build role controller (set admin or use WithAccess): %w", err)
		}
		e.roles = ctl
	}
	return nil
}

// buildGatewayOpts constructs escrow.Option values from the resolved config.
func (e *Extension) buildGatewayOpts() ([]escrow.Option, error) {
	opts := make([]escrow.Option, 0, len(e.gatewayOpts)+5)

	policy, err := ledger.ParseMergePolicy(e.config.MergePolicy)
	if err != nil {
		return nil, err
	}
	opts = append(opts, escrow.WithMergePolicy(policy))

	bps := DefaultConfig().FeeBps
	if e.config.FeeBps != nil {
		bps = e.config.FeeBps
	}
	opts = append(opts,
		escrow.WithFeeSettings(*bps, types.Address(e.config.VaultAddress)),
		escrow.WithJournalConfig(e.config.JournalBatchSize, e.config.JournalFlushInterval),
		escrow.WithAutoMigrate(!e.config.DisableMigrate),
	)

	if e.config.HookTimeout > 0 {
		opts = append(opts, escrow.WithHookTimeout(e.config.HookTimeout))
	}
	if e.config.DisplayDecimals > 0 {
		opts = append(opts, escrow.WithDisplayDecimals(e.config.DisplayDecimals))
	}

	// Append any pass-through gateway options.
	opts = append(opts, e.gatewayOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("escrow: configuration is required but not found in config files; " +
				"ensure 'extensions.escrow' or 'escrow' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("escrow: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("custody", e.config.Custody),
		forge.F("fee_bps", *e.config.FeeBps),
		forge.F("vault_address", e.config.VaultAddress),
		forge.F("merge_policy", e.config.MergePolicy),
		forge.F("journal_batch_size", e.config.JournalBatchSize),
		forge.F("journal_flush_interval", e.config.JournalFlushInterval),
		forge.F("display_decimals", e.config.DisplayDecimals),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.escrow", "escrow"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("escrow: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("escrow: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Custody == "" {
		cfg.Custody = defaults.Custody
	}
	if cfg.FeeBps == nil {
		cfg.FeeBps = defaults.FeeBps
	}
	if cfg.MergePolicy == "" {
		cfg.MergePolicy = defaults.MergePolicy
	}
	if cfg.JournalBatchSize == 0 {
		cfg.JournalBatchSize = defaults.JournalBatchSize
	}
	if cfg.JournalFlushInterval == 0 {
		cfg.JournalFlushInterval = defaults.JournalFlushInterval
	}
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = defaults.HookTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Admin == "" {
		yamlConfig.Admin = programmaticConfig.Admin
	}
	if yamlConfig.Custody == "" {
		yamlConfig.Custody = programmaticConfig.Custody
	}
	if yamlConfig.VaultAddress == "" {
		yamlConfig.VaultAddress = programmaticConfig.VaultAddress
	}
	if yamlConfig.MergePolicy == "" {
		yamlConfig.MergePolicy = programmaticConfig.MergePolicy
	}
	if yamlConfig.FeeBps == nil {
		yamlConfig.FeeBps = programmaticConfig.FeeBps
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.JournalBatchSize == 0 && programmaticConfig.JournalBatchSize != 0 {
		yamlConfig.JournalBatchSize = programmaticConfig.JournalBatchSize
	}
	if yamlConfig.JournalFlushInterval == 0 && programmaticConfig.JournalFlushInterval != 0 {
		yamlConfig.JournalFlushInterval = programmaticConfig.JournalFlushInterval
	}
	if yamlConfig.HookTimeout == 0 && programmaticConfig.HookTimeout != 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}
	if yamlConfig.DisplayDecimals == 0 {
		yamlConfig.DisplayDecimals = programmaticConfig.DisplayDecimals
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
