package extension

import "time"

// Config holds the escrow extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.escrow" or "escrow" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Admin is the first administrator of the built-in role controller.
	// Ignored when an access checker is supplied with WithAccess.
	Admin string `json:"admin" mapstructure:"admin" yaml:"admin"`

	// Custody is the escrow account of the built-in native wallet
	// (default: "escrow"). Ignored when WithTransport is used.
	Custody string `json:"custody" mapstructure:"custody" yaml:"custody"`

	// FeeBps is the initial fee rate in basis points (default: 100).
	// The rate stored by a previous run wins over this value.
	FeeBps *uint16 `json:"fee_bps,omitempty" mapstructure:"fee_bps" yaml:"fee_bps,omitempty"`

	// VaultAddress is the initial fee vault. Empty means no vault.
	VaultAddress string `json:"vault_address" mapstructure:"vault_address" yaml:"vault_address"`

	// MergePolicy is "accumulate" (default) or "reject".
	MergePolicy string `json:"merge_policy" mapstructure:"merge_policy" yaml:"merge_policy"`

	// JournalBatchSize is the number of events to buffer before flushing
	// to the store (default: 100).
	JournalBatchSize int `json:"journal_batch_size" mapstructure:"journal_batch_size" yaml:"journal_batch_size"`

	// JournalFlushInterval is how frequently the journal buffer is flushed
	// even if the batch size has not been reached (default: 5s).
	JournalFlushInterval time.Duration `json:"journal_flush_interval" mapstructure:"journal_flush_interval" yaml:"journal_flush_interval"`

	// HookTimeout bounds each plugin hook call (default: 5s).
	HookTimeout time.Duration `json:"hook_timeout" mapstructure:"hook_timeout" yaml:"hook_timeout"`

	// DisplayDecimals is the rail's number of decimals. When set, journal
	// events also carry major-unit amounts. Zero disables it.
	DisplayDecimals int32 `json:"display_decimals" mapstructure:"display_decimals" yaml:"display_decimals"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	bps := uint16(100)
	return Config{
		Custody:              "escrow",
		FeeBps:               &bps,
		MergePolicy:          "accumulate",
		JournalBatchSize:     100,
		JournalFlushInterval: 5 * time.Second,
		HookTimeout:          5 * time.Second,
	}
}
