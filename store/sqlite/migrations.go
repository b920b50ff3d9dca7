package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Escrow store (SQLite).
var Migrations = migrate.NewGroup("escrow")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_escrow_accounts",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_accounts (
    receiver   TEXT PRIMARY KEY,
    sequence   INTEGER NOT NULL DEFAULT 0,
    buckets    TEXT NOT NULL DEFAULT '[]',
    payments   TEXT NOT NULL DEFAULT '[]',
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS escrow_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_escrow_balances",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_balances (
    holder     TEXT PRIMARY KEY,
    amount     TEXT NOT NULL DEFAULT '0',
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS escrow_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_escrow_fee_settings",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_fee_settings (
    id            TEXT PRIMARY KEY,
    fee_bps       INTEGER NOT NULL DEFAULT 100,
    vault_address TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS escrow_fee_settings`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_escrow_payouts",
			Version: "20260301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_payouts (
    id         TEXT PRIMARY KEY,
    holder     TEXT NOT NULL DEFAULT '',
    kind       TEXT NOT NULL,
    amount     TEXT NOT NULL DEFAULT '0',
    status     TEXT NOT NULL,
    payment_id INTEGER NOT NULL DEFAULT 0,
    reason     TEXT NOT NULL DEFAULT '',
    rail       TEXT NOT NULL DEFAULT '',
    paid_at    TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_escrow_payouts_holder ON escrow_payouts (holder, created_at);
CREATE INDEX IF NOT EXISTS idx_escrow_payouts_status ON escrow_payouts (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS escrow_payouts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_escrow_events",
			Version: "20260301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_events (
    id          TEXT PRIMARY KEY,
    type        TEXT NOT NULL,
    receiver    TEXT NOT NULL DEFAULT '',
    payer       TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT '',
    payment_id  INTEGER NOT NULL DEFAULT 0,
    amount      TEXT NOT NULL DEFAULT '0',
    fee         TEXT NOT NULL DEFAULT '0',
    metadata    TEXT NOT NULL DEFAULT '{}',
    occurred_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_escrow_events_occurred ON escrow_events (occurred_at);
CREATE INDEX IF NOT EXISTS idx_escrow_events_receiver ON escrow_events (receiver, occurred_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS escrow_events`)
				return err
			},
		},
	)
}
