package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/transport"
	"github.com/xraph/escrow/types"
)

// Gateway is the escrow front door. It takes payments from payers, drives
// the ledger state machine and releases funds through the currency
// transport. Every mutating call runs under a single lock.
type Gateway struct {
	mu      sync.Mutex
	started bool
	stopped bool

	book    *ledger.Book
	fees    *fee.Config
	roles   access.Checker
	rail    transport.Transport
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// last balances written to the store
	balances map[types.Address]types.Amount

	// Event journal
	jmu      sync.RWMutex
	running  bool
	journal  chan *event.Event
	flushReq chan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	bookOpts             []ledger.Option
	initialFees          *fee.Settings
	autoMigrate          bool
	journalBufferSize    int
	journalBatchSize     int
	journalFlushInterval time.Duration
	displayDecimals      int32
}

// New creates a Gateway over the given store, currency rail and role
// checker. The ledger is empty until Start restores it from the store.
func New(s store.Store, rail transport.Transport, roles access.Checker, opts ...Option) *Gateway {
	g := &Gateway{
		roles:                roles,
		rail:                 rail,
		store:                s,
		plugins:              plugin.NewRegistry(),
		logger:               slog.Default(),
		balances:             make(map[types.Address]types.Amount),
		flushReq:             make(chan chan struct{}),
		stopChan:             make(chan struct{}),
		autoMigrate:          true,
		journalBufferSize:    10000,
		journalBatchSize:     100,
		journalFlushInterval: 5 * time.Second,
		displayDecimals:      -1,
	}

	for _, opt := range opts {
		opt(g)
	}

	g.book = ledger.New(g.bookOpts...)
	g.fees = fee.New(roles)
	g.journal = make(chan *event.Event, g.journalBufferSize)

	if ctl, ok := roles.(interface{ OnChange(access.Listener) }); ok {
		ctl.OnChange(g.onRoleChange)
	}

	return g
}

// Option configures a Gateway instance.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
		g.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(g *Gateway) {
		_ = g.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithHookTimeout bounds how long a single plugin hook may run.
func WithHookTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.plugins.WithTimeout(d)
	}
}

// WithMergePolicy sets how a repeat placement from a different payer is
// handled.
func WithMergePolicy(p ledger.MergePolicy) Option {
	return func(g *Gateway) {
		g.bookOpts = append(g.bookOpts, ledger.WithMergePolicy(p))
	}
}

// WithFeeSettings sets the fee rate and vault used when the store holds no
// fee settings yet.
func WithFeeSettings(bps uint16, vault types.Address) Option {
	return func(g *Gateway) {
		g.initialFees = &fee.Settings{Bps: bps, Vault: vault}
	}
}

// WithAutoMigrate controls whether Start runs store migrations.
func WithAutoMigrate(enabled bool) Option {
	return func(g *Gateway) {
		g.autoMigrate = enabled
	}
}

// WithJournalConfig configures event journal batching.
func WithJournalConfig(batchSize int, flushInterval time.Duration) Option {
	return func(g *Gateway) {
		if batchSize > 0 {
			g.journalBatchSize = batchSize
		}
		if flushInterval > 0 {
			g.journalFlushInterval = flushInterval
		}
	}
}

// WithJournalBuffer sets how many events may wait for the journal worker
// before writes fall back to the caller.
func WithJournalBuffer(size int) Option {
	return func(g *Gateway) {
		if size >= 0 {
			g.journalBufferSize = size
		}
	}
}

// WithDisplayDecimals adds major-unit renderings of event amounts to the
// journal ("amount_units", "fee_units"), using the rail's number of
// decimals. Amount(1500) with 2 decimals is recorded as "15.00".
func WithDisplayDecimals(decimals int32) Option {
	return func(g *Gateway) {
		if decimals >= 0 {
			g.displayDecimals = decimals
		}
	}
}

// Start migrates the store, restores the ledger and fee settings from it and
// begins the journal worker.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return nil
	}
	// Stop closes the store and the journal worker's stop channel.
	if g.stopped {
		return ErrStopped
	}

	if g.autoMigrate {
		if err := g.store.Migrate(ctx); err != nil {
			return err
		}
	}

	if err := g.restoreFees(ctx); err != nil {
		return err
	}
	if err := g.restoreBook(ctx); err != nil {
		return err
	}

	g.plugins.EmitInit(ctx, g)

	g.jmu.Lock()
	g.running = true
	g.jmu.Unlock()

	g.wg.Add(1)
	go g.journalWorker(context.WithoutCancel(ctx))

	g.started = true

	g.logger.Info("escrow gateway started",
		"rail", g.rail.Name(),
		"receivers", len(g.book.Receivers()),
		"fee_bps", g.fees.FeeBps(),
		"vault", g.fees.VaultAddress(),
		"merge_policy", g.book.MergePolicy().String(),
		"journal_batch_size", g.journalBatchSize,
		"journal_flush_interval", g.journalFlushInterval,
	)

	return nil
}

// Stop drains the journal, notifies plugins and closes the store. A
// stopped Gateway cannot be started again.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	if !g.started {
		g.mu.Unlock()
		return ErrNotStarted
	}
	g.started = false
	g.stopped = true
	g.mu.Unlock()

	g.jmu.Lock()
	g.running = false
	close(g.stopChan)
	g.jmu.Unlock()
	g.wg.Wait()

	ctx := context.Background()
	g.plugins.EmitShutdown(ctx)

	return g.store.Close()
}

func (g *Gateway) restoreFees(ctx context.Context) error {
	if g.initialFees != nil {
		if err := g.fees.Restore(*g.initialFees); err != nil {
			return err
		}
	}

	fs, err := g.store.GetFeeSettings(ctx)
	switch {
	case err == nil:
		return g.fees.Restore(*fs)
	case errors.Is(err, ErrFeeSettingsNotFound):
		s := g.fees.Settings()
		return g.store.SaveFeeSettings(ctx, &s)
	default:
		return fmt.Errorf("escrow: load fee settings: %w", err)
	}
}

func (g *Gateway) restoreBook(ctx context.Context) error {
	accounts, err := g.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("escrow: load accounts: %w", err)
	}
	stored, err := g.store.ListBalances(ctx)
	if err != nil {
		return fmt.Errorf("escrow: load balances: %w", err)
	}

	balances := make(map[types.Address]types.Amount, len(stored))
	for _, b := range stored {
		balances[b.Holder] = b.Amount
	}

	if err := g.book.Restore(accounts, balances); err != nil {
		return fmt.Errorf("escrow: restore ledger: %w", err)
	}
	if err := g.book.Verify(); err != nil {
		return err
	}

	g.balances = g.book.Balances()
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (g *Gateway) ready() error {
	if !g.started {
		return ErrNotStarted
	}
	return nil
}

// authorize checks that caller holds one of roles, reporting a denial to
// plugins and the journal.
func (g *Gateway) authorize(ctx context.Context, caller types.Address, roles ...access.Role) error {
	err := access.RequireAny(g.roles, caller, roles...)
	if err != nil {
		g.denied(ctx, err)
	}
	return err
}

func (g *Gateway) denied(ctx context.Context, err error) {
	var ue *access.UnauthorizedError
	if !errors.As(err, &ue) {
		return
	}

	g.logger.Warn("escrow: access denied",
		"role", ue.Role,
		"caller", ue.Caller,
	)
	g.plugins.EmitAccessDenied(ctx, ue.Role, ue.Caller)

	e := event.New(event.TypeAccessDenied)
	e.Actor = ue.Caller
	g.record(ctx, e.With("role", string(ue.Role)))
}

func (g *Gateway) onRoleChange(ch access.Change) {
	t := event.TypeRoleRevoked
	if ch.Granted {
		t = event.TypeRoleGranted
	}
	e := event.New(t)
	e.Actor = ch.Sender
	e.With("role", string(ch.Role)).With("account", ch.Account.String())
	g.record(context.Background(), e)
}

// checkpoint writes the touched receivers and every changed payable
// balance. The in-memory ledger has already committed, so store failures
// are logged and picked up by the next checkpoint.
func (g *Gateway) checkpoint(ctx context.Context, receivers ...types.Address) {
	for _, r := range receivers {
		st, ok := g.book.Snapshot(r)
		if !ok {
			continue
		}
		if err := g.store.SaveAccount(ctx, st); err != nil {
			g.logger.Error("escrow: failed to checkpoint account",
				"receiver", r,
				"error", err,
			)
		}
	}

	current := g.book.Balances()
	now := time.Now().UTC()
	var changed []*payout.Balance
	for holder, amt := range current {
		if prev, ok := g.balances[holder]; !ok || prev != amt {
			changed = append(changed, &payout.Balance{Holder: holder, Amount: amt, UpdatedAt: now})
		}
	}
	for holder := range g.balances {
		if _, ok := current[holder]; !ok {
			changed = append(changed, &payout.Balance{Holder: holder, UpdatedAt: now})
		}
	}
	if len(changed) == 0 {
		return
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].Holder < changed[j].Holder })

	if err := g.store.SaveBalances(ctx, changed); err != nil {
		g.logger.Error("escrow: failed to checkpoint balances",
			"holders", len(changed),
			"error", err,
		)
		return
	}
	g.balances = current
}

// Checkpoint writes the full ledger and fee settings to the store.
func (g *Gateway) Checkpoint(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs MultiError
	for _, r := range g.book.Receivers() {
		st, ok := g.book.Snapshot(r)
		if !ok {
			continue
		}
		if err := g.store.SaveAccount(ctx, st); err != nil {
			errs.Add(fmt.Errorf("escrow: checkpoint %s: %w", r, err))
		}
	}

	current := g.book.Balances()
	all := make([]*payout.Balance, 0, len(current)+len(g.balances))
	now := time.Now().UTC()
	for holder, amt := range current {
		all = append(all, &payout.Balance{Holder: holder, Amount: amt, UpdatedAt: now})
	}
	for holder := range g.balances {
		if _, ok := current[holder]; !ok {
			all = append(all, &payout.Balance{Holder: holder, UpdatedAt: now})
		}
	}
	if len(all) > 0 {
		if err := g.store.SaveBalances(ctx, all); err != nil {
			errs.Add(fmt.Errorf("escrow: checkpoint balances: %w", err))
		} else {
			g.balances = current
		}
	}

	s := g.fees.Settings()
	if err := g.store.SaveFeeSettings(ctx, &s); err != nil {
		errs.Add(fmt.Errorf("escrow: checkpoint fee settings: %w", err))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (g *Gateway) savePayout(ctx context.Context, po *payout.Payout) {
	if err := g.store.CreatePayout(ctx, po); err != nil {
		g.logger.Error("escrow: failed to store payout receipt",
			"payout_id", po.ID,
			"holder", po.Holder,
			"status", po.Status,
			"error", err,
		)
	}
}

// dedupe drops repeated receivers, keeping first-seen order.
func dedupe(receivers []types.Address) []types.Address {
	seen := make(map[types.Address]struct{}, len(receivers))
	out := make([]types.Address, 0, len(receivers))
	for _, r := range receivers {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
