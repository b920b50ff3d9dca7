package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/types"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and dispatches hooks to the ones
// that implement them.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit            []OnInit
	onShutdown        []OnShutdown
	onPaymentPlaced   []OnPaymentPlaced
	onPaymentRefunded []OnPaymentRefunded
	onPaymentReviewed []OnPaymentReviewed
	onBucketFrozen    []OnBucketFrozen
	onBucketApproved  []OnBucketApproved
	onBucketProcessed []OnBucketProcessed
	onPayoutReleased  []OnPayoutReleased
	onPayoutFailed    []OnPayoutFailed
	onFeeChanged      []OnFeeChanged
	onAccessDenied    []OnAccessDenied
	onEventsFlushed   []OnEventsFlushed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout overrides DefaultHookTimeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPaymentPlaced); ok {
		r.onPaymentPlaced = append(r.onPaymentPlaced, v)
	}
	if v, ok := p.(OnPaymentRefunded); ok {
		r.onPaymentRefunded = append(r.onPaymentRefunded, v)
	}
	if v, ok := p.(OnPaymentReviewed); ok {
		r.onPaymentReviewed = append(r.onPaymentReviewed, v)
	}
	if v, ok := p.(OnBucketFrozen); ok {
		r.onBucketFrozen = append(r.onBucketFrozen, v)
	}
	if v, ok := p.(OnBucketApproved); ok {
		r.onBucketApproved = append(r.onBucketApproved, v)
	}
	if v, ok := p.(OnBucketProcessed); ok {
		r.onBucketProcessed = append(r.onBucketProcessed, v)
	}
	if v, ok := p.(OnPayoutReleased); ok {
		r.onPayoutReleased = append(r.onPayoutReleased, v)
	}
	if v, ok := p.(OnPayoutFailed); ok {
		r.onPayoutFailed = append(r.onPayoutFailed, v)
	}
	if v, ok := p.(OnFeeChanged); ok {
		r.onFeeChanged = append(r.onFeeChanged, v)
	}
	if v, ok := p.(OnAccessDenied); ok {
		r.onAccessDenied = append(r.onAccessDenied, v)
	}
	if v, ok := p.(OnEventsFlushed); ok {
		r.onEventsFlushed = append(r.onEventsFlushed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedHooks(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnPaymentPlaced", reflect.TypeOf((*OnPaymentPlaced)(nil)).Elem()},
	{"OnPaymentRefunded", reflect.TypeOf((*OnPaymentRefunded)(nil)).Elem()},
	{"OnPaymentReviewed", reflect.TypeOf((*OnPaymentReviewed)(nil)).Elem()},
	{"OnBucketFrozen", reflect.TypeOf((*OnBucketFrozen)(nil)).Elem()},
	{"OnBucketApproved", reflect.TypeOf((*OnBucketApproved)(nil)).Elem()},
	{"OnBucketProcessed", reflect.TypeOf((*OnBucketProcessed)(nil)).Elem()},
	{"OnPayoutReleased", reflect.TypeOf((*OnPayoutReleased)(nil)).Elem()},
	{"OnPayoutFailed", reflect.TypeOf((*OnPayoutFailed)(nil)).Elem()},
	{"OnFeeChanged", reflect.TypeOf((*OnFeeChanged)(nil)).Elem()},
	{"OnAccessDenied", reflect.TypeOf((*OnAccessDenied)(nil)).Elem()},
	{"OnEventsFlushed", reflect.TypeOf((*OnEventsFlushed)(nil)).Elem()},
}

// implementedHooks lists the hook interfaces p implements.
func implementedHooks(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, g interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnInit", p.Name(), func() error { return p.OnInit(ctx, g) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnShutdown", p.Name(), func() error { return p.OnShutdown(ctx) })
	}
}

func (r *Registry) EmitPaymentPlaced(ctx context.Context, pl *ledger.Placement) {
	r.mu.RLock()
	plugins := r.onPaymentPlaced
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnPaymentPlaced", p.Name(), func() error { return p.OnPaymentPlaced(ctx, pl) })
	}
}

func (r *Registry) EmitPaymentRefunded(ctx context.Context, ref *ledger.Refund) {
	r.mu.RLock()
	plugins := r.onPaymentRefunded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnPaymentRefunded", p.Name(), func() error { return p.OnPaymentRefunded(ctx, ref) })
	}
}

func (r *Registry) EmitPaymentReviewed(ctx context.Context, rev *ledger.Review) {
	r.mu.RLock()
	plugins := r.onPaymentReviewed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnPaymentReviewed", p.Name(), func() error { return p.OnPaymentReviewed(ctx, rev) })
	}
}

func (r *Registry) EmitBucketFrozen(ctx context.Context, b *ledger.Bucket) {
	r.mu.RLock()
	plugins := r.onBucketFrozen
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnBucketFrozen", p.Name(), func() error { return p.OnBucketFrozen(ctx, b) })
	}
}

func (r *Registry) EmitBucketApproved(ctx context.Context, b *ledger.Bucket) {
	r.mu.RLock()
	plugins := r.onBucketApproved
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnBucketApproved", p.Name(), func() error { return p.OnBucketApproved(ctx, b) })
	}
}

func (r *Registry) EmitBucketProcessed(ctx context.Context, s *ledger.Settlement) {
	r.mu.RLock()
	plugins := r.onBucketProcessed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnBucketProcessed", p.Name(), func() error { return p.OnBucketProcessed(ctx, s) })
	}
}

func (r *Registry) EmitPayoutReleased(ctx context.Context, po *payout.Payout) {
	r.mu.RLock()
	plugins := r.onPayoutReleased
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnPayoutReleased", p.Name(), func() error { return p.OnPayoutReleased(ctx, po) })
	}
}

func (r *Registry) EmitPayoutFailed(ctx context.Context, po *payout.Payout, cause error) {
	r.mu.RLock()
	plugins := r.onPayoutFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnPayoutFailed", p.Name(), func() error { return p.OnPayoutFailed(ctx, po, cause) })
	}
}

func (r *Registry) EmitFeeChanged(ctx context.Context, before, after fee.Settings) {
	r.mu.RLock()
	plugins := r.onFeeChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnFeeChanged", p.Name(), func() error { return p.OnFeeChanged(ctx, before, after) })
	}
}

func (r *Registry) EmitAccessDenied(ctx context.Context, role access.Role, caller types.Address) {
	r.mu.RLock()
	plugins := r.onAccessDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnAccessDenied", p.Name(), func() error { return p.OnAccessDenied(ctx, role, caller) })
	}
}

func (r *Registry) EmitEventsFlushed(ctx context.Context, count int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onEventsFlushed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, "OnEventsFlushed", p.Name(), func() error { return p.OnEventsFlushed(ctx, count, elapsed) })
	}
}

// call runs one hook and logs its failure. Hook errors never reach the
// caller of the gateway operation.
func (r *Registry) call(ctx context.Context, hook, pluginName string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
