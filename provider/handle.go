package provider

import (
	"context"
	"sync/atomic"

	"github.com/kbukum/cryptokit/errors"
	"github.com/kbukum/cryptokit/logger"
)

// Handle is an owning reference to a provider. Find, NewOrGet and Upref each
// account for one reference; every one of them must be matched by exactly one
// Release (or consumed by SetFallback). A handle tracks how many references
// it accounts for, so releasing a spent handle is a logged no-op instead of a
// double free.
type Handle struct {
	store *Store
	p     *Provider

	// refs is the number of store references this handle still accounts for.
	refs atomic.Int64
}

// Name returns the provider's name.
func (h *Handle) Name() string { return h.p.name }

// IsBuiltin reports whether the provider has a compiled-in init routine.
func (h *Handle) IsBuiltin() bool { return h.p.IsBuiltin() }

// State returns the provider's current activation state.
func (h *Handle) State() State {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.p.state
}

// RefCount returns the provider's current reference count.
func (h *Handle) RefCount() int {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.p.refCount
}

// IsFallback reports whether the provider is designated as a fallback.
func (h *Handle) IsFallback() bool {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.p.fallback
}

// ModulePath returns the path the provider's module was loaded from, or ""
// for builtin or not-yet-loaded providers.
func (h *Handle) ModulePath() string {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.p.modulePath
}

// AddModuleLocation appends a directory to the provider's own module search
// locations. Valid in any activation state; it affects only future module
// resolution.
func (h *Handle) AddModuleLocation(dir string) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.p.locations = append(h.p.locations, dir)
}

// Activate brings the provider to the active state, running its init path if
// it is inactive. Each successful call takes a usage reference that must be
// matched by a later Release. Activation failure leaves the provider inactive
// and is retryable, e.g. after AddModuleLocation.
func (h *Handle) Activate(ctx context.Context) error {
	if err := h.store.activate(ctx, h.p, true); err != nil {
		return err
	}
	h.refs.Add(1)
	return nil
}

// Upref takes an additional reference through this handle and returns the
// provider's new reference count.
func (h *Handle) Upref() int {
	h.store.mu.Lock()
	h.p.refCount++
	rc := h.p.refCount
	h.store.mu.Unlock()
	h.refs.Add(1)
	return rc
}

// Release drops one reference. Crossing the thresholds tears the provider
// down (at the store-only baseline) or destroys it (at zero). Releasing a
// handle that accounts for no references is a no-op.
func (h *Handle) Release() {
	if h.refs.Add(-1) < 0 {
		h.refs.Add(1)
		h.store.log.Warn("release of a spent handle ignored", logger.Fields(
			logger.FieldProvider, h.p.name,
		))
		return
	}
	h.store.release(context.Background(), h.p)
}

// SetFallback designates the provider as a fallback, eligible for automatic
// activation when no provider is active. The call consumes this handle's
// reference: ownership transfers to the fallback designation and the caller
// must not Release the handle afterwards.
//
// Fallback designation is pre-sharing configuration: it is rejected once the
// provider has been activated or referenced beyond store and creator.
func (h *Handle) SetFallback() error {
	if !h.refs.CompareAndSwap(1, 0) {
		return errors.InvalidState(h.p.name, "fallback designation requires an unshared handle")
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if h.p.state != StateInactive || h.p.refCount > 2 {
		h.refs.Store(1)
		return errors.InvalidState(h.p.name, "fallback designation is only valid before activation and sharing")
	}
	h.p.fallback = true
	return nil
}
