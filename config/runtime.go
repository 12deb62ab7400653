package config

import (
	"context"
	"fmt"
	"sort"

	"github.com/kbukum/cryptokit/logger"
	"github.com/kbukum/cryptokit/provider"
)

// Runtime is a configured provider store plus the handle references
// Build took while registering providers. Close releases those
// references and then closes the store.
type Runtime struct {
	store    *provider.Store
	log      *logger.Logger
	releases []func()
}

// Store returns the configured provider store.
func (rt *Runtime) Store() *provider.Store { return rt.store }

// Close releases the references Build holds, in reverse registration
// order, and closes the store.
func (rt *Runtime) Close(ctx context.Context) error {
	for i := len(rt.releases) - 1; i >= 0; i-- {
		rt.releases[i]()
	}
	rt.releases = nil
	return rt.store.Close(ctx)
}

// Build constructs a provider store from cfg.
//
// Configured providers are registered in declaration order; a name
// that matches a builtin reuses the builtin's init function, any other
// name is registered as a loadable provider. Builtins the
// configuration does not mention are registered afterwards. Fallback
// marks and eager activation are applied as declared.
//
// On failure every reference taken so far is released and the store is
// closed before returning.
func Build(ctx context.Context, cfg *Config, builtins map[string]provider.InitFunc, opts ...provider.Option) (*Runtime, error) {
	log := logger.New(&cfg.Logging, "cryptokit")

	storeOpts := []provider.Option{
		provider.WithLogger(log),
		provider.WithDefaultLocations(cfg.Registry.ModulePath...),
	}
	storeOpts = append(storeOpts, opts...)

	rt := &Runtime{store: provider.NewStore(storeOpts...), log: log}

	declared := make(map[string]bool, len(cfg.Registry.Providers))
	for _, pc := range cfg.Registry.Providers {
		declared[pc.Name] = true
		if err := rt.register(ctx, pc.Name, builtins[pc.Name], pc); err != nil {
			return nil, rt.fail(ctx, err)
		}
	}

	names := make([]string, 0, len(builtins))
	for name := range builtins {
		if !declared[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := rt.register(ctx, name, builtins[name], ProviderConfig{Name: name}); err != nil {
			return nil, rt.fail(ctx, err)
		}
	}

	return rt, nil
}

// register adds one provider to the store and applies its declaration.
func (rt *Runtime) register(ctx context.Context, name string, init provider.InitFunc, pc ProviderConfig) error {
	h, err := rt.store.NewOrGet(name, init)
	if err != nil {
		return fmt.Errorf("register provider %s: %w", name, err)
	}
	return rt.apply(ctx, h, pc)
}

// apply consumes or records the handle reference depending on the
// declaration: fallback hands the reference to the store, everything
// else is released again when the runtime closes.
func (rt *Runtime) apply(ctx context.Context, h *provider.Handle, pc ProviderConfig) error {
	for _, dir := range pc.Locations {
		h.AddModuleLocation(dir)
	}

	if pc.Fallback {
		if err := h.SetFallback(); err != nil {
			return fmt.Errorf("mark provider %s as fallback: %w", pc.Name, err)
		}
		return nil
	}

	rt.releases = append(rt.releases, h.Release)
	if pc.Activate {
		if err := h.Activate(ctx); err != nil {
			return fmt.Errorf("activate provider %s: %w", pc.Name, err)
		}
		rt.releases = append(rt.releases, h.Release)
	}
	return nil
}

// fail unwinds a partially built runtime and returns err.
func (rt *Runtime) fail(ctx context.Context, err error) error {
	if cerr := rt.Close(ctx); cerr != nil {
		rt.log.WithError(cerr).Warn("cleanup after failed build")
	}
	return err
}
