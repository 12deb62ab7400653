package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/cryptokit/errors"
	"github.com/kbukum/cryptokit/logger"
	"github.com/kbukum/cryptokit/modload"
	"github.com/kbukum/cryptokit/observability"
)

// Store is the per-context provider registry. It owns the canonical reference
// to each provider and arbitrates fallback activation. One lock guards the
// mapping and every provider's mutable fields; init and teardown callbacks
// run outside it.
type Store struct {
	mu sync.Mutex

	id               string
	providers        map[string]*Provider
	order            []*Provider // registration order, drives iteration
	defaultLocations []string
	closed           bool

	loader  modload.Loader
	metrics *observability.Metrics
	log     *logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLoader sets the module loader used for loadable providers.
func WithLoader(l modload.Loader) Option {
	return func(s *Store) { s.loader = l }
}

// WithDefaultLocations sets the store-wide baseline module search directories.
func WithDefaultLocations(dirs ...string) Option {
	return func(s *Store) { s.defaultLocations = append(s.defaultLocations, dirs...) }
}

// WithMetrics enables metric recording on the store's lifecycle operations.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the store's logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore creates an empty provider store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		id:        uuid.NewString(),
		providers: make(map[string]*Provider),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loader == nil {
		s.loader = modload.NewPluginLoader()
	}
	if s.log == nil {
		s.log = logger.Get("provider").WithFields(map[string]interface{}{
			logger.FieldStore: s.id[:8],
		})
	}
	return s
}

// Find looks up a provider by name. On a hit it takes a new reference and
// returns a handle; on a miss it returns NOT_FOUND. No other side effects.
func (s *Store) Find(name string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[name]
	if !ok {
		return nil, errors.NotFound(name)
	}
	if s.closed {
		return nil, errors.StoreClosed()
	}
	p.refCount++
	return s.newHandleLocked(p), nil
}

// NewOrGet returns the provider registered under name, creating it if absent.
// A non-nil init makes the new provider builtin; nil makes it loadable. An
// existing provider is returned unchanged regardless of init: duplicate
// registration is treated as a find, never an error.
//
// A freshly created provider starts with two references: the store's own hold
// and the returned handle.
func (s *Store) NewOrGet(name string, init InitFunc) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.StoreClosed()
	}
	if name == "" {
		return nil, errors.MissingField("name")
	}

	if p, ok := s.providers[name]; ok {
		p.refCount++
		return s.newHandleLocked(p), nil
	}

	p := &Provider{
		name:     name,
		init:     init,
		refCount: 2,
		state:    StateInactive,
	}
	p.cond = sync.NewCond(&s.mu)
	s.providers[name] = p
	s.order = append(s.order, p)

	s.log.Debug("provider registered", logger.Fields(
		logger.FieldProvider, name,
		"builtin", p.IsBuiltin(),
	))
	return s.newHandleLocked(p), nil
}

// Names returns the registered provider names in registration order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.order))
	for _, p := range s.order {
		names = append(names, p.name)
	}
	return names
}

// ForEachActive invokes fn for every active provider, in registration order,
// stopping at the first error. Each provider is pinned by a temporary
// reference for the duration of its callback.
//
// If no provider is active when iteration begins, the store first activates
// every fallback-designated provider and retries the iteration exactly once.
// Partial fallback success is sufficient to proceed; a still-empty second
// pass returns nil, not an error.
func (s *Store) ForEachActive(ctx context.Context, fn func(ctx context.Context, h *Handle) error) error {
	handles := s.snapshotActive()
	if len(handles) == 0 {
		s.activateFallbacks(ctx)
		handles = s.snapshotActive()
	}

	var err error
	for _, h := range handles {
		if err == nil {
			err = fn(ctx, h)
		}
		h.Release()
	}
	return err
}

// snapshotActive pins every active provider with a fresh reference and
// returns handles in registration order.
func (s *Store) snapshotActive() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var handles []*Handle
	for _, p := range s.order {
		if p.state == StateActive {
			p.refCount++
			handles = append(handles, s.newHandleLocked(p))
		}
	}
	return handles
}

// activateFallbacks tries to activate every fallback-designated provider.
// Individual failures are logged and skipped; whatever became active wins.
func (s *Store) activateFallbacks(ctx context.Context) {
	s.mu.Lock()
	var fallbacks []*Provider
	for _, p := range s.order {
		if p.fallback && p.state == StateInactive {
			fallbacks = append(fallbacks, p)
		}
	}
	s.mu.Unlock()

	for _, p := range fallbacks {
		if err := s.activate(ctx, p, false); err != nil {
			s.log.Warn("fallback activation failed", logger.Fields(
				logger.FieldProvider, p.name,
				logger.FieldError, err.Error(),
			))
		}
	}
}

// Close shuts the store down: it drops the store's own hold (and any fallback
// designation hold) of every provider, driving each to teardown and
// destruction. Callers that still hold references leak their providers;
// Close reports them.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	remaining := make([]*Provider, len(s.order))
	copy(remaining, s.order)
	s.mu.Unlock()

	for _, p := range remaining {
		s.mu.Lock()
		isFallback := p.fallback
		p.fallback = false
		s.mu.Unlock()
		if isFallback {
			s.release(ctx, p)
		}
		s.release(ctx, p)
	}

	s.mu.Lock()
	leaked := make([]string, 0)
	for _, p := range s.order {
		leaked = append(leaked, p.name)
	}
	s.mu.Unlock()

	if len(leaked) > 0 {
		s.log.Warn("providers leaked at store close", logger.Fields(
			"providers", leaked,
		))
		return errors.InvalidState("store", fmt.Sprintf("providers still referenced at close: %v", leaked))
	}
	s.log.Debug("store closed")
	return nil
}

// newHandleLocked builds a handle for a provider whose reference has already
// been taken. Must be called with the store lock held.
func (s *Store) newHandleLocked(p *Provider) *Handle {
	h := &Handle{store: s, p: p}
	h.refs.Store(1)
	return h
}

// activate brings p to the active state. Exactly one goroutine runs the init
// path; concurrent activators wait and re-check, so a failed winner's losers
// retry rather than fail. When addRef is set, success takes a new usage
// reference (explicit activation); implicit activation from dispatch and
// fallback activation leave the count alone.
func (s *Store) activate(ctx context.Context, p *Provider, addRef bool) error {
	s.mu.Lock()
	for {
		if s.closed {
			s.mu.Unlock()
			return errors.StoreClosed()
		}
		if p.state == StateActive {
			if addRef {
				p.refCount++
			}
			s.mu.Unlock()
			return nil
		}
		if !p.initInFlight {
			break
		}
		p.cond.Wait()
	}
	p.initInFlight = true
	init := p.init
	locations := s.searchLocationsLocked(p)
	s.mu.Unlock()

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanActivate)
	observability.SetSpanAttribute(ctx, observability.AttrProviderName, p.name)
	caps, modPath, modHandle, err := s.runInit(ctx, p.name, init, locations)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	span.End()

	s.mu.Lock()
	p.initInFlight = false
	p.cond.Broadcast()
	if err != nil {
		s.mu.Unlock()
		s.recordOperation(ctx, p.name, "activate", "error", start)
		s.recordError(ctx, string(errors.CodeOf(err)), p.name)
		s.log.Warn("activation failed", logger.Fields(
			logger.FieldProvider, p.name,
			logger.FieldError, err.Error(),
		))
		return err
	}
	if caps == nil {
		// init succeeded but declared nothing; an empty table keeps the
		// active-implies-table invariant.
		caps = &Capabilities{}
	}
	p.caps = caps
	p.state = StateActive
	p.modulePath = modPath
	p.module = modHandle
	if addRef {
		p.refCount++
	}
	rc := p.refCount
	s.mu.Unlock()

	s.recordOperation(ctx, p.name, "activate", "ok", start)
	s.recordActivation(ctx, p.name, 1)
	s.log.Info("provider activated", logger.Fields(
		logger.FieldProvider, p.name,
		logger.FieldModule, modPath,
		logger.FieldRefCount, rc,
	))
	return nil
}

// runInit executes the init path with no locks held. For builtin providers it
// calls the registered init function; for loadable providers it resolves,
// loads, and initializes the module.
func (s *Store) runInit(ctx context.Context, name string, init InitFunc, locations []string) (*Capabilities, string, modload.Handle, error) {
	if init != nil {
		caps, err := init(ctx)
		if err != nil {
			return nil, "", nil, errors.InitFailed(name, err)
		}
		return caps, "", nil, nil
	}

	path, ok := ResolveModule(name, locations)
	if !ok {
		return nil, "", nil, errors.ModuleResolutionFailed(name, locations)
	}

	handle, err := s.loader.Load(path)
	if err != nil {
		return nil, "", nil, errors.ModuleLoadFailed(name, path, err)
	}

	sym, err := s.loader.Lookup(handle, InitSymbol)
	if err != nil {
		return nil, "", nil, errors.SymbolNotFound(name, InitSymbol)
	}

	initFn, ok := symbolAsInit(sym)
	if !ok {
		return nil, "", nil, errors.SymbolNotFound(name, InitSymbol).
			WithDetail("reason", "symbol has the wrong type")
	}

	caps, err := initFn(ctx)
	if err != nil {
		return nil, "", nil, errors.InitFailed(name, err)
	}
	return caps, path, handle, nil
}

// symbolAsInit converts a loader symbol to an InitFunc. Modules may export
// the function directly or as a pointer.
func symbolAsInit(sym any) (InitFunc, bool) {
	switch fn := sym.(type) {
	case InitFunc:
		return fn, true
	case func(context.Context) (*Capabilities, error):
		return fn, true
	case *InitFunc:
		if fn != nil && *fn != nil {
			return *fn, true
		}
	}
	return nil, false
}

// release drops one reference and applies the threshold transitions: at one
// remaining reference the provider is torn down but stays registered, at zero
// it is destroyed and its module unloaded. Both transitions are decided under
// the store lock, so neither can run twice.
func (s *Store) release(ctx context.Context, p *Provider) {
	s.mu.Lock()
	for p.initInFlight {
		p.cond.Wait()
	}
	if p.refCount <= 0 {
		s.mu.Unlock()
		s.log.Error("release of a dead provider ignored", logger.Fields(
			logger.FieldProvider, p.name,
		))
		return
	}
	p.refCount--
	rc := p.refCount

	var teardown func()
	var unload modload.Handle
	tearingDown := false
	switch rc {
	case 1:
		if p.state == StateActive {
			if p.caps != nil {
				teardown = p.caps.Teardown
			}
			p.caps = nil
			p.state = StateInactive
			// The module stays loaded: unload is deferred to destruction so
			// re-activation is cheap. The in-flight flag keeps activators out
			// until the teardown callback has returned.
			p.initInFlight = true
			tearingDown = true
		}
	case 0:
		delete(s.providers, p.name)
		for i, q := range s.order {
			if q == p {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		unload = p.module
		p.module = nil
	}
	s.mu.Unlock()

	if tearingDown {
		if teardown != nil {
			teardown()
		}
		s.mu.Lock()
		p.initInFlight = false
		p.cond.Broadcast()
		s.mu.Unlock()

		s.recordActivation(ctx, p.name, -1)
		s.log.Info("provider inactivated", logger.Fields(
			logger.FieldProvider, p.name,
		))
	}

	if rc == 0 {
		if unload != nil {
			if err := s.loader.Unload(unload); err != nil {
				s.log.Warn("module unload failed", logger.Fields(
					logger.FieldProvider, p.name,
					logger.FieldError, err.Error(),
				))
			}
		}
		s.log.Info("provider destroyed", logger.Fields(
			logger.FieldProvider, p.name,
		))
	}
}
