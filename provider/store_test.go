package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kbukum/cryptokit/errors"
	"github.com/kbukum/cryptokit/modload"
)

// fakeLoader implements modload.Loader against an in-memory module table, so
// loadable-provider paths can be tested without building shared objects. The
// module files themselves must still exist on disk for the locator.
type fakeLoader struct {
	mu      sync.Mutex
	modules map[string]InitFunc // path -> init
	loads   int
	unloads int
}

type fakeHandle struct {
	path string
	init InitFunc
}

func (h *fakeHandle) Path() string { return h.path }

func newFakeLoader() *fakeLoader {
	return &fakeLoader{modules: make(map[string]InitFunc)}
}

func (l *fakeLoader) Load(path string) (modload.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	init, ok := l.modules[path]
	if !ok {
		return nil, fmt.Errorf("not a loadable module: %s", path)
	}
	l.loads++
	return &fakeHandle{path: path, init: init}, nil
}

func (l *fakeLoader) Lookup(h modload.Handle, symbol string) (any, error) {
	fh := h.(*fakeHandle)
	if symbol != InitSymbol {
		return nil, fmt.Errorf("symbol %s not found in %s", symbol, fh.path)
	}
	if fh.init == nil {
		return nil, fmt.Errorf("symbol %s not found in %s", symbol, fh.path)
	}
	return fh.init, nil
}

func (l *fakeLoader) Unload(h modload.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unloads++
	return nil
}

// writeModule places an empty module file for the locator and registers its
// init function with the loader.
func writeModule(t *testing.T, l *fakeLoader, dir, name string, init InitFunc) string {
	t.Helper()
	path := filepath.Join(dir, name+".so")
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		t.Fatalf("writing module file: %v", err)
	}
	l.mu.Lock()
	l.modules[path] = init
	l.mu.Unlock()
	return path
}

func noopInit(ctx context.Context) (*Capabilities, error) {
	return &Capabilities{}, nil
}

func TestNewOrGetStartsAtTwoReferences(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))
	h, err := s.NewOrGet("alpha", noopInit)
	if err != nil {
		t.Fatalf("NewOrGet failed: %v", err)
	}
	if rc := h.RefCount(); rc != 2 {
		t.Errorf("fresh provider should have refcount 2, got %d", rc)
	}
	if h.State() != StateInactive {
		t.Errorf("fresh provider should be inactive, got %v", h.State())
	}
	if !h.IsBuiltin() {
		t.Error("provider registered with init should be builtin")
	}
}

func TestNewOrGetExistingIsFind(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))
	h1, err := s.NewOrGet("alpha", noopInit)
	if err != nil {
		t.Fatalf("NewOrGet failed: %v", err)
	}

	// A duplicate registration, even with a different variant, returns the
	// existing provider unchanged.
	h2, err := s.NewOrGet("alpha", nil)
	if err != nil {
		t.Fatalf("duplicate NewOrGet failed: %v", err)
	}
	if !h2.IsBuiltin() {
		t.Error("existing provider's variant must not be overwritten")
	}
	if rc := h2.RefCount(); rc != 3 {
		t.Errorf("expected refcount 3 after duplicate NewOrGet, got %d", rc)
	}
	h1.Release()
	h2.Release()
}

func TestFindMissing(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))
	_, err := s.Find("ghost")
	if err == nil {
		t.Fatal("expected NOT_FOUND for unknown name")
	}
	if !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", errors.CodeOf(err))
	}
}

func TestRefCountArithmetic(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))
	h, _ := s.NewOrGet("alpha", noopInit)

	// 2 + #upref + #successful activate - #release, never negative.
	h.Upref()                             // 3
	if err := h.Activate(context.Background()); err != nil { // 4
		t.Fatalf("Activate failed: %v", err)
	}
	h.Upref() // 5
	if rc := h.RefCount(); rc != 5 {
		t.Fatalf("expected refcount 5, got %d", rc)
	}
	h.Release() // 4
	h.Release() // 3
	h.Release() // 2
	if rc := h.RefCount(); rc != 2 {
		t.Errorf("expected refcount 2, got %d", rc)
	}
}

func TestReleaseToBaselineTearsDownOnce(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))

	var teardowns atomic.Int32
	h, _ := s.NewOrGet("alpha", func(ctx context.Context) (*Capabilities, error) {
		return &Capabilities{
			Teardown: func() { teardowns.Add(1) },
		}, nil
	})
	if err := h.Activate(context.Background()); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	h.Release() // matches activation, rc 3 -> 2
	if teardowns.Load() != 0 {
		t.Fatal("teardown must not run while usage references remain")
	}
	h.Release() // creator's reference, rc 2 -> 1: teardown threshold
	if got := teardowns.Load(); got != 1 {
		t.Fatalf("expected exactly one teardown, got %d", got)
	}

	// Still registered and findable by name.
	h2, err := s.Find("alpha")
	if err != nil {
		t.Fatalf("provider should remain findable after teardown: %v", err)
	}
	if h2.State() != StateInactive {
		t.Errorf("expected inactive after teardown, got %v", h2.State())
	}
	h2.Release()
	if got := teardowns.Load(); got != 1 {
		t.Errorf("teardown ran again on a second drop to baseline: %d", got)
	}
}

func TestReactivationAfterTeardown(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))

	var inits atomic.Int32
	h, _ := s.NewOrGet("alpha", func(ctx context.Context) (*Capabilities, error) {
		inits.Add(1)
		return &Capabilities{}, nil
	})
	if err := h.Activate(context.Background()); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	h.Release()
	h.Release() // teardown

	h2, err := s.Find("alpha")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if err := h2.Activate(context.Background()); err != nil {
		t.Fatalf("re-activation failed: %v", err)
	}
	if inits.Load() != 2 {
		t.Errorf("expected init to run again after teardown, got %d runs", inits.Load())
	}
	h2.Release()
	h2.Release()
}

func TestCloseDestroysAndUnloads(t *testing.T) {
	loader := newFakeLoader()
	dir := t.TempDir()
	writeModule(t, loader, dir, "beta", noopInit)

	s := NewStore(WithLoader(loader), WithDefaultLocations(dir))
	h, _ := s.NewOrGet("beta", nil)
	if err := h.Activate(context.Background()); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	h.Release() // activation ref
	h.Release() // creator ref, teardown at baseline

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close reported leaks: %v", err)
	}
	if loader.unloads != 1 {
		t.Errorf("expected 1 module unload at destruction, got %d", loader.unloads)
	}
	if _, err := s.Find("beta"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND after destruction, got %v", err)
	}
	if names := s.Names(); len(names) != 0 {
		t.Errorf("expected empty store after close, got %v", names)
	}
}

func TestCloseReportsLeakedReferences(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))
	h, _ := s.NewOrGet("alpha", noopInit)
	_ = h // creator reference intentionally not released

	err := s.Close(context.Background())
	if err == nil {
		t.Fatal("expected Close to report the leaked reference")
	}
	if !errors.IsCode(err, errors.ErrCodeInvalidState) {
		t.Errorf("expected INVALID_STATE, got %v", errors.CodeOf(err))
	}
}

func TestConcurrentActivationRunsInitOnce(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))

	var inits atomic.Int32
	barrier := make(chan struct{})
	h, _ := s.NewOrGet("alpha", func(ctx context.Context) (*Capabilities, error) {
		inits.Add(1)
		<-barrier // hold the winner so every loser really has to wait
		return &Capabilities{}, nil
	})

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.Activate(context.Background())
		}(i)
	}
	close(barrier)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("activation %d failed: %v", i, err)
		}
	}
	if got := inits.Load(); got != 1 {
		t.Errorf("expected exactly one init invocation, got %d", got)
	}
	if rc := h.RefCount(); rc != 2+n {
		t.Errorf("expected refcount %d, got %d", 2+n, rc)
	}
	for i := 0; i < n; i++ {
		h.Release()
	}
	h.Release()
}

func TestActivationFailureIsRetryable(t *testing.T) {
	loader := newFakeLoader()
	s := NewStore(WithLoader(loader))

	h, _ := s.NewOrGet("beta", nil)
	err := h.Activate(context.Background())
	if err == nil {
		t.Fatal("expected activation to fail with no search locations")
	}
	if !errors.IsCode(err, errors.ErrCodeModuleResolutionFailed) {
		t.Fatalf("expected MODULE_RESOLUTION_FAILED, got %v", errors.CodeOf(err))
	}
	if h.State() != StateInactive {
		t.Fatalf("failed activation must leave the provider inactive, got %v", h.State())
	}
	if rc := h.RefCount(); rc != 2 {
		t.Fatalf("failed activation must not take a reference, refcount %d", rc)
	}

	// Correct the search path and retry.
	dir := t.TempDir()
	writeModule(t, loader, dir, "beta", noopInit)
	h.AddModuleLocation(dir)

	if err := h.Activate(context.Background()); err != nil {
		t.Fatalf("retry after adding a location failed: %v", err)
	}
	if h.State() != StateActive {
		t.Errorf("expected active after retry, got %v", h.State())
	}
	if h.ModulePath() == "" {
		t.Error("expected resolved module path to be recorded")
	}
	h.Release()
	h.Release()
}

func TestSetFallbackConsumesHandle(t *testing.T) {
	loader := newFakeLoader()
	s := NewStore(WithLoader(loader))

	var inits atomic.Int32
	h, _ := s.NewOrGet("reserve", func(ctx context.Context) (*Capabilities, error) {
		inits.Add(1)
		return &Capabilities{}, nil
	})
	if err := h.SetFallback(); err != nil {
		t.Fatalf("SetFallback failed: %v", err)
	}
	// The handle is consumed: this release must not tear anything down.
	h.Release()

	h2, err := s.Find("reserve")
	if err != nil {
		t.Fatalf("fallback provider must remain registered: %v", err)
	}
	if !h2.IsFallback() {
		t.Error("expected fallback designation to stick")
	}
	if rc := h2.RefCount(); rc != 3 {
		t.Errorf("expected refcount 3 (store + fallback + find), got %d", rc)
	}
	h2.Release()

	// An otherwise-empty active set activates the fallback.
	var seen []string
	err = s.ForEachActive(context.Background(), func(ctx context.Context, h *Handle) error {
		seen = append(seen, h.Name())
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachActive failed: %v", err)
	}
	if len(seen) != 1 || seen[0] != "reserve" {
		t.Errorf("expected fallback activation to yield [reserve], got %v", seen)
	}
	if inits.Load() != 1 {
		t.Errorf("expected one init from fallback activation, got %d", inits.Load())
	}
}

func TestSetFallbackRejectedAfterActivation(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))
	h, _ := s.NewOrGet("alpha", noopInit)
	if err := h.Activate(context.Background()); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	err := h.SetFallback()
	if err == nil {
		t.Fatal("expected SetFallback to be rejected once activated")
	}
	if !errors.IsCode(err, errors.ErrCodeInvalidState) {
		t.Errorf("expected INVALID_STATE, got %v", errors.CodeOf(err))
	}
	h.Release()
	h.Release()
}

func TestForEachActiveOrderAndErrorStops(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))

	for _, name := range []string{"one", "two", "three"} {
		h, _ := s.NewOrGet(name, noopInit)
		if err := h.Activate(context.Background()); err != nil {
			t.Fatalf("Activate %s failed: %v", name, err)
		}
		defer func() {
			h.Release()
			h.Release()
		}()
	}

	var seen []string
	err := s.ForEachActive(context.Background(), func(ctx context.Context, h *Handle) error {
		seen = append(seen, h.Name())
		if h.Name() == "two" {
			return fmt.Errorf("stop here")
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected callback error to propagate")
	}
	if len(seen) != 2 || seen[0] != "one" || seen[1] != "two" {
		t.Errorf("expected iteration [one two] in registration order, got %v", seen)
	}
}

func TestForEachActiveEmptyWithoutFallbacks(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))
	h, _ := s.NewOrGet("idle", noopInit)
	defer h.Release()

	calls := 0
	err := s.ForEachActive(context.Background(), func(ctx context.Context, h *Handle) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("empty iteration must not be an error: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no callbacks, got %d", calls)
	}
}

func TestReleaseOfSpentHandleIgnored(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))
	h, _ := s.NewOrGet("alpha", noopInit)
	h.Release()
	h.Release() // spent: must not drive the count negative
	h2, err := s.Find("alpha")
	if err != nil {
		t.Fatalf("provider should still be held by the store: %v", err)
	}
	if rc := h2.RefCount(); rc != 2 {
		t.Errorf("expected refcount 2, got %d", rc)
	}
	h2.Release()
}

func TestNamesRegistrationOrder(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))
	for _, name := range []string{"zeta", "alpha", "mid"} {
		h, _ := s.NewOrGet(name, noopInit)
		defer h.Release()
	}
	names := s.Names()
	if len(names) != 3 || names[0] != "zeta" || names[1] != "alpha" || names[2] != "mid" {
		t.Errorf("expected registration order [zeta alpha mid], got %v", names)
	}
}

func TestNewOrGetOnClosedStore(t *testing.T) {
	s := NewStore(WithLoader(newFakeLoader()))
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_, err := s.NewOrGet("late", noopInit)
	if !errors.IsCode(err, errors.ErrCodeStoreClosed) {
		t.Errorf("expected STORE_CLOSED, got %v", err)
	}
}
