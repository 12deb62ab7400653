package modload

import (
	"fmt"
	"plugin"
	"sync"

	"github.com/kbukum/cryptokit/logger"
)

// Handle is an opaque reference to a loaded module.
type Handle interface {
	// Path returns the filesystem path the module was loaded from.
	Path() string
}

// Loader loads modules and resolves symbols within them.
type Loader interface {
	// Load opens the module at path.
	Load(path string) (Handle, error)
	// Lookup resolves a named symbol in a loaded module.
	Lookup(h Handle, symbol string) (any, error)
	// Unload releases the loader's hold on a module.
	Unload(h Handle) error
}

// PluginLoader implements Loader on top of the Go plugin package.
type PluginLoader struct {
	mu   sync.Mutex
	open map[string]*pluginHandle
	log  *logger.Logger
}

// NewPluginLoader creates a PluginLoader.
func NewPluginLoader() *PluginLoader {
	return &PluginLoader{
		open: make(map[string]*pluginHandle),
		log:  logger.Get("modload"),
	}
}

type pluginHandle struct {
	path string
	p    *plugin.Plugin
}

func (h *pluginHandle) Path() string { return h.path }

// Load opens the plugin at path. Loading the same path twice returns the
// same handle; the runtime keeps a single copy of each plugin regardless.
func (l *PluginLoader) Load(path string) (Handle, error) {
	l.mu.Lock()
	if h, ok := l.open[path]; ok {
		l.mu.Unlock()
		return h, nil
	}
	l.mu.Unlock()

	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening module %s: %w", path, err)
	}

	h := &pluginHandle{path: path, p: p}
	l.mu.Lock()
	l.open[path] = h
	l.mu.Unlock()

	l.log.Debug("module loaded", logger.Fields(logger.FieldModule, path))
	return h, nil
}

// Lookup resolves a symbol in a module previously returned by Load.
func (l *PluginLoader) Lookup(h Handle, symbol string) (any, error) {
	ph, ok := h.(*pluginHandle)
	if !ok || ph.p == nil {
		return nil, fmt.Errorf("handle does not belong to this loader")
	}
	sym, err := ph.p.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("resolving symbol %s in %s: %w", symbol, ph.path, err)
	}
	return sym, nil
}

// Unload drops the bookkeeping for a handle. The plugin itself stays mapped.
func (l *PluginLoader) Unload(h Handle) error {
	ph, ok := h.(*pluginHandle)
	if !ok {
		return fmt.Errorf("handle does not belong to this loader")
	}
	l.mu.Lock()
	delete(l.open, ph.path)
	l.mu.Unlock()

	l.log.Debug("module handle released", logger.Fields(logger.FieldModule, ph.path))
	return nil
}
