package provider

import (
	"os"
	"path/filepath"
)

// InitSymbol is the well-known initialization entry point a loadable module
// must export. Its type must be assignable to InitFunc.
const InitSymbol = "CryptokitInit"

// EnvModulePath names the environment variable holding one extra module
// search directory, consulted after explicit locations and before the
// compiled-in default.
const EnvModulePath = "CRYPTOKIT_MODULE_PATH"

// DefaultModuleDir is the compiled-in module search directory, lowest
// priority. Overridable at build time via -ldflags.
var DefaultModuleDir = "/usr/local/lib/cryptokit/modules"

// moduleFileNames returns the candidate file names for a provider name, in
// preference order.
func moduleFileNames(name string) []string {
	return []string{
		"libcryptokit-" + name + ".so",
		name + ".so",
	}
}

// ResolveModule tries each search location in the given order and returns the
// first existing module file derived from name. It is a pure function of its
// inputs; no state is retained across calls.
func ResolveModule(name string, locations []string) (string, bool) {
	candidates := moduleFileNames(name)
	for _, dir := range locations {
		if dir == "" {
			continue
		}
		for _, file := range candidates {
			path := filepath.Join(dir, file)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, true
			}
		}
	}
	return "", false
}

// searchLocationsLocked assembles the full search order for a provider: its own
// locations, the store defaults, the environment override, and the
// compiled-in default. Must be called with the store lock held.
func (s *Store) searchLocationsLocked(p *Provider) []string {
	locations := make([]string, 0, len(p.locations)+len(s.defaultLocations)+2)
	locations = append(locations, p.locations...)
	locations = append(locations, s.defaultLocations...)
	if env := os.Getenv(EnvModulePath); env != "" {
		locations = append(locations, env)
	}
	locations = append(locations, DefaultModuleDir)
	return locations
}
