package provider

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte{}, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestResolveModuleFirstLocationWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	touch(t, filepath.Join(first, "fips.so"))
	touch(t, filepath.Join(second, "fips.so"))

	path, ok := ResolveModule("fips", []string{first, second})
	if !ok {
		t.Fatal("expected a match")
	}
	if filepath.Dir(path) != first {
		t.Errorf("expected match from the first location, got %s", path)
	}
}

func TestResolveModulePrefersPrefixedName(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "fips.so"))
	touch(t, filepath.Join(dir, "libcryptokit-fips.so"))

	path, ok := ResolveModule("fips", []string{dir})
	if !ok {
		t.Fatal("expected a match")
	}
	if filepath.Base(path) != "libcryptokit-fips.so" {
		t.Errorf("expected the prefixed file name, got %s", path)
	}
}

func TestResolveModuleNoMatch(t *testing.T) {
	if _, ok := ResolveModule("fips", []string{t.TempDir()}); ok {
		t.Error("expected no match in an empty directory")
	}
	if _, ok := ResolveModule("fips", nil); ok {
		t.Error("expected no match with no locations")
	}
}

func TestResolveModuleSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "fips.so"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, ok := ResolveModule("fips", []string{dir}); ok {
		t.Error("a directory must not resolve as a module")
	}
}

func TestSearchLocationOrder(t *testing.T) {
	provDir := t.TempDir()
	storeDir := t.TempDir()
	envDir := t.TempDir()
	t.Setenv(EnvModulePath, envDir)

	s := NewStore(WithLoader(newFakeLoader()), WithDefaultLocations(storeDir))
	h, _ := s.NewOrGet("beta", nil)
	defer h.Release()
	h.AddModuleLocation(provDir)

	s.mu.Lock()
	locations := s.searchLocationsLocked(h.p)
	s.mu.Unlock()

	want := []string{provDir, storeDir, envDir, DefaultModuleDir}
	if len(locations) != len(want) {
		t.Fatalf("expected %d locations, got %v", len(want), locations)
	}
	for i := range want {
		if locations[i] != want[i] {
			t.Errorf("location %d: expected %s, got %s", i, want[i], locations[i])
		}
	}
}
