package modload

import (
	"path/filepath"
	"testing"
)

func TestPluginLoaderLoadMissing(t *testing.T) {
	l := NewPluginLoader()
	_, err := l.Load(filepath.Join(t.TempDir(), "nope.so"))
	if err == nil {
		t.Fatal("expected error loading a nonexistent module")
	}
}

func TestPluginLoaderForeignHandle(t *testing.T) {
	l := NewPluginLoader()

	type fakeHandle struct{ Handle }
	if _, err := l.Lookup(fakeHandle{}, "CryptokitInit"); err == nil {
		t.Error("expected error for a foreign handle in Lookup")
	}
	if err := l.Unload(fakeHandle{}); err == nil {
		t.Error("expected error for a foreign handle in Unload")
	}
}
