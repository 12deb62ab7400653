// Package modload abstracts dynamic module loading for the provider registry.
//
// The registry only depends on the Loader interface; PluginLoader is the
// production implementation built on the standard library plugin mechanism.
// Tests substitute in-memory loaders so no shared objects need to be built.
//
// Go plugins cannot be unloaded from a running process. Unload therefore only
// drops the loader's bookkeeping for a handle; the mapped code stays resident
// until the process exits.
package modload
