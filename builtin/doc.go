// Package builtin contains the compiled-in "default" provider.
//
// The default provider needs no module on disk: its init function is
// passed to the store directly. It exposes the full capability table —
// parameter reporting and an algorithm catalog for the digest, AEAD
// and KDF operations, backed by golang.org/x/crypto.
package builtin
