package builtin

import (
	"context"
	"hash"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/kbukum/cryptokit/provider"
	"github.com/kbukum/cryptokit/version"
)

// Name is the registration name of the default provider.
const Name = "default"

// Operation ids served by the default provider's algorithm catalog.
const (
	OpDigest provider.OperationID = 1
	OpAEAD   provider.OperationID = 2
	OpKDF    provider.OperationID = 3
)

// Parameter keys the default provider answers for.
const (
	ParamName    = "name"
	ParamVersion = "version"
	ParamStatus  = "status"
)

// Init is the default provider's initialization entry point.
func Init(ctx context.Context) (*provider.Capabilities, error) {
	return &provider.Capabilities{
		ParamTypes:     paramTypes,
		GetParams:      getParams,
		QueryOperation: queryOperation,
	}, nil
}

// Register adds the default provider to a store. The returned handle
// carries the caller's reference.
func Register(s *provider.Store) (*provider.Handle, error) {
	return s.NewOrGet(Name, Init)
}

// Builtins returns the init map accepted by config.Build.
func Builtins() map[string]provider.InitFunc {
	return map[string]provider.InitFunc{Name: Init}
}

func paramTypes() []provider.ParamDescriptor {
	return []provider.ParamDescriptor{
		{Key: ParamName, Type: provider.ParamString},
		{Key: ParamVersion, Type: provider.ParamString},
		{Key: ParamStatus, Type: provider.ParamString},
	}
}

func getParams(params []*provider.Param) bool {
	ok := true
	for _, p := range params {
		switch p.Key {
		case ParamName:
			p.Value = Name
		case ParamVersion:
			p.Value = version.GetShortVersion()
		case ParamStatus:
			p.Value = "active"
		default:
			ok = false
		}
	}
	return ok
}

func queryOperation(op provider.OperationID) ([]provider.AlgorithmDescriptor, bool) {
	switch op {
	case OpDigest:
		return digestAlgorithms(), false
	case OpAEAD:
		return aeadAlgorithms(), false
	case OpKDF:
		return kdfAlgorithms(), false
	}
	return nil, false
}

// Constructors in the catalog are returned as any: digest entries yield
// a hash.Hash, AEAD entries a keyed constructor, KDF entries a derive
// function. Callers assert the shape they asked for.

func digestAlgorithms() []provider.AlgorithmDescriptor {
	return []provider.AlgorithmDescriptor{
		{
			Names:      "SHA3-256:SHA3_256",
			Properties: "provider=default",
			New:        func() any { return sha3.New256() },
		},
		{
			Names:      "SHA3-512:SHA3_512",
			Properties: "provider=default",
			New:        func() any { return sha3.New512() },
		},
		{
			Names:      "BLAKE2b-256:BLAKE2B",
			Properties: "provider=default",
			New: func() any {
				h, err := blake2b.New256(nil)
				if err != nil {
					// unreachable without a key
					return nil
				}
				return h
			},
		},
	}
}

func aeadAlgorithms() []provider.AlgorithmDescriptor {
	return []provider.AlgorithmDescriptor{
		{
			Names:      "ChaCha20-Poly1305",
			Properties: "provider=default",
			New:        func() any { return chacha20poly1305.New },
		},
		{
			Names:      "XChaCha20-Poly1305",
			Properties: "provider=default",
			New:        func() any { return chacha20poly1305.NewX },
		},
	}
}

// KDFFunc derives key material of the requested length.
type KDFFunc func(secret, salt, info []byte, length int) ([]byte, error)

func kdfAlgorithms() []provider.AlgorithmDescriptor {
	return []provider.AlgorithmDescriptor{
		{
			Names:      "HKDF-SHA3-256",
			Properties: "provider=default",
			New:        func() any { return KDFFunc(hkdfSHA3) },
		},
		{
			Names:      "Argon2id",
			Properties: "provider=default",
			New:        func() any { return KDFFunc(argon2id) },
		},
	}
}

func hkdfSHA3(secret, salt, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	r := hkdf.New(func() hash.Hash { return sha3.New256() }, secret, salt, info)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func argon2id(secret, salt, info []byte, length int) ([]byte, error) {
	// info is unused; Argon2 has no context input.
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, uint32(length)), nil
}
