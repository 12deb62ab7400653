package provider

import (
	"context"
	"sync"

	"github.com/kbukum/cryptokit/modload"
)

// State is the activation state of a provider.
type State int

const (
	// StateInactive means the provider has no capability table yet (or had it
	// cleared by teardown). Activation may be attempted, and re-attempted
	// after a failure.
	StateInactive State = iota
	// StateActive means the provider's init ran and its capability table is
	// populated.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// InitFunc is a provider initialization entry point. Builtin providers supply
// one at registration; loadable modules export one under InitSymbol. The
// returned capability table may leave any entry nil.
type InitFunc func(ctx context.Context) (*Capabilities, error)

// OperationID identifies an operation category a provider may implement
// (digest, cipher, key derivation, ...). The numbering scheme belongs to the
// embedding library; the registry treats the value as opaque.
type OperationID int

// ParamType describes the value type of a provider parameter.
type ParamType int

const (
	ParamString ParamType = iota
	ParamInt
	ParamBool
	ParamBytes
)

// ParamDescriptor declares one parameter a provider can report.
type ParamDescriptor struct {
	Key  string
	Type ParamType
}

// Param is a single entry of a parameter request array. The caller sets Key;
// the provider's parameter-query capability fills Value.
type Param struct {
	Key   string
	Value any
}

// AlgorithmDescriptor describes one algorithm a provider offers for an
// operation. Names holds colon-separated identifiers, Properties an optional
// property query string, and New an optional implementation constructor.
type AlgorithmDescriptor struct {
	Names      string
	Properties string
	New        func() any
}

// Capabilities is the table of optional entry points a provider exposes once
// activated. Every field may be nil: absence of a capability is legal and is
// distinct from "not yet activated".
type Capabilities struct {
	// Teardown is invoked exactly once when the provider falls out of active
	// use, and best-effort via Handle.Teardown.
	Teardown func()
	// ParamTypes reports the parameters the provider can answer for.
	ParamTypes func() []ParamDescriptor
	// GetParams fills the request array in place and reports success.
	GetParams func(params []*Param) bool
	// QueryOperation returns the algorithms for an operation id and whether
	// the result must not be cached by the caller.
	QueryOperation func(op OperationID) (algs []AlgorithmDescriptor, noCache bool)
}

// Provider is one registered backend. All mutable fields are guarded by the
// owning store's lock; a Provider never migrates between stores.
type Provider struct {
	name string
	init InitFunc // non-nil for builtin providers

	locations []string
	fallback  bool
	refCount  int
	state     State
	caps      *Capabilities

	modulePath string
	module     modload.Handle

	// initInFlight serializes the init/teardown path; cond is bound to the
	// store lock and wakes activators waiting on the in-flight winner.
	initInFlight bool
	cond         *sync.Cond
}

// Name returns the provider's immutable name.
func (p *Provider) Name() string { return p.name }

// IsBuiltin reports whether the provider was registered with a compiled-in
// init routine rather than a loadable module.
func (p *Provider) IsBuiltin() bool { return p.init != nil }
