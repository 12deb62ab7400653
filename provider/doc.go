// Package provider implements the cryptokit provider registry: a per-context
// store of implementation backends, built in or dynamically loaded, with
// reference-counted lifetimes and lazy activation.
//
// A Store is an explicit value, never ambient global state, so independent
// registries can coexist (one per library context, many in tests). Callers
// obtain a Handle from Find or NewOrGet; the handle owns one reference and
// must be released exactly once (or consumed by SetFallback). Activation runs
// the provider's init routine at most once per inactive period and publishes
// its capability table; concurrent activators block until the winner finishes.
//
// Reference thresholds drive the lifecycle: a provider whose count drops to
// the store's own baseline hold is torn down (capability table cleared, module
// kept loaded for cheap re-activation) but remains findable; dropping the
// store's hold as well destroys it and unloads its module.
//
// Dispatch methods on Handle (ParamTypes, GetParams, QueryOperation, Teardown)
// forward into the capability table after ensuring activation. A missing
// capability is an absent result, never a failure.
package provider
