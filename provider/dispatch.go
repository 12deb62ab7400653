package provider

import (
	"context"

	"github.com/kbukum/cryptokit/logger"
)

// Dispatch methods forward calls into the provider's capability table. Except
// for Teardown they first ensure the provider is active, activating it
// implicitly when needed; implicit activation takes no usage reference --
// the caller's own handle keeps the provider alive for the call. A provider
// whose activation fails, or that lacks the requested capability, produces an
// absent result, never a panic: failed attempts leave it inactive for retry.

// capabilities ensures activation and returns the current capability table.
// The second return is false when activation failed.
func (h *Handle) capabilities(ctx context.Context) (Capabilities, bool) {
	if err := h.store.activate(ctx, h.p, false); err != nil {
		h.store.log.Debug("implicit activation failed", logger.Fields(
			logger.FieldProvider, h.p.name,
			logger.FieldError, err.Error(),
		))
		return Capabilities{}, false
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if h.p.caps == nil {
		return Capabilities{}, false
	}
	return *h.p.caps, true
}

// Teardown invokes the provider's teardown capability if it is active and
// offers one. This is best-effort cleanup signaling: it never activates the
// provider and failures in the capability itself are not surfaced.
func (h *Handle) Teardown(ctx context.Context) {
	h.store.mu.Lock()
	var teardown func()
	if h.p.state == StateActive && h.p.caps != nil {
		teardown = h.p.caps.Teardown
	}
	h.store.mu.Unlock()

	if teardown != nil {
		teardown()
	}
}

// ParamTypes returns the provider-declared parameter descriptors. The second
// return is false when the capability is absent or activation failed.
func (h *Handle) ParamTypes(ctx context.Context) ([]ParamDescriptor, bool) {
	caps, ok := h.capabilities(ctx)
	if !ok || caps.ParamTypes == nil {
		return nil, false
	}
	return caps.ParamTypes(), true
}

// GetParams forwards the request array to the provider's parameter-query
// capability and reports whether it succeeded. An absent capability or a
// failed activation reads as failure.
func (h *Handle) GetParams(ctx context.Context, params []*Param) bool {
	caps, ok := h.capabilities(ctx)
	if !ok || caps.GetParams == nil {
		return false
	}
	return caps.GetParams(params)
}

// QueryOperation returns the provider's algorithm descriptors for an
// operation id, plus a flag telling the caller the result must not be cached.
// The last return is false when the capability is absent or activation
// failed.
func (h *Handle) QueryOperation(ctx context.Context, op OperationID) (algs []AlgorithmDescriptor, noCache bool, ok bool) {
	caps, capsOK := h.capabilities(ctx)
	if !capsOK || caps.QueryOperation == nil {
		return nil, false, false
	}
	algs, noCache = caps.QueryOperation(op)
	return algs, noCache, true
}
