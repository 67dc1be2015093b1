package publishedcontent

import "context"

// Hooks lets callers extend the cache lifecycle without modifying the cache.
type Hooks struct {
	// Reload hooks
	BeforeReload []BeforeReloadHook
	AfterReload  []AfterReloadHook

	// View hooks
	OnViewClosed []ViewClosedHook

	// Error hooks
	OnError []ErrorHook
}

// HookContext carries information through the hook chain
type HookContext struct {
	Context   context.Context
	Metadata  map[string]any // Custom metadata passed between hooks
	StopChain bool           // Set to true to stop processing remaining hooks
}

// NewHookContext creates a new hook context
func NewHookContext(ctx context.Context) *HookContext {
	return &HookContext{
		Context:  ctx,
		Metadata: make(map[string]any),
	}
}

// BeforeReloadHook is called before the backend is loaded. Returning an error aborts the reload.
type BeforeReloadHook func(hctx *HookContext, backend string) error

// AfterReloadHook is called after a new snapshot became current
type AfterReloadHook func(hctx *HookContext, snapshot *Snapshot, changed []int) error

// ViewClosedHook is called when a view is closed
type ViewClosedHook func(hctx *HookContext, view *View)

// ErrorHook is called when an operation fails
type ErrorHook func(hctx *HookContext, operation string, err error)

func (h *Hooks) executeBeforeReload(ctx context.Context, backend string) error {
	if h == nil || len(h.BeforeReload) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforeReload {
		if err := hook(hctx, backend); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeAfterReload(ctx context.Context, snapshot *Snapshot, changed []int) error {
	if h == nil || len(h.AfterReload) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterReload {
		if err := hook(hctx, snapshot, changed); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeViewClosed(ctx context.Context, view *View) {
	if h == nil || len(h.OnViewClosed) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.OnViewClosed {
		hook(hctx, view)
		if hctx.StopChain {
			break
		}
	}
}

func (h *Hooks) executeOnError(ctx context.Context, operation string, err error) {
	if h == nil || len(h.OnError) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.OnError {
		hook(hctx, operation, err)
		if hctx.StopChain {
			break
		}
	}
}
