package collab

import "github.com/davrk/syncpad/internal/ot"

// Reconciler is the strategy that turns a client batch based on an older
// buffer state into the authoritative next state. The default is positional
// operational transformation; a state-based merge engine can replace it
// behind the same session coordinator.
type Reconciler interface {
	// Reconcile rewrites batch against the batches committed since the
	// client's base revision, then applies it to content. Returns the new
	// content and the rebased batch that peers must apply.
	Reconcile(content string, batch ot.Batch, concurrent []ot.Batch) (string, ot.Batch, error)
}

// OTReconciler reconciles through positional transform and apply.
type OTReconciler struct{}

// Reconcile implements Reconciler.
func (OTReconciler) Reconcile(content string, batch ot.Batch, concurrent []ot.Batch) (string, ot.Batch, error) {
	rebased := ot.TransformBatch(batch, concurrent)

	next, err := ot.Apply(content, rebased)
	if err != nil {
		return "", nil, err
	}

	return next, rebased, nil
}

// Ensure OTReconciler implements Reconciler.
var _ Reconciler = OTReconciler{}
