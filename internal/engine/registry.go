package engine

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// Registry caches the promoted model bundle for the prediction hot path.
// The bundle swaps as a single unit; a prediction mid-flight keeps the
// bundle it started with.
type Registry struct {
	bundles contracts.BundleRepository
	current atomic.Pointer[contracts.ModelBundle]
	log     zerolog.Logger
}

// NewRegistry creates an empty registry. Call Reload before serving.
func NewRegistry(bundles contracts.BundleRepository, log zerolog.Logger) *Registry {
	return &Registry{
		bundles: bundles,
		log:     log.With().Str("component", "registry").Logger(),
	}
}

// Reload fetches the promoted bundle from the repository and installs it.
// ErrNoPromotedModel leaves the cache untouched so an in-flight rollback
// cannot strand the engine without a model it already had.
func (r *Registry) Reload(ctx context.Context) error {
	bundle, err := r.bundles.GetPromoted(ctx)
	if err != nil {
		return err
	}
	prev := r.current.Swap(bundle)
	if prev == nil || prev.Version != bundle.Version {
		r.log.Info().
			Str("model_version", bundle.Version).
			Str("schema_version", bundle.Schema.Version).
			Msg("promoted bundle installed")
	}
	return nil
}

// Current returns the cached promoted bundle, or ErrNoPromotedModel when
// nothing has been promoted yet.
func (r *Registry) Current() (*contracts.ModelBundle, error) {
	b := r.current.Load()
	if b == nil {
		return nil, contracts.ErrNoPromotedModel
	}
	return b, nil
}
