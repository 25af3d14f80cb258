package domain

import "context"

// Provider is the uniform capability interface every vendor adapter
// implements. Adapters are immutable after construction except for their
// lazily-initialized network client and the cached live model list, which is
// overwritten wholesale under a lock.
type Provider interface {
	// Name returns the stable lowercase provider identifier.
	Name() string

	// SupportedModels returns the live model list if one was fetched
	// successfully at least once, otherwise the hardcoded fallback list.
	// Never empty for a constructed adapter.
	SupportedModels() []string

	// FetchModels queries the vendor's catalog endpoint, filters out
	// non-chat entries, and caches the result. On any failure it logs and
	// returns the previous value unchanged; it never fails.
	FetchModels(ctx context.Context) []string

	// HealthCheck issues a minimal vendor call. Failures are wrapped in a
	// ProviderError carrying the vendor name.
	HealthCheck(ctx context.Context) error

	// StreamCompletion sends a completion request and returns a stream of
	// normalized events. See StreamEvent for the ordering contract.
	StreamCompletion(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error)
}

// ProviderResolver resolves a model name to the adapter serving it.
type ProviderResolver interface {
	// GetProvider returns the adapter for the model, or a ModelNotFoundError
	// listing the currently known models.
	GetProvider(model string) (Provider, error)
}

// AvailabilityRecorder receives success/failure feedback from live
// completions so availability stays fresh between health-check cycles.
// Neither call touches the network.
type AvailabilityRecorder interface {
	RecordSuccess(providerName string)
	RecordFailure(providerName string, errMsg string)
}

// EventPublisher publishes events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}
