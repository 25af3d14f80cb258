package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoPrice indicates the ledger holds no row for a model. Callers record
// the cost as unknown, never as zero.
var ErrNoPrice = errors.New("no pricing found for model")

// ProviderError wraps a vendor-level failure with the vendor's identity.
// It is the single error shape surfaced to callers for transient vendor
// failures.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapProviderError attaches the vendor name to err. Errors already carrying
// a provider identity pass through unchanged, so nested adapter calls do not
// double-wrap.
func WrapProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ModelNotFoundError is returned on a lookup miss. Its message names the
// requested model and lists every currently known alternative, or an explicit
// none-configured marker when no adapters are registered.
type ModelNotFoundError struct {
	Model       string
	KnownModels []string
}

func (e *ModelNotFoundError) Error() string {
	available := "(none configured)"
	if len(e.KnownModels) > 0 {
		known := make([]string, len(e.KnownModels))
		copy(known, e.KnownModels)
		sort.Strings(known)
		available = strings.Join(known, ", ")
	}
	return fmt.Sprintf("no provider found for model %q. Available models: %s", e.Model, available)
}
