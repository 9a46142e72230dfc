package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for an empty message or an unknown track.
	ErrInvalidRequest = errors.New("invalid agent request")
	// ErrUnknownTenant is returned by resolvers for tenants without configuration.
	ErrUnknownTenant = errors.New("unknown tenant")
	// ErrEmptyCompletion is wrapped in a ModelError when the model returns nothing.
	ErrEmptyCompletion = errors.New("model returned an empty completion")
	// ErrNotAwaitingApproval is returned when approving an entry that holds
	// nothing to approve.
	ErrNotAwaitingApproval = errors.New("ledger entry is not awaiting approval")
)

// ConfigurationError reports missing or invalid tenant routing data. It is
// raised before any model call.
type ConfigurationError struct {
	TenantID string
	Field    string
	Err      error
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("tenant %q: %s: %v", e.TenantID, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("tenant %q: %s is not configured", e.TenantID, e.Field)
	default:
		return fmt.Sprintf("tenant %q: %v", e.TenantID, e.Err)
	}
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ModelError reports a failed or unusable model call. The run's ledger entry
// is left in its last good state.
type ModelError struct {
	Provider string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model call via %s failed: %v", e.Provider, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }
