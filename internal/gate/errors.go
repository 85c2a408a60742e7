package gate

import (
	"errors"
	"fmt"
)

var (
	// ErrAttestationMismatch is returned when the submitted text differs from the issued one
	ErrAttestationMismatch = errors.New("attestation text does not match the issued statement")

	// ErrStaleDecision is returned when proposal state changed after the audited evaluation
	ErrStaleDecision = errors.New("decision is stale; evaluate the proposal again")

	// ErrNotExportable is returned when the audited decision does not allow export
	ErrNotExportable = errors.New("audit record does not allow export")
)

// InfrastructureError wraps failures that are not policy outcomes.
// Callers should treat them as retry-able.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

func infra(op string, err error) error {
	return &InfrastructureError{Op: op, Err: err}
}

// IsInfrastructure reports whether err is or wraps an InfrastructureError
func IsInfrastructure(err error) bool {
	var ie *InfrastructureError
	return errors.As(err, &ie)
}
