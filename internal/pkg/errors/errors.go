package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")

	// ErrIngestion marks a failed chunk/embed/index step. The document is
	// left in the failed state and may be retried from pending.
	ErrIngestion = errors.New("ingestion failed")
	// ErrModelMismatch is returned when vectors produced by different
	// embedding models would be compared. The request cannot proceed until
	// the scope is re-embedded with a single model.
	ErrModelMismatch = errors.New("embedding model mismatch")
	// ErrGenerationFailed is surfaced after the generation retry budget is
	// exhausted. The conversation turn is still recorded with a failure
	// marker.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrScopeViolation marks an attempted cross-user index access. Always
	// fatal, logged as a security event.
	ErrScopeViolation = errors.New("scope violation")
	// ErrDeadlineInfeasible reports that not all study sessions fit before
	// the deadline. Callers still receive the best-effort plan.
	ErrDeadlineInfeasible = errors.New("deadline infeasible")
	// ErrBackendBusy is a retryable saturation signal from the model
	// backend limiter.
	ErrBackendBusy = errors.New("backend busy")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrTooMany) || errors.Is(err, ErrBackendBusy)
}
