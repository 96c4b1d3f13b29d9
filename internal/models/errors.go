package models

import "errors"

// Error kinds for external-collaborator failures. All vendor and store
// failures are converted to one of these at the boundary of the
// component that issued the call; none are process-fatal.
var (
	// ErrMarketDataUnavailable: every relay attempt failed for every
	// requested symbol. Prior cached prices remain displayed.
	ErrMarketDataUnavailable = errors.New("market data unavailable")

	// ErrInsightGenerationFailed: commentary transport or parse failure.
	// Surfaced as a soft indicator only; never blocks valuation.
	ErrInsightGenerationFailed = errors.New("insight generation failed")

	// ErrSnapshotRejected: a computed value failed the plausibility or
	// ordering checks. Expected steady-state behavior, not a fault.
	ErrSnapshotRejected = errors.New("value snapshot rejected")

	// ErrPersistenceFailed: a document-store write failed. Local state
	// is not rolled back.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrNotPrivileged: a viewer attempted an admin-only mutation.
	ErrNotPrivileged = errors.New("operation requires the privileged identity")

	// ErrScopeNotFound: the named portfolio scope does not exist.
	ErrScopeNotFound = errors.New("scope not found")

	// ErrScopeProtected: the primary scope cannot be deleted.
	ErrScopeProtected = errors.New("scope cannot be deleted")
)
