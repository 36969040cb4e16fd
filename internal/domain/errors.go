package domain

import "errors"

// Error taxonomy for the engine. Transport-level transient errors are retried
// inside the component that hit them; these sentinels classify what escapes.
var (
	// ErrFeedUnavailable: no usable market data. Recoverable; monitoring for
	// the affected window pauses until the feed returns.
	ErrFeedUnavailable = errors.New("price feed unavailable")

	// ErrReferenceUnavailable: price-to-beat capture failed for the whole
	// delay window. The window is marked non-tradeable; the process carries on.
	ErrReferenceUnavailable = errors.New("price-to-beat reference unavailable")

	// ErrSubmissionFailed: a leg order could not be accepted after bounded
	// retries.
	ErrSubmissionFailed = errors.New("order submission failed")

	// ErrVerificationUnknown: authoritative fill state could not be
	// determined. Never resolved by guessing; routed to the unwind path when
	// any fill evidence exists.
	ErrVerificationUnknown = errors.New("fill verification unknown")

	// ErrExitFailed: an unwind exit order failed; retried with escalation
	// before becoming ErrManualInterventionRequired.
	ErrExitFailed = errors.New("exit order failed")

	// ErrManualInterventionRequired: the unwind budget is exhausted and a
	// position is left open. Fatal for the trade, surfaced loudly; the
	// process keeps monitoring other windows.
	ErrManualInterventionRequired = errors.New("manual intervention required")
)
