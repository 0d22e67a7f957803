package common

import "errors"

// Sentinel errors naming the request-level failure kinds (spec §7).
// Engine.Run does not return these values: it reports fetch, parse, deadline
// and loop-bound endings as OrchestrationResult.Reason text. Recoverable
// conditions (AgentParseError, AgentTimeoutError, StoreContention) are not
// represented here; they are handled inside the owning component and
// reflected in its structured output rather than propagated as Go errors.
var (
	ErrFetchFailed   = errors.New("fetch failed")
	ErrParseFailed   = errors.New("dom parse failed")
	ErrBudgetExceeded = errors.New("request deadline exceeded")
	ErrLoopBound     = errors.New("loop bound reached")

	// ErrRecordExists is returned by the Selector Store's put_new when a
	// record for the site already exists (StoreContention trigger).
	ErrRecordExists = errors.New("selector record already exists")

	// ErrRecordNotFound is returned by get/replace when no record exists.
	ErrRecordNotFound = errors.New("selector record not found")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid configuration")
)
