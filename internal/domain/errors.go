package domain

import "errors"

// CapacityExhaustedMarker is embedded by the AI edge function in an otherwise
// successful payload when every upstream model refused the request.
const CapacityExhaustedMarker = "[ALL_MODELS_EXHAUSTED]"

var (
	// ErrQuotaExhausted is returned when the AI quota gate blocks a metered call.
	ErrQuotaExhausted = errors.New("ai quota exhausted")
	// ErrUpstreamCapacity indicates every upstream AI model was rate limited.
	ErrUpstreamCapacity = errors.New("ai upstream capacity exhausted, try again shortly")
	// ErrAIRequestFailed covers any other metered call failure.
	ErrAIRequestFailed = errors.New("ai request failed")
	// ErrAIEmptyResponse is returned when the endpoint answered with no text.
	ErrAIEmptyResponse = errors.New("ai returned an empty response")
	// ErrAdminNotMetered guards against mutating the ledger of an administrator.
	ErrAdminNotMetered = errors.New("administrators are not metered")
	// ErrStorageQuotaExceeded is returned by a local cache write that does not fit.
	ErrStorageQuotaExceeded = errors.New("local storage quota exceeded")
	// ErrRemoteUnavailable indicates the remote result store could not be reached.
	ErrRemoteUnavailable = errors.New("remote result store unavailable")
	// ErrResultPayloadUnavailable is returned when reviewing a metadata-only result.
	ErrResultPayloadUnavailable = errors.New("full data unavailable, retake the test")
	// ErrInvalidResult is returned for counters that break 0 <= correct, answered <= total.
	ErrInvalidResult = errors.New("invalid result")
	// ErrResultNotFound indicates an unknown result id.
	ErrResultNotFound = errors.New("result not found")
	// ErrProfileNotFound indicates the user has no profile record.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrTopicNotFound indicates the question bank has no questions for a topic.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrUnauthorized is returned when Telegram init data or a session token does not verify.
	ErrUnauthorized = errors.New("unauthorized")
)
