package services

import "errors"

// Custom errors
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// Realtime error codes, surfaced to the offending connection as {"error": code}.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInvalidSession   = "INVALID_SESSION"
	CodeSessionEnded     = "SESSION_ENDED"
	CodeNotJoined        = "NOT_JOINED"
	CodeMalformedPayload = "MALFORMED_PAYLOAD"
	CodeStorageError     = "STORAGE_ERROR"
	CodeDeliveryFailure  = "DELIVERY_FAILURE"
	CodeOverloaded       = "OVERLOADED"
	CodeInternal         = "INTERNAL_ERROR"
)

// RealtimeError is returned by every step of the join and ingest paths.
type RealtimeError struct {
	Code    string
	Message string
	Err     error
}

func (e *RealtimeError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *RealtimeError) Unwrap() error { return e.Err }

// Is matches on Code so callers can compare against the Err* sentinels.
func (e *RealtimeError) Is(target error) bool {
	t, ok := target.(*RealtimeError)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthorized     = &RealtimeError{Code: CodeUnauthorized, Message: "missing or invalid identity"}
	ErrInvalidSession   = &RealtimeError{Code: CodeInvalidSession, Message: "invalid session or room"}
	ErrSessionEnded     = &RealtimeError{Code: CodeSessionEnded, Message: "session is not live"}
	ErrNotJoined        = &RealtimeError{Code: CodeNotJoined, Message: "connection has not joined a session"}
	ErrMalformedPayload = &RealtimeError{Code: CodeMalformedPayload, Message: "unparseable frame"}
	ErrStorage          = &RealtimeError{Code: CodeStorageError, Message: "failed to persist metric"}
	ErrDeliveryFailure  = &RealtimeError{Code: CodeDeliveryFailure, Message: "subscriber delivery failed"}
	ErrOverloaded       = &RealtimeError{Code: CodeOverloaded, Message: "too many frames in flight"}
)

func realtimeErr(base *RealtimeError, cause error) *RealtimeError {
	return &RealtimeError{Code: base.Code, Message: base.Message, Err: cause}
}

// ErrorCode extracts the wire code for err, falling back to INTERNAL_ERROR.
func ErrorCode(err error) string {
	var rt *RealtimeError
	if errors.As(err, &rt) {
		return rt.Code
	}
	return CodeInternal
}
