package services

import "fmt"

// Error codes surfaced to sync clients. The prefix groups the taxonomy:
// AUTH_ for identity failures, TENANT_ for scope violations, VALIDATION_ for
// malformed input, CONFLICT_ for opId reuse and opaque store failures.
const (
	CodeAuthRequired           = "AUTH_REQUIRED"
	CodeAuthInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeTenantScopeMissing     = "TENANT_SCOPE_MISSING"
	CodeTenantFacilityMismatch = "TENANT_FACILITY_MISMATCH"
	CodeTenantFacilityUnknown  = "TENANT_FACILITY_UNKNOWN"
	CodeValidationBatch        = "VALIDATION_BATCH"
	CodeValidationOp           = "VALIDATION_OP"
	CodeValidationCursor       = "VALIDATION_CURSOR"
	CodeConflictOpReused       = "CONFLICT_OP_REUSED"
	CodeConflictSyncFailed     = "CONFLICT_SYNC_FAILED"
)

// SyncError is a structured, client-safe failure. Store-level detail is
// logged server-side and never placed in Message.
type SyncError struct {
	Code    string
	Message string
}

func (e *SyncError) Error() string {
	return e.Code + ": " + e.Message
}

func syncErrorf(code, format string, args ...any) *SyncError {
	return &SyncError{Code: code, Message: fmt.Sprintf(format, args...)}
}
