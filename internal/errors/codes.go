// Package errors provides structured error handling for docindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and storage errors (index, record store)
//   - 3XX: Queue errors
//   - 4XX: Validation errors (malformed commands, bad queries)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates index, record store and disk errors.
	CategoryIO Category = "IO"
	// CategoryQueue indicates work queue errors.
	CategoryQueue Category = "QUEUE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeIndexOpen    = "ERR_201_INDEX_OPEN"
	ErrCodeWriteLocked  = "ERR_202_WRITE_LOCKED"
	ErrCodeCorruptIndex = "ERR_203_CORRUPT_INDEX"
	ErrCodeIndexWrite   = "ERR_204_INDEX_WRITE"
	ErrCodeRecordStore  = "ERR_205_RECORD_STORE"
	ErrCodeDiskFull     = "ERR_206_DISK_FULL"

	// Queue errors (300-399)
	ErrCodeQueueUnavailable = "ERR_301_QUEUE_UNAVAILABLE"
	ErrCodeQueueTimeout     = "ERR_302_QUEUE_TIMEOUT"
	ErrCodeQueueAck         = "ERR_303_QUEUE_ACK"

	// Validation errors (400-499)
	ErrCodeInvalidInput     = "ERR_401_INVALID_INPUT"
	ErrCodeMalformedCommand = "ERR_402_MALFORMED_COMMAND"
	ErrCodeInvalidQuery     = "ERR_403_INVALID_QUERY"
	ErrCodeNoCriteria       = "ERR_404_NO_CRITERIA"
	ErrCodeInvalidIdentity  = "ERR_405_INVALID_IDENTITY"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeDrainFailed  = "ERR_503_DRAIN_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryQueue
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDiskFull:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Lock contention and queue outages clear up on a later drain cycle.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeQueueUnavailable, ErrCodeQueueTimeout, ErrCodeWriteLocked, ErrCodeDrainFailed:
		return true
	default:
		return false
	}
}
