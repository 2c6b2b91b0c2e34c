// Package errors defines the error taxonomy for the settlement reconciler.
//
// Errors are grouped into categories that map onto the units of work in a
// reconciliation run: a single report row (classification), a single event
// group (reconciliation), an external lookup, or the run's configuration.
// Each error carries a machine-readable code plus enough context for an
// operator to triage the failing row or group.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors.
type ErrorCategory string

const (
	CategoryClassification ErrorCategory = "classification"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryLookup         ErrorCategory = "lookup"
	CategoryLedger         ErrorCategory = "ledger"
	CategoryParse          ErrorCategory = "parse"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryFile           ErrorCategory = "file"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories.
type ErrorCode string

const (
	// Classification errors
	CodeUnsupportedRow   ErrorCode = "unsupported_row"
	CodeInvalidRowStatus ErrorCode = "invalid_row_status"
	CodeMissingReference ErrorCode = "missing_reference"

	// Reconciliation errors
	CodeMissingDocument    ErrorCode = "missing_document"
	CodeInconsistentAmount ErrorCode = "inconsistent_amount"
	CodeGroupFailed        ErrorCode = "group_failed"

	// Lookup errors
	CodeTransferLookup   ErrorCode = "transfer_lookup_failed"
	CodeMerchantLookup   ErrorCode = "merchant_lookup_failed"
	CodeTenantUnresolved ErrorCode = "tenant_unresolved"

	// Ledger errors
	CodeTransactionFailed ErrorCode = "transaction_failed"
	CodeDuplicatePosting  ErrorCode = "duplicate_posting"
	CodeStoreUnavailable  ErrorCode = "store_unavailable"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidData   ErrorCode = "invalid_data"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// File errors
	CodeFileNotFound ErrorCode = "file_not_found"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors.
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error.
type Context map[string]interface{}

// Error implements the error interface.
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error.
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryClassification:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryLedger, CategoryInternal:
		return 5
	case CategoryLookup:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error.
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error.
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError.
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context.
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// AsReconcilerError extracts a ReconcilerError from an error chain.
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr.Code == code
	}
	return false
}

// Specific error constructors

// UnsupportedRowError creates an error for a report row whose
// (category, type, status) combination has no classification rule. It carries
// the row's identifying fields so an operator can locate it in the source
// report.
func UnsupportedRowError(transferID, category, rowType, status string) *ReconcilerError {
	message := fmt.Sprintf("unsupported report row: transfer=%s category=%s type=%s status=%s",
		transferID, category, rowType, status)

	return New(CategoryClassification, CodeUnsupportedRow, message).
		WithSuggestion("check whether the processor introduced a new row type that needs a classification rule").
		WithContext("transfer_id", transferID).
		WithContext("row_category", category).
		WithContext("row_type", rowType).
		WithContext("row_status", status)
}

// GroupError creates an error for an event group whose posting handler could
// not complete. The group's transaction is rolled back; the run continues.
func GroupError(code ErrorCode, category, correlationKey string, err error) *ReconcilerError {
	message := fmt.Sprintf("failed to post %s group %s", category, correlationKey)

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryReconciliation, code, message)
	} else {
		result = New(CategoryReconciliation, code, message)
	}

	return result.
		WithContext("group_category", category).
		WithContext("correlation_key", correlationKey)
}

// MissingDocumentError creates an error for a posting that references a ledger
// document that no longer exists.
func MissingDocumentError(category, correlationKey, reference string) *ReconcilerError {
	return GroupError(CodeMissingDocument, category, correlationKey, nil).
		WithSuggestion("the referenced document may have been deleted after the original capture was posted").
		WithContext("reference", reference)
}

// LookupError creates an error for a failed external lookup. Lookup errors in
// the payout linkage pass are logged and swallowed by the caller.
func LookupError(code ErrorCode, subject string, err error) *ReconcilerError {
	message := fmt.Sprintf("external lookup failed for %s", subject)

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryLookup, code, message)
	} else {
		result = New(CategoryLookup, code, message)
	}

	return result.WithContext("subject", subject)
}

// LedgerError creates an error for a failed ledger store operation.
func LedgerError(code ErrorCode, operation string, err error) *ReconcilerError {
	message := fmt.Sprintf("ledger operation %s failed", operation)

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryLedger, code, message)
	} else {
		result = New(CategoryLedger, code, message)
	}

	return result.WithContext("operation", operation)
}

// ParseError creates a parsing-related error for a report file.
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *ReconcilerError {
	message := fmt.Sprintf("invalid data in %s at line %d, column '%s': '%s'", file, line, column, value)

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion("check the report export format against the configured column mapping").
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column)
}

// ConfigurationError creates a configuration-related error.
func ConfigurationError(code ErrorCode, setting string, err error) *ReconcilerError {
	message := fmt.Sprintf("invalid configuration: %s", setting)

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.WithContext("setting", setting)
}

// FileError creates a file-related error.
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	message := fmt.Sprintf("file error: %s", path)
	if code == CodeFileNotFound {
		message = fmt.Sprintf("file not found: %s", path)
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion("check if the file path is correct and the file exists").
		WithContext("file_path", path)
}
