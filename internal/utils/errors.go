package utils

import "errors"

// Pipeline failure kinds. Callers branch with errors.Is; services wrap these
// with context via fmt.Errorf("...: %w", ErrXxx).
var (
	ErrQuotaExhausted     = errors.New("QUOTA_EXHAUSTED")
	ErrGenerationFailed   = errors.New("GENERATION_FAILED")
	ErrLedgerIntegrity    = errors.New("LEDGER_INTEGRITY_FAULT")
	ErrPersistenceFailed  = errors.New("PERSISTENCE_FAILED")
	ErrTenantNotOnboarded = errors.New("TENANT_NOT_ONBOARDED")
	ErrProcessingBusy     = errors.New("PROCESSING_IN_PROGRESS")
)

// Request-level errors.
var (
	ErrInvalidRequest   = errors.New("INVALID_REQUEST")
	ErrInvalidAmount    = errors.New("INVALID_AMOUNT")
	ErrInvalidSignature = errors.New("INVALID_SIGNATURE")
	ErrInvalidToken     = errors.New("INVALID_TOKEN")
	ErrProductNotFound  = errors.New("PRODUCT_NOT_FOUND")
	ErrTenantNotFound   = errors.New("TENANT_NOT_FOUND")
)

var knownErrors = []error{
	ErrQuotaExhausted,
	ErrGenerationFailed,
	ErrLedgerIntegrity,
	ErrPersistenceFailed,
	ErrTenantNotOnboarded,
	ErrProcessingBusy,
	ErrInvalidRequest,
	ErrInvalidAmount,
	ErrInvalidSignature,
	ErrInvalidToken,
	ErrProductNotFound,
	ErrTenantNotFound,
}

// ErrorCode returns the API error code carried by err, or INTERNAL_ERROR when
// err does not wrap any known sentinel.
func ErrorCode(err error) string {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "INTERNAL_ERROR"
}

// IsRetryable reports whether the caller may re-trigger the same request
// without external action.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGenerationFailed) || errors.Is(err, ErrProcessingBusy)
}
