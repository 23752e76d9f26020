package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrLoanNotFound         = errors.New("loan not found")
	ErrNoDueInstallment     = errors.New("no due installment")
	ErrConsistencyViolation = errors.New("consistency violation")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeInvalidArgument      = "INVALID_ARGUMENT"
	ErrCodeLoanNotFound         = "LOAN_NOT_FOUND"
	ErrCodeNoDueInstallment     = "NO_DUE_INSTALLMENT"
	ErrCodeConsistencyViolation = "CONSISTENCY_VIOLATION"
	ErrCodeDatabaseError        = "DATABASE_ERROR"
	ErrCodeCacheError           = "CACHE_ERROR"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// Wrap common errors with business context
func WrapInvalidArgument(format string, args ...any) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidArgument,
		fmt.Sprintf(format, args...),
		ErrInvalidArgument,
	)
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapNoDueInstallment(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeNoDueInstallment,
		fmt.Sprintf("Loan with ID %s has no due installment", loanID),
		ErrNoDueInstallment,
	)
}

func WrapConsistencyViolation(format string, args ...any) *BusinessError {
	return NewBusinessError(
		ErrCodeConsistencyViolation,
		fmt.Sprintf(format, args...),
		ErrConsistencyViolation,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}

// CodeOf returns the code of the outermost BusinessError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrCodeInternal
}
