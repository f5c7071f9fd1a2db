package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
	Details    any    `json:"-"` // Client-safe context rendered next to the code
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e carrying client-safe details.
func (e *AppError) WithDetails(details any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Error codes. These strings are part of the public API and never change.
const (
	CodeAuthRequired            = "AUTH_REQUIRED"
	CodeInvalidCredentialFormat = "INVALID_CREDENTIAL_FORMAT"
	CodeInvalidCredential       = "INVALID_CREDENTIAL"
	CodeInvalidSession          = "INVALID_SESSION"

	CodeMissingFields  = "MISSING_FIELDS"
	CodeInvalidAmount  = "INVALID_AMOUNT"
	CodeInvalidFormat  = "INVALID_FORMAT"
	CodeInvalidRequest = "INVALID_REQUEST"

	CodeInsufficientFunds    = "INSUFFICIENT_FUNDS"
	CodeBelowMinimumBalance  = "BELOW_MINIMUM_BALANCE"
	CodeDailyLimitExceeded   = "DAILY_LIMIT_EXCEEDED"
	CodeMonthlyLimitExceeded = "MONTHLY_LIMIT_EXCEEDED"
	CodeCardNotActive        = "CARD_NOT_ACTIVE"
	CodeCardExpired          = "CARD_EXPIRED"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeRecipientNotFound    = "RECIPIENT_NOT_FOUND"
	CodePayerNotFound        = "PAYER_NOT_FOUND"
	CodeCardNotFound         = "CARD_NOT_FOUND"
	CodeSelfTransfer         = "SELF_TRANSFER"
	CodePinRequired          = "PIN_REQUIRED"
	CodePinIncorrect         = "PIN_INCORRECT"

	CodeDuplicateInProgress = "DUPLICATE_IN_PROGRESS"
	CodeDuplicateCompleted  = "DUPLICATE_COMPLETED"
	CodeReferenceConflict   = "REFERENCE_CONFLICT"

	CodeRateLimited      = "RATE_LIMITED"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"

	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// ---- Auth ----

func ErrAuthRequired() *AppError {
	return New(CodeAuthRequired, "Exactly one of x-api-key or Authorization is required", http.StatusUnauthorized)
}

func ErrInvalidCredentialFormat() *AppError {
	return New(CodeInvalidCredentialFormat, "API key format is invalid", http.StatusUnauthorized)
}

func ErrInvalidCredential() *AppError {
	return New(CodeInvalidCredential, "Invalid or inactive API key", http.StatusUnauthorized)
}

func ErrInvalidSession() *AppError {
	return New(CodeInvalidSession, "Invalid or expired session token", http.StatusUnauthorized)
}

// ---- Input ----

func ErrMissingFields(fields string) *AppError {
	return New(CodeMissingFields, fmt.Sprintf("Missing required fields: %s", fields), http.StatusBadRequest)
}

func ErrInvalidAmount(message string) *AppError {
	return New(CodeInvalidAmount, message, http.StatusBadRequest)
}

func ErrInvalidFormat(message string) *AppError {
	return New(CodeInvalidFormat, message, http.StatusBadRequest)
}

func ErrInvalidRequest(err error) *AppError {
	return Wrap(CodeInvalidRequest, "Request body is not valid JSON", http.StatusBadRequest, err)
}

// ---- Business ----

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance in wallet", http.StatusBadRequest)
}

func ErrBelowMinimumBalance() *AppError {
	return New(CodeBelowMinimumBalance, "Operation would leave the wallet below its minimum balance", http.StatusBadRequest)
}

func ErrDailyLimitExceeded() *AppError {
	return New(CodeDailyLimitExceeded, "Daily spending limit exceeded", http.StatusBadRequest)
}

func ErrMonthlyLimitExceeded() *AppError {
	return New(CodeMonthlyLimitExceeded, "Monthly spending limit exceeded", http.StatusBadRequest)
}

func ErrCardNotActive() *AppError {
	return New(CodeCardNotActive, "Card is not active", http.StatusBadRequest)
}

func ErrCardExpired() *AppError {
	return New(CodeCardExpired, "Card has expired", http.StatusBadRequest)
}

// ErrInvalidCardCredentials is deliberately identical for unknown card and wrong PIN.
func ErrInvalidCardCredentials() *AppError {
	return New(CodeInvalidCredentials, "Invalid card number or PIN", http.StatusBadRequest)
}

func ErrRecipientNotFound() *AppError {
	return New(CodeRecipientNotFound, "Recipient not found", http.StatusNotFound)
}

func ErrPayerNotFound() *AppError {
	return New(CodePayerNotFound, "User not found", http.StatusNotFound)
}

func ErrCardNotFound() *AppError {
	return New(CodeCardNotFound, "Card not found", http.StatusNotFound)
}

func ErrSelfTransfer() *AppError {
	return New(CodeSelfTransfer, "Cannot transfer to yourself", http.StatusBadRequest)
}

func ErrPinRequired() *AppError {
	return New(CodePinRequired, "PIN verification required", http.StatusBadRequest)
}

func ErrPinIncorrect() *AppError {
	return New(CodePinIncorrect, "Incorrect PIN", http.StatusBadRequest)
}

// ---- Idempotency ----

func ErrDuplicateInProgress() *AppError {
	return New(CodeDuplicateInProgress, "An operation with this reference is already in progress", http.StatusConflict)
}

// ErrReferenceConflict is returned when a reference is reused for a different kind of operation.
func ErrReferenceConflict() *AppError {
	return New(CodeReferenceConflict, "This reference was already used for a different operation", http.StatusConflict)
}

// ---- Transport ----

func ErrRateLimited() *AppError {
	return New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

func ErrMethodNotAllowed() *AppError {
	return New(CodeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed)
}

// ---- Infrastructure ----

func ErrStoreUnavailable(err error) *AppError {
	return Wrap(CodeStoreUnavailable, "Storage is temporarily unavailable", http.StatusServiceUnavailable, err)
}

// InternalError hides err behind a generic INTERNAL_ERROR.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// CodeOf returns the code of the first AppError in err's chain, or INTERNAL_ERROR.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsBusiness reports whether err is a deterministic rejection that a retry with the
// same reference would hit again. Infrastructure failures are not business errors.
func IsBusiness(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeStoreUnavailable, CodeInternal, CodeDuplicateInProgress, CodeReferenceConflict, CodeRateLimited:
		return false
	}
	return appErr.HTTPStatus >= 400 && appErr.HTTPStatus < 500
}

// FromCode rebuilds the canonical error for a stored code.
func FromCode(code string) *AppError {
	switch code {
	case CodeInsufficientFunds:
		return ErrInsufficientFunds()
	case CodeBelowMinimumBalance:
		return ErrBelowMinimumBalance()
	case CodeDailyLimitExceeded:
		return ErrDailyLimitExceeded()
	case CodeMonthlyLimitExceeded:
		return ErrMonthlyLimitExceeded()
	case CodeCardNotActive:
		return ErrCardNotActive()
	case CodeCardExpired:
		return ErrCardExpired()
	case CodeInvalidCredentials:
		return ErrInvalidCardCredentials()
	case CodeRecipientNotFound:
		return ErrRecipientNotFound()
	case CodePayerNotFound:
		return ErrPayerNotFound()
	case CodeSelfTransfer:
		return ErrSelfTransfer()
	case CodePinRequired:
		return ErrPinRequired()
	case CodePinIncorrect:
		return ErrPinIncorrect()
	case CodeInvalidAmount:
		return ErrInvalidAmount("Invalid amount")
	case CodeInvalidFormat:
		return ErrInvalidFormat("Invalid format")
	case CodeMissingFields:
		return New(CodeMissingFields, "Missing required fields", http.StatusBadRequest)
	}
	return New(code, "Operation previously failed", http.StatusBadRequest)
}
