package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeValidation          = "VAL_001"
	CodeInvalidFee          = "VAL_002"
	CodeInsufficientBalance = "BAL_001"
	CodeEncryption          = "SEC_001"
	CodeDecryption          = "SEC_002"
	CodeRPC                 = "RPC_001"
	CodeCircuitOpen         = "RPC_002"
	CodeDuplicateAddress    = "DEP_001"
	CodePaymentNotFound     = "PAY_004"
	CodePaymentState        = "PAY_005"
	CodeWithdrawalNotFound  = "WDR_004"
	CodeWithdrawalState     = "WDR_002"
	CodeMerchantNotFound    = "MER_004"
	CodeInvalidCredentials  = "AUTH_001"
	CodeUsernameExists      = "AUTH_002"
	CodeInvalidToken        = "AUTH_003"
	CodeMerchantSuspended   = "AUTH_004"
	CodeForbidden           = "AUTH_005"
	CodeRateLimit           = "RATE_001"
	CodeInternal            = "SYS_001"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
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

// Is matches any AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
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

// HasCode reports whether err is, or wraps, an AppError with code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidationKind          = New(CodeValidation, "", http.StatusBadRequest)
	ErrInsufficientBalanceKind = New(CodeInsufficientBalance, "", http.StatusPaymentRequired)
	ErrDecryptionKind          = New(CodeDecryption, "", http.StatusInternalServerError)
	ErrRPCKind                 = New(CodeRPC, "", http.StatusBadGateway)
	ErrCircuitOpenKind         = New(CodeCircuitOpen, "", http.StatusServiceUnavailable)
)

// ---- Validation (VAL) ----

func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return Validation("Amount must be greater than zero")
}

func ErrInvalidFeePercentage(message string) *AppError {
	return New(CodeInvalidFee, message, http.StatusBadRequest)
}

// ---- Balance (BAL) ----

func ErrInsufficientBalance() *AppError {
	return New(CodeInsufficientBalance, "Insufficient available balance", http.StatusPaymentRequired)
}

// ---- Secrets (SEC) ----

func ErrEncryption(err error) *AppError {
	return Wrap(CodeEncryption, "Encryption failure", http.StatusInternalServerError, err)
}

func ErrDecryption(err error) *AppError {
	return Wrap(CodeDecryption, "Decryption failure", http.StatusInternalServerError, err)
}

// ---- Chain RPC (RPC) ----

func ErrRPC(endpoint string, err error) *AppError {
	return Wrap(CodeRPC, fmt.Sprintf("Chain RPC %s failed", endpoint), http.StatusBadGateway, err)
}

func ErrCircuitOpen(endpoint string) *AppError {
	return New(CodeCircuitOpen, fmt.Sprintf("Circuit open for %s", endpoint), http.StatusServiceUnavailable)
}

// ---- Deposits and payments (DEP/PAY) ----

func ErrDuplicateAddressGeneration() *AppError {
	return New(CodeDuplicateAddress, "Deposit address already issued for payment", http.StatusConflict)
}

func ErrPaymentNotFound() *AppError {
	return New(CodePaymentNotFound, "Payment not found", http.StatusNotFound)
}

func ErrInvalidPaymentState(message string) *AppError {
	return New(CodePaymentState, message, http.StatusConflict)
}

// ---- Withdrawals (WDR) ----

func ErrWithdrawalNotFound() *AppError {
	return New(CodeWithdrawalNotFound, "Withdrawal not found", http.StatusNotFound)
}

func ErrInvalidWithdrawalState(message string) *AppError {
	return New(CodeWithdrawalState, message, http.StatusConflict)
}

// ---- Merchants and authentication (MER/AUTH) ----

func ErrMerchantNotFound() *AppError {
	return New(CodeMerchantNotFound, "Merchant not found", http.StatusNotFound)
}

func ErrInvalidCredentials() *AppError {
	return New(CodeInvalidCredentials, "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New(CodeUsernameExists, "Username already exists", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrMerchantSuspended() *AppError {
	return New(CodeMerchantSuspended, "Merchant account is suspended", http.StatusForbidden)
}

func ErrForbidden() *AppError {
	return New(CodeForbidden, "Insufficient permissions", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimit, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeInternal, "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
