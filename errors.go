package identity

import (
	goerrors "github.com/goliatone/go-errors"
)

// Stable text codes surfaced to API consumers. Each failure in the public
// surface maps to exactly one code so callers can render the right message.
const (
	TextCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	TextCodeWeakPassword        = "WEAK_PASSWORD"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeEmailNotConfirmed   = "EMAIL_NOT_CONFIRMED"
	TextCodePendingApproval     = "PENDING_APPROVAL"
	TextCodeTokenInvalid        = "TOKEN_INVALID"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenAlreadyUsed    = "TOKEN_ALREADY_USED"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeRoleNotFound        = "ROLE_NOT_FOUND"
	TextCodeForbidden           = "FORBIDDEN"
	TextCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	TextCodeDeliveryFailed      = "DELIVERY_FAILED"
	TextCodeSessionInvalid      = "SESSION_INVALID"
	TextCodeSessionExpired      = "SESSION_EXPIRED"
)

// ErrDuplicateEmail is returned when a registration collides with an existing email.
var ErrDuplicateEmail = goerrors.New("email is already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrWeakPassword is returned when a password fails the configured policy.
var ErrWeakPassword = goerrors.New("password does not meet the password policy", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials covers both unknown identifiers and password
// mismatches so anonymous callers cannot enumerate accounts.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotConfirmed blocks authentication until the confirmation token is redeemed.
var ErrEmailNotConfirmed = goerrors.New("email address has not been confirmed", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailNotConfirmed).
	WithCode(goerrors.CodeUnauthorized)

// ErrPendingApproval blocks authentication until an administrator approves the account.
var ErrPendingApproval = goerrors.New("account is pending administrative approval", goerrors.CategoryAuth).
	WithTextCode(TextCodePendingApproval).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid is returned for unknown or malformed account tokens.
var ErrTokenInvalid = goerrors.New("token is invalid", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned for well-formed tokens past their expiry.
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenAlreadyUsed is returned when a single-use token is redeemed twice.
var ErrTokenAlreadyUsed = goerrors.New("token has already been used", goerrors.CategoryConflict).
	WithTextCode(TextCodeTokenAlreadyUsed).
	WithCode(goerrors.CodeConflict)

var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrRoleNotFound = goerrors.New("role not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrForbidden is returned when the acting session lacks the required role.
var ErrForbidden = goerrors.New("operation requires an administrative role", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrConcurrencyConflict surfaces a lost optimistic-concurrency race after
// the store-level retry was exhausted.
var ErrConcurrencyConflict = goerrors.New("record was modified concurrently", goerrors.CategoryConflict).
	WithTextCode(TextCodeConcurrencyConflict).
	WithCode(goerrors.CodeConflict)

// ErrDeliveryFailed reports a degraded (non-fatal) notification delivery.
var ErrDeliveryFailed = goerrors.New("notification delivery failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeDeliveryFailed)

var ErrSessionInvalid = goerrors.New("session token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalid).
	WithCode(goerrors.CodeUnauthorized)

var ErrSessionExpired = goerrors.New("session token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// HasTextCode reports whether err (or anything it wraps) carries the given text code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsConcurrencyConflict reports whether err is a lost optimistic-concurrency update.
func IsConcurrencyConflict(err error) bool {
	return HasTextCode(err, TextCodeConcurrencyConflict)
}
