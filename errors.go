package auth

import (
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeUserNotFound            = "USER_NOT_FOUND"
	TextCodeInvalidPassword         = "INVALID_PASSWORD"
	TextCodeUserInactive            = "USER_INACTIVE"
	TextCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	TextCodeTokenMissing            = "TOKEN_MISSING"
	TextCodeTokenInvalidOrExpired   = "TOKEN_INVALID_OR_EXPIRED"
	TextCodeSessionNotFound         = "SESSION_NOT_FOUND"
	TextCodeFingerprintMismatch     = "FINGERPRINT_MISMATCH"
	TextCodeForbiddenTransition     = "FORBIDDEN_TRANSITION"
	TextCodeRefreshInvalidOrExpired = "REFRESH_INVALID_OR_EXPIRED"
	TextCodeRoleNotAssignable       = "ROLE_NOT_ASSIGNABLE"
	TextCodePermissionDenied        = "PERMISSION_DENIED"
	TextCodeServerError             = "SERVER_ERROR"
	TextCodeEmptyPassword           = "EMPTY_PASSWORD"
	TextCodeRecordNotFound          = "RECORD_NOT_FOUND"
	TextCodeInsecureSecret          = "INSECURE_SIGNING_SECRET"
	TextCodeIdentityConflict        = "IDENTITY_CONFLICT"
	TextCodeImmutableClaim          = "IMMUTABLE_CLAIM_MUTATION"
)

// ErrUserNotFound no identity matched the identifier, or the tenant hint did
// not match the identity's tenant.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidPassword the password did not match the stored hash.
var ErrInvalidPassword = goerrors.New("invalid password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidPassword).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserInactive the password matched but the account is disabled.
var ErrUserInactive = goerrors.New("account is disabled, contact your administrator", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserInactive).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidCredentials is what callers see for ErrUserNotFound and ErrInvalidPassword.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMissing no bearer token or cookie was presented.
var ErrTokenMissing = goerrors.New("authentication token missing", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMissing).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalidOrExpired signature, format or expiry check failed.
var ErrTokenInvalidOrExpired = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalidOrExpired).
	WithCode(goerrors.CodeForbidden)

// ErrSessionNotFound the session registry has no live record for the token.
var ErrSessionNotFound = goerrors.New("session not found or expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeForbidden)

// ErrFingerprintMismatch is only returned when the fingerprint policy blocks.
var ErrFingerprintMismatch = goerrors.New("device fingerprint mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeFingerprintMismatch).
	WithCode(goerrors.CodeForbidden)

// ErrForbiddenTransition the legal role has no edge to the requested role.
var ErrForbiddenTransition = goerrors.New("role switch not permitted", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbiddenTransition).
	WithCode(goerrors.CodeForbidden)

// ErrRefreshInvalidOrExpired the refresh secret is unknown, revoked, expired,
// or its owner is inactive.
var ErrRefreshInvalidOrExpired = goerrors.New("invalid or expired refresh token", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshInvalidOrExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrRoleNotAssignable the actor tried to create an identity above its own role.
var ErrRoleNotAssignable = goerrors.New("role cannot be assigned by this user", goerrors.CategoryAuthz).
	WithTextCode(TextCodeRoleNotAssignable).
	WithCode(goerrors.CodeForbidden)

// ErrPermissionDenied the active role lacks a permission.
var ErrPermissionDenied = goerrors.New("permission denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(goerrors.CodeForbidden)

// ErrServer is the opaque error returned for unexpected failures.
var ErrServer = goerrors.New("server error", goerrors.CategoryInternal).
	WithTextCode(TextCodeServerError).
	WithCode(goerrors.CodeInternal)

// ErrNoEmptyString password must not be empty
var ErrNoEmptyString = goerrors.New("password can not be an empty string", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrRecordNotFound is returned by stores when no row matches.
var ErrRecordNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInsecureSigningSecret the signing secret is too short for production.
var ErrInsecureSigningSecret = goerrors.New("signing secret must be at least 32 characters in production", goerrors.CategoryValidation).
	WithTextCode(TextCodeInsecureSecret).
	WithCode(goerrors.CodeBadRequest)

// ErrIdentityConflict the username or email is already registered.
var ErrIdentityConflict = goerrors.New("username or email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeIdentityConflict).
	WithCode(goerrors.CodeConflict)

// ErrImmutableClaimMutation a re-issued token changed a claim that must be
// carried over, such as the tenant.
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryInternal).
	WithTextCode(TextCodeImmutableClaim).
	WithCode(goerrors.CodeInternal)

var expectedFailures = []*goerrors.Error{
	ErrUserInactive,
	ErrTokenMissing,
	ErrTokenInvalidOrExpired,
	ErrSessionNotFound,
	ErrFingerprintMismatch,
	ErrForbiddenTransition,
	ErrRefreshInvalidOrExpired,
	ErrRoleNotAssignable,
	ErrPermissionDenied,
	ErrInvalidCredentials,
}

// IsNotFound reports store misses.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	return HasTextCode(err, TextCodeRecordNotFound)
}

// HasTextCode reports whether the first rich error in the chain carries code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) || richErr == nil {
		return false
	}
	return richErr.TextCode == code
}

// IsAuthError reports whether err is the given taxonomy error.
func IsAuthError(err error, target *goerrors.Error) bool {
	if target == nil {
		return false
	}
	return HasTextCode(err, target.TextCode)
}

// IsExpectedFailure reports whether err belongs to the authentication
// taxonomy rather than being an unexpected failure.
func IsExpectedFailure(err error) bool {
	if IsAuthError(err, ErrUserNotFound) || IsAuthError(err, ErrInvalidPassword) {
		return true
	}
	for _, target := range expectedFailures {
		if IsAuthError(err, target) {
			return true
		}
	}
	return false
}

// PublicError maps an internal error to the error shown to clients: not
// found and wrong password collapse into ErrInvalidCredentials, validation
// errors pass through, everything unexpected becomes ErrServer.
func PublicError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	if IsAuthError(err, ErrUserNotFound) || IsAuthError(err, ErrInvalidPassword) {
		return ErrInvalidCredentials
	}

	for _, target := range expectedFailures {
		if IsAuthError(err, target) {
			return target
		}
	}

	var richErr *goerrors.Error
	if errors.As(err, &richErr) && richErr != nil {
		switch richErr.Category {
		case goerrors.CategoryValidation, goerrors.CategoryBadInput, goerrors.CategoryConflict:
			return richErr
		}
	}

	return ErrServer
}
