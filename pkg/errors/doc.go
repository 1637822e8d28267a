// Package errors provides coded errors for portal-mfa.
//
// Every failure the MFA core reports to a caller is an *Error carrying an
// ErrorCode, a user-facing message and the request field the message belongs
// to. Handlers render these as validation failures without inspecting the
// message text.
//
// # Basic Usage
//
//	import mfaerrors "github.com/ninjaportal/portal-mfa/pkg/errors"
//
//	err := mfaerrors.Field(mfaerrors.ErrCodeInvalidCode, "code", "Invalid verification code.")
//
//	if mfaerrors.IsCode(err, mfaerrors.ErrCodeInvalidCode) {
//		// ...
//	}
//
// # Sentinels
//
// *Error implements Is by comparing codes, so a package level sentinel such
// as mfa.ErrInvalidCode matches any error with the same code:
//
//	errors.Is(err, mfa.ErrInvalidCode)
//
// # HTTP Mapping
//
// MFA codes map to 422 Unprocessable Entity. ErrCodeUnauthorized maps to 401,
// ErrCodeRateLimited to 429 and anything unknown to 500.
package errors
