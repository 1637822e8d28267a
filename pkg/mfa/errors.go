package mfa

import (
	mfaerrors "github.com/ninjaportal/portal-mfa/pkg/errors"
)

// Errors returned by the MFA services. Match them with errors.Is; the
// message and field may differ between call sites while the code stays.
var (
	// ErrInvalidParameter reports a programmer or configuration error.
	ErrInvalidParameter = mfaerrors.Field(mfaerrors.ErrCodeInvalidParameter, "", "Invalid parameter.")

	// ErrChallengeNotFound covers missing, expired, terminal and wrong-scope challenges alike.
	ErrChallengeNotFound = mfaerrors.Field(mfaerrors.ErrCodeChallengeNotFound, "challenge_token", "Invalid or expired MFA challenge.")

	ErrAttemptsExhausted    = mfaerrors.Field(mfaerrors.ErrCodeAttemptsExhausted, "code", "Maximum verification attempts reached.")
	ErrInvalidCode          = mfaerrors.Field(mfaerrors.ErrCodeInvalidCode, "code", "Invalid verification code.")
	ErrResendTooSoon        = mfaerrors.Field(mfaerrors.ErrCodeResendTooSoon, "challenge_token", "Please wait before requesting another code.")
	ErrResendLimitExceeded  = mfaerrors.Field(mfaerrors.ErrCodeResendLimitExceeded, "challenge_token", "Maximum resend attempts reached for this challenge.")
	ErrUnsupportedOperation = mfaerrors.Field(mfaerrors.ErrCodeUnsupportedOperation, "challenge_token", "This MFA driver does not support resending codes.")
	ErrNoEligibleFactor     = mfaerrors.Field(mfaerrors.ErrCodeNoEligibleFactor, "mfa", "No eligible MFA factor is available for this account.")
	ErrLastRequiredFactor   = mfaerrors.Field(mfaerrors.ErrCodeLastRequiredFactor, "driver", "Cannot disable the last enabled MFA factor while MFA is required.")
	ErrDriverNotConfigured  = mfaerrors.Field(mfaerrors.ErrCodeDriverNotConfigured, "driver", "MFA driver is not configured.")

	// ErrMfaNotConfigured is what the login flow reports for ErrNoEligibleFactor.
	ErrMfaNotConfigured = ErrNoEligibleFactor.WithMessage("mfa", "MFA is required for this account but no eligible factor is configured.")

	ErrDriverNotAllowed       = mfaerrors.ValidationFailed("driver", "Driver is not allowed for this actor.")
	ErrInvalidCredentials     = mfaerrors.ValidationFailed("email", "Invalid credentials.")
	ErrChallengeActorMismatch = mfaerrors.ValidationFailed("challenge_token", "Challenge does not belong to the authenticated user.")
	ErrMissingEmail           = mfaerrors.ValidationFailed("email", "Cannot send email OTP: actor does not have an email address.")
	ErrMfaRequired            = mfaerrors.ValidationFailed("is_enabled", "MFA is required for this actor.")
	ErrDisableNotAllowed      = mfaerrors.ValidationFailed("is_enabled", "Disabling MFA is not allowed for this actor.")
	ErrNoEnabledFactor        = mfaerrors.ValidationFailed("is_enabled", "Enable at least one MFA factor first.")
	ErrPreferredNotEnabled    = mfaerrors.ValidationFailed("preferred_driver", "Selected driver is not enabled for this account.")
	ErrEnrollmentNotStarted   = mfaerrors.ValidationFailed("driver", "Authenticator setup has not been started.")
	ErrFactorNotFound         = mfaerrors.Unauthorized("MFA factor not found for challenge.")
	ErrActorNotResolved       = mfaerrors.Unauthorized("Challenge actor could not be resolved.")
)
