// Package mfa runs the second authentication step that sits between a
// password check and session token issuance.
//
// # Overview
//
// The mfa package provides:
//   - Pluggable drivers: authenticator app (TOTP) and email one-time codes
//   - Factor enrollment, confirmation and disabling per actor
//   - Per-context policy (consumer and admin) for whether MFA applies
//   - Challenge lifecycle: create, verify, resend, invalidate, expire
//   - Attempt and resend ceilings enforced by the storage layer
//   - Postgres, file and in-memory repositories
//   - Lifecycle events for auditing and metrics
//
// # Challenge States
//
// A challenge is pending while it is not completed, not invalidated and not
// expired. Verified, exhausted, invalidated and expired are terminal.
// Creating a challenge invalidates any open challenge for the same actor,
// driver and purpose.
//
// # Basic Usage
//
//	repo, err := mfa.NewRepository("postgres", mfa.RepositoryConfig{Pool: pool})
//
//	events := mfa.NewDispatcher(mfa.LogListener{})
//	opts := []mfa.Option{mfa.WithConfig(cfg), mfa.WithEvents(events)}
//
//	drivers := mfa.NewRegistry(
//		mfa.NewAuthenticatorDriver(box, opts...),
//		mfa.NewEmailOtpDriver(sender, opts...),
//	)
//	challenges := mfa.NewChallengeService(repo, drivers, directory, issuer, opts...)
//	profiles := mfa.NewProfileService(repo, opts...)
//	flow := mfa.NewAuthFlow(directory, directory, issuer, profiles, challenges, opts...)
//
//	result, err := flow.AttemptLogin(ctx, email, password, mfa.ContextConsumer)
//	if result.ChallengeRequired {
//		// send result.Payload to the client, then
//		tokens, err := challenges.VerifyLoginChallenge(ctx, mfa.ContextConsumer, token, code)
//	}
//
// # Concurrency
//
// Challenge creation holds a Locker keyed by (actor, driver, purpose) while
// it invalidates and inserts. Verify and resend hold a lock on the challenge
// itself. Use a RedisLocker when several instances share one database.
package mfa
