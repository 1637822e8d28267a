// Package config loads portal-mfa settings from PORTAL_MFA_* environment
// variables with cleanenv and converts them into the types the other
// packages take.
//
//	cfg, err := config.Load()
//	if err != nil {
//		slog.Error("Failed to load configuration", "err", err)
//		os.Exit(1)
//	}
//	mfaCfg, err := cfg.Mfa.ToMfaConfig()
//
// Load validates the result and returns ValidationErrors listing every
// invalid field at once.
package config
