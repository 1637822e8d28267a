package mfa

// eligibleFactors keeps factors that are enabled, verified and allow-listed
// for the context, preserving order.
func eligibleFactors(cfg Config, factors []Factor, context string) []Factor {
	var out []Factor
	for _, f := range factors {
		if f.Usable() && cfg.DriverAllowed(context, f.Driver) {
			out = append(out, f)
		}
	}
	return out
}

// selectFactor picks the factor a login challenge runs against: the primary
// factor, then the preferred driver, then allow-list order, then whatever
// is left. It returns nil when nothing is eligible.
func selectFactor(cfg Config, factors []Factor, preferred *string, context string) *Factor {
	eligible := eligibleFactors(cfg, factors, context)
	if len(eligible) == 0 {
		return nil
	}

	for i := range eligible {
		if eligible[i].IsPrimary {
			return &eligible[i]
		}
	}
	if preferred != nil && *preferred != "" {
		if f := findDriver(eligible, *preferred); f != nil {
			return f
		}
	}
	for _, driver := range cfg.ActorAllowedDrivers(context) {
		if f := findDriver(eligible, driver); f != nil {
			return f
		}
	}
	return &eligible[0]
}

func findDriver(factors []Factor, driver string) *Factor {
	for i := range factors {
		if factors[i].Driver == driver {
			return &factors[i]
		}
	}
	return nil
}
