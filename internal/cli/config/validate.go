package config

import "fmt"

// Validate checks the configuration for inconsistencies that would fail
// later in confusing ways. Connection completeness is checked by the
// fetcher, not here, so that read-only commands work without credentials.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir must not be empty")
	}

	switch c.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid output format %q (must be text or json)", c.OutputFormat)
	}

	if c.Refresh.Threads <= 0 {
		return fmt.Errorf("refresh.threads must be positive, got %d", c.Refresh.Threads)
	}

	switch c.Refresh.RemovalPolicy {
	case "retain", "archive", "delete":
	default:
		return fmt.Errorf("invalid removal_policy %q (must be retain, archive, or delete)", c.Refresh.RemovalPolicy)
	}

	// A named profile must exist when any profiles are configured at all.
	// With no profiles section the built-in defaults still allow commands
	// that never touch the warehouse.
	if len(c.Profiles) > 0 {
		if _, ok := c.Profiles[c.Profile]; !ok {
			return fmt.Errorf("profile %q not found in profiles", c.Profile)
		}
	}

	return nil
}
