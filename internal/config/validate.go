package config

import (
	"regexp"

	apperrors "github.com/spgill/sbackup/internal/errors"
)

// Map keys for locations, policies and profiles must be usable as
// filenames, cron job ids and shell tokens without quoting.
var namePattern = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// Validate checks the structural invariants of the loaded configuration:
// every map key matches the restricted identifier pattern. Reference
// checks (profile -> policy -> location) are deferred to the resolver so
// commands that never touch a broken object still work.
func (c *Config) Validate() error {
	for name := range c.Locations {
		if !namePattern.MatchString(name) {
			return invalidName("location", name)
		}
	}
	for name := range c.Policies {
		if !namePattern.MatchString(name) {
			return invalidName("policy", name)
		}
	}
	for name := range c.Profiles {
		if !namePattern.MatchString(name) {
			return invalidName("profile", name)
		}
	}
	return nil
}

func invalidName(kind, name string) error {
	return apperrors.New(apperrors.TypeConfig,
		"invalid "+kind+" name "+name,
		"names must be 1-32 lowercase alphanumerics or underscores")
}
