package restic

import (
	"sort"
	"strings"

	"github.com/spgill/sbackup/internal/config"
	apperrors "github.com/spgill/sbackup/internal/errors"
)

// ValidateTwoLocationOperation checks that two locations can share a
// single restic process, as the cross-repo copy and init --parent
// operations require. A self-copy is rejected, and so is any pair whose
// effective environments share a key: the merged environment of one
// process cannot hold two values for the same variable, so a collision
// (conflicting cloud credentials, say) would silently corrupt one side.
// This must be caught before launch, not discovered as a runtime
// failure.
func (b *Builder) ValidateTwoLocationOperation(a, bName string) error {
	if a == bName {
		return apperrors.Newf(apperrors.TypeValidation,
			"locations for this operation must differ, got %q twice", a)
	}

	locA, err := b.cfg.GetLocation(a)
	if err != nil {
		return err
	}
	locB, err := b.cfg.GetLocation(bName)
	if err != nil {
		return err
	}

	var shared []string
	for key := range effectiveEnv(locA) {
		if _, ok := effectiveEnv(locB)[key]; ok {
			shared = append(shared, key)
		}
	}
	if len(shared) > 0 {
		sort.Strings(shared)
		return apperrors.New(apperrors.TypeValidation,
			"locations "+a+" and "+bName+" define overlapping environment variables: "+strings.Join(shared, ", "),
			"move one location's credentials to clean_env with distinct variable names")
	}
	return nil
}

// effectiveEnv is the set of variables a location itself contributes:
// clean_env fully replaces env when present.
func effectiveEnv(loc *config.Location) map[string]string {
	if loc.CleanEnv != nil {
		return loc.CleanEnv
	}
	return loc.Env
}
