package config

import (
	apperrors "github.com/spgill/sbackup/internal/errors"
)

// GetLocation returns the named location.
func (c *Config) GetLocation(name string) (*Location, error) {
	loc, ok := c.Locations[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.TypeNotFound,
			"no backup location %q defined in config", name)
	}
	return &loc, nil
}

// GetPolicy returns the named policy. A policy with an empty location
// list is unusable and rejected here.
func (c *Config) GetPolicy(name string) (*Policy, error) {
	pol, ok := c.Policies[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.TypeNotFound,
			"no backup policy %q defined in config", name)
	}
	locs, err := pol.Locations()
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, apperrors.Newf(apperrors.TypeConfig,
			"policy %q defines no locations", name)
	}
	return &pol, nil
}

// GetProfile returns the named profile merged over the global profile
// defaults. The returned profile is a fresh copy; neither the stored
// profile nor the global profile are modified.
func (c *Config) GetProfile(name string) (*Profile, error) {
	prof, ok := c.Profiles[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.TypeNotFound,
			"no backup profile %q defined in config", name)
	}

	merged := MergeProfile(c.GlobalProfile, &prof)
	if merged.Policy == "" {
		return nil, apperrors.Newf(apperrors.TypeConfig,
			"no policy defined for profile %q", name)
	}
	return merged, nil
}

// MergeProfile layers a specific profile over a global default. List
// fields concatenate global-then-specific so both contribute; scalar
// fields use the specific value when set, else the global one. Both
// inputs are left untouched.
func MergeProfile(global, specific *Profile) *Profile {
	if global == nil {
		out := *specific
		return &out
	}

	out := Profile{
		SourceDef: MergeSourceDef(&global.SourceDef, &specific.SourceDef),
		Policy:    pick(specific.Policy, global.Policy),
		Hostname:  pick(specific.Hostname, global.Hostname),

		// The archive name falls back to the profile name, never to the
		// global profile.
		ArchiveName: specific.ArchiveName,

		Tags:      concat(global.Tags, specific.Tags),
		Args:      concat(global.Args, specific.Args),
		Groups:    specific.Groups,
		AutoApply: specific.AutoApply || global.AutoApply,
	}
	return &out
}

// MergeSourceDef concatenates every list field general-then-specific and
// prefers the specific scalar values.
func MergeSourceDef(general, specific *SourceDef) SourceDef {
	out := SourceDef{
		Include:           concat(general.Include, specific.Include),
		FilesFrom:         concat(general.FilesFrom, specific.FilesFrom),
		FilesFromVerbatim: concat(general.FilesFromVerbatim, specific.FilesFromVerbatim),
		Exclude:           concat(general.Exclude, specific.Exclude),
		IExclude:          concat(general.IExclude, specific.IExclude),
		ExcludeIfPresent:  concat(general.ExcludeIfPresent, specific.ExcludeIfPresent),
		ExcludeFile:       concat(general.ExcludeFile, specific.ExcludeFile),
		IExcludeFile:      concat(general.IExcludeFile, specific.IExcludeFile),
		ExcludeCaches:     general.ExcludeCaches || specific.ExcludeCaches,
		ExcludeLargerThan: specific.ExcludeLargerThan,
	}
	if out.ExcludeLargerThan == nil {
		out.ExcludeLargerThan = general.ExcludeLargerThan
	}
	return out
}

func pick(specific, general string) string {
	if specific != "" {
		return specific
	}
	return general
}

func concat(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
