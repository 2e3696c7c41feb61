package config

import (
	apperrors "github.com/spgill/sbackup/internal/errors"
)

// Location is a named restic repository endpoint with its own credentials
// and execution environment.
type Location struct {
	Path            string            `yaml:"path"`
	PasswordFile    string            `yaml:"password_file"`
	PasswordCommand string            `yaml:"password_command"`
	Env             map[string]string `yaml:"env"`
	CleanEnv        map[string]string `yaml:"clean_env"`
}

// Retention holds optional keep-counts. A nil field means the
// corresponding --keep-* flag is not passed at all.
type Retention struct {
	KeepLast    *int   `yaml:"keep_last"`
	KeepWithin  string `yaml:"keep_within"`
	KeepHourly  *int   `yaml:"keep_hourly"`
	KeepDaily   *int   `yaml:"keep_daily"`
	KeepWeekly  *int   `yaml:"keep_weekly"`
	KeepMonthly *int   `yaml:"keep_monthly"`
	KeepYearly  *int   `yaml:"keep_yearly"`
}

// Policy binds one or more locations (first is primary) to an optional
// cron schedule and retention rule.
type Policy struct {
	// Location accepts either a single string or a list of strings in
	// the YAML file. Use Locations() to read it.
	Location  any        `yaml:"location"`
	Schedule  string     `yaml:"schedule"`
	Retention *Retention `yaml:"retention"`
}

// Locations normalizes the declared location value to an ordered list.
// Index 0 is the primary location.
func (p *Policy) Locations() ([]string, error) {
	switch v := p.Location.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, apperrors.Newf(apperrors.TypeValidation,
					"policy location entries must be strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, apperrors.Newf(apperrors.TypeValidation,
			"policy 'location' must be a string or list of strings, got %T", v)
	}
}

// SourceDef is the include/exclude rule shape shared by profiles and
// their sub-groups.
type SourceDef struct {
	// Plain include entries carry no flag and must be emitted after
	// every flagged argument; restic treats trailing bare tokens as
	// path roots.
	Include []string `yaml:"include"`

	FilesFrom         []string `yaml:"files_from"`
	FilesFromVerbatim []string `yaml:"files_from_verbatim"`

	Exclude          []string `yaml:"exclude"`
	IExclude         []string `yaml:"iexclude"`
	ExcludeIfPresent []string `yaml:"exclude_if_present"`
	ExcludeFile      []string `yaml:"exclude_file"`
	IExcludeFile     []string `yaml:"iexclude_file"`
	ExcludeCaches    bool     `yaml:"exclude_caches"`

	// ExcludeLargerThan must be a string like "512M". A bare YAML number
	// is a common misconfiguration and is rejected at synthesis time, so
	// the decoded value is kept untyped here.
	ExcludeLargerThan any `yaml:"exclude_larger_than"`
}

// Profile is a named backup job definition.
type Profile struct {
	SourceDef `yaml:",inline"`

	Policy      string               `yaml:"policy"`
	Hostname    string               `yaml:"hostname"`
	ArchiveName string               `yaml:"archive_name"`
	Tags        []string             `yaml:"tags"`
	Args        []string             `yaml:"args"`
	Groups      map[string]SourceDef `yaml:"groups"`
	AutoApply   bool                 `yaml:"auto_apply"`
}

// ArchiveSettings configures the archive (dump) operation.
type ArchiveSettings struct {
	// Cache is the staging directory. When empty the destination
	// directory doubles as the staging area.
	Cache        string `yaml:"cache"`
	PasswordFile string `yaml:"password_file"`
	Compression  string `yaml:"compression"`
	Upload       string `yaml:"upload"`
}

// Config is the root configuration aggregate. It is read once at process
// start and never mutated afterwards.
type Config struct {
	V             int                 `yaml:"v"`
	Cache         string              `yaml:"cache"`
	Locations     map[string]Location `yaml:"locations"`
	Policies      map[string]Policy   `yaml:"policies"`
	Profiles      map[string]Profile  `yaml:"profiles"`
	GlobalProfile *Profile            `yaml:"global_profile"`
	Archive       *ArchiveSettings    `yaml:"archive"`
}
