package restic

import (
	"iter"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spgill/sbackup/internal/config"
	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/logger"
)

// Builder synthesizes restic argument vectors from resolved configuration
// objects. Apart from validation failures and warnings it has no side
// effects.
type Builder struct {
	cfg *config.Config
	log *logger.Logger
}

func NewBuilder(cfg *config.Config, l *logger.Logger) *Builder {
	return &Builder{cfg: cfg, log: l}
}

// Every repo-addressing flag has two spellings: the plain one, and the
// "from" variant used for the source side of a cross-repo copy. The
// exact strings are a stable contract with restic.
var locationFlags = map[string]struct{ from, to string }{
	"repo":            {"--from-repo", "--repo"},
	"passwordFile":    {"--from-password-file", "--password-file"},
	"passwordCommand": {"--from-password-command", "--password-command"},
}

func locationFlag(name string, asSource bool) string {
	f := locationFlags[name]
	if asSource {
		return f.from
	}
	return f.to
}

// LocationArgs emits the cache, password and repo flags for a location.
// asSource selects the --from-* flag spellings used on the source side
// of a cross-repo copy.
func (b *Builder) LocationArgs(locationName string, asSource bool) ([]string, error) {
	loc, err := b.cfg.GetLocation(locationName)
	if err != nil {
		return nil, err
	}

	var args []string

	// Cache flags only apply to the destination side; restic rejects a
	// --from-cache-dir spelling.
	if !asSource {
		if b.cfg.Cache != "" {
			cachePath, err := config.AbsPath(b.cfg.Cache, false)
			if err != nil {
				return nil, err
			}
			args = append(args, "--cache-dir", cachePath)
		} else {
			args = append(args, "--no-cache")
		}
	}

	switch {
	case loc.PasswordFile != "":
		passwordPath, err := config.AbsPath(loc.PasswordFile, true)
		if err != nil {
			return nil, err
		}
		args = append(args, locationFlag("passwordFile", asSource), passwordPath)
	case loc.PasswordCommand != "":
		args = append(args, locationFlag("passwordCommand", asSource), loc.PasswordCommand)
	default:
		b.log.Warn("No password_file or password_command defined for location; restic will prompt or fail",
			"location", locationName)
	}

	args = append(args, locationFlag("repo", asSource), loc.Path)
	return args, nil
}

// TagArgs emits a single --tag flag with a comma-joined tag list.
func (b *Builder) TagArgs(profile *config.Profile) []string {
	if len(profile.Tags) == 0 {
		return nil
	}
	return []string{"--tag", strings.Join(profile.Tags, ",")}
}

// HostArgs emits the --host flag when the profile overrides the hostname.
func (b *Builder) HostArgs(profile *config.Profile) []string {
	if profile.Hostname == "" {
		return nil
	}
	return []string{"--host", profile.Hostname}
}

// RetentionArgs emits --keep-* flags for every defined retention field,
// in the fixed order last, within, hourly, daily, weekly, monthly,
// yearly. A policy without a retention object warns and emits nothing.
func (b *Builder) RetentionArgs(policy *config.Policy) []string {
	ret := policy.Retention
	if ret == nil {
		b.log.Warn("Policy defines no retention rules; nothing will be forgotten")
		return nil
	}

	var args []string
	keep := func(flag string, value *int) {
		if value != nil {
			args = append(args, flag, strconv.Itoa(*value))
		}
	}

	keep("--keep-last", ret.KeepLast)
	if ret.KeepWithin != "" {
		args = append(args, "--keep-within", ret.KeepWithin)
	}
	keep("--keep-hourly", ret.KeepHourly)
	keep("--keep-daily", ret.KeepDaily)
	keep("--keep-weekly", ret.KeepWeekly)
	keep("--keep-monthly", ret.KeepMonthly)
	keep("--keep-yearly", ret.KeepYearly)
	return args
}

// InclusionArgs lazily emits the include/exclude tokens for a profile.
// The sequence walks the resolved profile (which already carries the
// global profile defaults) followed by the selected sub-groups in map
// order; an empty group selection means every group contributes. Flagged
// tokens from every source definition are emitted first and the bare
// include entries are collected and emitted strictly last, because
// restic parses trailing bare tokens as path roots and would mis-read
// any flag that follows them.
//
// The sequence is restartable and yields each validation failure in
// place of further tokens. Collect consumes it into a slice.
func (b *Builder) InclusionArgs(profileName string, groupNames []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		profile, err := b.cfg.GetProfile(profileName)
		if err != nil {
			yield("", err)
			return
		}

		defs := []config.SourceDef{profile.SourceDef}
		for _, name := range sortedGroupNames(profile.Groups) {
			if len(groupNames) > 0 && !slices.Contains(groupNames, name) {
				continue
			}
			defs = append(defs, profile.Groups[name])
		}

		var includes []string
		for _, def := range defs {
			includes = append(includes, def.Include...)
			if !emitSourceDef(&def, yield) {
				return
			}
		}

		for _, entry := range includes {
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func emitSourceDef(def *config.SourceDef, yield func(string, error) bool) bool {
	emitPaths := func(flag string, entries []string) bool {
		for _, entry := range entries {
			abs, err := config.AbsPath(entry, true)
			if err != nil {
				yield("", err)
				return false
			}
			if !yield(flag, nil) || !yield(abs, nil) {
				return false
			}
		}
		return true
	}
	emitPlain := func(flag string, entries []string) bool {
		for _, entry := range entries {
			if !yield(flag, nil) || !yield(entry, nil) {
				return false
			}
		}
		return true
	}

	if !emitPaths("--files-from", def.FilesFrom) {
		return false
	}
	if !emitPaths("--files-from-verbatim", def.FilesFromVerbatim) {
		return false
	}
	if !emitPlain("--exclude", def.Exclude) {
		return false
	}
	if !emitPlain("--iexclude", def.IExclude) {
		return false
	}
	if !emitPlain("--exclude-if-present", def.ExcludeIfPresent) {
		return false
	}
	if !emitPaths("--exclude-file", def.ExcludeFile) {
		return false
	}
	if !emitPaths("--iexclude-file", def.IExcludeFile) {
		return false
	}
	if def.ExcludeCaches {
		if !yield("--exclude-caches", nil) {
			return false
		}
	}
	if def.ExcludeLargerThan != nil {
		size, ok := def.ExcludeLargerThan.(string)
		if !ok {
			yield("", apperrors.Newf(apperrors.TypeValidation,
				"exclude_larger_than must be a string like \"512M\", got %T (%v)",
				def.ExcludeLargerThan, def.ExcludeLargerThan))
			return false
		}
		if size != "" {
			if !yield("--exclude-larger-than", nil) || !yield(size, nil) {
				return false
			}
		}
	}
	return true
}

// Collect materializes a token sequence, stopping at the first error.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var out []string
	for tok, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, nil
}

func sortedGroupNames(groups map[string]config.SourceDef) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	// Map order in the YAML document is not preserved by the decoder, so
	// groups contribute in lexical order to keep runs deterministic.
	sort.Strings(names)
	return names
}
