package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spgill/sbackup/internal/config"
	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/executor"
	"github.com/spgill/sbackup/internal/logger"
	"github.com/spgill/sbackup/internal/restic"
)

// backupOKCodes accepts restic's "completed with warnings" exit.
var backupOKCodes = []int{0, 3}

// Executor runs one supervised external command.
type Executor interface {
	Run(ctx context.Context, c executor.Command) (*executor.Result, error)
}

// Runner executes backup profiles: one backup against the primary
// location, then snapshot copies to every secondary location.
type Runner struct {
	cfg     *config.Config
	log     *logger.Logger
	builder *restic.Builder
	exec    Executor
}

func New(cfg *config.Config, l *logger.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		log:     l,
		builder: restic.NewBuilder(cfg, l),
		exec:    executor.New(l),
	}
}

// NewWithExecutor substitutes the command executor, for tests.
func NewWithExecutor(cfg *config.Config, l *logger.Logger, exec Executor) *Runner {
	return &Runner{
		cfg:     cfg,
		log:     l,
		builder: restic.NewBuilder(cfg, l),
		exec:    exec,
	}
}

// Options selects the profile to run and narrows its scope.
type Options struct {
	Profile string

	// Groups limits the run to the named sub-groups. Empty means all.
	Groups []string

	// NoCopy skips the snapshot copies to secondary locations.
	NoCopy bool

	// LocationOverride backs up to these locations instead of the
	// policy's. Overriding implies NoCopy.
	LocationOverride []string

	DryRun bool
}

// Run executes one backup run and returns the saved snapshot id. A dry
// run returns an empty id.
func (r *Runner) Run(ctx context.Context, opts Options) (string, error) {
	runID := uuid.NewString()[:8]
	log := r.log.With("run", runID, "profile", opts.Profile)

	profile, err := r.cfg.GetProfile(opts.Profile)
	if err != nil {
		return "", err
	}
	policy, err := r.cfg.GetPolicy(profile.Policy)
	if err != nil {
		return "", err
	}

	locations, err := policy.Locations()
	if err != nil {
		return "", err
	}
	noCopy := opts.NoCopy
	if len(opts.LocationOverride) > 0 {
		locations = opts.LocationOverride
		noCopy = true
	}
	primary := locations[0]

	started := time.Now()
	log.Info("Starting backup run", "primary", primary)
	if len(locations) > 1 {
		log.Info("Secondary locations", "locations", strings.Join(locations[1:], ", "))
	}

	args, err := r.backupArgs(profile, opts)
	if err != nil {
		return "", err
	}
	locationArgs, err := r.builder.LocationArgs(primary, false)
	if err != nil {
		return "", err
	}
	args = append(locationArgs, args...)

	primaryEnv, err := r.builder.ExecutionEnv(primary)
	if err != nil {
		return "", err
	}

	log.Debug("Engine command", "cmd", restic.Binary+" "+strings.Join(args, " "))
	log.Info("Executing backup")
	res, err := r.exec.Run(ctx, executor.Command{
		Name:    restic.Binary,
		Args:    args,
		Env:     restic.FlattenEnv(primaryEnv),
		OKCodes: backupOKCodes,
	})
	if err != nil {
		return "", err
	}

	if opts.DryRun {
		log.Info("Dry run complete", "elapsed", time.Since(started).Round(time.Second))
		return "", nil
	}

	match := restic.SnapshotSavedPattern.FindSubmatch(res.Stdout.Bytes())
	if match == nil {
		return "", apperrors.New(apperrors.TypeExternal,
			"backup finished but no saved snapshot id was reported", "")
	}
	snapshotID := string(match[1])
	log.Info("Snapshot saved", "snapshot", snapshotID)

	var copyErrs []error
	if len(locations) > 1 && !noCopy {
		copyErrs = r.copyToSecondaries(ctx, log, primary, locations[1:], primaryEnv, snapshotID)
	}

	if profile.AutoApply && len(copyErrs) == 0 {
		log.Info("Applying retention policy automatically")
		if err := r.Apply(ctx, ApplyOptions{Profile: opts.Profile}); err != nil {
			copyErrs = append(copyErrs, fmt.Errorf("auto apply: %w", err))
		}
	}

	log.Info("Backup run finished", "elapsed", time.Since(started).Round(time.Second))
	return snapshotID, errors.Join(copyErrs...)
}

// backupArgs assembles everything after the location flags:
// backup subcommand, host, tags, inclusion rules, then pass-through args.
func (r *Runner) backupArgs(profile *config.Profile, opts Options) ([]string, error) {
	inclusion, err := restic.Collect(r.builder.InclusionArgs(opts.Profile, opts.Groups))
	if err != nil {
		return nil, err
	}

	args := []string{"backup"}
	args = append(args, r.builder.HostArgs(profile)...)
	args = append(args, r.builder.TagArgs(profile)...)
	args = append(args, inclusion...)
	args = append(args, profile.Args...)
	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	return args, nil
}

// copyToSecondaries replicates the saved snapshot to each secondary
// location in turn. One failed copy does not stop the others.
func (r *Runner) copyToSecondaries(ctx context.Context, log *logger.Logger, primary string, secondaries []string, primaryEnv map[string]string, snapshotID string) []error {
	sourceArgs, err := r.builder.LocationArgs(primary, true)
	if err != nil {
		return []error{err}
	}

	var errs []error
	for _, dest := range secondaries {
		log.Info("Copying snapshot to secondary location", "destination", dest)

		if err := r.builder.ValidateTwoLocationOperation(primary, dest); err != nil {
			errs = append(errs, fmt.Errorf("copy to %s: %w", dest, err))
			continue
		}
		destArgs, err := r.builder.LocationArgs(dest, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("copy to %s: %w", dest, err))
			continue
		}
		destEnv, err := r.builder.ExecutionEnv(dest)
		if err != nil {
			errs = append(errs, fmt.Errorf("copy to %s: %w", dest, err))
			continue
		}

		args := append(append([]string{}, destArgs...), "copy")
		args = append(args, sourceArgs...)
		args = append(args, snapshotID)

		_, err = r.exec.Run(ctx, executor.Command{
			Name: restic.Binary,
			Args: args,
			Env:  restic.FlattenEnv(restic.MergeEnv(primaryEnv, destEnv)),
		})
		if err != nil {
			log.Error("Snapshot copy failed", "destination", dest, "error", err)
			errs = append(errs, fmt.Errorf("copy to %s: %w", dest, err))
		}
	}
	return errs
}

// ApplyOptions selects the profile whose retention policy is enforced.
type ApplyOptions struct {
	Profile string
	Prune   bool
	DryRun  bool

	// LocationOverride applies the policy to these locations instead of
	// the policy's own.
	LocationOverride []string
}

// Apply runs the retention policy (restic forget) against every
// location of the profile's policy.
func (r *Runner) Apply(ctx context.Context, opts ApplyOptions) error {
	profile, err := r.cfg.GetProfile(opts.Profile)
	if err != nil {
		return err
	}
	policy, err := r.cfg.GetPolicy(profile.Policy)
	if err != nil {
		return err
	}

	locations := opts.LocationOverride
	if len(locations) == 0 {
		if locations, err = policy.Locations(); err != nil {
			return err
		}
	}

	var errs []error
	for _, name := range locations {
		r.log.Info("Applying retention policy", "profile", opts.Profile, "location", name)

		locationArgs, err := r.builder.LocationArgs(name, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("apply to %s: %w", name, err))
			continue
		}

		args := append(append([]string{}, locationArgs...), "forget")
		// Grouping by host/path would fragment the policy across
		// otherwise equivalent snapshots.
		args = append(args, "--group-by", "")
		args = append(args, r.builder.TagArgs(profile)...)
		args = append(args, r.builder.RetentionArgs(policy)...)
		if opts.DryRun {
			args = append(args, "--dry-run")
		}
		if opts.Prune {
			args = append(args, "--prune")
		}

		env, err := r.builder.ExecutionEnv(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("apply to %s: %w", name, err))
			continue
		}
		if _, err := r.exec.Run(ctx, executor.Command{
			Name: restic.Binary,
			Args: args,
			Env:  restic.FlattenEnv(env),
		}); err != nil {
			errs = append(errs, fmt.Errorf("apply to %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
