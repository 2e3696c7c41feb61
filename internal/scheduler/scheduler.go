package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/spgill/sbackup/internal/config"
	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/logger"
	"github.com/spgill/sbackup/internal/runner"
)

// RunFunc executes one scheduled backup run.
type RunFunc func(ctx context.Context, opts runner.Options) (string, error)

// Scheduler runs backup profiles on their policies' cron schedules.
// There is exactly one worker slot: a firing that lands while a run is
// in flight is skipped, never queued and never run concurrently.
type Scheduler struct {
	cfg  *config.Config
	log  *logger.Logger
	cron *cron.Cron
	run  RunFunc

	mu   sync.Mutex
	busy bool
	jobs int
}

func New(cfg *config.Config, l *logger.Logger) *Scheduler {
	r := runner.New(cfg, l)
	return NewWithRunFunc(cfg, l, r.Run)
}

// NewWithRunFunc substitutes the run entry point, for tests.
func NewWithRunFunc(cfg *config.Config, l *logger.Logger, run RunFunc) *Scheduler {
	return &Scheduler{
		cfg:  cfg,
		log:  l,
		cron: cron.New(),
		run:  run,
	}
}

// Schedule registers every profile whose policy declares a cron
// schedule. It returns the number of jobs added.
func (s *Scheduler) Schedule() (int, error) {
	names := make([]string, 0, len(s.cfg.Profiles))
	for name := range s.cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		profile := s.cfg.Profiles[name]
		if profile.Policy == "" {
			continue
		}
		policy, err := s.cfg.GetPolicy(profile.Policy)
		if err != nil {
			return s.jobs, err
		}
		if policy.Schedule == "" {
			continue
		}

		profileName := name
		_, err = s.cron.AddFunc(policy.Schedule, func() {
			s.fire(profileName)
		})
		if err != nil {
			return s.jobs, apperrors.Wrap(err, apperrors.TypeConfig,
				"invalid schedule for profile "+profileName,
				"schedules use the standard five-field cron syntax")
		}
		s.log.Info("Scheduled profile", "profile", profileName, "schedule", policy.Schedule)
		s.jobs++
	}
	return s.jobs, nil
}

// fire runs one profile if the worker slot is free.
func (s *Scheduler) fire(profileName string) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		s.log.Warn("Skipping scheduled run; a previous run is still in progress",
			"profile", profileName)
		return
	}
	s.busy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if _, err := s.run(context.Background(), runner.Options{Profile: profileName}); err != nil {
		s.log.Error("Scheduled run failed", "profile", profileName, "error", err)
	}
}

// Run blocks until ctx is canceled, firing scheduled jobs as they come
// due. With zero schedulable profiles it returns immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.jobs == 0 {
		return apperrors.New(apperrors.TypeConfig,
			"no profiles with a schedule; nothing to do",
			"add a 'schedule' to a policy referenced by at least one profile")
	}

	s.log.Info("Starting scheduler", "jobs", s.jobs)
	s.cron.Start()
	<-ctx.Done()

	// Let an in-flight run finish before returning.
	s.log.Info("Stopping scheduler; waiting for in-flight run to finish")
	<-s.cron.Stop().Done()
	return nil
}
