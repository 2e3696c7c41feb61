package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/logger"
)

// Command describes one external invocation.
type Command struct {
	Name string
	Args []string
	// Env is the complete child environment. A nil map inherits the
	// process environment.
	Env []string
	// OKCodes is the set of acceptable exit codes. Empty means success
	// only. restic's backup exits 3 on "completed with warnings", which
	// callers opt into rather than retry.
	OKCodes []int
	// Foreground attaches the invoking terminal's stdin, for interactive
	// subcommands like mount.
	Foreground bool
}

// Result is the completed process state with its captured output.
type Result struct {
	Stdout   bytes.Buffer
	Stderr   bytes.Buffer
	ExitCode int
}

// Polite runs external commands as supervised background tasks: the
// child's scheduling priority is lowered to the minimum, output is
// streamed live to the operator while still being captured, and an
// operator interrupt terminates the child before this process exits so
// no long-running job is left unsupervised.
type Polite struct {
	log    *logger.Logger
	stdout io.Writer
	stderr io.Writer
}

func New(l *logger.Logger) *Polite {
	return &Polite{log: l, stdout: os.Stdout, stderr: os.Stderr}
}

// NewWithStreams overrides the live output destinations, for tests.
func NewWithStreams(l *logger.Logger, stdout, stderr io.Writer) *Polite {
	return &Polite{log: l, stdout: stdout, stderr: stderr}
}

func (p *Polite) Run(ctx context.Context, c Command) (*Result, error) {
	res := &Result{}

	cmd := exec.Command(c.Name, c.Args...)
	cmd.Env = c.Env
	cmd.Stdout = io.MultiWriter(p.stdout, &res.Stdout)
	cmd.Stderr = io.MultiWriter(p.stderr, &res.Stderr)
	// The child leads its own process group so termination reaches any
	// descendants it spawned; a surviving grandchild would also hold
	// the output pipes open and stall Wait indefinitely.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = 10 * time.Second
	if c.Foreground {
		cmd.Stdin = os.Stdin
	}

	if err := cmd.Start(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeExternal,
			"failed to start "+c.Name, "is it installed and on PATH?")
	}

	// Cooperative niceness is best-effort; a permission failure is worth
	// a warning but never aborts the run.
	if err := syscall.Setpriority(syscall.PRIO_PROCESS, cmd.Process.Pid, 19); err != nil {
		p.log.Warn("Could not lower child process priority", "command", c.Name, "error", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return p.finish(c, res, err)
	case <-ctx.Done():
		p.terminate(cmd, done)
		return nil, apperrors.Wrap(ctx.Err(), apperrors.TypeInterrupt,
			c.Name+" canceled", "")
	case sig := <-interrupt:
		p.log.Warn("Interrupt received, terminating child process", "command", c.Name, "signal", sig.String())
		p.terminate(cmd, done)
		return nil, apperrors.New(apperrors.TypeInterrupt,
			c.Name+" interrupted by operator", "")
	}
}

func (p *Polite) finish(c Command, res *Result, waitErr error) (*Result, error) {
	if waitErr == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return nil, apperrors.Wrap(waitErr, apperrors.TypeExternal,
			c.Name+" failed", "")
	}

	res.ExitCode = exitErr.ExitCode()
	ok := c.OKCodes
	if len(ok) == 0 {
		ok = []int{0}
	}
	if slices.Contains(ok, res.ExitCode) {
		return res, nil
	}
	return res, apperrors.External(
		c.Name+" exited with code "+strconv.Itoa(res.ExitCode), res.ExitCode)
}

// termGrace is how long the process group gets to exit on SIGTERM
// before it is killed outright.
const termGrace = 5 * time.Second

func (p *Polite) terminate(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	// SIGTERM first so restic can release its repository lock. The
	// whole group is signaled so shell-spawned descendants go down with
	// their parent instead of running on unsupervised.
	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}
	select {
	case <-done:
	case <-time.After(termGrace):
		p.log.Warn("Child process group ignored SIGTERM, killing it")
		_ = syscall.Kill(pgid, syscall.SIGKILL)
		<-done
	}
}
