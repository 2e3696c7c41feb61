package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/logger"
)

// Stage describes one external process in a unidirectional byte
// pipeline: its stdout feeds the next stage's stdin.
type Stage struct {
	Name string
	Path string
	Args []string
	// Env is the complete child environment; nil inherits the process
	// environment.
	Env []string
}

// Pipeline wires stages together with OS pipes and runs them in true
// parallel, coupled by pipe backpressure: a slow downstream stage blocks
// the upstream producer once the kernel buffers fill, which bounds
// memory use regardless of stream size.
type Pipeline struct {
	stages []Stage
	sink   io.Writer
	source io.Reader
	log    *logger.Logger

	// Strict waits on every stage and surfaces the first non-zero exit
	// code found. The default inspects only the terminal stage, relying
	// on pipe semantics to propagate upstream failures into it; that
	// leniency matches what callers have historically depended on, and
	// can miss an upstream failure that still produced well-formed
	// output.
	Strict bool
}

func New(l *logger.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, log: l}
}

// SetSource attaches a reader to the first stage's stdin.
func (p *Pipeline) SetSource(r io.Reader) { p.source = r }

// SetSink redirects the terminal stage's stdout.
func (p *Pipeline) SetSink(w io.Writer) { p.sink = w }

// Run launches every stage, wires the pipes and blocks until the
// pipeline drains.
func (p *Pipeline) Run(ctx context.Context) error {
	if len(p.stages) == 0 {
		return apperrors.New(apperrors.TypeInternal, "pipeline has no stages", "")
	}

	cmds := make([]*exec.Cmd, len(p.stages))
	for i, stage := range p.stages {
		cmd := exec.CommandContext(ctx, stage.Path, stage.Args...)
		cmd.Env = stage.Env
		// Progress meters and error output from every stage go straight
		// to the operator's terminal.
		cmd.Stderr = os.Stderr
		cmds[i] = cmd
	}

	if p.source != nil {
		cmds[0].Stdin = p.source
	}
	for i := 0; i < len(cmds)-1; i++ {
		pipe, err := cmds[i].StdoutPipe()
		if err != nil {
			return apperrors.Wrap(err, apperrors.TypeInternal,
				"failed to create pipe after "+p.stages[i].Name, "")
		}
		cmds[i+1].Stdin = pipe
	}
	if p.sink != nil {
		cmds[len(cmds)-1].Stdout = p.sink
	}

	started := 0
	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			// Reap whatever already started before reporting.
			for _, prev := range cmds[:started] {
				_ = prev.Process.Kill()
				_ = prev.Wait()
			}
			return apperrors.Wrap(err, apperrors.TypeExternal,
				"failed to start pipeline stage "+p.stages[i].Name,
				fmt.Sprintf("is %q installed and on PATH?", p.stages[i].Path))
		}
		started++
		p.log.Debug("Pipeline stage started", "stage", p.stages[i].Name, "pid", cmd.Process.Pid)
	}

	// Wait in pipeline order. Waiting on an upstream stage closes its
	// stdout pipe, which is what lets the downstream stage see EOF.
	var stageErrs []error
	for i, cmd := range cmds {
		err := cmd.Wait()
		terminal := i == len(cmds)-1
		if err == nil {
			continue
		}
		code := exitCode(err)
		if terminal {
			return apperrors.External(
				fmt.Sprintf("pipeline stage %s exited with code %d", p.stages[i].Name, code), code)
		}
		stageErrs = append(stageErrs, apperrors.External(
			fmt.Sprintf("pipeline stage %s exited with code %d", p.stages[i].Name, code), code))
	}

	if p.Strict && len(stageErrs) > 0 {
		return stageErrs[0]
	}
	if len(stageErrs) > 0 {
		// Lenient mode: the terminal stage succeeded, so intermediate
		// failures are reported but not fatal.
		p.log.Warn("Intermediate pipeline stage failed but terminal stage succeeded",
			"error", errors.Join(stageErrs...))
	}
	return nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
