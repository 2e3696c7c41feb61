package restic

import (
	"context"
	"encoding/json"
	"os/exec"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/spgill/sbackup/internal/errors"
)

// Binary is the snapshot engine executable name.
const Binary = "restic"

// CommandExecutor runs an external command to completion and returns its
// stdout. It exists so tests can substitute a fake engine.
type CommandExecutor interface {
	Output(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
}

// DefaultExecutor runs commands with os/exec.
type DefaultExecutor struct{}

func (DefaultExecutor) Output(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	return cmd.Output()
}

// Client issues read-only JSON queries against the snapshot engine.
type Client struct {
	executor CommandExecutor
}

func NewClient() *Client {
	return &Client{executor: DefaultExecutor{}}
}

func NewClientWithExecutor(executor CommandExecutor) *Client {
	return &Client{executor: executor}
}

// Snapshot is the metadata restic reports for one snapshot.
type Snapshot struct {
	ID       string   `json:"id"`
	ShortID  string   `json:"short_id"`
	Time     string   `json:"time"`
	Hostname string   `json:"hostname"`
	Tags     []string `json:"tags"`
	Paths    []string `json:"paths"`
}

// ParsedTime parses the snapshot timestamp after normalizing its
// fractional seconds.
func (s *Snapshot) ParsedTime() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, FixTimestamp(s.Time))
}

// LookupSnapshot queries the engine for a snapshot by name ("latest" is
// a valid sentinel) and returns its metadata.
func (c *Client) LookupSnapshot(ctx context.Context, locationArgs []string, env []string, name string) (*Snapshot, error) {
	args := append(append([]string{}, locationArgs...), "--quiet", "snapshots", name, "--json")
	out, err := c.executor.Output(ctx, env, Binary, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeExternal,
			"error querying snapshots", "")
	}

	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" || trimmed == "null" {
		return nil, apperrors.Newf(apperrors.TypeNotFound,
			"could not find snapshot %q", name)
	}

	var snaps []Snapshot
	if err := json.Unmarshal(out, &snaps); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeExternal,
			"unexpected snapshot listing output", "")
	}
	if len(snaps) == 0 {
		return nil, apperrors.Newf(apperrors.TypeNotFound,
			"could not find snapshot %q", name)
	}
	return &snaps[0], nil
}

type statsReply struct {
	TotalSize int64 `json:"total_size"`
}

// SnapshotSize queries the engine for the total (uncompressed) byte size
// of a snapshot.
func (c *Client) SnapshotSize(ctx context.Context, locationArgs []string, env []string, snapshotID string) (int64, error) {
	args := append(append([]string{}, locationArgs...), "--quiet", "stats", snapshotID, "--json")
	out, err := c.executor.Output(ctx, env, Binary, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeExternal,
			"error querying snapshot statistics", "")
	}

	var reply statsReply
	if err := json.Unmarshal(out, &reply); err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeExternal,
			"unexpected snapshot statistics output", "")
	}
	return reply.TotalSize, nil
}

var fractionPattern = regexp.MustCompile(`:(\d+)\.(\d+)`)

// FixTimestamp truncates the fractional-second part of an RFC 3339
// timestamp to at most six digits. restic reports nanosecond precision,
// which is wider than some downstream parsers tolerate.
func FixTimestamp(t string) string {
	return fractionPattern.ReplaceAllStringFunc(t, func(match string) string {
		parts := fractionPattern.FindStringSubmatch(match)
		frac := parts[2]
		if len(frac) > 6 {
			frac = frac[:6]
		}
		return ":" + parts[1] + "." + frac
	})
}

// SnapshotSavedPattern extracts the saved snapshot id from restic backup
// output.
var SnapshotSavedPattern = regexp.MustCompile(`snapshot (\w+) saved`)
