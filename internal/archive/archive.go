package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/spgill/sbackup/internal/compress"
	"github.com/spgill/sbackup/internal/config"
	"github.com/spgill/sbackup/internal/crypto"
	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/logger"
	"github.com/spgill/sbackup/internal/pipeline"
	"github.com/spgill/sbackup/internal/restic"
	"github.com/spgill/sbackup/internal/storage"
)

// Manager extracts point-in-time snapshots into compressed, optionally
// encrypted single-file archives.
type Manager struct {
	cfg     *config.Config
	log     *logger.Logger
	builder *restic.Builder
	client  *restic.Client

	// Test seams.
	diskFree func(dir string) (uint64, error)
	lookPath func(name string) (string, error)
}

func NewManager(cfg *config.Config, l *logger.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		log:      l,
		builder:  restic.NewBuilder(cfg, l),
		client:   restic.NewClient(),
		diskFree: diskFree,
		lookPath: exec.LookPath,
	}
}

// Options selects what to archive and how.
type Options struct {
	Destination      string
	Profile          string
	Snapshots        []string
	LocationOverride string

	Encrypt      bool
	PasswordFile string

	// Native forces the in-process codec instead of the external
	// pv/zstd/openssl pipeline. It is also selected automatically when
	// those binaries are missing.
	Native bool

	Upload        string
	AllowInsecure bool
}

// Run archives each requested snapshot in turn. A failure aborts only
// that snapshot's processing; the rest of the batch is still attempted.
func (m *Manager) Run(ctx context.Context, opts Options) error {
	profile, err := m.cfg.GetProfile(opts.Profile)
	if err != nil {
		return err
	}
	policy, err := m.cfg.GetPolicy(profile.Policy)
	if err != nil {
		return err
	}
	locations, err := policy.Locations()
	if err != nil {
		return err
	}
	locationName := opts.LocationOverride
	if locationName == "" {
		locationName = locations[0]
	}

	settings := m.cfg.Archive
	if settings == nil {
		settings = &config.ArchiveSettings{}
	}

	algo, err := compress.Parse(settings.Compression)
	if err != nil {
		return err
	}

	destDir, err := config.AbsPath(opts.Destination, false)
	if err != nil {
		return err
	}
	if info, err := os.Stat(destDir); err != nil || !info.IsDir() {
		return apperrors.Newf(apperrors.TypeResource,
			"destination directory %q does not exist", destDir)
	}

	// The cache directory is optional; without one the destination
	// doubles as the staging area.
	cacheValue := settings.Cache
	if cacheValue == "" {
		cacheValue = m.cfg.Cache
	}
	cacheEnabled := cacheValue != ""
	stagingDir := destDir
	if cacheEnabled {
		if stagingDir, err = config.AbsPath(cacheValue, true); err != nil {
			return err
		}
	}

	passwordFile := opts.PasswordFile
	if passwordFile == "" {
		passwordFile = settings.PasswordFile
	}
	if opts.Encrypt && passwordFile == "" {
		return apperrors.New(apperrors.TypeSecurity,
			"archive encryption is enabled but no password is configured",
			"pass --password or set archive.password_file in the config")
	}
	if opts.Encrypt {
		if passwordFile, err = config.AbsPath(passwordFile, true); err != nil {
			return err
		}
	}

	uploadTarget := opts.Upload
	if uploadTarget == "" {
		uploadTarget = settings.Upload
	}

	snapshots := opts.Snapshots
	if len(snapshots) == 0 {
		snapshots = []string{"latest"}
	}

	locationArgs, err := m.builder.LocationArgs(locationName, false)
	if err != nil {
		return err
	}
	envMap, err := m.builder.ExecutionEnv(locationName)
	if err != nil {
		return err
	}
	env := restic.FlattenEnv(envMap)

	m.log.Info("Archiving snapshots",
		"profile", opts.Profile,
		"location", locationName,
		"snapshots", snapshots,
		"compression", string(algo),
		"encrypted", opts.Encrypt)

	shortName := profile.ArchiveName
	if shortName == "" {
		shortName = opts.Profile
	}

	job := archiveJob{
		locationArgs: locationArgs,
		env:          env,
		shortName:    shortName,
		algo:         algo,
		encrypt:      opts.Encrypt,
		passwordFile: passwordFile,
		stagingDir:   stagingDir,
		destDir:      destDir,
		cacheEnabled: cacheEnabled,
		native:       opts.Native || !m.externalToolsAvailable(opts.Encrypt, algo),
	}

	var batchErrs []error
	for _, name := range snapshots {
		destFile, err := m.processSnapshot(ctx, job, name)
		if err != nil {
			m.log.Error("Snapshot archive failed", "snapshot", name, "error", err)
			batchErrs = append(batchErrs, fmt.Errorf("snapshot %s: %w", name, err))
			continue
		}
		if uploadTarget != "" {
			if err := m.upload(ctx, uploadTarget, destFile, opts.AllowInsecure); err != nil {
				m.log.Error("Archive upload failed", "snapshot", name, "error", err)
				batchErrs = append(batchErrs, fmt.Errorf("snapshot %s upload: %w", name, err))
			}
		}
	}
	return errors.Join(batchErrs...)
}

type archiveJob struct {
	locationArgs []string
	env          []string
	shortName    string
	algo         compress.Algorithm
	encrypt      bool
	passwordFile string
	stagingDir   string
	destDir      string
	cacheEnabled bool
	native       bool
}

// processSnapshot archives one snapshot and returns the final archive
// path.
func (m *Manager) processSnapshot(ctx context.Context, job archiveJob, name string) (string, error) {
	m.log.Info("Querying snapshot metadata", "snapshot", name)
	snap, err := m.client.LookupSnapshot(ctx, job.locationArgs, job.env, name)
	if err != nil {
		return "", err
	}

	snapTime, err := snap.ParsedTime()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.TypeExternal,
			"snapshot carries an unparseable timestamp", "")
	}

	fileName := FileName(job.shortName, snapTime, snap.ShortID, job.algo, job.encrypt)
	stagingFile := filepath.Join(job.stagingDir, fileName)
	destFile := filepath.Join(job.destDir, fileName)

	// Archives are never overwritten implicitly, and the check runs
	// before any external process is launched.
	if _, err := os.Stat(stagingFile); err == nil {
		return "", apperrors.Newf(apperrors.TypeResource,
			"archive already exists at %q", stagingFile)
	}
	if _, err := os.Stat(destFile); err == nil {
		return "", apperrors.Newf(apperrors.TypeResource,
			"final archive already exists at %q", destFile)
	}

	m.log.Info("Using snapshot", "id", snap.ShortID, "time", snapTime.Format(time.RFC3339))

	size, err := m.client.SnapshotSize(ctx, job.locationArgs, job.env, snap.ID)
	if err != nil {
		return "", err
	}
	m.log.Info("Archive should be no larger than (approx.)", "size", humanize.IBytes(uint64(size)))

	// Best-effort guard: the true compressed size differs, but the
	// uncompressed estimate bounds the dump stage's needs.
	if err := m.checkFreeSpace(job.stagingDir, size); err != nil {
		return "", err
	}
	if err := m.checkFreeSpace(job.destDir, size); err != nil {
		return "", err
	}

	m.log.Info("Creating archive", "file", fileName, "native_codec", job.native)
	if job.native {
		err = m.dumpNative(ctx, job, snap.ID, size, stagingFile)
	} else {
		err = m.dumpExternal(ctx, job, snap.ID, size, stagingFile)
	}
	if err != nil {
		// A half-written staging file is useless; remove it so a retry
		// does not trip the overwrite guard.
		os.Remove(stagingFile)
		return "", err
	}

	if job.cacheEnabled && stagingFile != destFile {
		m.log.Info("Moving archive to final destination", "to", destFile)
		if err := m.meteredCopy(stagingFile, destFile); err != nil {
			// The staged copy is kept for manual recovery.
			return "", apperrors.Wrap(err, apperrors.TypeResource,
				"failed to copy archive to destination; staged copy retained at "+stagingFile, "")
		}
		os.Remove(stagingFile)
	}

	m.log.Info("Archive complete", "file", destFile)
	return destFile, nil
}

// dumpExternal composes the external process pipeline:
// restic dump | pv | compressor [| openssl] > staging file.
func (m *Manager) dumpExternal(ctx context.Context, job archiveJob, snapshotID string, size int64, stagingFile string) error {
	dumpArgs := append(append([]string{}, job.locationArgs...), "dump", snapshotID, "/")
	compName, compArgs := compress.ExternalCompress(job.algo)

	stages := []pipeline.Stage{
		{Name: "dump", Path: restic.Binary, Args: dumpArgs, Env: job.env},
		{Name: "meter", Path: "pv", Args: []string{"-pterbs", strconv.FormatInt(size, 10)}},
		{Name: "compress", Path: compName, Args: compArgs},
	}
	if job.encrypt {
		stages = append(stages, pipeline.Stage{
			Name: "encrypt",
			Path: "openssl",
			Args: crypto.OpenSSLArgs(job.passwordFile, false),
		})
	}

	sink, err := os.OpenFile(stagingFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource,
			"cannot create staging file "+stagingFile, "")
	}
	defer sink.Close()

	p := pipeline.New(m.log, stages...)
	p.SetSink(sink)
	return p.Run(ctx)
}

// dumpNative runs restic dump as the only external process and performs
// metering, compression and encryption in-process, for hosts without
// pv/zstd/openssl.
func (m *Manager) dumpNative(ctx context.Context, job archiveJob, snapshotID string, size int64, stagingFile string) error {
	sink, err := os.OpenFile(stagingFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource,
			"cannot create staging file "+stagingFile, "")
	}
	defer sink.Close()

	var out io.Writer = sink
	var encrypter *crypto.EncryptWriter
	if job.encrypt {
		password, err := crypto.ReadPasswordFile(job.passwordFile)
		if err != nil {
			return err
		}
		if encrypter, err = crypto.NewEncryptWriter(sink, password); err != nil {
			return err
		}
		out = encrypter
	}

	compressor, err := compress.NewWriter(out, job.algo)
	if err != nil {
		return err
	}

	dumpArgs := append(append([]string{}, job.locationArgs...), "dump", snapshotID, "/")
	cmd := exec.CommandContext(ctx, restic.Binary, dumpArgs...)
	cmd.Env = job.env
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeInternal, "cannot pipe restic dump", "")
	}
	if err := cmd.Start(); err != nil {
		return apperrors.Wrap(err, apperrors.TypeExternal,
			"failed to start restic dump", "is restic installed and on PATH?")
	}

	container := newProgressContainer()
	bar := addTransferBar(container, "dump", size)
	_, copyErr := io.Copy(compressor, &progressReader{r: stdout, bar: bar})
	if bar != nil {
		bar.SetTotal(-1, true)
	}
	container.Wait()

	waitErr := cmd.Wait()
	if copyErr != nil {
		return apperrors.Wrap(copyErr, apperrors.TypeResource, "archive write failed", "")
	}
	if waitErr != nil {
		code := 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return apperrors.External(fmt.Sprintf("restic dump exited with code %d", code), code)
	}

	if err := compressor.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource, "finalizing compression failed", "")
	}
	if encrypter != nil {
		if err := encrypter.Close(); err != nil {
			return apperrors.Wrap(err, apperrors.TypeResource, "finalizing encryption failed", "")
		}
	}
	return sink.Sync()
}

func (m *Manager) meteredCopy(from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return err
	}
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}

	container := newProgressContainer()
	bar := addTransferBar(container, "copy", info.Size())
	_, copyErr := io.Copy(dst, &progressReader{r: src, bar: bar})
	container.Wait()

	if closeErr := dst.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(to)
	}
	return copyErr
}

func (m *Manager) upload(ctx context.Context, target, destFile string, allowInsecure bool) error {
	up, err := storage.ForURL(target, storage.Options{
		AllowInsecure: allowInsecure,
		Log:           m.log,
	})
	if err != nil {
		return err
	}
	remote, err := up.Upload(ctx, destFile)
	if err != nil {
		return err
	}
	m.log.Info("Archive uploaded", "file", filepath.Base(destFile), "remote", remote)
	return nil
}

func (m *Manager) checkFreeSpace(dir string, need int64) error {
	free, err := m.diskFree(dir)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource,
			"cannot determine free space at "+dir, "")
	}
	if free < uint64(need) {
		return apperrors.Newf(apperrors.TypeResource,
			"archive needs at least %s but %q only has %s free (short by %s)",
			humanize.IBytes(uint64(need)), dir, humanize.IBytes(free),
			humanize.IBytes(uint64(need)-free))
	}
	return nil
}

func (m *Manager) externalToolsAvailable(encrypt bool, algo compress.Algorithm) bool {
	compName, _ := compress.ExternalCompress(algo)
	tools := []string{"pv", compName}
	if encrypt {
		tools = append(tools, "openssl")
	}
	for _, tool := range tools {
		if _, err := m.lookPath(tool); err != nil {
			m.log.Warn("External tool not found, falling back to built-in codec", "tool", tool)
			return false
		}
	}
	return true
}

// FileName computes the deterministic archive file name:
// {short name}_{YYYYMMDDHHMMSS}_{short snapshot id}.tar{.zst|.lz4|.gz}[.aes]
func FileName(shortName string, t time.Time, shortID string, algo compress.Algorithm, encrypted bool) string {
	name := fmt.Sprintf("%s_%s_%s.tar%s",
		shortName, t.Format("20060102150405"), shortID, compress.Extension(algo))
	if encrypted {
		name += ".aes"
	}
	return name
}

func diskFree(dir string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
