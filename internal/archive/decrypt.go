package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spgill/sbackup/internal/compress"
	"github.com/spgill/sbackup/internal/config"
	"github.com/spgill/sbackup/internal/crypto"
	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/pipeline"
)

// DecryptOptions selects the archive to decrypt and how its plaintext
// is produced.
type DecryptOptions struct {
	Input        string
	PasswordFile string

	// Builtin decrypts in-process instead of shelling out to openssl
	// and the external decompressor.
	Builtin bool

	Output io.Writer
}

// Decrypt reverses an encrypted archive back into a plain tar stream
// written to opts.Output.
func (m *Manager) Decrypt(ctx context.Context, opts DecryptOptions) error {
	inputPath, err := config.AbsPath(opts.Input, true)
	if err != nil {
		return err
	}

	passwordFile := opts.PasswordFile
	if passwordFile == "" && m.cfg.Archive != nil {
		passwordFile = m.cfg.Archive.PasswordFile
	}
	if passwordFile == "" {
		return apperrors.New(apperrors.TypeSecurity,
			"no password available to decrypt the archive",
			"pass --password or set archive.password_file in the config")
	}
	if passwordFile, err = config.AbsPath(passwordFile, true); err != nil {
		return err
	}

	algo := algorithmFromName(inputPath)

	input, err := os.Open(inputPath)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource,
			"cannot open archive "+inputPath, "")
	}
	defer input.Close()

	m.log.Info("Decrypting archive",
		"file", filepath.Base(inputPath),
		"compression", string(algo),
		"builtin", opts.Builtin)

	if opts.Builtin || !m.externalToolsAvailable(true, algo) {
		return m.decryptBuiltin(input, passwordFile, opts.Output)
	}
	return m.decryptExternal(ctx, input, passwordFile, algo, opts.Output)
}

// decryptExternal composes openssl -d | decompressor with the archive
// on stdin and the plaintext on the sink.
func (m *Manager) decryptExternal(ctx context.Context, input io.Reader, passwordFile string, algo compress.Algorithm, out io.Writer) error {
	decompName, decompArgs := compress.ExternalDecompress(algo)
	p := pipeline.New(m.log,
		pipeline.Stage{Name: "decrypt", Path: "openssl", Args: crypto.OpenSSLArgs(passwordFile, true)},
		pipeline.Stage{Name: "decompress", Path: decompName, Args: decompArgs},
	)
	p.SetSource(input)
	p.SetSink(out)
	return p.Run(ctx)
}

func (m *Manager) decryptBuiltin(input io.Reader, passwordFile string, out io.Writer) error {
	password, err := crypto.ReadPasswordFile(passwordFile)
	if err != nil {
		return err
	}
	plain, err := crypto.NewDecryptReader(input, password)
	if err != nil {
		return err
	}
	decomp, algo, err := compress.DetectReader(plain)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeSecurity,
			"decrypted stream is not a recognized archive",
			"was the archive encrypted with a different password?")
	}
	defer decomp.Close()
	m.log.Debug("Detected compression", "algorithm", string(algo))

	if _, err := io.Copy(out, decomp); err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource, "decrypt failed", "")
	}
	return nil
}

// algorithmFromName infers the compression algorithm from the archive
// file name, falling back to the default when the extension is foreign.
func algorithmFromName(path string) compress.Algorithm {
	name := strings.TrimSuffix(filepath.Base(path), ".aes")
	switch {
	case strings.HasSuffix(name, ".lz4"):
		return compress.Lz4
	case strings.HasSuffix(name, ".gz"):
		return compress.Gzip
	default:
		return compress.Default
	}
}
