// Package storage offloads finished archive files to remote targets.
// The snapshot engine owns its own repositories; this only ships the
// standalone .tar.zst[.aes] artifacts the archive operation produces.
package storage

import (
	"context"
	"net/url"

	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/logger"
)

// Uploader ships one local file to a remote target and returns the
// remote address of the stored copy.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

type Options struct {
	// AllowInsecure permits plaintext protocols (FTP).
	AllowInsecure bool
	Log           *logger.Logger
}

// ForURL picks an uploader by URL scheme: s3://, sftp:// or ftp://.
func ForURL(raw string, opts Options) (Uploader, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeValidation,
			"invalid upload target "+raw, "")
	}

	switch u.Scheme {
	case "s3":
		return newS3Uploader(u, opts)
	case "sftp":
		return newSFTPUploader(u, opts)
	case "ftp":
		return newFTPUploader(u, opts)
	default:
		return nil, apperrors.New(apperrors.TypeValidation,
			"unsupported upload scheme "+u.Scheme,
			"supported schemes are s3://, sftp:// and ftp://")
	}
}
