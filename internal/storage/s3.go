package storage

import (
	"context"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/spgill/sbackup/internal/errors"
	"github.com/spgill/sbackup/internal/logger"
)

// s3Uploader targets any S3-compatible endpoint:
// s3://KEY:SECRET@endpoint/bucket/prefix?ssl=false
// Credentials fall back to AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY.
type s3Uploader struct {
	client *minio.Client
	bucket string
	prefix string
	host   string
	log    *logger.Logger
}

func newS3Uploader(u *url.URL, opts Options) (*s3Uploader, error) {
	accessKey := u.User.Username()
	secretKey, _ := u.User.Password()
	if accessKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if accessKey == "" {
		return nil, apperrors.New(apperrors.TypeConfig,
			"no credentials for S3 upload target",
			"embed them in the URL or set AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY")
	}

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if parts[0] == "" {
		return nil, apperrors.New(apperrors.TypeValidation,
			"S3 upload target is missing a bucket", "use s3://endpoint/bucket[/prefix]")
	}
	bucket := parts[0]
	prefix := ""
	if len(parts) == 2 {
		prefix = parts[1]
	}

	secure := u.Query().Get("ssl") != "false"
	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConnection,
			"cannot reach S3 endpoint "+u.Host, "")
	}

	return &s3Uploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
		host:   u.Host,
		log:    opts.Log,
	}, nil
}

func (s *s3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	object := path.Join(s.prefix, path.Base(localPath))
	s.log.Info("Uploading archive to S3", "endpoint", s.host, "bucket", s.bucket, "object", object)

	_, err := s.client.FPutObject(ctx, s.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.TypeExternal,
			"S3 upload failed", "")
	}
	return "s3://" + s.host + "/" + s.bucket + "/" + object, nil
}
