package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ErrNotFound is returned by a Store when the key does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store is a remote location for prebuilt archives.
type Store interface {
	// Fetch downloads key into dest.
	Fetch(ctx context.Context, key, dest string) error
	// Publish uploads src under key.
	Publish(ctx context.Context, key, src string) error
}

type S3Options struct {
	Bucket          string
	Endpoint        string // S3-compatible endpoint; empty means AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	Debug           bool
}

// S3Store keeps prebuilts in an S3-compatible bucket.
type S3Store struct {
	Client *s3.Client
	Bucket string
	Prefix string
	// Progress renders a download bar on stderr when it is a terminal.
	Progress bool
}

func NewS3Store(ctx context.Context, opt S3Options) (*S3Store, error) {
	if opt.Bucket == "" {
		return nil, fmt.Errorf("remote store bucket is not configured")
	}
	region := opt.Region
	if region == "" {
		region = "auto"
	}

	options := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if opt.AccessKeyID != "" || opt.SecretAccessKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opt.AccessKeyID, opt.SecretAccessKey, "")))
	}
	if opt.Debug {
		options = append(options, config.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load remote store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		Client:   client,
		Bucket:   opt.Bucket,
		Prefix:   strings.Trim(opt.Prefix, "/"),
		Progress: true,
	}, nil
}

func (s *S3Store) key(name string) string {
	if s.Prefix == "" {
		return name
	}
	return path.Join(s.Prefix, name)
}

func (s *S3Store) Fetch(ctx context.Context, key, dest string) error {
	output, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to fetch %s: %w", s.key(key), err)
	}
	defer output.Body.Close()

	size := int64(-1)
	if output.ContentLength != nil {
		size = *output.ContentLength
	}
	return writeDownload(output.Body, dest, size, key, s.Progress)
}

func (s *S3Store) Publish(ctx context.Context, key, src string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(s.key(key)),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", s.key(key), err)
	}
	return nil
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(key, ".xz"):
		return "application/x-xz"
	case strings.HasSuffix(key, ".gz"):
		return "application/gzip"
	}
	return "application/octet-stream"
}

// writeDownload streams body into dest through a temporary file, showing a
// progress bar when stderr is a terminal.
func writeDownload(body io.Reader, dest string, size int64, label string, progress bool) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	var w io.Writer = out
	if progress && term.IsTerminal(int(os.Stderr.Fd())) {
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(label),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		w = io.MultiWriter(out, bar)
	}

	if _, err = io.Copy(w, body); err != nil {
		return fmt.Errorf("failed to download %s: %w", label, err)
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
