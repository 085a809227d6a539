package profile

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"
)

// objectGetter is the slice of the S3 API the resolver needs
type objectGetter interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
}

// ResumeResolver turns a resume reference into a local file path. References are either a
// filesystem path or an s3://bucket/key URL, which is downloaded once into the cache dir.
type ResumeResolver struct {
	region   string
	cacheDir string
	client   objectGetter
	logger   *zap.Logger
}

// NewResumeResolver creates a resolver. An empty cacheDir uses the OS temp directory.
func NewResumeResolver(region, cacheDir string, logger *zap.Logger) *ResumeResolver {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "applypilot-resumes")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResumeResolver{region: region, cacheDir: cacheDir, logger: logger.Named("resume")}
}

// Resolve returns an absolute local path for ref. An empty ref resolves to "".
func (r *ResumeResolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	if strings.HasPrefix(ref, "s3://") {
		return r.download(ctx, ref)
	}

	path, err := filepath.Abs(ref)
	if err != nil {
		return "", fmt.Errorf("failed to resolve resume path: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("resume not found: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("resume path %s is a directory", path)
	}
	return path, nil
}

func (r *ResumeResolver) download(ctx context.Context, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid resume url %q: %w", ref, err)
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", fmt.Errorf("resume url %q must look like s3://bucket/key", ref)
	}

	local := filepath.Join(r.cacheDir, bucket, filepath.FromSlash(key))
	if _, err := os.Stat(local); err == nil {
		r.logger.Debug("using cached resume", zap.String("path", local))
		return local, nil
	}

	client, err := r.s3Client()
	if err != nil {
		return "", err
	}

	out, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to download resume from S3: %w", err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("failed to create resume cache: %w", err)
	}
	tmp := local + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create resume file: %w", err)
	}
	n, err := io.Copy(f, out.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write resume: %w", err)
	}
	if err := os.Rename(tmp, local); err != nil {
		return "", fmt.Errorf("failed to finalize resume: %w", err)
	}

	r.logger.Info("downloaded resume",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int64("bytes", n))
	return local, nil
}

func (r *ResumeResolver) s3Client() (objectGetter, error) {
	if r.client != nil {
		return r.client, nil
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(r.region)})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	r.client = s3.New(sess)
	return r.client, nil
}
