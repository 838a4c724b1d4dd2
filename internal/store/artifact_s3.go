package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3ArtifactStore implements ArtifactStore against any S3-compatible object
// store. Objects use the same run_{id}_{slug}/ layout as the local store.
type S3ArtifactStore struct {
	client *minio.Client
	bucket string
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewS3ArtifactStore(ctx context.Context, cfg S3Config) (*S3ArtifactStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket: %w", err)
		}
	}

	return &S3ArtifactStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3ArtifactStore) WriteArticle(ctx context.Context, runID int64, topic string, version int, content string) (string, error) {
	return s.put(ctx, runID, topic, fmt.Sprintf("article_v%d.md", version), []byte(content), "text/markdown")
}

func (s *S3ArtifactStore) ReadArticle(ctx context.Context, runID int64, topic string, version int) (string, error) {
	key := path.Join(runDirName(runID, topic), fmt.Sprintf("article_v%d.md", version))

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("getting article: %w", err)
	}
	defer obj.Close()

	content, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", ErrArtifactNotFound
		}
		return "", fmt.Errorf("reading article: %w", err)
	}
	return string(content), nil
}

func (s *S3ArtifactStore) WriteFeedback(ctx context.Context, runID int64, topic, role string, version int, payload []byte) (string, error) {
	return s.put(ctx, runID, topic, fmt.Sprintf("%s_feedback_v%d.json", role, version), payload, "application/json")
}

func (s *S3ArtifactStore) WriteFinal(ctx context.Context, runID int64, topic, filename, content string) (string, error) {
	contentType := "text/markdown"
	if strings.HasSuffix(filename, ".html") {
		contentType = "text/html"
	}
	return s.put(ctx, runID, topic, filename, []byte(content), contentType)
}

func (s *S3ArtifactStore) ListVersions(ctx context.Context, runID int64, topic string) ([]int, error) {
	prefix := runDirName(runID, topic) + "/"

	var versions []int
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing artifacts: %w", obj.Err)
		}
		m := articleFilePattern.FindStringSubmatch(path.Base(obj.Key))
		if m == nil {
			continue
		}
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		versions = append(versions, n)
	}
	sort.Ints(versions)
	return versions, nil
}

func (s *S3ArtifactStore) put(ctx context.Context, runID int64, topic, filename string, content []byte, contentType string) (string, error) {
	if len(content) > MaxArtifactSize {
		return "", ErrArtifactTooLarge
	}
	if len(content) == 0 {
		return "", fmt.Errorf("artifact content cannot be empty")
	}

	if err := validateArtifactPath(filename); err != nil {
		return "", err
	}

	key := path.Join(runDirName(runID, topic), filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("putting artifact: %w", err)
	}

	return key, nil
}
