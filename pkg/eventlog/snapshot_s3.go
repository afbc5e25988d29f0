package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3SnapshotConfig configures the S3 snapshot backend, used to upload
// support bundles to a central bucket.
type S3SnapshotConfig struct {
	// Bucket is the S3 bucket for storing snapshots.
	Bucket string

	// Prefix is prepended to all snapshot keys (e.g. "snapshots/").
	Prefix string

	// Region is the AWS region.
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible
	// services).
	Endpoint string

	// Credentials (optional, uses the default chain if not provided).
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// UsePathStyle forces path-style addressing (MinIO, LocalStack).
	UsePathStyle bool

	// Timeout for S3 operations.
	Timeout time.Duration
}

// DefaultS3SnapshotConfig returns sensible defaults.
func DefaultS3SnapshotConfig(bucket string) S3SnapshotConfig {
	return S3SnapshotConfig{
		Bucket:  bucket,
		Prefix:  "snapshots/",
		Timeout: 30 * time.Second,
	}
}

// S3SnapshotBackend stores snapshots in S3.
type S3SnapshotBackend struct {
	cfg    S3SnapshotConfig
	client *s3.Client
}

// NewS3SnapshotBackend creates a new S3 snapshot backend.
func NewS3SnapshotBackend(ctx context.Context, cfg S3SnapshotConfig) (*S3SnapshotBackend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3SnapshotBackend{cfg: cfg, client: client}, nil
}

// Name returns the backend name.
func (b *S3SnapshotBackend) Name() string { return "s3" }

// Close is a no-op.
func (b *S3SnapshotBackend) Close() error { return nil }

func (b *S3SnapshotBackend) key(sessionID string) string {
	return b.cfg.Prefix + sessionID + ".json"
}

// Save uploads the snapshot.
func (b *S3SnapshotBackend) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.cfg.Bucket),
		Key:         aws.String(b.key(snap.SessionID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return nil
}

// Load downloads the snapshot for a session.
func (b *S3SnapshotBackend) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(sessionID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to download snapshot: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot body: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Cleanup removes all but the retain most-recently-modified snapshot
// objects under the prefix.
func (b *S3SnapshotBackend) Cleanup(ctx context.Context, retain int) (int, error) {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.cfg.Bucket),
		Prefix: aws.String(b.cfg.Prefix + "boot_"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	objects := out.Contents
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(*objects[j].LastModified)
	})

	removed := 0
	for _, obj := range objects[min(retain, len(objects)):] {
		key := aws.ToString(obj.Key)
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.cfg.Bucket),
			Key:    obj.Key,
		})
		if err == nil {
			removed++
		}
	}
	return removed, nil
}
