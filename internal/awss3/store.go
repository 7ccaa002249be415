// Package awss3 implements remote.Store with the AWS SDK for Go v2. It talks
// to Amazon S3 or to any endpoint speaking the S3 API (path-style addressing
// is enabled when a custom endpoint is configured).
package awss3

import (
	"bytes"
	"context"
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
	"github.com/google/uuid"

	"github.com/dharsanguruparan/Waypoint/internal/config"
	"github.com/dharsanguruparan/Waypoint/internal/model"
	"github.com/dharsanguruparan/Waypoint/internal/remote"
)

// API is the subset of *s3.Client the store calls.
type API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store keeps each remote file as one object keyed <prefix><id>.
type Store struct {
	api    API
	bucket string
	prefix string
	now    func() time.Time
}

var _ remote.Store = (*Store)(nil)

// New builds an S3 client from cfg. Static credentials are used when an
// access key is configured; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.S3Endpoint, cfg.S3UseSSL))
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, bucket, prefix string) *Store {
	return &Store{
		api:    api,
		bucket: bucket,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List pages through the prefix and heads every object for its metadata.
func (s *Store) List(ctx context.Context) ([]model.RemoteFile, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)

	files := make([]model.RemoteFile, 0, len(keys))
	for _, key := range keys {
		f, err := s.head(ctx, key)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// Create uploads content under a new time-ordered id.
func (s *Store) Create(ctx context.Context, meta model.FileMetadata, content []byte) (model.RemoteFile, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("generate object id: %w", err)
	}
	return s.put(ctx, id.String(), meta.Name, meta.Properties, content)
}

// Update overwrites an existing object, keeping its name and, when props is
// nil, its properties.
func (s *Store) Update(ctx context.Context, file model.RemoteFile, content []byte, props model.Properties) (model.RemoteFile, error) {
	current, err := s.head(ctx, s.key(file.ID))
	if err != nil {
		return model.RemoteFile{}, err
	}
	if props == nil {
		props = current.Properties
	}
	return s.put(ctx, file.ID, current.Name, props, content)
}

// Download reads the whole object.
func (s *Store) Download(ctx context.Context, id string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", id, mapError(err))
	}
	defer out.Body.Close()
	buf, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", id, err)
	}
	return buf, nil
}

func (s *Store) head(ctx context.Context, key string) (model.RemoteFile, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("head object %s: %w", key, mapError(err))
	}
	name, props := remote.DecodeMetadata(out.Metadata)
	return model.RemoteFile{
		ID:         strings.TrimPrefix(key, s.prefix),
		Name:       name,
		Properties: props,
		Size:       aws.ToInt64(out.ContentLength),
		Modified:   aws.ToTime(out.LastModified).UTC(),
	}, nil
}

func (s *Store) put(ctx context.Context, id, name string, props model.Properties, content []byte) (model.RemoteFile, error) {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(id)),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata:      remote.EncodeMetadata(name, props),
	})
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("put object %s: %w", name, err)
	}
	return model.RemoteFile{
		ID:         id,
		Name:       name,
		Properties: props.Clone(),
		Size:       int64(len(content)),
		Modified:   s.now(),
	}, nil
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func mapError(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return errors.Join(remote.ErrNotFound, err)
	}
	return err
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
