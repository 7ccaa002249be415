// Package s3storage implements remote.Store on top of a MinIO (or any S3
// compatible) bucket using minio-go.
//
// Every remote file is one object keyed <prefix><id>. Ids are time-ordered
// uuids, so the bucket's lexicographic listing is also creation order. The
// file name and properties travel as user metadata.
package s3storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/Waypoint/internal/config"
	"github.com/dharsanguruparan/Waypoint/internal/model"
	"github.com/dharsanguruparan/Waypoint/internal/remote"
)

const contentType = "application/octet-stream"

// objectAPI is the part of *minio.Client the store needs.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error)
}

// minioClient narrows GetObject's concrete return type so fakes can satisfy
// objectAPI.
type minioClient struct {
	*minio.Client
}

func (c minioClient) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := c.Client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Storage is a remote.Store backed by one bucket.
type Storage struct {
	client objectAPI
	bucket string
	prefix string
	region string
	now    func() time.Time
}

var _ remote.Store = (*Storage)(nil)

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return newStorage(minioClient{client}, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region), nil
}

func newStorage(client objectAPI, bucket, prefix, region string) *Storage {
	return &Storage{
		client: client,
		bucket: bucket,
		prefix: prefix,
		region: region,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EnsureBucket makes sure the backup bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// List returns every file under the prefix, earliest created first.
func (s *Storage) List(ctx context.Context) ([]model.RemoteFile, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)

	files := make([]model.RemoteFile, 0, len(keys))
	for _, key := range keys {
		info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("stat object %s: %w", key, err)
		}
		files = append(files, s.toFile(info))
	}
	return files, nil
}

// Create uploads content as a new object.
func (s *Storage) Create(ctx context.Context, meta model.FileMetadata, content []byte) (model.RemoteFile, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("generate object id: %w", err)
	}
	return s.put(ctx, id.String(), meta.Name, meta.Properties, content)
}

// Update overwrites the object behind file.ID. The stored name is kept; a nil
// props keeps the stored properties.
func (s *Storage) Update(ctx context.Context, file model.RemoteFile, content []byte, props model.Properties) (model.RemoteFile, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(file.ID), minio.StatObjectOptions{})
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("stat object %s: %w", file.ID, mapError(err))
	}
	current := s.toFile(info)
	if props == nil {
		props = current.Properties
	}
	return s.put(ctx, file.ID, current.Name, props, content)
}

// Download fetches the object bytes.
func (s *Storage) Download(ctx context.Context, id string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", id, mapError(err))
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", id, mapError(err))
	}
	return buf, nil
}

func (s *Storage) put(ctx context.Context, id, name string, props model.Properties, content []byte) (model.RemoteFile, error) {
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: remote.EncodeMetadata(name, props),
	}
	info, err := s.client.PutObject(ctx, s.bucket, s.key(id), bytes.NewReader(content), int64(len(content)), opts)
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("upload object %s: %w", name, err)
	}
	modified := info.LastModified
	if modified.IsZero() {
		modified = s.now()
	}
	return model.RemoteFile{
		ID:         id,
		Name:       name,
		Properties: props.Clone(),
		Size:       int64(len(content)),
		Modified:   modified,
	}, nil
}

func (s *Storage) key(id string) string {
	return s.prefix + id
}

func (s *Storage) toFile(info minio.ObjectInfo) model.RemoteFile {
	name, props := remote.DecodeMetadata(info.UserMetadata)
	return model.RemoteFile{
		ID:         strings.TrimPrefix(info.Key, s.prefix),
		Name:       name,
		Properties: props,
		Size:       info.Size,
		Modified:   info.LastModified.UTC(),
	}
}

// mapError translates missing-object responses into remote.ErrNotFound.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.Join(remote.ErrNotFound, err)
	}
	return err
}
