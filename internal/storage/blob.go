package storage

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // gs:// driver
	_ "gocloud.dev/blob/s3blob"  // s3:// driver
	"gocloud.dev/gcerrors"
)

// BlobStore publishes run artifacts to a cloud bucket via gocloud.
type BlobStore struct {
	bucket *blob.Bucket
	scheme string
	name   string
	prefix string
}

// NewGCSStore opens a Google Cloud Storage bucket using Application Default
// Credentials.
func NewGCSStore(ctx context.Context, bucketName, prefix string) (*BlobStore, error) {
	return newBlobStore(ctx, "gs", bucketName, prefix)
}

// NewS3Store opens an S3 bucket using the AWS SDK credential chain.
func NewS3Store(ctx context.Context, bucketName, prefix string) (*BlobStore, error) {
	return newBlobStore(ctx, "s3", bucketName, prefix)
}

func newBlobStore(ctx context.Context, scheme, bucketName, prefix string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("%s://%s", scheme, bucketName))
	if err != nil {
		return nil, fmt.Errorf("open %s bucket %s: %w", scheme, bucketName, err)
	}
	return &BlobStore{
		bucket: bucket,
		scheme: scheme,
		name:   bucketName,
		prefix: prefix,
	}, nil
}

// WriteArtifact uploads one artifact. Object writes in both backends become
// visible only on a successful Close, which is the atomicity we need.
func (s *BlobStore) WriteArtifact(ctx context.Context, ref RunRef, name string, data []byte) error {
	return s.write(ctx, ref.ArtifactPath(s.prefix, name), data)
}

// WriteManifest uploads the run manifest.
func (s *BlobStore) WriteManifest(ctx context.Context, ref RunRef, manifest *Manifest) error {
	data, err := manifest.Encode()
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return s.write(ctx, ref.ManifestPath(s.prefix), data)
}

func (s *BlobStore) write(ctx context.Context, key string, data []byte) error {
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

// Exists reports whether the run's manifest object is present.
func (s *BlobStore) Exists(ctx context.Context, ref RunRef) (bool, error) {
	exists, err := s.bucket.Exists(ctx, ref.ManifestPath(s.prefix))
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return false, nil
	}
	return exists, err
}

// URI returns the canonical bucket URI for a storage key.
func (s *BlobStore) URI(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.scheme, s.name, key)
}

// Close releases the bucket handle.
func (s *BlobStore) Close() error {
	return s.bucket.Close()
}
