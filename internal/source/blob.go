package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // gs:// driver
	_ "gocloud.dev/blob/s3blob"  // s3:// driver

	"github.com/beamlinehq/hitwriter/internal/logging"
	"github.com/beamlinehq/hitwriter/internal/record"
)

// BlobSource reads event captures from a cloud bucket via gocloud. GCS uses
// Application Default Credentials; S3 uses the AWS SDK credential chain.
type BlobSource struct {
	bucket  *blob.Bucket
	url     string
	prefix  string
	decoder *Decoder
}

// NewBlobSource opens a bucket URL such as gs://captures or s3://captures.
func NewBlobSource(ctx context.Context, bucketURL, prefix string) (*BlobSource, error) {
	if !strings.HasPrefix(bucketURL, "gs://") && !strings.HasPrefix(bucketURL, "s3://") {
		return nil, fmt.Errorf("unsupported bucket URL %q", bucketURL)
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}

	decoder, err := NewDecoder()
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &BlobSource{
		bucket:  bucket,
		url:     bucketURL,
		prefix:  prefix,
		decoder: decoder,
	}, nil
}

// Stream implements HitSource.
func (s *BlobSource) Stream(ctx context.Context) (<-chan *record.EventBundle, <-chan error) {
	bundleCh := make(chan *record.EventBundle, 64)
	errCh := make(chan error, 1)

	logger := logging.Component("source.blob")

	go func() {
		defer close(bundleCh)
		defer close(errCh)

		index, err := s.buildIndex(ctx)
		if err != nil {
			errCh <- fmt.Errorf("index captures: %w", err)
			return
		}
		logger.Info("indexed capture objects",
			"count", index.Count(),
			"bucket", s.url,
			"prefix", s.prefix)
		if index.Count() == 0 {
			errCh <- fmt.Errorf("no capture objects under %s%s", s.url, s.prefix)
			return
		}

		for _, file := range index.Files() {
			data, err := s.readObject(ctx, file.Path)
			if err != nil {
				errCh <- fmt.Errorf("read capture %s: %w", file.Path, err)
				return
			}
			bundle, err := s.decoder.Decode(data, file.Compressed)
			if err != nil {
				errCh <- fmt.Errorf("decode capture %s: %w", file.Path, err)
				return
			}
			select {
			case bundleCh <- bundle:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return bundleCh, errCh
}

func (s *BlobSource) buildIndex(ctx context.Context) (*CaptureIndex, error) {
	index := NewCaptureIndex()
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		if obj.IsDir {
			continue
		}
		index.Add(obj.Key)
	}
	index.Sort()
	return index, nil
}

func (s *BlobSource) readObject(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close releases the bucket handle and decoder.
func (s *BlobSource) Close() error {
	s.decoder.Close()
	return s.bucket.Close()
}
