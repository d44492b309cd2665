package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/objectstage/batch-api/internal/config"
	"github.com/objectstage/batch-api/internal/domain/object"
	"github.com/objectstage/batch-api/internal/infrastructure/awsconn"
	"github.com/objectstage/batch-api/internal/infrastructure/metrics"
)

// S3ObjectStore implements object.Store against one S3 bucket.
type S3ObjectStore struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

func NewS3ObjectStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*S3ObjectStore, error) {
	awsCfg, err := awsconn.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UseAccelerate = cfg.UseS3Acceleration
		o.UsePathStyle = cfg.S3UsePathStyle
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})

	return &S3ObjectStore{
		client: client,
		bucket: cfg.AWSBucket,
		log:    log.With().Str("component", "s3-object-store").Logger(),
	}, nil
}

// Head fetches object metadata, returning (nil, nil) when the key is absent.
func (s *S3ObjectStore) Head(ctx context.Context, key string) (*object.Metadata, error) {
	start := time.Now()
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			metrics.RecordS3Operation("head", "not_found", time.Since(start).Seconds())
			return nil, nil
		}
		metrics.RecordS3Operation("head", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("head object %s: %w", key, err)
	}
	metrics.RecordS3Operation("head", "success", time.Since(start).Seconds())

	return &object.Metadata{
		Key:           key,
		ETag:          trimETag(aws.ToString(out.ETag)),
		ContentLength: aws.ToInt64(out.ContentLength),
		ContentType:   aws.ToString(out.ContentType),
		UserMetadata:  out.Metadata,
	}, nil
}

// Copy performs a single-shot server-side copy and returns the metadata of
// the destination object.
func (s *S3ObjectStore) Copy(ctx context.Context, srcKey, dstKey string) (*object.Metadata, error) {
	start := time.Now()
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(s.copySource(srcKey)),
	})
	if err != nil {
		metrics.RecordS3Operation("copy", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("copy object %s to %s: %w", srcKey, dstKey, err)
	}
	metrics.RecordS3Operation("copy", "success", time.Since(start).Seconds())

	meta, err := s.Head(ctx, dstKey)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("copied object %s not found", dstKey)
	}
	return meta, nil
}

func (s *S3ObjectStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordS3Operation("delete", "error", time.Since(start).Seconds())
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	metrics.RecordS3Operation("delete", "success", time.Since(start).Seconds())
	return nil
}

func (s *S3ObjectStore) CreateMultipartCopy(ctx context.Context, dstKey string) (string, error) {
	start := time.Now()
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(dstKey),
	})
	if err != nil {
		metrics.RecordS3Operation("create_multipart", "error", time.Since(start).Seconds())
		return "", fmt.Errorf("create multipart upload for %s: %w", dstKey, err)
	}
	metrics.RecordS3Operation("create_multipart", "success", time.Since(start).Seconds())
	return aws.ToString(out.UploadId), nil
}

func (s *S3ObjectStore) CopyPart(ctx context.Context, uploadID, srcKey, dstKey string, partNumber int32, first, last int64) (object.CompletedPart, error) {
	start := time.Now()
	out, err := s.client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(dstKey),
		UploadId:        aws.String(uploadID),
		PartNumber:      aws.Int32(partNumber),
		CopySource:      aws.String(s.copySource(srcKey)),
		CopySourceRange: aws.String(fmt.Sprintf("bytes=%d-%d", first, last)),
	})
	if err != nil {
		metrics.RecordS3Operation("copy_part", "error", time.Since(start).Seconds())
		return object.CompletedPart{}, fmt.Errorf("copy part %d of %s: %w", partNumber, srcKey, err)
	}
	metrics.RecordS3Operation("copy_part", "success", time.Since(start).Seconds())

	return object.CompletedPart{
		PartNumber: partNumber,
		ETag:       aws.ToString(out.CopyPartResult.ETag),
	}, nil
}

// CompleteMultipartCopy stitches the copied parts together. The backend
// rejects completions with unsorted or missing part numbers, so parts are
// ordered here before submission.
func (s *S3ObjectStore) CompleteMultipartCopy(ctx context.Context, uploadID, dstKey string, parts []object.CompletedPart) (*object.Metadata, error) {
	sorted := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		sorted[i] = types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return aws.ToInt32(sorted[i].PartNumber) < aws.ToInt32(sorted[j].PartNumber)
	})

	start := time.Now()
	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(dstKey),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: sorted},
	})
	if err != nil {
		metrics.RecordS3Operation("complete_multipart", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("complete multipart upload %s: %w", uploadID, err)
	}
	metrics.RecordS3Operation("complete_multipart", "success", time.Since(start).Seconds())

	meta, err := s.Head(ctx, dstKey)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("assembled object %s not found", dstKey)
	}
	return meta, nil
}

func (s *S3ObjectStore) AbortMultipartCopy(ctx context.Context, uploadID, dstKey string) error {
	start := time.Now()
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(dstKey),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		metrics.RecordS3Operation("abort_multipart", "error", time.Since(start).Seconds())
		return fmt.Errorf("abort multipart upload %s: %w", uploadID, err)
	}
	metrics.RecordS3Operation("abort_multipart", "success", time.Since(start).Seconds())
	return nil
}

func (s *S3ObjectStore) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordS3Operation("get", "error", time.Since(start).Seconds())
		return nil, "", fmt.Errorf("get object %s: %w", key, err)
	}
	metrics.RecordS3Operation("get", "success", time.Since(start).Seconds())
	return out.Body, aws.ToString(out.ContentType), nil
}

func (s *S3ObjectStore) GetRange(ctx context.Context, key string, first, last int64) ([]byte, error) {
	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", first, last)),
	})
	if err != nil {
		metrics.RecordS3Operation("get_range", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("get object range %s: %w", key, err)
	}
	defer out.Body.Close()
	metrics.RecordS3Operation("get_range", "success", time.Since(start).Seconds())
	return io.ReadAll(out.Body)
}

func (s *S3ObjectStore) copySource(key string) string {
	return s.bucket + "/" + url.PathEscape(key)
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}
