// Package objectstore reads raw source documents from S3.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/careatlas/evidence/internal/core"
	"github.com/careatlas/evidence/internal/models"
)

type S3Store struct {
	client *s3.Client
	region string
	bucket string
}

var _ core.ObjectStore = (*S3Store)(nil)

// Options carry the credentials and bucket identity; all are required
// except the region default applied by config.
type Options struct {
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
}

func NewS3Store(ctx context.Context, opts Options) (*S3Store, error) {
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("objectstore: AWS credentials not set")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("objectstore: AWS region not set")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("objectstore: bucket name not set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg),
		region: opts.Region,
		bucket: opts.Bucket,
	}, nil
}

// List enumerates every object under prefix, following continuation tokens.
func (s *S3Store) List(ctx context.Context, prefix string) ([]models.RawDocument, error) {
	listCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var docs []models.RawDocument
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(listCtx)
		if err != nil {
			return nil, fmt.Errorf("objectstore: list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			docs = append(docs, models.RawDocument{
				Path: aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return docs, nil
}

// Get downloads one object's bytes.
func (s *S3Store) Get(ctx context.Context, path string) ([]byte, error) {
	getCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.GetObject(getCtx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %q: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %q: %w", path, err)
	}
	return body, nil
}

// Put uploads one object, used to seed the bucket with local guideline
// files before an ingestion run.
func (s *S3Store) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	putCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	uploader := manager.NewUploader(s.client)
	_, err := uploader.Upload(putCtx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: upload %q: %w", path, err)
	}
	return s.URL(path), nil
}

// URL returns the public HTTPS URL for an object path.
func (s *S3Store) URL(path string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, path)
}
