// Package reliability holds backup and maintenance services.
package reliability

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// StorageObject describes one object in the backup bucket
type StorageObject struct {
	Key       *string
	Size      *int64
}

// StorageClient talks to an S3-compatible bucket (Cloudflare R2, MinIO,
// plain S3). A custom endpoint switches the client off AWS.
type StorageClient struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// NewStorageClient creates a client for the given bucket. endpoint may
// be empty for AWS-proper; region defaults to "auto" which R2 expects.
func NewStorageClient(endpoint, region, accessKeyID, secretAccessKey, bucket string, log zerolog.Logger) (*StorageClient, error) {
	if region == "" {
		region = "auto"
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			// R2 and MinIO want path-style addressing
			o.UsePathStyle = true
		}
	})

	return &StorageClient{
		client: client,
		bucket: bucket,
		log:    log.With().Str("client", "storage").Logger(),
	}, nil
}

// Upload stores an object under key
func (c *StorageClient) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	c.log.Debug().Str("key", key).Int64("size", size).Msg("Uploaded object")
	return nil
}

// List returns objects whose keys start with prefix
func (c *StorageClient) List(ctx context.Context, prefix string) ([]StorageObject, error) {
	var objects []StorageObject

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, StorageObject{Key: obj.Key, Size: obj.Size})
		}
	}

	return objects, nil
}

// Delete removes an object
func (c *StorageClient) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}
