package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
)

// S3Config options for the S3 source
type S3Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	Prefix          string // Only keys under this prefix are read
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
	MaxObjects      int    // Stop after this many objects; 0 means no limit
}

// S3Client is the subset of the S3 API the source needs.
type S3Client interface {
	s3.ListObjectsV2APIClient
	manager.DownloadAPIClient
}

// S3 reads every object under a prefix. Item names are keys with the prefix
// removed.
type S3 struct {
	client S3Client
	config S3Config
}

// NewS3 creates an S3 source, loading AWS config the same way as the SDK's
// default chain unless static credentials are given.
func NewS3(ctx context.Context, config S3Config) (*S3, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	return NewS3WithClient(s3.NewFromConfig(awsCfg, s3Options...), config), nil
}

// NewS3WithClient creates an S3 source on an existing client.
func NewS3WithClient(client S3Client, config S3Config) *S3 {
	return &S3{client: client, config: config}
}

func (s *S3) Items(ctx context.Context) ([]*scopedupload.UploadItem, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.config.Prefix),
	})
	downloader := manager.NewDownloader(s.client, func(d *manager.Downloader) {
		d.Concurrency = 1
	})

	var items []*scopedupload.UploadItem
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.handleError("list objects", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			name := strings.TrimPrefix(strings.TrimPrefix(key, s.config.Prefix), "/")
			if name == "" {
				continue
			}

			buf := manager.NewWriteAtBuffer(make([]byte, 0, aws.ToInt64(obj.Size)))
			if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
				Bucket: aws.String(s.config.Bucket),
				Key:    aws.String(key),
			}); err != nil {
				return nil, s.handleError("download "+key, err)
			}

			items = append(items, &scopedupload.UploadItem{FileName: name, Buffer: buf.Bytes()})
			if s.config.MaxObjects > 0 && len(items) >= s.config.MaxObjects {
				return items, nil
			}
		}
	}
	return items, nil
}

// handleError maps S3 API error codes onto the package's error types.
func (s *S3) handleError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound":
			return fmt.Errorf("%s in %s: %w", op, s.config.Bucket, ErrBucketNotFound)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%s in %s: %w", op, s.config.Bucket, ErrAccessDenied)
		}
	}
	return fmt.Errorf("failed to %s in %s: %w", op, s.config.Bucket, err)
}
