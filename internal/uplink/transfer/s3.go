package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"uplink/internal/uplink/domain"
	"uplink/pkg/logger"
)

// S3Options configures the S3 channel. Endpoint and static credentials
// support MinIO-style deployments.
type S3Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Ensure S3Channel implements Channel
var _ Channel = (*S3Channel)(nil)

// S3Channel uploads file content with PutObject against the destination
// bucket, keyed by prefix and file name.
type S3Channel struct {
	client *s3.Client
	logger *logger.Logger
}

func NewS3Channel(ctx context.Context, opts S3Options, log *logger.Logger) (*S3Channel, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Channel{
		client: client,
		logger: log.WithField("component", "s3-channel"),
	}, nil
}

func (c *S3Channel) Transfer(ctx context.Context, d domain.Descriptor, dest Destination, onProgress ProgressFunc) (*domain.Result, error) {
	file, err := os.Open(d.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferNetwork, err)
	}
	defer file.Close()

	key := path.Join(dest.KeyPrefix, d.Name)
	body := newProgressReader(file, d.Size, onProgress)

	out, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(dest.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(d.Size),
		ContentType:   aws.String(d.MIMEType),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %s: %s", domain.ErrTransferServerRejected, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferNetwork, err)
	}

	c.logger.Debug("transfer finished", "bucket", dest.Bucket, "key", key)

	result := &domain.Result{
		Location: fmt.Sprintf("s3://%s/%s", dest.Bucket, key),
	}
	if out.ETag != nil {
		result.ETag = *out.ETag
	}
	return result, nil
}
