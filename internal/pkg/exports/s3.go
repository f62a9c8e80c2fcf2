package exports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/permitradar/permitradar/app/models"
	"github.com/permitradar/permitradar/internal/pkg/env"
)

// S3Storage reads CSV exports from an S3 (or S3-compatible) bucket the
// scraper backend uploads into.
type S3Storage struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// NewS3Storage builds the S3 export reader from environment configuration.
func NewS3Storage() (*S3Storage, error) {
	bucket := strings.TrimSpace(env.GetEnv("EXPORTS_S3_BUCKET", ""))
	if bucket == "" {
		return nil, errors.New("EXPORTS_S3_BUCKET is required for S3 export storage")
	}
	accessKey := env.GetEnv("S3_ACCESS_KEY_ID", "")
	secretKey := env.GetEnv("S3_SECRET_ACCESS_KEY", "")
	if accessKey == "" || secretKey == "" {
		return nil, errors.New("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required for S3 export storage")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(env.GetEnv("S3_REGION", "us-east-1")),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := env.GetEnv("S3_ENDPOINT_URL", ""); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			// S3-compatible services generally need path-style URLs.
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:    client,
		bucket:    bucket,
		keyPrefix: strings.Trim(env.GetEnv("EXPORTS_S3_PREFIX", "exports"), "/"),
	}, nil
}

func (s *S3Storage) Fetch(ctx context.Context, city string) ([]byte, error) {
	normalized := models.NormalizeCity(city)
	if !ValidCitySlug(normalized) {
		return nil, ErrNoExport
	}

	key := Filename(normalized)
	if s.keyPrefix != "" {
		key = s.keyPrefix + "/" + key
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNoExport
		}
		return nil, fmt.Errorf("failed to fetch export %s: %w", key, err)
	}
	defer result.Body.Close()

	return io.ReadAll(result.Body)
}
