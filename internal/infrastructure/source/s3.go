package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alem-hub/tutoring-hub/internal/application/ingest"
)

// objectAPI is the slice of the S3 client used here.
type objectAPI interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config selects a bucket prefix holding batch files.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // optional, for MinIO and other S3-compatible stores

	// Static credentials; the default AWS chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string

	PathStyle bool
}

// S3 lists and opens batches stored under one bucket prefix.
type S3 struct {
	client objectAPI
	bucket string
	prefix string
}

// NewS3 builds an S3 client from cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3(client objectAPI, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// List returns one source per .csv object under the prefix, sorted by key.
func (s *S3) List(ctx context.Context) ([]ingest.Source, error) {
	var (
		keys  []string
		token *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if strings.EqualFold(path.Ext(key), ".csv") {
				keys = append(keys, key)
			}
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(keys)

	sources := make([]ingest.Source, len(keys))
	for i, k := range keys {
		sources[i] = S3Object{client: s.client, bucket: s.bucket, key: k}
	}
	return sources, nil
}

// Object returns the source of a single key.
func (s *S3) Object(key string) S3Object {
	return S3Object{client: s.client, bucket: s.bucket, key: key}
}

// S3Object is a batch stored as one object.
type S3Object struct {
	client objectAPI
	bucket string
	key    string
}

var _ ingest.Source = S3Object{}

// Name implements ingest.Source.
func (o S3Object) Name() string { return "s3://" + o.bucket + "/" + o.key }

// Open implements ingest.Source.
func (o S3Object) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}
