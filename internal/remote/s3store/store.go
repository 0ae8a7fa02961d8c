// Package s3store implements remote.Objects on S3-compatible storage
// (Cloudflare R2, MinIO, AWS S3).
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
)

// API is the part of *s3.Client the store calls.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Options describe how to reach the bucket endpoint.
type Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

type Store struct {
	client    API
	publicURL string
}

func New(client API, publicURL string) *Store {
	return &Store{client: client, publicURL: strings.TrimRight(publicURL, "/")}
}

// Open builds an S3 client for opts. A custom endpoint switches to path-style
// addressing, which R2 and MinIO expect.
func Open(ctx context.Context, opts Options) (*Store, error) {
	region := opts.Region
	if region == "" {
		region = "auto"
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "s3store.Open")
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	public := opts.PublicURL
	if public == "" {
		public = strings.TrimRight(opts.Endpoint, "/")
	}
	return New(client, public), nil
}

func (s *Store) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("max-age=3600"),
	})
	if err != nil {
		return errors.Wrapf(err, "s3store.Upload %s/%s", bucket, path)
	}
	return nil
}

func (s *Store) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, bucket, path)
}

func (s *Store) Remove(ctx context.Context, bucket string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	ids := make([]types.ObjectIdentifier, 0, len(paths))
	for _, p := range paths {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(p)})
	}
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return errors.Wrapf(err, "s3store.Remove %s", bucket)
	}
	if out != nil && len(out.Errors) > 0 {
		first := out.Errors[0]
		return errors.Errorf("s3store.Remove %s: %d object(s) not removed, first %s: %s",
			bucket, len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
	}
	return nil
}
