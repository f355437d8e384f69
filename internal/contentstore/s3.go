package contentstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dmitrijs2005/atomstore/internal/common"
	"github.com/dmitrijs2005/atomstore/internal/server/models"
)

// S3Config carries the settings for an S3-compatible content backend
// (AWS S3, MinIO, etc.).
type S3Config struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	RootUser     string
	RootPassword string
	KeyPrefix    string
}

// s3API is the subset of the S3 client the store uses; a seam for tests.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps content as objects under
//
//	<prefix>/<workspace>/<collection>/<aa>/<bb>/<entryId[.locale]>/r<rev>
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Store builds a client from static credentials and an optional base
// endpoint, the same way the rest of our S3 access is configured.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.RootUser,
			cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.KeyPrefix}, nil
}

func (s *S3Store) entryPrefix(d models.EntryDescriptor) string {
	a, b := shardSegments(d.EntryID)
	return path.Join(s.prefix, d.Workspace, d.Collection, a, b, entryDirName(d)) + "/"
}

func (s *S3Store) revisionKey(d models.EntryDescriptor) string {
	return s.entryPrefix(d) + fmt.Sprintf("r%d", d.Revision)
}

func (s *S3Store) Put(ctx context.Context, d models.EntryDescriptor, content []byte) error {
	key := s.revisionKey(d)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, d models.EntryDescriptor) ([]byte, error) {
	key := s.revisionKey(d)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return nil, fmt.Errorf("%w: %s r%d", common.ErrContentNotFound, d, d.Revision)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

func (s *S3Store) Exists(ctx context.Context, d models.EntryDescriptor) (bool, error) {
	prefix := s.entryPrefix(d)
	if d.Revision != models.RevisionUndefined {
		prefix = s.revisionKey(d)
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &s.bucket,
		Prefix:  &prefix,
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("list %s: %w", prefix, err)
	}
	return len(out.Contents) > 0, nil
}

func (s *S3Store) Obliterate(ctx context.Context, d models.EntryDescriptor) error {
	prefix := s.entryPrefix(d)
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: &s.bucket,
				Key:    obj.Key,
			}); err != nil {
				return fmt.Errorf("delete %s: %w", *obj.Key, err)
			}
		}
		if out.NextContinuationToken == nil {
			return nil
		}
		token = out.NextContinuationToken
	}
}
