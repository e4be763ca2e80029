package s3_helper

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/danthegoodman1/ekdb/archive"
	"github.com/danthegoodman1/ekdb/gologger"
	"github.com/danthegoodman1/ekdb/utils"
	"github.com/rs/zerolog"
)

var (
	logger = gologger.NewLogger()

	_ archive.ObjectStore = (*S3Store)(nil)
)

// S3Store archives dumps to an S3 (or S3 compatible) bucket.
type S3Store struct {
	client     s3iface.S3API
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

// NewSession creates a session from the AWS_* and S3_ENDPOINT environment variables.
func NewSession() (*session.Session, error) {
	s3Config := &aws.Config{
		Region:      aws.String(utils.AWS_DEFAULT_REGION),
		Credentials: credentials.NewEnvCredentials(),
	}
	if utils.S3_ENDPOINT != "" {
		s3Config.Endpoint = aws.String(utils.S3_ENDPOINT)
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}

	s3Session, err := session.NewSession(s3Config)
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}
	return s3Session, nil
}

func NewS3Store(sess *session.Session) *S3Store {
	return NewS3StoreWithClient(s3.New(sess))
}

func NewS3StoreWithClient(client s3iface.S3API) *S3Store {
	return &S3Store{
		client:     client,
		uploader:   s3manager.NewUploaderWithClient(client),
		downloader: s3manager.NewDownloaderWithClient(client),
	}
}

// LifecycleInput builds the lifecycle configuration holding one expiration rule.
func LifecycleInput(bucket, ruleID, prefix string, days int64) *s3.PutBucketLifecycleConfigurationInput {
	return &s3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(bucket),
		LifecycleConfiguration: &s3.BucketLifecycleConfiguration{
			Rules: []*s3.LifecycleRule{
				{
					ID:     aws.String(ruleID),
					Status: aws.String(s3.ExpirationStatusEnabled),
					Filter: &s3.LifecycleRuleFilter{
						Prefix: aws.String(prefix),
					},
					Expiration: &s3.LifecycleExpiration{
						Days: aws.Int64(days),
					},
				},
			},
		},
	}
}

func (s *S3Store) PutExpirationRule(ctx context.Context, bucket, ruleID, prefix string, days int64) error {
	_, err := s.client.PutBucketLifecycleConfigurationWithContext(ctx, LifecycleInput(bucket, ruleID, prefix, days))
	if err != nil {
		return fmt.Errorf("error in PutBucketLifecycleConfiguration: %w", err)
	}
	return nil
}

func (s *S3Store) Upload(ctx context.Context, bucket, key, path, contentType string) error {
	logger := zerolog.Ctx(ctx)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error in os.Open: %w", err)
	}
	defer f.Close()

	input := &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	}

	st := time.Now()
	_, err = s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return fmt.Errorf("error uploading to s3: %w", err)
	}

	d := time.Since(st)
	logger.Debug().Str("key", key).Int64("durationNS", d.Nanoseconds()).Str("durationHuman", d.String()).Msg("uploaded file to s3")
	return nil
}

// CopyInput builds a same-bucket copy request.
func CopyInput(bucket, srcKey, dstKey string) *s3.CopyObjectInput {
	return &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		CopySource: aws.String(url.PathEscape(bucket + "/" + srcKey)),
		Key:        aws.String(dstKey),
	}
}

func (s *S3Store) Copy(ctx context.Context, bucket, srcKey, dstKey string) error {
	_, err := s.client.CopyObjectWithContext(ctx, CopyInput(bucket, srcKey, dstKey))
	if err != nil {
		return fmt.Errorf("error in CopyObject: %w", err)
	}
	return nil
}

// Download writes the object at key to a file at path.
func (s *S3Store) Download(ctx context.Context, bucket, key, path string) error {
	logger := zerolog.Ctx(ctx)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error in os.Create: %w", err)
	}
	defer f.Close()

	st := time.Now()
	n, err := s.downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("error downloading from s3: %w", err)
	}

	d := time.Since(st)
	logger.Debug().Str("key", key).Int64("bytes", n).Str("durationHuman", d.String()).Msg("downloaded file from s3")
	return nil
}
