package s3_helper

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// fakeS3 records the lifecycle and copy calls; everything else panics through the nil interface.
type fakeS3 struct {
	s3iface.S3API
	lifecycle *s3.PutBucketLifecycleConfigurationInput
	copied    *s3.CopyObjectInput
}

func (f *fakeS3) PutBucketLifecycleConfigurationWithContext(_ aws.Context, in *s3.PutBucketLifecycleConfigurationInput, _ ...request.Option) (*s3.PutBucketLifecycleConfigurationOutput, error) {
	f.lifecycle = in
	return &s3.PutBucketLifecycleConfigurationOutput{}, nil
}

func (f *fakeS3) CopyObjectWithContext(_ aws.Context, in *s3.CopyObjectInput, _ ...request.Option) (*s3.CopyObjectOutput, error) {
	f.copied = in
	return &s3.CopyObjectOutput{}, nil
}

func TestPutExpirationRule(t *testing.T) {
	f := &fakeS3{}
	s := NewS3StoreWithClient(f)
	if err := s.PutExpirationRule(context.Background(), "ekdb-dumps", "ExpireDailyDumps", "v1/eduskunta_data.", 30); err != nil {
		t.Fatal(err)
	}
	if err := f.lifecycle.Validate(); err != nil {
		t.Fatal(err)
	}
	rule := f.lifecycle.LifecycleConfiguration.Rules[0]
	if *rule.Filter.Prefix != "v1/eduskunta_data." || *rule.Expiration.Days != 30 || *rule.Status != "Enabled" {
		t.Fatalf("unexpected rule %s", rule)
	}
}

func TestCopy(t *testing.T) {
	f := &fakeS3{}
	s := NewS3StoreWithClient(f)
	if err := s.Copy(context.Background(), "ekdb-dumps", "v1/eduskunta_data.2026-10-15.sqlite", "v1/latest.eduskunta_data.sqlite"); err != nil {
		t.Fatal(err)
	}
	if *f.copied.CopySource != "ekdb-dumps%2Fv1%2Feduskunta_data.2026-10-15.sqlite" {
		t.Fatalf("unexpected copy source %s", *f.copied.CopySource)
	}
	if *f.copied.Key != "v1/latest.eduskunta_data.sqlite" {
		t.Fatalf("unexpected key %s", *f.copied.Key)
	}
}

func TestUploadMissingFile(t *testing.T) {
	s := NewS3StoreWithClient(&fakeS3{})
	err := s.Upload(context.Background(), "ekdb-dumps", "k", filepath.Join(t.TempDir(), "missing"), "application/json")
	if err == nil {
		t.Fatal("expected missing file to fail before any request")
	}
}
