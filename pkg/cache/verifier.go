package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// BlobAPI is the slice of the S3 client the verifier needs.
type BlobAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// VerifyReport summarizes a cache audit.
type VerifyReport struct {
	Checked int      `yaml:"checked"`
	Missing []string `yaml:"missing,omitempty"`
}

// OK reports whether every checked blob was present.
func (r VerifyReport) OK() bool {
	return len(r.Missing) == 0
}

// Verifier audits that blobs referenced by the cache index actually exist
// in the bucket. It issues only HeadObject calls.
type Verifier struct {
	index  *Index
	blobs  BlobAPI
	bucket string
}

// NewVerifier creates a verifier for the given index and blob bucket.
func NewVerifier(index *Index, blobs BlobAPI, bucket string) *Verifier {
	return &Verifier{index: index, blobs: blobs, bucket: bucket}
}

// Verify heads up to sample blobs referenced by the index and reports the
// ones that are gone. A sample of zero or less audits the whole index.
func (v *Verifier) Verify(ctx context.Context, sample int) (VerifyReport, error) {
	records, err := v.index.Records(ctx, sample)
	if err != nil {
		return VerifyReport{}, err
	}

	report := VerifyReport{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if rec.BlobKey == "" {
			report.Missing = append(report.Missing, rec.URL)
			report.Checked++
			continue
		}

		_, err := v.blobs.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(v.bucket),
			Key:    aws.String(rec.BlobKey),
		})
		report.Checked++
		if err != nil {
			var notFound *s3types.NotFound
			if errors.As(err, &notFound) {
				report.Missing = append(report.Missing, rec.BlobKey)
				continue
			}
			return report, fmt.Errorf("failed to head blob %s: %w", rec.BlobKey, err)
		}
	}
	return report, nil
}
