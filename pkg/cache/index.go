// Package cache gives read-only access to the blob cache index: the table
// mapping scraped URLs to content-addressed HTML blobs in S3. Nothing in
// this package writes; the index is what a metadata wipe preserves.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Record is one row of the cache index: a fetched URL and the locator of
// its stored HTML blob.
type Record struct {
	URL         string    `dynamodbav:"url"`
	BlobKey     string    `dynamodbav:"blobKey"`
	ContentHash string    `dynamodbav:"contentHash"`
	FetchedAt   time.Time `dynamodbav:"fetchedAt"`
	UpdatedAt   time.Time `dynamodbav:"updatedAt"`
}

// ScanAPI is the read-only slice of the DynamoDB client the index needs.
type ScanAPI interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Index reads the cache index table.
type Index struct {
	client ScanAPI
	table  string
}

// NewIndex creates a reader for the named cache index table.
func NewIndex(client ScanAPI, table string) *Index {
	return &Index{client: client, table: table}
}

// Table returns the cache index table name.
func (ix *Index) Table() string {
	return ix.table
}

// Records returns up to limit cache records, following pagination as
// needed. A limit of zero or less reads the whole table.
func (ix *Index) Records(ctx context.Context, limit int) ([]Record, error) {
	var records []Record
	var cursor map[string]types.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName:         aws.String(ix.table),
			ExclusiveStartKey: cursor,
		}
		if limit > 0 {
			remaining := limit - len(records)
			input.Limit = aws.Int32(int32(remaining))
		}

		out, err := ix.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache index %s: %w", ix.table, err)
		}

		for _, item := range out.Items {
			var rec Record
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal cache record: %w", err)
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				return records, nil
			}
		}

		if out.LastEvaluatedKey == nil {
			return records, nil
		}
		cursor = out.LastEvaluatedKey
	}
}
