// Package store implements the key-value metadata store contract over
// DynamoDB. Scans project only key attributes, counts use COUNT select,
// and deletes go through BatchWriteItem with the store's 25-item limit.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	customerrors "github.com/kingsroom/scrapemeta/pkg/errors"
)

// MaxBatchSize is the BatchWriteItem request limit. It is a contract of
// the underlying store class, not a tunable.
const MaxBatchSize = 25

// DynamoDBAPI is the subset of the DynamoDB client the store depends on.
type DynamoDBAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// TableDescriptor is the minimal schema needed to address items: the
// partition key attribute name and the sort key attribute name, if any.
type TableDescriptor struct {
	Name         string
	PartitionKey string
	SortKey      string
}

// HasSortKey reports whether delete directives must carry a sort key.
func (d TableDescriptor) HasSortKey() bool {
	return d.SortKey != ""
}

// ItemKey is the raw key attribute map of one item.
type ItemKey = map[string]types.AttributeValue

// Cursor is an opaque pagination token. Callers pass it back unchanged.
type Cursor = map[string]types.AttributeValue

// KeyPage is one page of scanned item keys.
type KeyPage struct {
	Keys []ItemKey
	Next Cursor
}

// CountPage is one page of a COUNT-mode scan.
type CountPage struct {
	Count int64
	Next  Cursor
}

// Store is the DynamoDB-backed metadata store.
type Store struct {
	client DynamoDBAPI
}

// New creates a store over the given DynamoDB client.
func New(client DynamoDBAPI) *Store {
	return &Store{client: client}
}

// Describe fetches the key schema of a table.
func (s *Store) Describe(ctx context.Context, table string) (TableDescriptor, error) {
	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return TableDescriptor{}, customerrors.NewError("describe", table,
				fmt.Errorf("%w: %w", customerrors.ErrSchemaUnavailable, err))
		}
		return TableDescriptor{}, customerrors.NewError("describe", table, classify(err))
	}

	desc := TableDescriptor{Name: table}
	for _, elem := range out.Table.KeySchema {
		switch elem.KeyType {
		case types.KeyTypeHash:
			desc.PartitionKey = aws.ToString(elem.AttributeName)
		case types.KeyTypeRange:
			desc.SortKey = aws.ToString(elem.AttributeName)
		}
	}
	if desc.PartitionKey == "" {
		return TableDescriptor{}, customerrors.NewError("describe", table,
			fmt.Errorf("%w: no partition key in schema", customerrors.ErrSchemaUnavailable))
	}
	return desc, nil
}

// ScanKeys returns one page of item keys, projecting only the key
// attributes of the table. Pass the returned cursor back to continue;
// a nil cursor means the scan is complete.
func (s *Store) ScanKeys(ctx context.Context, desc TableDescriptor, cursor Cursor) (KeyPage, error) {
	names := map[string]string{"#pk": desc.PartitionKey}
	projection := "#pk"
	if desc.HasSortKey() {
		names["#sk"] = desc.SortKey
		projection = "#pk, #sk"
	}

	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(desc.Name),
		Select:                   types.SelectSpecificAttributes,
		ProjectionExpression:     aws.String(projection),
		ExpressionAttributeNames: names,
		ExclusiveStartKey:        cursor,
	})
	if err != nil {
		return KeyPage{}, customerrors.NewError("scan", desc.Name, classify(err))
	}

	keys := make([]ItemKey, 0, len(out.Items))
	for _, item := range out.Items {
		keys = append(keys, item)
	}
	return KeyPage{Keys: keys, Next: out.LastEvaluatedKey}, nil
}

// CountOnly returns one page of a COUNT-mode scan. No item data leaves
// the store; this is the cheap path for dry runs and planning.
func (s *Store) CountOnly(ctx context.Context, table string, cursor Cursor) (CountPage, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:         aws.String(table),
		Select:            types.SelectCount,
		ExclusiveStartKey: cursor,
	})
	if err != nil {
		return CountPage{}, customerrors.NewError("count", table, classify(err))
	}
	return CountPage{Count: int64(out.Count), Next: out.LastEvaluatedKey}, nil
}

// BatchDelete submits up to MaxBatchSize delete directives in one request
// and returns the keys the store declined to process. A key is never both
// deleted and returned as unprocessed by the same call.
func (s *Store) BatchDelete(ctx context.Context, desc TableDescriptor, keys []ItemKey) ([]ItemKey, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if len(keys) > MaxBatchSize {
		return nil, customerrors.NewError("batch delete", desc.Name,
			fmt.Errorf("%w: %d keys", customerrors.ErrBatchTooLarge, len(keys)))
	}

	writeRequests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		writeRequests = append(writeRequests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key},
		})
	}

	out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			desc.Name: writeRequests,
		},
	})
	if err != nil {
		return nil, customerrors.NewError("batch delete", desc.Name, classify(err))
	}

	var unprocessed []ItemKey
	for _, reqs := range out.UnprocessedItems {
		for _, req := range reqs {
			if req.DeleteRequest != nil {
				unprocessed = append(unprocessed, req.DeleteRequest.Key)
			}
		}
	}
	return unprocessed, nil
}

// classify buckets a store error as transient (retry is safe) or
// permanent (retry is pointless).
func classify(err error) error {
	var throughput *types.ProvisionedThroughputExceededException
	var requestLimit *types.RequestLimitExceeded
	var internal *types.InternalServerError
	if errors.As(err, &throughput) || errors.As(err, &requestLimit) || errors.As(err, &internal) {
		return fmt.Errorf("%w: %w", customerrors.ErrTransientIO, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailable":
			return fmt.Errorf("%w: %w", customerrors.ErrTransientIO, err)
		}
	}

	return fmt.Errorf("%w: %w", customerrors.ErrPermanentIO, err)
}
