package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"campaigns/internal/store"
)

// API is the subset of *dynamodb.Client the store uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

const (
	// Table key: partition on collection, sort on document key.
	attrCollection = "collection"
	attrDocID      = "doc_id"

	maxBatch        = 25
	maxBatchRetries = 5
)

// Store keeps document collections in one DynamoDB table.
type Store struct {
	API   API
	Table string
}

func NewStore(api API, table string) *Store {
	return &Store{API: api, Table: table}
}

func itemKey(collection, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrCollection: &types.AttributeValueMemberS{Value: collection},
		attrDocID:      &types.AttributeValueMemberS{Value: key},
	}
}

// UpsertDocument writes fields under (collection, key). With merge, only
// the given attributes are set and the rest of an existing item is kept;
// otherwise the item is replaced.
func (s *Store) UpsertDocument(ctx context.Context, collection, key string, fields any, merge bool) error {
	item, err := attributevalue.MarshalMap(fields)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, key, err)
	}
	delete(item, attrCollection)
	delete(item, attrDocID)

	if !merge || len(item) == 0 {
		for k, v := range itemKey(collection, key) {
			item[k] = v
		}
		_, err = s.API.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.Table),
			Item:      item,
		})
		return err
	}

	names := make([]string, 0, len(item))
	for k := range item {
		names = append(names, k)
	}
	sort.Strings(names)

	exprNames := make(map[string]string, len(names))
	exprValues := make(map[string]types.AttributeValue, len(names))
	sets := make([]string, 0, len(names))
	for i, name := range names {
		n := "#a" + strconv.Itoa(i)
		v := ":v" + strconv.Itoa(i)
		exprNames[n] = name
		exprValues[v] = item[name]
		sets = append(sets, n+" = "+v)
	}

	_, err = s.API.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.Table),
		Key:                       itemKey(collection, key),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	})
	return err
}

// BatchWrite puts every op, 25 items per request, resubmitting unprocessed
// items a bounded number of times.
func (s *Store) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	for start := 0; start < len(ops); start += maxBatch {
		end := min(start+maxBatch, len(ops))

		reqs := make([]types.WriteRequest, 0, end-start)
		for _, op := range ops[start:end] {
			item, err := attributevalue.MarshalMap(op.Fields)
			if err != nil {
				return fmt.Errorf("marshal %s/%s: %w", op.Collection, op.Key, err)
			}
			for k, v := range itemKey(op.Collection, op.Key) {
				item[k] = v
			}
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		pending := map[string][]types.WriteRequest{s.Table: reqs}
		for try := 0; len(pending[s.Table]) > 0; try++ {
			if try == maxBatchRetries {
				return fmt.Errorf("batch write: %d items unprocessed", len(pending[s.Table]))
			}
			out, err := s.API.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			pending = out.UnprocessedItems
			if pending == nil {
				break
			}
		}
	}
	return nil
}
