package dynamo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"campaigns/internal/store"
)

type fakeAPI struct {
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	batches []*dynamodb.BatchWriteItemInput

	// unprocessed is returned once per batch call while > 0.
	unprocessed int
	err         error
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.err
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.err
}

func (f *fakeAPI) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.batches = append(f.batches, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.unprocessed > 0 {
		f.unprocessed--
		reqs := in.RequestItems["audit"]
		return &dynamodb.BatchWriteItemOutput{
			UnprocessedItems: map[string][]types.WriteRequest{"audit": reqs[:1]},
		}, nil
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func str(t *testing.T, av types.AttributeValue) string {
	t.Helper()
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		t.Fatalf("expected string attribute, got %T", av)
	}
	return s.Value
}

func TestUpsertDocumentReplace(t *testing.T) {
	api := &fakeAPI{}
	s := NewStore(api, "audit")

	doc := store.AuditDocument{Phone: "51987654321", ClientID: 7, Status: "failed", Error: "boom", SentAt: 1000}
	if err := s.UpsertDocument(context.Background(), "fidelizacion", "51987654321_error_1000", doc, false); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(api.puts) != 1 || len(api.updates) != 0 {
		t.Fatalf("expected one put, got puts=%d updates=%d", len(api.puts), len(api.updates))
	}
	item := api.puts[0].Item
	if str(t, item["collection"]) != "fidelizacion" || str(t, item["doc_id"]) != "51987654321_error_1000" {
		t.Fatalf("unexpected key %v", item)
	}
	if str(t, item["celular"]) != "51987654321" || str(t, item["error"]) != "boom" {
		t.Fatalf("unexpected item %v", item)
	}
	if *api.puts[0].TableName != "audit" {
		t.Fatalf("unexpected table %s", *api.puts[0].TableName)
	}
}

func TestUpsertDocumentMerge(t *testing.T) {
	api := &fakeAPI{}
	s := NewStore(api, "audit")

	doc := store.AuditDocument{Phone: "51987654321", Status: "sent", MessageID: "SM1", SentAt: 5}
	if err := s.UpsertDocument(context.Background(), "fidelizacion", "51987654321", doc, true); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(api.updates) != 1 || len(api.puts) != 0 {
		t.Fatalf("expected one update, got puts=%d updates=%d", len(api.puts), len(api.updates))
	}
	in := api.updates[0]
	if str(t, in.Key["doc_id"]) != "51987654321" {
		t.Fatalf("unexpected key %v", in.Key)
	}

	set := map[string]types.AttributeValue{}
	for n, attr := range in.ExpressionAttributeNames {
		v := ":v" + n[2:]
		av, ok := in.ExpressionAttributeValues[v]
		if !ok {
			t.Fatalf("no value bound for %s", n)
		}
		set[attr] = av
	}
	if str(t, set["message_id"]) != "SM1" || str(t, set["estado"]) != "sent" {
		t.Fatalf("unexpected merged attrs %v", set)
	}
	if _, ok := set["error"]; ok {
		t.Fatalf("empty error should be omitted from the merge")
	}
	if _, ok := set["doc_id"]; ok {
		t.Fatalf("key attributes must not be part of the SET")
	}
}

func TestUpsertDocumentError(t *testing.T) {
	api := &fakeAPI{err: errors.New("throttled")}
	s := NewStore(api, "audit")
	if err := s.UpsertDocument(context.Background(), "c", "k", store.ClientProfile{ClientID: "cli_1"}, true); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBatchWriteChunks(t *testing.T) {
	api := &fakeAPI{}
	s := NewStore(api, "audit")

	ops := make([]store.WriteOp, 0, 60)
	for i := range 60 {
		ops = append(ops, store.WriteOp{
			Collection: "clientes",
			Key:        fmt.Sprintf("cli_%d", i),
			Fields:     store.ClientProfile{ClientID: fmt.Sprintf("cli_%d", i), Name: "n"},
		})
	}
	if err := s.BatchWrite(context.Background(), ops); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(api.batches) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(api.batches))
	}
	sizes := []int{25, 25, 10}
	for i, b := range api.batches {
		if got := len(b.RequestItems["audit"]); got != sizes[i] {
			t.Fatalf("batch %d: expected %d items, got %d", i, sizes[i], got)
		}
	}
	first := api.batches[0].RequestItems["audit"][0].PutRequest.Item
	if str(t, first["collection"]) != "clientes" || str(t, first["doc_id"]) != "cli_0" {
		t.Fatalf("unexpected item %v", first)
	}
}

func TestBatchWriteRetriesUnprocessed(t *testing.T) {
	api := &fakeAPI{unprocessed: 2}
	s := NewStore(api, "audit")

	ops := []store.WriteOp{
		{Collection: "clientes", Key: "cli_1", Fields: store.ClientProfile{ClientID: "cli_1"}},
		{Collection: "clientes", Key: "cli_2", Fields: store.ClientProfile{ClientID: "cli_2"}},
	}
	if err := s.BatchWrite(context.Background(), ops); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(api.batches) != 3 {
		t.Fatalf("expected 1 call + 2 resubmits, got %d", len(api.batches))
	}
	if got := len(api.batches[1].RequestItems["audit"]); got != 1 {
		t.Fatalf("expected only the unprocessed item resubmitted, got %d", got)
	}
}

func TestBatchWriteGivesUp(t *testing.T) {
	api := &fakeAPI{unprocessed: 100}
	s := NewStore(api, "audit")
	ops := []store.WriteOp{{Collection: "clientes", Key: "cli_1", Fields: store.ClientProfile{ClientID: "cli_1"}}}
	if err := s.BatchWrite(context.Background(), ops); err == nil {
		t.Fatalf("expected error after bounded retries")
	}
}
