package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
)

// Key attributes of the documents table. Every other attribute is a record field.
const (
	DynamoPartitionKey = "pk"
	DynamoSortKey      = "sk"
)

// DynamoAPI is the subset of the DynamoDB client the document store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDocumentStore keeps records in one table keyed by (collection, id),
// with record fields stored as native attributes. Enabling the table's
// Kinesis streaming destination feeds the notifier lambda.
type DynamoDocumentStore struct {
	client    DynamoAPI
	tableName string
}

func NewDynamoDocumentStore(client DynamoAPI, tableName string) *DynamoDocumentStore {
	return &DynamoDocumentStore{client: client, tableName: tableName}
}

func (s *DynamoDocumentStore) key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		DynamoPartitionKey: &types.AttributeValueMemberS{Value: collection},
		DynamoSortKey:      &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoDocumentStore) Set(ctx context.Context, collection, id string, record any) error {
	obj, err := toObject(record)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(obj)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	for k, v := range s.key(collection, id) {
		item[k] = v
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	return errors.Wrapf(err, "put %s/%s", collection, id)
}

func (s *DynamoDocumentStore) Get(ctx context.Context, collection, id string) (json.RawMessage, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s/%s", collection, id)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	raw, err := ItemToJSON(out.Item)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *DynamoDocumentStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := toObject(fields)
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}

	names := make([]string, 0, len(patch))
	for k := range patch {
		names = append(names, k)
	}
	sort.Strings(names)

	attrNames := map[string]string{"#pk": DynamoPartitionKey}
	attrValues := map[string]types.AttributeValue{}
	var sets, removes []string
	for i, name := range names {
		n := fmt.Sprintf("#f%d", i)
		attrNames[n] = name
		if patch[name] == nil {
			removes = append(removes, n)
			continue
		}
		v := fmt.Sprintf(":v%d", i)
		av, err := attributevalue.Marshal(patch[name])
		if err != nil {
			return errors.Wrapf(err, "marshal field %s", name)
		}
		attrValues[v] = av
		sets = append(sets, n+" = "+v)
	}

	expr := ""
	if len(sets) > 0 {
		expr = "SET " + strings.Join(sets, ", ")
	}
	if len(removes) > 0 {
		if expr != "" {
			expr += " "
		}
		expr += "REMOVE " + strings.Join(removes, ", ")
	}

	in := &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      s.key(collection, id),
		UpdateExpression:         aws.String(expr),
		ConditionExpression:      aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: attrNames,
	}
	if len(attrValues) > 0 {
		in.ExpressionAttributeValues = attrValues
	}

	_, err = s.client.UpdateItem(ctx, in)
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	return errors.Wrapf(err, "update %s/%s", collection, id)
}

func (s *DynamoDocumentStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(collection, id),
	})
	return errors.Wrapf(err, "delete %s/%s", collection, id)
}

func (s *DynamoDocumentStore) Query(ctx context.Context, collection, field string, value any) ([]json.RawMessage, error) {
	tree, err := toTree(value)
	if err != nil {
		return nil, err
	}
	av, err := attributevalue.Marshal(tree)
	if err != nil {
		return nil, errors.Wrap(err, "marshal query value")
	}
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		FilterExpression:       aws.String("#f = :v"),
		ExpressionAttributeNames: map[string]string{
			"#pk": DynamoPartitionKey,
			"#f":  field,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: collection},
			":v":  av,
		},
	})
}

func (s *DynamoDocumentStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.tableName),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": DynamoPartitionKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: collection},
		},
	})
}

func (s *DynamoDocumentStore) query(ctx context.Context, in *dynamodb.QueryInput) ([]json.RawMessage, error) {
	var out []json.RawMessage
	p := dynamodb.NewQueryPaginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "query documents")
		}
		for _, item := range page.Items {
			raw, err := ItemToJSON(item)
			if err != nil {
				return nil, err
			}
			out = append(out, raw)
		}
	}
	return out, nil
}

// ItemToJSON converts a documents table item into the JSON record it holds.
func ItemToJSON(item map[string]types.AttributeValue) (json.RawMessage, error) {
	var rec map[string]any
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, errors.Wrap(err, "unmarshal item")
	}
	delete(rec, DynamoPartitionKey)
	delete(rec, DynamoSortKey)
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode record")
	}
	return raw, nil
}
