package resumes

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dynamoItem is the table layout. resumeId is the partition key.
type dynamoItem struct {
	ResumeID  string    `dynamodbav:"resumeId"`
	Payload   Document  `dynamodbav:"payload"`
	Version   int64     `dynamodbav:"version"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updatedAt"`
}

// DynamoStore implements Store on a DynamoDB table.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoClient loads the default AWS config and builds a DynamoDB client.
// endpoint overrides the service URL, e.g. for DynamoDB Local.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewDynamoStore creates a DynamoDB-backed store for the given table.
func NewDynamoStore(client DynamoAPI, table string) (*DynamoStore, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client is required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}
	return &DynamoStore{client: client, table: table}, nil
}

// Get returns a resume by id using a strongly consistent read.
func (s *DynamoStore) Get(ctx context.Context, id string) (Resume, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Resume{}, s.classify("get item", id, err)
	}
	if len(out.Item) == 0 {
		return Resume{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decodeItem(out.Item)
}

// Put creates a resume with attribute_not_exists, or replaces one with an
// update conditioned on attribute_exists (and the expected version).
func (s *DynamoStore) Put(ctx context.Context, resume Resume, opts PutOptions) (Resume, error) {
	if opts.MustNotExist {
		return s.create(ctx, resume)
	}
	return s.replace(ctx, resume, opts.ExpectedVersion)
}

func (s *DynamoStore) create(ctx context.Context, resume Resume) (Resume, error) {
	item, err := attributevalue.MarshalMap(dynamoItem{
		ResumeID:  resume.ID,
		Payload:   resume.Payload,
		Version:   resume.Version,
		CreatedAt: resume.CreatedAt,
		UpdatedAt: resume.UpdatedAt,
	})
	if err != nil {
		return Resume{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                s.tableName(),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "resumeId"},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return Resume{}, fmt.Errorf("%w: resume %s already exists", ErrConflict, resume.ID)
		}
		return Resume{}, s.classify("put item", resume.ID, err)
	}
	return resume, nil
}

func (s *DynamoStore) replace(ctx context.Context, resume Resume, expectedVersion int64) (Resume, error) {
	payload, err := attributevalue.Marshal(resume.Payload)
	if err != nil {
		return Resume{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	updatedAt, err := attributevalue.Marshal(resume.UpdatedAt)
	if err != nil {
		return Resume{}, fmt.Errorf("marshal updatedAt: %w", err)
	}

	condition := "attribute_exists(#id)"
	values := map[string]types.AttributeValue{
		":payload": payload,
		":updated": updatedAt,
		":one":     &types.AttributeValueMemberN{Value: "1"},
	}
	if expectedVersion > 0 {
		condition += " AND #version = :expected"
		values[":expected"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)}
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           s.tableName(),
		Key:                 s.key(resume.ID),
		UpdateExpression:    aws.String("SET #payload = :payload, #updated = :updated ADD #version :one"),
		ConditionExpression: aws.String(condition),
		ExpressionAttributeNames: map[string]string{
			"#id":      "resumeId",
			"#payload": "payload",
			"#updated": "updatedAt",
			"#version": "version",
		},
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return Resume{}, fmt.Errorf("%w: %s", ErrNotFound, resume.ID)
			}
			current, err := decodeItem(ccf.Item)
			if err != nil {
				return Resume{}, fmt.Errorf("%w: resume %s was modified concurrently", ErrConflict, resume.ID)
			}
			return Resume{}, fmt.Errorf("%w: resume %s is at version %d", ErrConflict, resume.ID, current.Version)
		}
		return Resume{}, s.classify("update item", resume.ID, err)
	}
	return decodeItem(out.Attributes)
}

// Delete removes a resume, failing with ErrNotFound if it is absent.
func (s *DynamoStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                s.tableName(),
		Key:                      s.key(id),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "resumeId"},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return s.classify("delete item", id, err)
	}
	return nil
}

// Scan pages through the table lazily; a page is fetched only when the
// previous one has been consumed.
func (s *DynamoStore) Scan(ctx context.Context) iter.Seq2[Resume, error] {
	return func(yield func(Resume, error) bool) {
		pages := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName:      s.tableName(),
			ConsistentRead: aws.Bool(true),
		})
		for pages.HasMorePages() {
			page, err := pages.NextPage(ctx)
			if err != nil {
				yield(Resume{}, s.classify("scan", "", err))
				return
			}
			for _, item := range page.Items {
				resume, err := decodeItem(item)
				if !yield(resume, err) || err != nil {
					return
				}
			}
		}
	}
}

// Ping checks that the table is reachable.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: s.tableName()})
	if err != nil {
		return s.classify("describe table", "", err)
	}
	return nil
}

func (s *DynamoStore) tableName() *string {
	return aws.String(s.table)
}

func (s *DynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"resumeId": &types.AttributeValueMemberS{Value: id},
	}
}

// classify maps SDK errors onto the store taxonomy. The table rejecting an
// item (size, shape) is the caller's fault; everything else is availability.
func (s *DynamoStore) classify(op, id string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" {
		return fmt.Errorf("%w: rejected by record store: %s", ErrInvalidPayload, apiErr.ErrorMessage())
	}
	return fmt.Errorf("%w: dynamodb %s table=%s key=%s: %v", ErrStoreUnavailable, op, s.table, id, err)
}

func decodeItem(item map[string]types.AttributeValue) (Resume, error) {
	var it dynamoItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return Resume{}, fmt.Errorf("decode resume item: %w", err)
	}
	if it.Payload == nil {
		it.Payload = Document{}
	}
	return Resume{
		ID:        it.ResumeID,
		Payload:   it.Payload,
		Version:   it.Version,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}, nil
}

var (
	_ Store  = (*DynamoStore)(nil)
	_ Pinger = (*DynamoStore)(nil)
)
