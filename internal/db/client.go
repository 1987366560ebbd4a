// Package db stores session registry records in a DynamoDB single-table layout.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key prefixes for single-table design
const (
	PKSessions      = "SESSION#"
	SKPrefixSession = "SESSION#"
)

// DynamoDBClient defines the interface for DynamoDB operations
type DynamoDBClient interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Client wraps DynamoDB operations on the sessions table
type Client struct {
	ddb       DynamoDBClient
	tableName string
	now       func() time.Time
}

// NewClient creates a new Client from an instrumented AWS config
func NewClient(cfg aws.Config, tableName string) *Client {
	return &Client{
		ddb:       dynamodb.NewFromConfig(cfg),
		tableName: tableName,
		now:       time.Now,
	}
}

// SessionUsage is the usage bookkeeping stored on a session record
type SessionUsage struct {
	PK          string `dynamodbav:"pk"`
	SK          string `dynamodbav:"sk"`
	FirstUsedAt string `dynamodbav:"firstUsedAt"`
	LastUsedAt  string `dynamodbav:"lastUsedAt"`
	UseCount    int64  `dynamodbav:"useCount"`
}

// QueryByPK returns every item under the partition key, following pagination
func (c *Client) QueryByPK(ctx context.Context, pk string) ([]map[string]types.AttributeValue, error) {
	keyCond := expression.Key("pk").Equal(expression.Value(pk))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		output, err := c.ddb.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(c.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", pk, err)
		}
		items = append(items, output.Items...)
		if len(output.LastEvaluatedKey) == 0 {
			return items, nil
		}
		startKey = output.LastEvaluatedKey
	}
}

// RecordSessionUse updates the usage bookkeeping of an existing session record.
// firstUsedAt is set only once; lastUsedAt and useCount change on every call.
// Sessions without a record are not tracked and return nil usage.
func (c *Client) RecordSessionUse(ctx context.Context, sessionKey string) (*SessionUsage, error) {
	now := c.now().UTC().Format(time.RFC3339)

	key, err := attributevalue.MarshalMap(map[string]string{
		"pk": PKSessions,
		"sk": SKPrefixSession + sessionKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	update := expression.Set(
		expression.Name("firstUsedAt"),
		expression.IfNotExists(expression.Name("firstUsedAt"), expression.Value(now)),
	).Set(
		expression.Name("lastUsedAt"),
		expression.Value(now),
	).Add(
		expression.Name("useCount"),
		expression.Value(1),
	)

	// Only update records the registry owns; an upsert would leave a session with no role
	cond := expression.AttributeExists(expression.Name("sk"))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	output, err := c.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.tableName),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to record session use: %w", err)
	}

	var usage SessionUsage
	if err := attributevalue.UnmarshalMap(output.Attributes, &usage); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session usage: %w", err)
	}
	return &usage, nil
}
