package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// userIndex is the GSI keyed on user_id
const userIndex = "user-index"

// DynamoDBAPI interface for mocking
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type DynamoDBBookingRepository struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoDBBookingRepository(client DynamoDBAPI, tableName string) *DynamoDBBookingRepository {
	return &DynamoDBBookingRepository{
		client:    client,
		tableName: tableName,
	}
}

func (d *DynamoDBBookingRepository) SaveBooking(ctx context.Context, record *BookingRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal booking: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return fmt.Errorf("%w: %s", ErrBookingExists, record.ID)
		}
		return fmt.Errorf("failed to put booking: %w", err)
	}

	return nil
}

func (d *DynamoDBBookingRepository) GetBooking(ctx context.Context, bookingID string) (*BookingRecord, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: bookingID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, bookingID)
	}

	var record BookingRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking: %w", err)
	}

	return &record, nil
}

func (d *DynamoDBBookingRepository) ListBookingsByUser(ctx context.Context, userID string) ([]*BookingRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		IndexName:              aws.String(userIndex),
		KeyConditionExpression: aws.String("user_id = :userID"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userID": &types.AttributeValueMemberS{Value: userID},
		},
	}

	var records []*BookingRecord
	for {
		result, err := d.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query bookings by user: %w", err)
		}

		for _, item := range result.Items {
			var record BookingRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, fmt.Errorf("failed to unmarshal booking: %w", err)
			}
			records = append(records, &record)
		}

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ConfirmedAt.After(records[j].ConfirmedAt)
	})

	return records, nil
}
