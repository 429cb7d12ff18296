package adapter

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

// ErrUnknownMessage is returned by Storage when no dataset was recorded for
// a message.
var ErrUnknownMessage = errors.New("unknown message")

// Storage remembers the dataset produced by each command message.
type Storage interface {
	AssociateDataset(ctx context.Context, messageID string, datasetID string) error
	GetDataset(ctx context.Context, messageID string) (string, error)
}

type storageDynamoDBImpl struct {
	DynamoDB dynamodbiface.DynamoDBAPI
	Table    string
}

var _ Storage = (*storageDynamoDBImpl)(nil)

func NewStorageDynamoDB(client dynamodbiface.DynamoDBAPI, table string) *storageDynamoDBImpl {
	return &storageDynamoDBImpl{
		DynamoDB: client,
		Table:    table,
	}
}

type storageItem struct {
	MessageID string `dynamodbav:"messageID"`
	DatasetID string `dynamodbav:"datasetID"`
}

func (s *storageDynamoDBImpl) AssociateDataset(ctx context.Context, messageID string, datasetID string) error {
	si := &storageItem{
		MessageID: messageID,
		DatasetID: datasetID,
	}
	item, err := dynamodbattribute.MarshalMap(si)
	if err != nil {
		return err
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.Table),
		Item:      item,
	}
	_, err = s.DynamoDB.PutItemWithContext(ctx, input)
	return err
}

func (s *storageDynamoDBImpl) GetDataset(ctx context.Context, messageID string) (string, error) {
	var input = &dynamodb.GetItemInput{
		TableName: aws.String(s.Table),
		Key: map[string]*dynamodb.AttributeValue{
			"messageID": {S: aws.String(messageID)},
		},
	}
	output, err := s.DynamoDB.GetItemWithContext(ctx, input)
	if err != nil {
		return "", err
	}
	if output.Item == nil {
		return "", ErrUnknownMessage
	}
	si := &storageItem{}
	if err := dynamodbattribute.UnmarshalMap(output.Item, si); err != nil {
		return "", err
	}
	return si.DatasetID, nil
}
