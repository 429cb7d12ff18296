package broker

import (
	"context"

	"github.com/JiscSD/rdss-metadata-catalog/broker/message"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
)

// repositoryMessage is a minified version of message.Message stored in the
// local data repository.
type repositoryMessage struct {
	MessageID    string                 `dynamodbav:"ID"`
	MessageClass string                 `dynamodbav:"messageClass"`
	MessageType  string                 `dynamodbav:"messageType"`
	Sequence     string                 `dynamodbav:"sequence"`
	Position     int                    `dynamodbav:"position"`
	Status       repositoryMessageState `dynamodbav:"status"`
}

type repositoryMessageState int

const (
	_                              repositoryMessageState = iota
	repositoryMessageStateReceived repositoryMessageState = iota
	repositoryMessageStateSent
	repositoryMessageStateToSend
)

func (s repositoryMessageState) String() string {
	switch s {
	case repositoryMessageStateReceived:
		return "RECEIVED"
	case repositoryMessageStateSent:
		return "SENT"
	case repositoryMessageStateToSend:
		return "TO_SEND"
	default:
		return "UNKNOWN"
	}
}

// repository remembers the messages received so redeliveries and replays
// are not processed twice. The table is keyed by message ID.
type repository struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// seenBeforeOrStore decides whether a message is known to this repository.
func (r *repository) seenBeforeOrStore(ctx context.Context, m *message.Message) (bool, error) {
	item, err := r.getRecord(ctx, m.ID())
	if err != nil {
		return false, err
	}
	if item != nil {
		return true, nil
	}
	if err := r.putRecord(ctx, m, repositoryMessageStateReceived); err != nil {
		return false, err
	}
	return false, nil
}

// forget removes the record of a message so its next delivery is processed.
func (r *repository) forget(ctx context.Context, m *message.Message) error {
	_, err := r.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {S: aws.String(m.ID())},
		},
	})
	return errors.Wrap(err, "delete item")
}

func (r *repository) getRecord(ctx context.Context, ID string) (*repositoryMessage, error) {
	output, err := r.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {S: aws.String(ID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "get item")
	}
	if output.Item == nil {
		return nil, nil
	}
	msg := &repositoryMessage{}
	if err := dynamodbattribute.UnmarshalMap(output.Item, msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal item")
	}
	return msg, nil
}

func (r *repository) putRecord(ctx context.Context, m *message.Message, status repositoryMessageState) error {
	rMsg, err := toRepoMessage(m)
	if err != nil {
		return err
	}
	rMsg.Status = status
	item, err := dynamodbattribute.MarshalMap(rMsg)
	if err != nil {
		return errors.Wrap(err, "marshal item")
	}
	_, err = r.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	return errors.Wrap(err, "put item")
}

func toRepoMessage(m *message.Message) (*repositoryMessage, error) {
	if m == nil {
		return nil, errors.New("message is nil")
	}
	return &repositoryMessage{
		MessageID:    m.ID(),
		MessageClass: m.MessageHeader.MessageClass.String(),
		MessageType:  m.MessageHeader.MessageType.String(),
		Sequence:     m.MessageHeader.MessageSequence.Sequence.String(),
		Position:     m.MessageHeader.MessageSequence.Position,
	}, nil
}
