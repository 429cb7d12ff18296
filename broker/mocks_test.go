package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
)

// sqsMock delivers the bodies queued once and records deletions.
type sqsMock struct {
	sqsiface.SQSAPI
	mu      sync.Mutex
	queue   []string
	n       int
	deleted []string
}

func (m *sqsMock) push(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, body)
}

func (m *sqsMock) deletedHandles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *sqsMock) ReceiveMessageWithContext(aws.Context, *sqs.ReceiveMessageInput, ...request.Option) (*sqs.ReceiveMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		time.Sleep(time.Millisecond)
		return &sqs.ReceiveMessageOutput{}, nil
	}
	body := m.queue[0]
	m.queue = m.queue[1:]
	m.n++
	return &sqs.ReceiveMessageOutput{
		Messages: []*sqs.Message{{Body: aws.String(body), ReceiptHandle: aws.String(fmt.Sprintf("rh-%d", m.n))}},
	}, nil
}

func (m *sqsMock) DeleteMessageWithContext(_ aws.Context, in *sqs.DeleteMessageInput, _ ...request.Option) (*sqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, aws.StringValue(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

// snsMock records published messages. errs are returned by the first calls.
type snsMock struct {
	snsiface.SNSAPI
	mu        sync.Mutex
	errs      []error
	calls     int
	published []*sns.PublishInput
}

func (m *snsMock) PublishWithContext(_ aws.Context, in *sns.PublishInput, _ ...request.Option) (*sns.PublishOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	m.published = append(m.published, in)
	return &sns.PublishOutput{MessageId: aws.String("sns-id")}, nil
}

func (m *snsMock) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var topics []string
	for _, in := range m.published {
		topics = append(topics, aws.StringValue(in.TopicArn))
	}
	return topics
}

// dynaMock keeps items in memory keyed by their ID attribute.
type dynaMock struct {
	dynamodbiface.DynamoDBAPI
	mu    sync.Mutex
	err   error
	items map[string]map[string]*dynamodb.AttributeValue
}

func newDynaMock() *dynaMock {
	return &dynaMock{items: map[string]map[string]*dynamodb.AttributeValue{}}
}

func (m *dynaMock) GetItemWithContext(_ aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &dynamodb.GetItemOutput{Item: m.items[aws.StringValue(in.Key["ID"].S)]}, nil
}

func (m *dynaMock) PutItemWithContext(_ aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.items[aws.StringValue(in.Item["ID"].S)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *dynaMock) DeleteItemWithContext(_ aws.Context, in *dynamodb.DeleteItemInput, _ ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	delete(m.items, aws.StringValue(in.Key["ID"].S))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *dynaMock) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[id]
	return ok
}
