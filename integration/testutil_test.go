package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/JiscSD/rdss-metadata-catalog/broker/message"
	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/internal/testutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/google/uuid"
)

func awsSession(endpoint string) *session.Session {
	config := aws.NewConfig()
	config = config.WithEndpoint(endpoint)
	config = config.WithRegion(awsRegion)
	if *flagDebug {
		config = config.WithLogLevel(aws.LogDebugWithHTTPBody)
	}
	config = config.WithCredentials(credentials.NewStaticCredentials(
		awsAccessKeyID, awsSecretAccessKey, awsTokenKey))
	config.DisableSSL = aws.Bool(true)
	return session.Must(session.NewSession(config))
}

func dynamodbClient() *dynamodb.DynamoDB {
	return dynamodb.New(awsSession(awsDynamoDBEndpoint))
}

func sqsClient() *sqs.SQS {
	return sqs.New(awsSession(awsSQSEndpoint))
}

func snsClient() *sns.SNS {
	return sns.New(awsSession(awsSNSEndpoint))
}

// sendMessage sends a message to the main queue.
func sendMessage(t *testing.T, body string) {
	t.Helper()
	_, err := awsSQSClient.SendMessage(&sqs.SendMessageInput{
		QueueUrl:    aws.String(awsQueueMain),
		MessageBody: aws.String(body),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func purgeQueue(t *testing.T, queueURL string) {
	t.Helper()
	_, err := awsSQSClient.PurgeQueue(&sqs.PurgeQueueInput{
		QueueUrl: aws.String(queueURL),
	})
	if err != nil {
		t.Fatal("Cannot purge the queue: ", err)
	}
}

// purgeDynamoDBTable deletes every item of a table keyed by a string
// attribute.
func purgeDynamoDBTable(t *testing.T, table, key string) {
	t.Helper()
	err := awsDynamoDBClient.ScanPages(&dynamodb.ScanInput{
		TableName:            aws.String(table),
		ProjectionExpression: aws.String("#k"),
		ExpressionAttributeNames: map[string]*string{
			"#k": aws.String(key),
		},
	}, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		for _, item := range page.Items {
			_, err := awsDynamoDBClient.DeleteItem(&dynamodb.DeleteItemInput{
				TableName: aws.String(table),
				Key:       map[string]*dynamodb.AttributeValue{key: item[key]},
			})
			if err != nil {
				t.Errorf("Cannot delete item from %s: %v", table, err)
				return false
			}
		}
		return true
	})
	if err != nil {
		t.Fatalf("Cannot scan table %s: %v", table, err)
	}
}

// writePolicies writes the catalog policies used by the server to a
// temporary file and returns its path.
func writePolicies(t *testing.T) string {
	t.Helper()
	catalogs := testutil.Catalogs()
	var policies []*catalog.CatalogPolicy
	for _, id := range []string{testutil.CatalogIDA, testutil.CatalogHarvested, testutil.CatalogPAS} {
		p, err := catalogs.Catalog(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		policies = append(policies, p)
	}
	blob, err := json.Marshal(policies)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "policies.json")
	if err := os.WriteFile(path, blob, 0600); err != nil {
		t.Fatal("Cannot write catalog policies:", err)
	}
	return path
}

// newDatasetCreateMessage returns the create command fixture with a fresh
// message id so the local data repository does not reject it.
func newDatasetCreateMessage(t *testing.T, title string) *message.Message {
	t.Helper()
	m := &message.Message{}
	if err := json.Unmarshal(testutil.Fixture(t, "messages/dataset_create.json"), m); err != nil {
		t.Fatal("Cannot unmarshal dataset_create.json fixture:", err)
	}
	m.MessageHeader.ID = uuid.New()
	body, err := m.DatasetCreateRequest()
	if err != nil {
		t.Fatal("Cannot read DatasetCreate body:", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(body.Dataset, &doc); err != nil {
		t.Fatal(err)
	}
	doc["title"] = map[string]string{"en": title}
	if body.Dataset, err = json.Marshal(doc); err != nil {
		t.Fatal(err)
	}
	return m
}

// newCorrelatedMessage returns a command acting on the dataset produced by
// the command correlated.
func newCorrelatedMessage(t message.MessageTypeEnum, correlated *message.Message) *message.Message {
	m := message.New(t, message.MessageClassCommand)
	id := correlated.MessageHeader.ID
	m.MessageHeader.CorrelationID = &id
	return m
}

func encode(t *testing.T, m *message.Message) string {
	t.Helper()
	blob, err := json.Marshal(m)
	if err != nil {
		t.Fatal("Cannot marshal message:", err)
	}
	return string(blob)
}
