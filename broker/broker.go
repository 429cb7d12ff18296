package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/JiscSD/rdss-metadata-catalog/broker/message"
	"github.com/JiscSD/rdss-metadata-catalog/catalog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	// maxNumberOfMessages is the number of messages that we want to receive
	// from SQS incoming batches.
	maxNumberOfMessages = 1

	// waitTimeSeconds is the longest we're waiting on each SQS receive poll.
	waitTimeSeconds = 1
)

// errSeen is returned by openMessage for messages found in the local data
// repository.
var errSeen = errors.New("message seen")

// Broker receives lifecycle commands from SQS and publishes events to SNS.
//
// Messages are received from sqsQueueMainURL and sent to an internal channel
// (messages). The channel is unbuffered so the receiver controls how often we
// are going to receive from SQS. processMessage is launched on a new
// goroutine for each message received.
//
// The message processor will:
//
// * Extract, validate and unmarshal the message payload.
//
// * Reject expired messages and messages that have been received before.
//
// * Run the handler subscribed to the message type and capture the returned
// error.
//
// Malformed messages go to the Invalid Message topic and handler failures to
// the Error Message topic, tagged with the kind of the failure. Failures the
// catalog reports as retryable (a PID service outage, a busy dataset) are
// left in the queue and forgotten by the local data repository so the
// redelivery that follows the visibility timeout is processed again.
type Broker struct {
	logger             logrus.FieldLogger
	validator          message.Validator
	sqsClient          sqsiface.SQSAPI
	sqsQueueMainURL    string
	snsClient          snsiface.SNSAPI
	snsTopicMainARN    string
	snsTopicInvalidARN string
	snsTopicErrorARN   string
	ctx                context.Context
	cancel             context.CancelFunc
	messages           chan *sqs.Message
	stop               chan chan struct{}
	processorDone      chan struct{}
	inflight           sync.WaitGroup
	incomingMessages   prometheus.Counter
	now                func() time.Time
	subscriptions
	repository
}

// New returns a usable Broker.
func New(
	logger logrus.FieldLogger, validator message.Validator,
	sqsClient sqsiface.SQSAPI, sqsQueueMainURL string,
	snsClient snsiface.SNSAPI, snsTopicMainARN, snsTopicInvalidARN, snsTopicErrorARN string,
	dynamodbClient dynamodbiface.DynamoDBAPI, dynamodbTable string,
	incomingMessages prometheus.Counter) *Broker {
	b := &Broker{
		logger:             logger,
		validator:          validator,
		sqsClient:          sqsClient,
		sqsQueueMainURL:    sqsQueueMainURL,
		snsTopicMainARN:    snsTopicMainARN,
		snsTopicInvalidARN: snsTopicInvalidARN,
		snsTopicErrorARN:   snsTopicErrorARN,
		snsClient:          snsClient,
		messages:           make(chan *sqs.Message),
		stop:               make(chan chan struct{}),
		processorDone:      make(chan struct{}),
		incomingMessages:   incomingMessages,
		now:                time.Now,
		repository:         repository{client: dynamodbClient, table: dynamodbTable},
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.subscriptions.s = make(map[message.MessageTypeEnum]MessageHandler)

	go b.processor()

	return b
}

// Run starts the processing.
func (b *Broker) Run() {
	b.loop()
}

// processor of delivered messages. Processing is performed in two phases:
//
// Phase 1: extract the payload, validate it and store the ID in the local data
// repository. This is a blocking operation because we want to prevent the
// consuming from processing until we have a chance to update the local data
// repository.
//
// Phase 2: launch a goroutine to handle the message to a handler and perform
// the rest of the processing asynchronously.
func (b *Broker) processor() {
	defer close(b.processorDone)
	for m := range b.messages {
		msg, err := b.openMessage(m)
		if err != nil {
			b.deleteMessage(m.ReceiptHandle)
			continue
		}
		b.inflight.Add(1)
		go func(receiptHandle *string) {
			defer b.inflight.Done()
			b.processMessage(receiptHandle, msg)
		}(m.ReceiptHandle)
	}
}

// loop sends messages received from sqsQueueMainURL to the internal messages
// channel which is unbuffered so the receiver has control over how often we
// receive.
func (b *Broker) loop() {
	for {
		select {
		case ch := <-b.stop:
			close(b.messages)
			<-b.processorDone
			b.inflight.Wait()
			b.cancel()
			close(ch)
			return
		default:
			out, err := b.sqsClient.ReceiveMessageWithContext(b.ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(b.sqsQueueMainURL),
				MaxNumberOfMessages: aws.Int64(maxNumberOfMessages),
				WaitTimeSeconds:     aws.Int64(waitTimeSeconds),
			})
			if err != nil {
				b.logger.Errorf("Error receiving a message from SQS: %s", err)
				time.Sleep(1 * time.Second)
			} else {
				for _, m := range out.Messages {
					b.messages <- m
				}
			}
		}
	}
}

// openMessage performs initial validation and returns the underlying
// message.
func (b *Broker) openMessage(m *sqs.Message) (*message.Message, error) {
	b.incomingMessages.Inc()

	if m.Body == nil {
		err := errors.New("message body is empty")
		b.logger.Warning(err)
		return nil, err
	}
	var stream = []byte(*m.Body)

	// We give up when the validator reports validation issues, but we'll
	// continue in case of other errors.
	result, err := b.validator.Validate(b.ctx, stream)
	var validErr = &message.ValidationError{}
	if errors.As(err, validErr) {
		b.invalidMessage(m, message.NewError(message.ErrorCodeInvalidMessage, err))
		b.logger.Warning("Validator reported schema issues: ", validErr)
		return nil, err
	}
	if err != nil {
		b.logger.Warning("Validator reported a problem: ", err)
	} else {
		stream = result // Use the validator stream only if error-free.
	}

	// Payload unmarshal.
	msg := &message.Message{}
	if err := json.Unmarshal(stream, msg); err != nil {
		b.invalidMessage(m, message.NewError(message.ErrorCodeInvalidMessage, err))
		return nil, err
	}

	if msg.MessageHeader.Version != message.Version {
		err := fmt.Errorf("version %s is not supported, only %s", msg.MessageHeader.Version, message.Version)
		b.invalidMessage(m, message.NewError(message.ErrorCodeInvalidMessage, err))
		return nil, err
	}

	if msg.MessageHeader.MessageTimings.Expired(b.now()) {
		err := fmt.Errorf("message %s expired", msg.ID())
		b.invalidMessage(m, message.NewError(message.ErrorCodeInvalidMessage, err))
		return nil, err
	}

	seen, err := b.seenBeforeOrStore(b.ctx, msg)
	if err != nil {
		b.logger.Warning("Local data repository check failed: ", err)
		return nil, err
	}

	// Giving up on known messages.
	if seen {
		b.logger.WithField("messageID", msg.ID()).Warning("Message found in the local data repository.")
		return nil, errSeen
	}

	return msg, nil
}

// processMessage handles the message to the handler. The message is deleted
// from the queue unless the handler failed with a retryable error.
func (b *Broker) processMessage(receiptHandle *string, msg *message.Message) {
	logger := b.logger.WithFields(logrus.Fields{
		"messageID": msg.ID(),
		"type":      msg.MessageHeader.MessageType.String(),
		"class":     msg.MessageHeader.MessageClass.String(),
	})

	var (
		err error
		wg  sync.WaitGroup
	)

	// Run the handler in panic recovery mode.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				err = message.NewError(
					message.ErrorCodeHandlerPanic,
					fmt.Errorf("handler goroutine panic! %s %s", r, debug.Stack()))
			}
		}()
		err = b.handleMessage(b.ctx, msg)
	}()
	wg.Wait()

	if err == nil {
		b.deleteMessage(receiptHandle)
		return
	}

	if catalog.IsRetryable(err) {
		logger.Warning("Handler failure, the message will be delivered again: ", err)
		if ferr := b.forget(b.ctx, msg); ferr != nil {
			logger.Error("Message could not be removed from the local data repository: ", ferr)
		}
		return
	}

	logger.Error("Handler failure: ", err)
	b.errorMessage(msg, err, receiptHandle)
}

// deleteMessage does best effort to delete a message from SQS. It does not
// return since we're not reacting to them at the moment.
func (b *Broker) deleteMessage(receiptHandle *string) {
	_, err := b.sqsClient.DeleteMessageWithContext(b.ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.sqsQueueMainURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		b.logger.Error("Message could not be removed from SQS: ", err)
	}
}

// publishMessage puts a message into a SNS topic.
func (b *Broker) publishMessage(ctx context.Context, topicARN string, payload string) error {
	_, err := b.snsClient.PublishWithContext(ctx, &sns.PublishInput{
		Message:  aws.String(payload),
		TopicArn: aws.String(topicARN),
	})
	return err
}

// invalidMessage puts a message into the Invalid Message Queue.
func (b *Broker) invalidMessage(m *sqs.Message, specErr error) {
	arn := b.snsTopicInvalidARN
	if arn == "" {
		b.logger.WithField("error-queue", "invalid[disabled]").Warn(specErr)
		return
	}

	if err := b.publishMessage(b.ctx, arn, *m.Body); err != nil {
		b.logger.Error("A message could not be sent to the Invalid Message Queue: ", err)
		return
	}
	b.logger.Debug("Message sent to the Invalid Message Queue")
}

// errorMessage puts a message into the Error Message Queue.
func (b *Broker) errorMessage(msg *message.Message, specErr error, receiptHandle *string) {
	defer b.deleteMessage(receiptHandle)

	arn := b.snsTopicErrorARN
	if arn == "" {
		b.logger.WithField("error-queue", "error[disabled]").Warn(specErr)
		return
	}

	msg.TagError(specErr)
	logger := b.logger.WithFields(logrus.Fields{"id": msg.ID(), "errorCode": msg.MessageHeader.ErrorCode})
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("A message could not be marshalled before sending to the Error Message Queue: ", err)
		return
	}
	if err = b.publishMessage(b.ctx, arn, string(data)); err != nil {
		logger.Error("A message could not be sent to the Error Message Queue: ", err)
		return
	}
	logger.Debug("Message sent to the Error Message Queue")
}

// Stop blocks until the broker terminates. Handlers already running are
// given the chance to complete.
func (b *Broker) Stop() {
	ch := make(chan struct{})
	b.stop <- ch
	<-ch
}
