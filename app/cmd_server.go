package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/JiscSD/rdss-metadata-catalog/adapter"
	"github.com/JiscSD/rdss-metadata-catalog/broker"
	"github.com/JiscSD/rdss-metadata-catalog/broker/message"
	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/document"
	"github.com/JiscSD/rdss-metadata-catalog/version"

	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewCmdServer(logger logrus.FieldLogger, config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the application server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.WithField("v", version.VERSION).Info("Starting server...")
			return doServer(logger, config)
		},
	}
}

func doServer(logger logrus.FieldLogger, config *Config) error {
	a, c, err := server(logger, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.close(); err != nil {
			logger.WithError(err).Error("Catalog store could not be closed.")
		}
	}()

	var g run.Group
	{
		g.Add(func() error {
			a.Run()
			return nil
		}, func(error) {
			a.Stop()
		})
	}
	{
		ln, err := net.Listen("tcp", ":6060")
		if err != nil {
			return err
		}
		logger.WithField("addr", ln.Addr().String()).Info("HTTP server listening")

		g.Add(func() error {
			mux := http.NewServeMux()

			// Health check.
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "OK")
			})

			// Prometheus metrics.
			mux.Handle("/metrics", promhttp.Handler())

			// Profiling data.
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
			mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
			mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))

			return http.Serve(ln, mux)
		}, func(error) {
			ln.Close()
		})
	}
	{
		cancel := make(chan struct{})

		g.Add(func() error {
			err := interrupt(cancel, c.registry)
			logger.Warn("Shutting down...")
			return err
		}, func(error) {
			close(cancel)
		})
	}

	return g.Run()
}

func server(logger logrus.FieldLogger, config *Config) (*adapter.Adapter, *components, error) {
	incomingMessages := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rdss_metadata_catalog",
		Name:      "incoming_messages_total",
		Help:      "The total number of messages received.",
	})
	prometheus.MustRegister(incomingMessages)

	dynamodbClient := dynamodbFactory(logger, config)

	documents, err := document.NewValidator()
	if err != nil {
		return nil, nil, err
	}

	var validator message.Validator
	{
		if config.Broker.Validation == "disabled" {
			logger.Warn("Message validation is disabled.")
			validator = message.NewNoOpValidator()
		} else {
			validator = message.NewSchemaValidator(documents)
		}
	}

	var brClient *broker.Broker
	{
		sess, err := awsSession(logger, config.AWS.SQSProfile, config.AWS.SQSEndpoint)
		if err != nil {
			return nil, nil, err
		}
		sqsClient := sqs.New(sess)

		sess, err = awsSession(logger, config.AWS.SNSProfile, config.AWS.SNSEndpoint)
		if err != nil {
			return nil, nil, err
		}
		snsClient := sns.New(sess)

		client, err := dynamodbClient()
		if err != nil {
			return nil, nil, err
		}

		brClient = broker.New(
			logger.WithField("component", "broker"), validator,
			sqsClient, config.Broker.QueueRecvMainAddr,
			snsClient, config.Broker.QueueSendMainAddr, config.Broker.QueueSendInvalidAddr, config.Broker.QueueSendErrorAddr,
			client, config.Broker.RepositoryTable,
			incomingMessages)
	}

	metrics := catalog.NewMetrics()
	metrics.MustRegister(prometheus.DefaultRegisterer)

	c, err := newComponents(context.Background(), logger, config, dynamodbClient, brClient, metrics)
	if err != nil {
		brClient.Stop()
		return nil, nil, errors.Wrap(err, "catalog could not be set up")
	}

	var storage adapter.Storage
	{
		client, err := dynamodbClient()
		if err != nil {
			return nil, nil, err
		}
		storage = adapter.NewStorageDynamoDB(client, config.Broker.CommandsTable)
	}

	return adapter.New(logger.WithField("component", "adapter"), brClient, c.svc, documents, storage), c, nil
}
