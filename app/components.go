package app

import (
	"context"
	"os"
	"strconv"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"
	"github.com/JiscSD/rdss-metadata-catalog/catalog/memstore"
	"github.com/JiscSD/rdss-metadata-catalog/catalog/pgstore"
	"github.com/JiscSD/rdss-metadata-catalog/pid"
	"github.com/JiscSD/rdss-metadata-catalog/policy"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// catalogStore opens the record store selected by the configuration. The
// returned function releases it.
func catalogStore(ctx context.Context, logger logrus.FieldLogger, config *Config) (catalog.Store, func() error, error) {
	logger = logger.WithField("component", "store")
	switch config.Catalog.Store {
	case "postgres":
		s, err := pgstore.Open(ctx, logger, config.Catalog.PostgresDSN,
			pgstore.WithNoWait(config.Catalog.LockNoWait),
			pgstore.WithLockTimeout(config.Catalog.LockTimeout))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		logger.Warn("Using the memory store, datasets will be lost on exit.")
		s := memstore.New(
			memstore.WithNoWait(config.Catalog.LockNoWait),
			memstore.WithLockTimeout(config.Catalog.LockTimeout))
		return s, func() error { return nil }, nil
	}
}

// catalogPolicies returns the catalog policy source. The registry is nil
// when the policies come from a file.
func catalogPolicies(logger logrus.FieldLogger, config *Config, dynamodbClient func() (dynamodbiface.DynamoDBAPI, error)) (catalog.CatalogLookup, *policy.Registry, error) {
	if config.Catalog.PolicyFile != "" {
		s, err := policy.LoadStatic(fs, config.Catalog.PolicyFile)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}
	client, err := dynamodbClient()
	if err != nil {
		return nil, nil, err
	}
	registry, err := policy.NewRegistry(
		logger.WithField("component", "registry"),
		client, config.Catalog.PolicyTable, config.Catalog.PolicyReloadInterval)
	if err != nil {
		return nil, nil, err
	}
	return registry, registry, nil
}

func pidIssuer(logger logrus.FieldLogger, config *Config) (catalog.PIDIssuer, error) {
	logger = logger.WithField("component", "pid")
	switch config.PID.Client {
	case "http":
		c, err := pid.NewClient(logger,
			config.PID.BaseURL, config.PID.APIKey,
			config.PID.LandingPageURL, config.PID.DOIPrefix,
			config.PID.Timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		logger.Warn("Using the dummy PID client, identifiers are not registered.")
		return pid.NewDummyClient(logger), nil
	}
}

// components holds what every command working on datasets needs.
type components struct {
	svc      *catalog.Service
	store    catalog.Store
	registry *policy.Registry
	close    func() error
}

func newComponents(
	ctx context.Context, logger logrus.FieldLogger, config *Config,
	dynamodbClient func() (dynamodbiface.DynamoDBAPI, error),
	events catalog.EventPublisher, metrics *catalog.Metrics) (*components, error) {
	store, closeStore, err := catalogStore(ctx, logger, config)
	if err != nil {
		return nil, err
	}
	policies, registry, err := catalogPolicies(logger, config, dynamodbClient)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	pids, err := pidIssuer(logger, config)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	svc := catalog.NewService(
		logger.WithField("component", "catalog"),
		store, policies, pids, events, metrics,
		catalog.WithPreservationCatalog(config.Catalog.PASCatalogID))
	return &components{
		svc:      svc,
		store:    store,
		registry: registry,
		close: func() error {
			if registry != nil {
				registry.Stop()
			}
			return closeStore()
		},
	}, nil
}

// dynamodbFactory returns a function creating the DynamoDB client once.
func dynamodbFactory(logger logrus.FieldLogger, config *Config) func() (dynamodbiface.DynamoDBAPI, error) {
	var client dynamodbiface.DynamoDBAPI
	return func() (dynamodbiface.DynamoDBAPI, error) {
		if client != nil {
			return client, nil
		}
		sess, err := awsSession(logger, config.AWS.DynamoDBProfile, config.AWS.DynamoDBEndpoint)
		if err != nil {
			return nil, errors.Wrap(err, "dynamodb session")
		}
		client = dynamodb.New(sess)
		return client, nil
	}
}

type logrusProxy struct {
	logger logrus.FieldLogger
}

func (l logrusProxy) Log(args ...interface{}) {
	l.logger.WithField("client", "aws").Debug(args...)
}

// awsSession returns a session using NewSessionWithOptions meaning that it
// relies on the SDK defaults but also the user config files and environment.
//
// AWS_DISABLE_SSL is not looked up by the SDK. It is read here so local
// emulators can be reached over plain HTTP.
func awsSession(logger logrus.FieldLogger, profile, endpoint string) (*session.Session, error) {
	options := session.Options{}
	if profile != "" {
		options.Profile = profile
	}
	if endpoint != "" {
		options.Config.WithEndpoint(endpoint)
	}
	if res, ok := os.LookupEnv("AWS_DISABLE_SSL"); ok {
		disabled, _ := strconv.ParseBool(res)
		options.Config.WithDisableSSL(disabled)
	}
	if logrus.GetLevel() == logrus.DebugLevel {
		options.Config.WithCredentialsChainVerboseErrors(true)
	}
	options.Config.WithLogger(logrusProxy{logger: logger})
	return session.NewSessionWithOptions(options)
}
