package main

import (
	"fmt"

	sundaecli "github.com/SundaeSwap-finance/sundae-relay/sundae-cli"
	sundaeddb "github.com/SundaeSwap-finance/sundae-relay/sundae-ddb"
	sundaerelay "github.com/SundaeSwap-finance/sundae-relay/sundae-relay"
	"github.com/SundaeSwap-finance/sundae-relay/sundae-relay/connectiondao"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func newSession() (*session.Session, error) {
	config := aws.NewConfig()
	if RelayOpts.Region != "" {
		config = config.WithRegion(RelayOpts.Region)
	}
	s, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return s, nil
}

func newRegistry(s *session.Session) (*connectiondao.DAO, error) {
	api, err := sundaeddb.DynamoDBAPI(s)
	if err != nil {
		return nil, err
	}
	return connectiondao.Build(api, sundaecli.CommonOpts.Env, sundaeddb.DDBOpts.TableName), nil
}

// newMetrics returns nil in console mode, which disables publishing.
func newMetrics(s *session.Session) *sundaecli.Metrics {
	if sundaecli.CommonOpts.Console || s == nil {
		return nil
	}
	return sundaecli.NewMetrics(service, cloudwatch.New(s))
}

func newChannel(s *session.Session) (*sundaerelay.GatewayChannel, error) {
	endpoint := RelayOpts.Endpoint
	if endpoint == "" {
		if RelayOpts.APIID == "" || aws.StringValue(s.Config.Region) == "" {
			return nil, fmt.Errorf("--api-id and --region are required unless --endpoint is set")
		}
		endpoint = sundaerelay.Endpoint(RelayOpts.APIID, aws.StringValue(s.Config.Region), RelayOpts.Stage)
	}
	return sundaerelay.BuildGatewayChannel(s, endpoint), nil
}

func newBroadcaster(logger zerolog.Logger, registry sundaerelay.Registry, channel sundaerelay.Channel, metrics *sundaecli.Metrics) (*sundaerelay.Broadcaster, error) {
	policy, err := sundaerelay.ParsePrunePolicy(RelayOpts.PrunePolicy)
	if err != nil {
		return nil, err
	}
	return &sundaerelay.Broadcaster{
		Connections: registry,
		Channel:     channel,
		Logger:      logger,
		Metrics:     metrics,
		Concurrency: RelayOpts.Concurrency,
		Policy:      policy,
	}, nil
}

func newHandler(logger zerolog.Logger, registry sundaerelay.Registry, broadcaster *sundaerelay.Broadcaster) *sundaerelay.Handler {
	return &sundaerelay.Handler{
		Connections: registry,
		Broadcaster: broadcaster,
		Logger:      logger,
		Clock:       clockwork.NewRealClock(),
		ConnTTL:     RelayOpts.ConnTTL,
	}
}

// requireLambdaConfig checks what serve needs before the first event
// arrives; a missing value is fatal at startup.
func requireLambdaConfig() error {
	var missing []string
	if RelayOpts.Region == "" {
		missing = append(missing, "--region")
	}
	if RelayOpts.APIID == "" && RelayOpts.Endpoint == "" {
		missing = append(missing, "--api-id")
	}
	if sundaeddb.DDBOpts.TableName == "" {
		missing = append(missing, "--table-name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	return nil
}
