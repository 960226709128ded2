package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	sundaecli "github.com/SundaeSwap-finance/sundae-relay/sundae-cli"
	sundaecron "github.com/SundaeSwap-finance/sundae-relay/sundae-cron"
	sundaeddb "github.com/SundaeSwap-finance/sundae-relay/sundae-ddb"
	sundaekinesis "github.com/SundaeSwap-finance/sundae-relay/sundae-kinesis"
	sundaerelay "github.com/SundaeSwap-finance/sundae-relay/sundae-relay"
	"github.com/SundaeSwap-finance/sundae-relay/sundae-relay/connectiondao"
	"github.com/SundaeSwap-finance/sundae-relay/sundae-relay/localgateway"
	"github.com/SundaeSwap-finance/sundae-relay/sundae-relay/publish"
	sundaereport "github.com/SundaeSwap-finance/sundae-relay/sundae-report"
	sundaerest "github.com/SundaeSwap-finance/sundae-relay/sundae-rest"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v2"
)

var service = sundaecli.NewService("sundae-relay")

func main() {
	app := sundaecli.App(service, nil, sundaecli.CommonFlags...)
	app.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "handle WebSocket events (Lambda), or run a local gateway with --console",
			Action: serve,
			Flags: append(
				append([]cli.Flag{sundaecli.PortFlag(3000), ConnTTLFlag}, DeliveryFlags...),
				sundaeddb.DDBFlags...,
			),
		},
		{
			Name:   "dispatch",
			Usage:  "broadcast messages published to the relay stream",
			Action: dispatch,
			Flags: append(
				append(append([]cli.Flag{}, DeliveryFlags...), sundaeddb.DDBFlags...),
				sundaekinesis.KinesisFlags...,
			),
		},
		{
			Name:   "sweep",
			Usage:  "delete expired connection records",
			Action: sweep,
			Flags: append(
				append([]cli.Flag{RegionFlag}, sundaeddb.DDBFlags...),
				sundaereport.ReportFlags...,
			),
		},
		{
			Name:   "publish",
			Usage:  "publish a message to the relay stream",
			Action: publishMessage,
			Flags:  []cli.Flag{RegionFlag, sundaekinesis.StreamNameFlag, UsernameFlag, MessageFlag},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalln(err)
	}
}

func serve(c *cli.Context) error {
	if sundaecli.CommonOpts.Console {
		return serveConsole(c.Context)
	}

	if err := requireLambdaConfig(); err != nil {
		return err
	}
	logger := sundaecli.Logger(service)
	s, err := newSession()
	if err != nil {
		return err
	}
	registry, err := newRegistry(s)
	if err != nil {
		return err
	}
	channel, err := newChannel(s)
	if err != nil {
		return err
	}
	broadcaster, err := newBroadcaster(logger, registry, channel, newMetrics(s))
	if err != nil {
		return err
	}

	lambda.Start(newHandler(logger, registry, broadcaster).HandleEvent)
	return nil
}

// serveConsole runs the local gateway. The registry is in memory unless a
// table or DynamoDB endpoint is configured.
func serveConsole(ctx context.Context) error {
	logger := sundaecli.Logger(service)

	var registry sundaerelay.Registry = connectiondao.NewMemory()
	if sundaeddb.DDBOpts.TableName != "" || sundaeddb.DDBOpts.Endpoint != "" {
		s, err := newSession()
		if err != nil {
			return err
		}
		dao, err := newRegistry(s)
		if err != nil {
			return err
		}
		logger.Info().Str("table", dao.TableName()).Msg("using dynamodb registry")
		registry = dao
	}

	gateway := localgateway.New(logger, clockwork.NewRealClock())
	broadcaster, err := newBroadcaster(logger, registry, gateway, nil)
	if err != nil {
		return err
	}
	gateway.Handler = newHandler(logger, registry, broadcaster).HandleEvent

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return sundaerest.Webserver(ctx, logger, sundaecli.CommonOpts.Port, gateway.Routes())
}

func dispatch(c *cli.Context) error {
	logger := sundaecli.Logger(service)
	s, err := newSession()
	if err != nil {
		return err
	}
	registry, err := newRegistry(s)
	if err != nil {
		return err
	}
	channel, err := newChannel(s)
	if err != nil {
		return err
	}
	broadcaster, err := newBroadcaster(logger, registry, channel, newMetrics(s))
	if err != nil {
		return err
	}
	dispatcher := &sundaerelay.Dispatcher{Broadcaster: broadcaster, Logger: logger}

	handler := sundaekinesis.NewHandler(service, publish.StreamName(sundaecli.CommonOpts.Env),
		func(ctx context.Context, record events.KinesisEventRecord) error {
			err := dispatcher.HandleRecord(ctx, record)
			if err != nil && !sundaerelay.Retryable(err) {
				logger.Warn().Err(err).Str("event_id", record.EventID).Msg("skipping record")
				return nil
			}
			return err
		},
	)
	return handler.Start(c.Context)
}

func sweep(c *cli.Context) error {
	logger := sundaecli.Logger(service)
	s, err := newSession()
	if err != nil {
		return err
	}
	registry, err := newRegistry(s)
	if err != nil {
		return err
	}
	sweeper := &sundaerelay.Sweeper{
		Connections: registry,
		Logger:      logger,
		Metrics:     newMetrics(s),
		Clock:       clockwork.NewRealClock(),
		Dry:         sundaecli.CommonOpts.Dry,
	}

	reports := sundaereport.BuildWriter(s, service)

	handler := sundaecron.NewHandler(service, func(ctx context.Context) error {
		result, err := sweeper.Sweep(ctx)
		if reports.Enabled() {
			if rerr := reports.Write(ctx, "connections", result); rerr != nil {
				logger.Warn().Err(rerr).Msg("failed to write connections report")
			}
		}
		return err
	})
	return handler.Start(c.Context)
}

func publishMessage(c *cli.Context) error {
	msg := sundaerelay.Message{
		Action:   sundaerelay.RouteSendMessage,
		Username: PublishOpts.Username,
		Content:  sundaerelay.TextContent(PublishOpts.Message),
	}
	if sundaecli.CommonOpts.Dry {
		data, err := msg.Encode()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	s, err := newSession()
	if err != nil {
		return err
	}
	publisher := publish.Build(s, sundaecli.CommonOpts.Env, sundaekinesis.KinesisOpts.StreamName)
	return publisher.Send(c.Context, msg)
}
