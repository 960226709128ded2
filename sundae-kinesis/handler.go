// Package sundaekinesis runs a callback over Kinesis records, either as a
// Lambda event source or, in console mode, by consuming the stream directly.
package sundaekinesis

import (
	"context"
	"fmt"

	sundaecli "github.com/SundaeSwap-finance/sundae-relay/sundae-cli"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	consumer "github.com/harlow/kinesis-consumer"
	"github.com/rs/zerolog"
)

type HandleMessageCallback func(ctx context.Context, record events.KinesisEventRecord) error

type Handler struct {
	Service    sundaecli.Service
	Logger     zerolog.Logger
	StreamName string // used when --stream-name is not set

	handleMessage HandleMessageCallback
}

func NewHandler(
	service sundaecli.Service,
	streamName string,
	handleMessage HandleMessageCallback,
) *Handler {
	return &Handler{
		Service:       service,
		Logger:        sundaecli.Logger(service),
		StreamName:    streamName,
		handleMessage: handleMessage,
	}
}

func (h *Handler) Start(ctx context.Context) error {
	if !sundaecli.CommonOpts.Console {
		lambda.Start(h.HandleKinesisEvent)
		return nil
	}
	return h.handleRealtime(ctx)
}

// HandleKinesisEvent stops at the first failed record so the batch is
// retried from that point.
func (h *Handler) HandleKinesisEvent(ctx context.Context, event events.KinesisEvent) error {
	ctx = h.Logger.WithContext(ctx)
	for _, r := range event.Records {
		if err := h.handleSingleEvent(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

type KinesisSequenceNumberKeyType string

var KinesisSequenceNumberKey = KinesisSequenceNumberKeyType("kinesisSequenceNumber")

func (h *Handler) handleSingleEvent(ctx context.Context, r events.KinesisEventRecord) error {
	ctx = context.WithValue(ctx, KinesisSequenceNumberKey, r.Kinesis.SequenceNumber)
	if err := h.handleMessage(ctx, r); err != nil {
		h.Logger.Error().Err(err).Str("sequence_number", r.Kinesis.SequenceNumber).Msg("failed to handle record")
		return err
	}
	return nil
}

func (h *Handler) streamName() string {
	if KinesisOpts.StreamName != "" {
		return KinesisOpts.StreamName
	}
	return h.StreamName
}

func consumerOptions() []consumer.Option {
	switch {
	case KinesisOpts.Replay && KinesisOpts.ReplayFrom.Value() != nil:
		return []consumer.Option{
			consumer.WithShardIteratorType("AT_TIMESTAMP"),
			consumer.WithTimestamp(*KinesisOpts.ReplayFrom.Value()),
		}
	case KinesisOpts.Replay:
		return []consumer.Option{consumer.WithShardIteratorType("TRIM_HORIZON")}
	default:
		return []consumer.Option{consumer.WithShardIteratorType("LATEST")}
	}
}

func (h *Handler) handleRealtime(ctx context.Context) error {
	streamName := h.streamName()
	if streamName == "" {
		return fmt.Errorf("no stream name configured")
	}

	c, err := consumer.New(streamName, consumerOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create consumer for %v: %w", streamName, err)
	}

	ctx = h.Logger.WithContext(ctx)
	callback := func(record *consumer.Record) error {
		er := events.KinesisEventRecord{
			EventSource: "aws:kinesis",
			Kinesis: events.KinesisRecord{
				Data:           record.Data,
				PartitionKey:   aws.StringValue(record.PartitionKey),
				SequenceNumber: aws.StringValue(record.SequenceNumber),
			},
		}
		return h.handleSingleEvent(ctx, er)
	}
	h.Logger.Info().Str("stream", streamName).Msg("listening")
	return c.Scan(ctx, callback)
}

