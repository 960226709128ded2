package sundaerelay

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
)

// Dispatcher broadcasts messages that back-end services published to the
// relay's Kinesis stream, so a broadcast need not originate from a client.
type Dispatcher struct {
	Broadcaster *Broadcaster
	Logger      zerolog.Logger
}

// HandleRecord decodes and broadcasts a single Kinesis record.
func (d *Dispatcher) HandleRecord(ctx context.Context, record events.KinesisEventRecord) error {
	msg, err := ParseMessage(string(record.Kinesis.Data))
	if err != nil {
		return fmt.Errorf("unmarshalling kinesis record %v: %w", record.EventID, err)
	}

	result, err := d.Broadcaster.Broadcast(ctx, msg)
	if err != nil {
		return fmt.Errorf("broadcasting kinesis record %v: %w", record.EventID, err)
	}

	d.Logger.Debug().
		Str("event_id", record.EventID).
		Str("partition_key", record.Kinesis.PartitionKey).
		Int("recipients", result.Recipients).
		Int("pruned", result.Pruned).
		Msg("dispatched message")
	return nil
}

// Retryable reports whether a failed record should be redelivered. Only a
// failed registry scan qualifies: nothing was sent yet, so a retry cannot
// duplicate a delivery.
func Retryable(err error) bool {
	var serr *StorageError
	return errors.As(err, &serr) && serr.Op == "scan"
}
