// Package publish lets back-end services broadcast to every connected client
// by writing messages to the relay's Kinesis stream.
package publish

import (
	"context"
	"fmt"

	sundaerelay "github.com/SundaeSwap-finance/sundae-relay/sundae-relay"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
)

const defaultPartitionKey = "broadcast"

// Publisher publishes messages to the relay Kinesis stream.
type Publisher struct {
	client     kinesisiface.KinesisAPI
	streamName string
}

// New creates a new Publisher.
func New(client kinesisiface.KinesisAPI, streamName string) *Publisher {
	return &Publisher{
		client:     client,
		streamName: streamName,
	}
}

// Build creates a new Publisher. An empty streamName falls back to the
// standard stream name for the given environment.
func Build(s *session.Session, env, streamName string) *Publisher {
	if streamName == "" {
		streamName = StreamName(env)
	}
	return New(kinesis.New(s), streamName)
}

// StreamName returns the Kinesis stream name for the given environment.
func StreamName(env string) string {
	return env + "-sundae-relay--messages"
}

// Send publishes a message. The username is used as the partition key so a
// single sender's messages stay in order on the stream.
func (p *Publisher) Send(ctx context.Context, msg sundaerelay.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	partitionKey := msg.Username
	if partitionKey == "" {
		partitionKey = defaultPartitionKey
	}

	_, err = p.client.PutRecordWithContext(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(p.streamName),
		PartitionKey: aws.String(partitionKey),
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("publishing to kinesis stream %v: %w", p.streamName, err)
	}

	return nil
}
