package sundaekinesis

import (
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-relay/sundae-cli"
	"github.com/urfave/cli/v2"
)

var KinesisOpts struct {
	StreamName string
	Replay     bool
	ReplayFrom cli.Timestamp
}

var StreamNameFlag = sundaecli.StringFlag("stream-name", "The stream name to read records from", &KinesisOpts.StreamName)
var ReplayFlag = sundaecli.BoolFlag("replay", "Whether to replay from the beginning, or start from the next message", &KinesisOpts.Replay)

var ReplayFromFlag = sundaecli.TimestampFlag("replay-from", time.DateTime, "Timestamp to replay from", &KinesisOpts.ReplayFrom)

var KinesisFlags = []cli.Flag{
	StreamNameFlag,
	ReplayFlag,
	ReplayFromFlag,
}
