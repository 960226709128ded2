package main

import (
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-relay/sundae-cli"
	sundaerelay "github.com/SundaeSwap-finance/sundae-relay/sundae-relay"
	"github.com/urfave/cli/v2"
)

var RelayOpts struct {
	Region      string
	APIID       string
	Stage       string
	Endpoint    string
	Concurrency int
	PrunePolicy string
	ConnTTL     time.Duration
}

var PublishOpts struct {
	Username string
	Message  string
}

var RegionFlag = &cli.StringFlag{
	Name:        "region",
	Usage:       "AWS region of the WebSocket API and connection table",
	EnvVars:     []string{"AWS_REGION"},
	Destination: &RelayOpts.Region,
}
var APIIDFlag = sundaecli.StringFlag("api-id", "WebSocket API id used to build the management endpoint", &RelayOpts.APIID)
var StageFlag = sundaecli.StringFlag("stage", "WebSocket API stage", &RelayOpts.Stage, sundaerelay.DefaultStage)
var EndpointFlag = sundaecli.StringFlag("endpoint", "Override the management API endpoint", &RelayOpts.Endpoint)
var ConcurrencyFlag = sundaecli.IntFlag("concurrency", "Maximum concurrent deliveries per broadcast", &RelayOpts.Concurrency, sundaerelay.DefaultConcurrency)
var PrunePolicyFlag = sundaecli.StringFlag("prune-policy", "Which delivery failures prune a connection (all, gone)", &RelayOpts.PrunePolicy, sundaerelay.PruneAll.String())
var ConnTTLFlag = sundaecli.DurationFlag("conn-ttl", "Lifetime of a connection record; negative disables expiry", &RelayOpts.ConnTTL, sundaerelay.DefaultConnTTL)

var UsernameFlag = sundaecli.StringFlag("username", "Sender name attached to the message", &PublishOpts.Username, "relay")
var MessageFlag = sundaecli.RequiredStringFlag("message", "Text to broadcast", &PublishOpts.Message)

var DeliveryFlags = []cli.Flag{
	RegionFlag,
	APIIDFlag,
	StageFlag,
	EndpointFlag,
	ConcurrencyFlag,
	PrunePolicyFlag,
}
