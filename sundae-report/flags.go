package sundaereport

import (
	sundaecli "github.com/SundaeSwap-finance/sundae-relay/sundae-cli"
	"github.com/urfave/cli/v2"
)

var ReportOpts struct {
	Bucket  string
	OutFile string
}

var BucketFlag = sundaecli.StringFlag("bucket", "The bucket to write the report to; no report is written when empty", &ReportOpts.Bucket)
var OutFileFlag = sundaecli.StringFlag("out-file", "The file to write the report to, when running in dry mode", &ReportOpts.OutFile)

var ReportFlags = []cli.Flag{
	BucketFlag,
	OutFileFlag,
}
