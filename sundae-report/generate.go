// Package sundaereport writes JSON reports to S3, or locally in dry mode.
package sundaereport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-relay/sundae-cli"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type Writer struct {
	service sundaecli.Service
	logger  zerolog.Logger
	s3      s3iface.S3API
	clock   clockwork.Clock
	stdout  io.Writer
}

func ReportKey(serviceName, reportName string, timestamp time.Time) string {
	return fmt.Sprintf("%v/%v/%v/%v/%v", serviceName, reportName, timestamp.Format("2006-01-02"), timestamp.Format("15"), timestamp.Format("2006-01-02-15:04:05.json"))
}

func NewWriter(service sundaecli.Service, s3api s3iface.S3API, clock clockwork.Clock) *Writer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Writer{
		service: service,
		logger:  sundaecli.Logger(service),
		s3:      s3api,
		clock:   clock,
		stdout:  os.Stdout,
	}
}

func BuildWriter(s *session.Session, service sundaecli.Service) *Writer {
	return NewWriter(service, s3.New(s), nil)
}

// Enabled reports whether a destination is configured.
func (w *Writer) Enabled() bool {
	return ReportOpts.Bucket != "" || sundaecli.CommonOpts.Dry
}

func (w *Writer) Write(ctx context.Context, reportName string, report interface{}) error {
	reportBytes, err := json.Marshal(report)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to marshal report")
		return err
	}

	now := w.clock.Now()
	if sundaecli.CommonOpts.Dry {
		if ReportOpts.OutFile == "" {
			enc := json.NewEncoder(w.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		filename := ReportOpts.OutFile
		if err := os.MkdirAll(path.Dir(filename), 0755); err != nil {
			return err
		}
		w.logger.Info().Str("filename", filename).Int("size", len(reportBytes)).Msg("dry run, saving report locally")
		return os.WriteFile(filename, reportBytes, 0644)
	}

	key := ReportKey(w.service.Name, reportName, now)
	w.logger.Info().Str("bucket", ReportOpts.Bucket).Str("key", key).Int("size", len(reportBytes)).Msg("saving report to s3")
	_, err = w.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(ReportOpts.Bucket),
		Body:        bytes.NewReader(reportBytes),
		Key:         aws.String(key),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to save report %v to %v: %w", key, ReportOpts.Bucket, err)
	}
	return nil
}
