package sundaerelay

import (
	"context"
	"errors"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-relay/sundae-cli"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Sweeper deletes registry records whose expiry has passed. DynamoDB TTL
// removes them eventually, but can lag by up to two days.
type Sweeper struct {
	Connections Registry
	Logger      zerolog.Logger
	Metrics     *sundaecli.Metrics
	Clock       clockwork.Clock
	Dry         bool // log what would be deleted without deleting
}

// SweepResult is also the body of the connections report.
type SweepResult struct {
	At      time.Time `json:"at"`
	Scanned int       `json:"scanned"`
	Swept   int       `json:"swept"`
	Failed  int       `json:"failed"`
	Dry     bool      `json:"dry"`
}

// Remaining is the number of records left after the sweep.
func (r SweepResult) Remaining() int {
	if r.Dry {
		return r.Scanned
	}
	return r.Scanned - r.Swept
}

// Sweep removes expired records. A failed delete does not stop the sweep;
// all failures are returned together.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	conns, err := s.Connections.ScanAll(ctx)
	if err != nil {
		return SweepResult{}, &StorageError{Op: "scan", Err: err}
	}

	now := time.Now()
	if s.Clock != nil {
		now = s.Clock.Now()
	}

	var (
		result = SweepResult{At: now, Scanned: len(conns), Dry: s.Dry}
		errs   []error
	)
	for _, conn := range conns {
		if !conn.Expired(now) {
			continue
		}
		logger := s.Logger.With().
			Str("connection_id", conn.ConnectionID).
			Time("expires_at", time.Unix(conn.ExpiresAt, 0)).
			Logger()

		if s.Dry {
			logger.Info().Msg("dry run, would delete expired connection")
			result.Swept++
			continue
		}
		if err := s.Connections.Delete(ctx, conn.ConnectionID); err != nil {
			logger.Error().Err(err).Msg("failed to delete expired connection")
			errs = append(errs, &StorageError{Op: "delete", ConnectionID: conn.ConnectionID, Err: err})
			result.Failed++
			continue
		}
		logger.Debug().Msg("deleted expired connection")
		result.Swept++
	}

	s.Metrics.Gauge(ctx, sundaecli.SweepPrunedMetric, float64(result.Swept))
	s.Logger.Info().Int("scanned", result.Scanned).Int("swept", result.Swept).Int("failed", result.Failed).Bool("dry", s.Dry).Msg("swept connections")

	return result, errors.Join(errs...)
}
