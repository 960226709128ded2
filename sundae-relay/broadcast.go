package sundaerelay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-relay/sundae-cli"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the number of in-flight sends per broadcast.
const DefaultConcurrency = 50

// PrunePolicy decides which failed deliveries remove a connection from the
// registry.
type PrunePolicy int

const (
	// PruneAll removes a connection on any delivery failure. A transient
	// gateway error therefore drops a live client, which must reconnect.
	PruneAll PrunePolicy = iota
	// PruneGone removes a connection only when the gateway reports it gone;
	// other failures leave the record in place.
	PruneGone
)

func ParsePrunePolicy(s string) (PrunePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return PruneAll, nil
	case "gone":
		return PruneGone, nil
	default:
		return PruneAll, fmt.Errorf("unknown prune policy %q: expected all or gone", s)
	}
}

func (p PrunePolicy) String() string {
	switch p {
	case PruneGone:
		return "gone"
	default:
		return "all"
	}
}

func (p PrunePolicy) prunes(err error) bool {
	if p == PruneGone {
		return IsGone(err)
	}
	return true
}

// Result tallies the per-connection outcomes of one broadcast.
type Result struct {
	Recipients int // records in the snapshot
	Delivered  int
	Pruned     int // failed sends whose record was deleted
	Failed     int // failed sends whose record was kept, or whose delete failed
}

type outcome int

const (
	delivered outcome = iota
	pruned
	kept
	pruneFailed
)

// Broadcaster fans a message out to every connection in the registry and
// deletes the connections it could not reach.
type Broadcaster struct {
	Connections Registry
	Channel     Channel
	Logger      zerolog.Logger
	Metrics     *sundaecli.Metrics
	Concurrency int // max concurrent sends (default 50)
	Policy      PrunePolicy
}

// Broadcast encodes msg once and delivers the same bytes to every connection.
func (b *Broadcaster) Broadcast(ctx context.Context, msg Message) (Result, error) {
	payload, err := msg.Encode()
	if err != nil {
		return Result{}, err
	}
	return b.BroadcastPayload(ctx, payload)
}

// BroadcastPayload delivers payload to every connection in a registry
// snapshot. Connections added after the scan miss this payload; connections
// removed after the scan produce a failed send and a no-op delete.
//
// Delivery failures never fail the broadcast. A failed remediation delete
// does, after every other send has run; messages already delivered stand.
func (b *Broadcaster) BroadcastPayload(ctx context.Context, payload []byte) (Result, error) {
	start := time.Now()
	logger := b.logger(ctx)

	conns, err := b.Connections.ScanAll(ctx)
	if err != nil {
		return Result{}, &StorageError{Op: "scan", Err: err}
	}

	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var (
		outcomes = make([]outcome, len(conns))
		errs     = make([]error, len(conns))
		g        errgroup.Group
	)
	g.SetLimit(concurrency)

	for i, conn := range conns {
		i, conn := i, conn
		g.Go(func() error {
			outcomes[i], errs[i] = b.deliver(ctx, logger, conn.ConnectionID, payload)
			return nil
		})
	}
	_ = g.Wait()

	result := Result{Recipients: len(conns)}
	for _, o := range outcomes {
		switch o {
		case delivered:
			result.Delivered++
		case pruned:
			result.Pruned++
		default:
			result.Failed++
		}
	}

	b.Metrics.Gauge(ctx, sundaecli.BroadcastRecipientsMetric, float64(result.Recipients))
	b.Metrics.Gauge(ctx, sundaecli.BroadcastPrunedMetric, float64(result.Pruned))
	b.Metrics.Gauge(ctx, sundaecli.BroadcastFailedMetric, float64(result.Failed))
	b.Metrics.Timing(ctx, sundaecli.BroadcastTimeMetric, start)

	logger.Debug().
		Int("recipients", result.Recipients).
		Int("delivered", result.Delivered).
		Int("pruned", result.Pruned).
		Int("failed", result.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("broadcast complete")

	if err := errors.Join(errs...); err != nil {
		return result, err
	}
	return result, nil
}

func (b *Broadcaster) deliver(ctx context.Context, logger zerolog.Logger, connID string, payload []byte) (outcome, error) {
	sendErr := b.Channel.Send(ctx, connID, payload)
	if sendErr == nil {
		return delivered, nil
	}

	if !b.Policy.prunes(sendErr) {
		logger.Warn().Err(sendErr).
			Str("connection_id", connID).
			Msg("failed to send message, keeping connection")
		return kept, nil
	}

	logger.Warn().Err(sendErr).
		Str("connection_id", connID).
		Bool("gone", IsGone(sendErr)).
		Msg("failed to send message, pruning connection")

	if err := b.Connections.Delete(ctx, connID); err != nil {
		logger.Error().Err(err).Str("connection_id", connID).Msg("failed to prune connection")
		return pruneFailed, &StorageError{Op: "delete", ConnectionID: connID, Err: err}
	}
	return pruned, nil
}

func (b *Broadcaster) logger(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return b.Logger
}
