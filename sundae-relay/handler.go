package sundaerelay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SundaeSwap-finance/sundae-relay/sundae-relay/connectiondao"
	"github.com/aws/aws-lambda-go/events"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Route keys configured on the WebSocket API.
const (
	RouteConnect     = "$connect"
	RouteDisconnect  = "$disconnect"
	RouteSendMessage = "sendmessage"
)

// DefaultConnTTL is how long a connection record lives before the registry
// may expire it.
const DefaultConnTTL = 2 * time.Hour

// Handler handles WebSocket API Gateway events: it records connects,
// forgets disconnects and broadcasts sendmessage bodies.
type Handler struct {
	Connections Registry
	Broadcaster *Broadcaster
	Logger      zerolog.Logger
	Clock       clockwork.Clock // defaults to the real clock
	ConnTTL     time.Duration   // TTL for connection records (default 2 hours, negative disables)
}

// HandleEvent routes an API Gateway WebSocket event to the appropriate
// handler. Failures are returned to the Lambda runtime rather than encoded
// in the response.
func (h *Handler) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := h.Logger.With().
		Str("connection_id", req.RequestContext.ConnectionID).
		Str("route", req.RequestContext.RouteKey).
		Logger()
	ctx = logger.WithContext(ctx)

	var err error
	switch req.RequestContext.RouteKey {
	case RouteConnect:
		err = h.handleConnect(ctx, logger, req.RequestContext)
	case RouteDisconnect:
		err = h.handleDisconnect(ctx, logger, req.RequestContext)
	case RouteSendMessage:
		err = h.handleSendMessage(ctx, logger, req.Body)
	case "":
		err = fmt.Errorf("%w: route key", ErrMissingField)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownRoute, req.RequestContext.RouteKey)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to handle event")
		return events.APIGatewayProxyResponse{}, err
	}

	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func (h *Handler) handleConnect(ctx context.Context, logger zerolog.Logger, rc events.APIGatewayWebsocketProxyRequestContext) error {
	if rc.ConnectionID == "" {
		return fmt.Errorf("%w: connection id", ErrMissingField)
	}
	if rc.ConnectedAt <= 0 {
		return fmt.Errorf("%w: connected at %v is not a valid timestamp", ErrValidation, rc.ConnectedAt)
	}

	conn := connectiondao.Connection{
		ConnectionID: rc.ConnectionID,
		ConnectedAt:  rc.ConnectedAt,
	}
	ttl := h.ConnTTL
	if ttl == 0 {
		ttl = DefaultConnTTL
	}
	if ttl > 0 {
		conn.ExpiresAt = h.now().Add(ttl).Unix()
	}

	if err := h.Connections.Put(ctx, conn); err != nil {
		return &StorageError{Op: "put", ConnectionID: conn.ConnectionID, Err: err}
	}

	logger.Info().Time("connected_at", conn.ConnectedTime()).Msg("connection established")
	return nil
}

func (h *Handler) handleDisconnect(ctx context.Context, logger zerolog.Logger, rc events.APIGatewayWebsocketProxyRequestContext) error {
	if rc.ConnectionID == "" {
		return fmt.Errorf("%w: connection id", ErrMissingField)
	}

	if err := h.Connections.Delete(ctx, rc.ConnectionID); err != nil {
		return &StorageError{Op: "delete", ConnectionID: rc.ConnectionID, Err: err}
	}

	logger.Info().Msg("connection closed")
	return nil
}

func (h *Handler) handleSendMessage(ctx context.Context, logger zerolog.Logger, body string) error {
	msg, err := ParseMessage(body)
	if err != nil {
		return err
	}

	result, err := h.Broadcaster.Broadcast(ctx, msg)
	if err != nil {
		return fmt.Errorf("broadcasting message from %v: %w", msg.Username, err)
	}

	logger.Info().
		Str("username", msg.Username).
		Str("content", msg.Content.Kind()).
		Int("recipients", result.Recipients).
		Int("pruned", result.Pruned).
		Msg("message broadcast")
	return nil
}

func (h *Handler) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock.Now()
}
