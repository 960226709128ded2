// Package localgateway emulates the API Gateway WebSocket front door for
// console runs. It upgrades browser connections, turns their lifecycle into
// the same events the Lambda receives, and delivers broadcasts back over
// the socket.
package localgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	sundaerelay "github.com/SundaeSwap-finance/sundae-relay/sundae-relay"
	sundaerest "github.com/SundaeSwap-finance/sundae-relay/sundae-rest"
	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	Stage = "local"

	// RouteDefault is used for frames that do not name an action.
	RouteDefault = "$default"

	writeTimeout = 5 * time.Second
)

// EventHandler receives the events API Gateway would send to the Lambda.
type EventHandler func(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error)

type socket struct {
	mu   sync.Mutex // serialises writes
	conn *websocket.Conn
}

// Gateway is both the WebSocket server and the relay Channel for the
// sockets it holds.
type Gateway struct {
	Handler EventHandler
	Logger  zerolog.Logger
	Clock   clockwork.Clock

	upgrader websocket.Upgrader

	mu      sync.Mutex
	sockets map[string]*socket
}

func New(logger zerolog.Logger, clock clockwork.Clock) *Gateway {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Gateway{
		Logger: logger,
		Clock:  clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sockets: map[string]*socket{},
	}
}

// Routes exposes GET /ws for WebSocket clients and GET /health.
func (g *Gateway) Routes() chi.Router {
	routes := sundaerest.Middlewares(g.Logger, chi.NewRouter())
	routes.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	routes.Get("/ws", g.serveWS)
	return routes
}

// Send writes payload to the socket registered as connectionID. Unknown
// connections are reported as gone.
func (g *Gateway) Send(_ context.Context, connectionID string, payload []byte) error {
	g.mu.Lock()
	s, ok := g.sockets[connectionID]
	g.mu.Unlock()
	if !ok {
		return &sundaerelay.DeliveryError{ConnectionID: connectionID, Gone: true, Err: fmt.Errorf("no such socket")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		gone := errors.Is(err, websocket.ErrCloseSent)
		return &sundaerelay.DeliveryError{ConnectionID: connectionID, Gone: gone, Err: err}
	}
	return nil
}

// Connections returns the number of open sockets.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sockets)
}

func (g *Gateway) serveWS(w http.ResponseWriter, req *http.Request) {
	conn, err := g.upgrader.Upgrade(w, req, nil)
	if err != nil {
		g.Logger.Warn().Err(err).Msg("failed to upgrade websocket")
		return
	}
	defer conn.Close()

	var (
		id          = uuid.NewString()
		connectedAt = g.Clock.Now().UnixMilli()
		logger      = g.Logger.With().Str("connection_id", id).Logger()
		ctx         = logger.WithContext(context.Background())
	)

	if _, err := g.dispatch(ctx, id, connectedAt, sundaerelay.RouteConnect, "CONNECT", ""); err != nil {
		logger.Warn().Err(err).Msg("connect rejected")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "connect rejected"),
			time.Now().Add(writeTimeout))
		return
	}

	g.mu.Lock()
	g.sockets[id] = &socket{conn: conn}
	g.mu.Unlock()
	logger.Debug().Msg("socket connected")

	defer func() {
		g.mu.Lock()
		delete(g.sockets, id)
		g.mu.Unlock()

		if _, err := g.dispatch(ctx, id, connectedAt, sundaerelay.RouteDisconnect, "DISCONNECT", ""); err != nil {
			logger.Warn().Err(err).Msg("disconnect failed")
		}
		logger.Debug().Msg("socket disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		body := string(data)
		if _, err := g.dispatch(ctx, id, connectedAt, routeKey(data), "MESSAGE", body); err != nil {
			logger.Warn().Err(err).Msg("message rejected")
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, id string, connectedAt int64, route, eventType, body string) (events.APIGatewayProxyResponse, error) {
	if g.Handler == nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("no event handler configured")
	}

	req := events.APIGatewayWebsocketProxyRequest{
		Body: body,
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{
			RouteKey:     route,
			EventType:    eventType,
			Stage:        Stage,
			ConnectionID: id,
			ConnectedAt:  connectedAt,
			RequestID:    uuid.NewString(),
		},
	}
	return g.Handler(ctx, req)
}

// routeKey mirrors the route selection expression $request.body.action.
func routeKey(data []byte) string {
	var v struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &v); err != nil || v.Action == "" {
		return RouteDefault
	}
	return v.Action
}
