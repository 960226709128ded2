package localgateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sundaerelay "github.com/SundaeSwap-finance/sundae-relay/sundae-relay"
	"github.com/SundaeSwap-finance/sundae-relay/sundae-relay/connectiondao"
	"github.com/aws/aws-lambda-go/events"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

type recorder struct {
	events chan events.APIGatewayWebsocketProxyRequest
}

func newRecorder() *recorder {
	return &recorder{events: make(chan events.APIGatewayWebsocketProxyRequest, 16)}
}

func (r *recorder) handle(_ context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	r.events <- req
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func (r *recorder) next(t *testing.T) events.APIGatewayWebsocketProxyRequest {
	t.Helper()
	select {
	case req := <-r.events:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.APIGatewayWebsocketProxyRequest{}
	}
}

func testGateway(t *testing.T, handler EventHandler) (*Gateway, func() *websocket.Conn) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	g := New(zerolog.Nop(), clock)
	g.Handler = handler

	server := httptest.NewServer(g.Routes())
	t.Cleanup(server.Close)

	dial := func() *websocket.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		assert.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	return g, dial
}

func TestGateway(t *testing.T) {
	t.Run("lifecycle events", func(t *testing.T) {
		rec := newRecorder()
		_, dial := testGateway(t, rec.handle)

		conn := dial()
		connect := rec.next(t)
		assert.Equal(t, sundaerelay.RouteConnect, connect.RequestContext.RouteKey)
		assert.NotEmpty(t, connect.RequestContext.ConnectionID)
		assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), connect.RequestContext.ConnectedAt)

		body := `{"action":"sendmessage","username":"alice","content":{"message":"hi"}}`
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(body)))
		msg := rec.next(t)
		assert.Equal(t, sundaerelay.RouteSendMessage, msg.RequestContext.RouteKey)
		assert.Equal(t, body, msg.Body)
		assert.Equal(t, connect.RequestContext.ConnectionID, msg.RequestContext.ConnectionID)

		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
		assert.Equal(t, RouteDefault, rec.next(t).RequestContext.RouteKey)

		conn.Close()
		disconnect := rec.next(t)
		assert.Equal(t, sundaerelay.RouteDisconnect, disconnect.RequestContext.RouteKey)
		assert.Equal(t, connect.RequestContext.ConnectionID, disconnect.RequestContext.ConnectionID)
	})

	t.Run("send to socket", func(t *testing.T) {
		rec := newRecorder()
		g, dial := testGateway(t, rec.handle)

		conn := dial()
		id := rec.next(t).RequestContext.ConnectionID

		assert.NoError(t, g.Send(context.Background(), id, []byte(`{"hello":"world"}`)))
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		assert.NoError(t, err)
		assert.Equal(t, `{"hello":"world"}`, string(data))
	})

	t.Run("unknown socket is gone", func(t *testing.T) {
		g, _ := testGateway(t, newRecorder().handle)

		err := g.Send(context.Background(), "missing", []byte("x"))
		assert.True(t, sundaerelay.IsGone(err))
	})

	t.Run("health", func(t *testing.T) {
		g := New(zerolog.Nop(), nil)
		server := httptest.NewServer(g.Routes())
		defer server.Close()

		resp, err := http.Get(server.URL + "/health")
		assert.NoError(t, err)
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", string(data))
	})
}

// TestRelay wires the gateway to the real handler and an in-memory registry.
func TestRelay(t *testing.T) {
	registry := connectiondao.NewMemory()
	g := New(zerolog.Nop(), nil)
	g.Handler = (&sundaerelay.Handler{
		Connections: registry,
		Broadcaster: &sundaerelay.Broadcaster{
			Connections: registry,
			Channel:     g,
			Logger:      zerolog.Nop(),
		},
		Logger: zerolog.Nop(),
	}).HandleEvent

	server := httptest.NewServer(g.Routes())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		assert.NoError(t, err)
		return conn
	}

	alice, bob := dial(), dial()
	defer alice.Close()
	defer bob.Close()

	deadline := time.Now().Add(2 * time.Second)
	for g.Connections() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 2, g.Connections())
	assert.Len(t, registry.IDs(), 2)

	body := `{"action":"sendmessage","username":"alice","content":{"message":"hello"}}`
	assert.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(body)))

	for _, conn := range []*websocket.Conn{alice, bob} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		assert.NoError(t, err)
		assert.JSONEq(t, body, string(data))
	}

	bob.Close()
	deadline = time.Now().Add(2 * time.Second)
	for len(registry.IDs()) > 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Len(t, registry.IDs(), 1)
}
