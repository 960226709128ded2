package sundaerelay

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
)

// DefaultStage is the API Gateway stage the relay posts through.
const DefaultStage = "default"

// Channel pushes a payload to one connection. Failures are reported as
// *DeliveryError.
type Channel interface {
	Send(ctx context.Context, connectionID string, payload []byte) error
}

// Endpoint returns the management API endpoint for a WebSocket API.
func Endpoint(apiID, region, stage string) string {
	if stage == "" {
		stage = DefaultStage
	}
	return fmt.Sprintf("https://%s.execute-api.%s.amazonaws.com/%s", apiID, region, stage)
}

// GatewayChannel delivers through the API Gateway Management API.
type GatewayChannel struct {
	client apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

func NewGatewayChannel(client apigatewaymanagementapiiface.ApiGatewayManagementApiAPI) *GatewayChannel {
	return &GatewayChannel{client: client}
}

// BuildGatewayChannel creates a channel bound to a single endpoint.
func BuildGatewayChannel(s *session.Session, endpoint string) *GatewayChannel {
	return NewGatewayChannel(apigatewaymanagementapi.New(s, aws.NewConfig().WithEndpoint(endpoint)))
}

func (g *GatewayChannel) Send(ctx context.Context, connectionID string, payload []byte) error {
	_, err := g.client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         payload,
	})
	if err != nil {
		return &DeliveryError{
			ConnectionID: connectionID,
			Gone:         IsGone(err),
			Err:          err,
		}
	}
	return nil
}

// IsGone checks if the error is a GoneException (HTTP 410), indicating the
// WebSocket connection no longer exists.
func IsGone(err error) bool {
	var derr *DeliveryError
	if errors.As(err, &derr) {
		return derr.Gone
	}
	var rerr awserr.RequestFailure
	if errors.As(err, &rerr) && rerr.StatusCode() == http.StatusGone {
		return true
	}
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == apigatewaymanagementapi.ErrCodeGoneException
}
