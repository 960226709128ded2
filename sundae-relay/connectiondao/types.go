package connectiondao

import "time"

// Connection represents a live WebSocket connection stored in the registry.
// ConnectedAt is unix millis as reported by API Gateway; ExpiresAt is unix
// seconds and doubles as the table's DynamoDB TTL attribute.
type Connection struct {
	ConnectionID string `dynamodbav:"connection_id" ddb:"hash"`
	ConnectedAt  int64  `dynamodbav:"connected_at"`
	ExpiresAt    int64  `dynamodbav:"expires_at,omitempty"`
}

func (c Connection) ConnectedTime() time.Time {
	return time.UnixMilli(c.ConnectedAt)
}

// Expired reports whether the record carries an expiry that has passed.
func (c Connection) Expired(now time.Time) bool {
	return c.ExpiresAt > 0 && now.Unix() >= c.ExpiresAt
}
