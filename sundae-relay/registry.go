package sundaerelay

import (
	"context"

	"github.com/SundaeSwap-finance/sundae-relay/sundae-relay/connectiondao"
)

// Registry is the durable set of live connections. Implementations make
// each call atomic; callers hold no locks across them.
type Registry interface {
	// Put upserts a record by connection ID.
	Put(ctx context.Context, conn connectiondao.Connection) error
	// Delete removes a record; deleting an absent ID is not an error.
	Delete(ctx context.Context, connectionID string) error
	// ScanAll returns a best-effort snapshot of every record, in no
	// particular order.
	ScanAll(ctx context.Context) ([]connectiondao.Connection, error)
}

var (
	_ Registry = (*connectiondao.DAO)(nil)
	_ Registry = (*connectiondao.Memory)(nil)
)
