package sundaerelay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/SundaeSwap-finance/sundae-relay/sundae-relay/connectiondao"
)

// fakeRegistry wraps the in-memory registry with call counters and
// injectable failures.
type fakeRegistry struct {
	*connectiondao.Memory

	mu        sync.Mutex
	scans     int
	puts      int
	deletes   []string
	scanErr   error
	putErr    error
	deleteErr map[string]error
	snapshot  []connectiondao.Connection // returned verbatim by ScanAll when set
}

func newFakeRegistry(ids ...string) *fakeRegistry {
	var conns []connectiondao.Connection
	for _, id := range ids {
		conns = append(conns, connectiondao.Connection{ConnectionID: id, ConnectedAt: 1})
	}
	return &fakeRegistry{Memory: connectiondao.NewMemory(conns...)}
}

func (f *fakeRegistry) Put(ctx context.Context, conn connectiondao.Connection) error {
	f.mu.Lock()
	f.puts++
	err := f.putErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Memory.Put(ctx, conn)
}

func (f *fakeRegistry) Delete(ctx context.Context, connectionID string) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, connectionID)
	err := f.deleteErr[connectionID]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Memory.Delete(ctx, connectionID)
}

func (f *fakeRegistry) ScanAll(ctx context.Context) ([]connectiondao.Connection, error) {
	f.mu.Lock()
	f.scans++
	err, snapshot := f.scanErr, f.snapshot
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		return snapshot, nil
	}
	return f.Memory.ScanAll(ctx)
}

func (f *fakeRegistry) sortedIDs() []string {
	ids := f.IDs()
	sort.Strings(ids)
	return ids
}

func (f *fakeRegistry) sortedDeletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	deletes := append([]string(nil), f.deletes...)
	sort.Strings(deletes)
	return deletes
}

// fakeChannel records every send and fails the configured connections.
type fakeChannel struct {
	mu       sync.Mutex
	sends    []string
	payloads [][]byte
	fail     map[string]error
	before   func(connectionID string)
}

func (f *fakeChannel) Send(_ context.Context, connectionID string, payload []byte) error {
	if f.before != nil {
		f.before(connectionID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, connectionID)
	f.payloads = append(f.payloads, payload)
	if err, ok := f.fail[connectionID]; ok {
		return err
	}
	return nil
}

func (f *fakeChannel) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func goneError(id string) error {
	return &DeliveryError{ConnectionID: id, Gone: true, Err: fmt.Errorf("GoneException")}
}

func transientError(id string) error {
	return &DeliveryError{ConnectionID: id, Err: fmt.Errorf("internal server error")}
}
