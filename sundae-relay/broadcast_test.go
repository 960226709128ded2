package sundaerelay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SundaeSwap-finance/sundae-relay/sundae-relay/connectiondao"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

func newBroadcaster(registry Registry, channel Channel) *Broadcaster {
	return &Broadcaster{
		Connections: registry,
		Channel:     channel,
		Logger:      zerolog.Nop(),
	}
}

var hello = Message{Action: RouteSendMessage, Username: "alice", Content: TextContent("hello")}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()

	t.Run("empty registry", func(t *testing.T) {
		registry := newFakeRegistry()
		channel := &fakeChannel{}

		result, err := newBroadcaster(registry, channel).Broadcast(ctx, hello)
		assert.NoError(t, err)
		assert.Equal(t, Result{}, result)
		assert.Equal(t, 0, channel.sendCount())
		assert.Len(t, registry.sortedDeletes(), 0)
	})

	t.Run("every connection receives identical bytes", func(t *testing.T) {
		registry := newFakeRegistry("a", "b", "c", "d", "e")
		channel := &fakeChannel{}

		result, err := newBroadcaster(registry, channel).Broadcast(ctx, hello)
		assert.NoError(t, err)
		assert.Equal(t, Result{Recipients: 5, Delivered: 5}, result)
		assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, channel.sends)

		want, err := hello.Encode()
		assert.NoError(t, err)
		for _, payload := range channel.payloads {
			assert.True(t, bytes.Equal(want, payload))
		}
		assert.Len(t, registry.sortedDeletes(), 0)
	})

	t.Run("failed recipient is pruned, others kept", func(t *testing.T) {
		registry := newFakeRegistry("a", "b", "c")
		channel := &fakeChannel{fail: map[string]error{"b": goneError("b")}}

		result, err := newBroadcaster(registry, channel).Broadcast(ctx, hello)
		assert.NoError(t, err)
		assert.Equal(t, Result{Recipients: 3, Delivered: 2, Pruned: 1}, result)
		assert.Equal(t, []string{"a", "c"}, registry.sortedIDs())
		assert.Equal(t, []string{"b"}, registry.sortedDeletes())
	})

	t.Run("transient failures prune by default", func(t *testing.T) {
		registry := newFakeRegistry("a", "b")
		channel := &fakeChannel{fail: map[string]error{"a": transientError("a")}}

		result, err := newBroadcaster(registry, channel).Broadcast(ctx, hello)
		assert.NoError(t, err)
		assert.Equal(t, 1, result.Pruned)
		assert.Equal(t, []string{"b"}, registry.sortedIDs())
	})

	t.Run("prune gone keeps transient failures", func(t *testing.T) {
		registry := newFakeRegistry("a", "b", "c")
		channel := &fakeChannel{fail: map[string]error{
			"a": transientError("a"),
			"b": goneError("b"),
		}}
		b := newBroadcaster(registry, channel)
		b.Policy = PruneGone

		result, err := b.Broadcast(ctx, hello)
		assert.NoError(t, err)
		assert.Equal(t, Result{Recipients: 3, Delivered: 1, Pruned: 1, Failed: 1}, result)
		assert.Equal(t, []string{"a", "c"}, registry.sortedIDs())
		assert.Equal(t, []string{"b"}, registry.sortedDeletes())
	})

	t.Run("every failure gets exactly one delete", func(t *testing.T) {
		var ids []string
		fail := map[string]error{}
		for i := 0; i < 40; i++ {
			id := fmt.Sprintf("conn-%02d", i)
			ids = append(ids, id)
			if i%3 == 0 {
				fail[id] = goneError(id)
			}
		}
		registry := newFakeRegistry(ids...)
		channel := &fakeChannel{fail: fail}

		result, err := newBroadcaster(registry, channel).Broadcast(ctx, hello)
		assert.NoError(t, err)
		assert.Equal(t, 40, channel.sendCount())
		assert.Equal(t, len(fail), result.Pruned)
		assert.Len(t, registry.sortedDeletes(), len(fail))
		assert.Len(t, registry.sortedIDs(), 40-len(fail))
	})

	t.Run("scan failure aborts before any send", func(t *testing.T) {
		registry := newFakeRegistry("a")
		registry.scanErr = fmt.Errorf("throttled")
		channel := &fakeChannel{}

		_, err := newBroadcaster(registry, channel).Broadcast(ctx, hello)
		assert.True(t, IsStorageError(err))
		assert.Equal(t, 0, channel.sendCount())
	})

	t.Run("failed prune fails the broadcast after every send", func(t *testing.T) {
		registry := newFakeRegistry("a", "b", "c")
		registry.deleteErr = map[string]error{"b": fmt.Errorf("throttled")}
		channel := &fakeChannel{fail: map[string]error{"b": goneError("b")}}

		result, err := newBroadcaster(registry, channel).Broadcast(ctx, hello)
		assert.Error(t, err)

		var serr *StorageError
		assert.True(t, errors.As(err, &serr))
		assert.Equal(t, "delete", serr.Op)
		assert.Equal(t, "b", serr.ConnectionID)

		assert.Equal(t, 3, channel.sendCount())
		assert.Equal(t, Result{Recipients: 3, Delivered: 2, Failed: 1}, result)
		assert.Equal(t, []string{"a", "b", "c"}, registry.sortedIDs())
	})

	t.Run("duplicate ids in a snapshot are independent targets", func(t *testing.T) {
		registry := newFakeRegistry("a", "b")
		registry.snapshot = []connectiondao.Connection{
			{ConnectionID: "a"}, {ConnectionID: "b"}, {ConnectionID: "b"},
		}
		channel := &fakeChannel{fail: map[string]error{"b": goneError("b")}}

		result, err := newBroadcaster(registry, channel).Broadcast(ctx, hello)
		assert.NoError(t, err)
		assert.Equal(t, 3, channel.sendCount())
		assert.Equal(t, 2, result.Pruned)
		assert.Equal(t, []string{"b", "b"}, registry.sortedDeletes())
		assert.Equal(t, []string{"a"}, registry.sortedIDs())
	})

	t.Run("slow recipient does not block the others", func(t *testing.T) {
		registry := newFakeRegistry("slow", "a", "b", "c")
		var others sync.WaitGroup
		others.Add(3)
		var blockedOn atomic.Bool
		channel := &fakeChannel{before: func(id string) {
			if id != "slow" {
				others.Done()
				return
			}
			done := make(chan struct{})
			go func() { others.Wait(); close(done) }()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				blockedOn.Store(true)
			}
		}}

		_, err := newBroadcaster(registry, channel).Broadcast(ctx, hello)
		assert.NoError(t, err)
		assert.False(t, blockedOn.Load())
		assert.Equal(t, 4, channel.sendCount())
	})

	t.Run("concurrency is bounded", func(t *testing.T) {
		var ids []string
		for i := 0; i < 20; i++ {
			ids = append(ids, fmt.Sprintf("conn-%02d", i))
		}
		registry := newFakeRegistry(ids...)

		var inFlight, peak atomic.Int64
		channel := &fakeChannel{before: func(string) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		}}
		b := newBroadcaster(registry, channel)
		b.Concurrency = 3

		_, err := b.Broadcast(ctx, hello)
		assert.NoError(t, err)
		assert.Equal(t, 20, channel.sendCount())
		assert.True(t, peak.Load() <= 3)
	})

	t.Run("unencodable message", func(t *testing.T) {
		registry := newFakeRegistry("a")
		_, err := newBroadcaster(registry, &fakeChannel{}).Broadcast(ctx, Message{Username: "alice"})
		assert.True(t, errors.Is(err, ErrUnknownContent))
		assert.Equal(t, 0, registry.scans)
	})
}

func TestParsePrunePolicy(t *testing.T) {
	for input, want := range map[string]PrunePolicy{"": PruneAll, "all": PruneAll, " Gone ": PruneGone} {
		got, err := ParsePrunePolicy(input)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParsePrunePolicy("never")
	assert.Error(t, err)
	assert.Equal(t, "gone", PruneGone.String())
	assert.Equal(t, "all", PruneAll.String())
}
