package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestEventStore(t *testing.T) *EventStore {
	t.Helper()
	store, err := OpenEventStore("sqlite", ":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEvents(at time.Time) []model.Event {
	id := model.MarketOrderID{Counter: 1, AccessKey: 100 | 1<<32}
	place := model.NewMakerEvent(model.MakerEvent{
		MarketID: 1, Side: model.Ask, MarketOrderID: id, User: "0xa11ce",
		Type: model.MakerPlace, Size: 5, Price: 100,
	})
	fill := model.NewTakerEvent(model.TakerEvent{
		MarketID: 1, Side: model.Ask, MarketOrderID: id, Maker: "0xa11ce",
		CustodianID: 0, Size: 2, Price: 100,
	})
	other := model.NewMakerEvent(model.MakerEvent{
		MarketID: 2, Side: model.Bid, MarketOrderID: model.MarketOrderID{Counter: 1, AccessKey: 7},
		User: "0xb0b", CustodianID: 3, Type: model.MakerCancel, Size: 1, Price: 7,
	})
	events := []model.Event{place, fill, other}
	for i := range events {
		events[i].Sequence = uint64(i) + 1
		events[i].Time = at
	}
	return events
}

func TestEventStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := openTestEventStore(t)

	seq, err := store.LastSequence(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	at := time.Now().UTC().Truncate(time.Microsecond)
	events := testEvents(at)
	require.NoError(t, store.AppendEvents(ctx, events))
	// Replayed batches are ignored.
	require.NoError(t, store.AppendEvents(ctx, events[:2]))
	require.NoError(t, store.AppendEvents(ctx, nil))

	seq, err = store.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)

	got, err := store.ListEvents(ctx, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range got {
		assert.True(t, at.Equal(got[i].Time))
		got[i].Time = at
	}
	assert.Equal(t, events[:2], got)

	got, err = store.ListEvents(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Taker)
	assert.Equal(t, uint64(2), got[0].Taker.Size)

	got, err = store.ListEvents(ctx, 2, 0, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Maker)
	assert.Equal(t, model.MakerCancel, got[0].Maker.Type)
	assert.Equal(t, uint64(3), got[0].Maker.CustodianID)
}

func TestOpenEventStore_UnknownDriver(t *testing.T) {
	_, err := OpenEventStore("mysql", "", zaptest.NewLogger(t))
	assert.Error(t, err)
}
