package persistence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const trader = model.Address("0xfeed")

func tradedExchange(t *testing.T) (*market.Exchange, uint64) {
	t.Helper()
	e, err := market.NewExchange(market.DefaultConfig(), incentives.DefaultParams(), zaptest.NewLogger(t))
	require.NoError(t, err)
	id, err := e.RegisterMarket(
		market.Info{BaseType: "BTC", QuoteType: "USDC", LotSize: 1, TickSize: 1, MinSize: 1},
		model.Coins{Asset: model.UtilityCoin, Amount: incentives.DefaultParams().MarketRegistrationFee},
	)
	require.NoError(t, err)
	require.NoError(t, e.RegisterMarketAccount(user.Self(trader), id))
	require.NoError(t, e.DepositCoins(trader, id, model.NoCustodian, model.Coins{Asset: "BTC", Amount: 50}))
	_, err = e.PlaceLimitOrder(user.Self(trader), market.LimitOrder{MarketID: id, Side: model.Ask, Size: 5, Price: 100})
	require.NoError(t, err)
	return e, id
}

func TestSnapshotStore_SaveAndRestore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSnapshotStore(t.TempDir(), 3, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()

	_, _, err = store.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	e, id := tradedExchange(t)
	state := e.Snapshot()
	info, err := store.Save(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, state.Sequence, info.Sequence)
	assert.Positive(t, info.Size)

	loaded, latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.Key, latest.Key)

	want, err := json.Marshal(state)
	require.NoError(t, err)
	got, err := json.Marshal(loaded)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))

	restored, err := market.NewExchange(market.DefaultConfig(), incentives.DefaultParams(), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(loaded))
	assert.Equal(t, e.Sequence(), restored.Sequence())
	best, err := restored.BestPrices(id)
	require.NoError(t, err)
	require.NotNil(t, best.Ask)
	assert.Equal(t, uint64(100), *best.Ask)
	assert.Nil(t, best.Bid)
}

func TestSnapshotStore_Retention(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSnapshotStore(t.TempDir(), 2, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()

	for seq := uint64(1); seq <= 4; seq++ {
		_, err := store.Save(ctx, market.State{Sequence: seq})
		require.NoError(t, err)
	}
	infos, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, uint64(4), infos[0].Sequence)
	assert.Equal(t, uint64(3), infos[1].Sequence)

	state, _, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), state.Sequence)
}

func TestParseSnapshotKey(t *testing.T) {
	seq, _, err := parseSnapshotKey([]byte("snapshot:00000000000000000042:00000000000000000007"))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)

	_, _, err = parseSnapshotKey([]byte("snapshot:42"))
	assert.Error(t, err)
	_, _, err = parseSnapshotKey([]byte("snapshot:x:1"))
	assert.Error(t, err)
}
