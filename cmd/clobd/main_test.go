package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Aidin1998/pincex_clob/internal/persistence"
	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const seedYAML = `
underwriters: 1
custodians: 2
markets:
  - base: APT
    quote: USDC
    lot_size: 100
    tick_size: 1
    min_size: 1
  - base_name_generic: gold
    quote: USDC
    lot_size: 1
    tick_size: 1
    min_size: 1
    underwriter: 1
`

func newExchange(t *testing.T) *market.Exchange {
	t.Helper()
	e, err := market.NewExchange(market.DefaultConfig(), incentives.DefaultParams(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return e
}

func TestRestoreOrSeed(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()
	seedFile := filepath.Join(dir, "markets.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(seedYAML), 0o600))

	store, err := persistence.OpenSnapshotStore(filepath.Join(dir, "snapshots"), 2, logger)
	require.NoError(t, err)
	defer store.Close()

	// Empty store: markets come from the seed file.
	seeded := newExchange(t)
	require.NoError(t, restoreOrSeed(ctx, seeded, store, seedFile, logger))
	markets := seeded.Markets()
	require.Len(t, markets, 2)
	assert.Equal(t, model.AssetType("APT"), markets[0].BaseType)
	assert.True(t, markets[1].IsGeneric())
	assert.Equal(t, uint64(1), markets[1].UnderwriterID)
	custodians, underwriters := seeded.Capabilities()
	assert.Len(t, custodians, 2)
	assert.Len(t, underwriters, 1)

	params := incentives.DefaultParams()
	wantFees := 2*params.MarketRegistrationFee + params.UnderwriterRegistrationFee + 2*params.CustodianRegistrationFee
	assert.Equal(t, wantFees, seeded.UtilityCoins())

	// With a snapshot present the seed file is ignored.
	_, err = store.Save(ctx, seeded.Snapshot())
	require.NoError(t, err)
	restored := newExchange(t)
	require.NoError(t, restoreOrSeed(ctx, restored, store, filepath.Join(dir, "missing.yaml"), logger))
	assert.Equal(t, seeded.Markets(), restored.Markets())
	assert.Equal(t, seeded.UtilityCoins(), restored.UtilityCoins())
}

func TestRestoreOrSeed_NoSeedFile(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store, err := persistence.OpenSnapshotStore(t.TempDir(), 1, logger)
	require.NoError(t, err)
	defer store.Close()

	e := newExchange(t)
	require.NoError(t, restoreOrSeed(context.Background(), e, store, "", logger))
	assert.Empty(t, e.Markets())
}

func TestSeedExchange_BadMarket(t *testing.T) {
	e := newExchange(t)
	seeds := `
markets:
  - base: APT
    quote: USDC
    lot_size: 0
    tick_size: 1
    min_size: 1
`
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seeds), 0o600))
	store, err := persistence.OpenSnapshotStore(filepath.Join(dir, "snapshots"), 1, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()

	err = restoreOrSeed(context.Background(), e, store, path, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "seed market 0")
}
