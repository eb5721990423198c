package incentives

import (
	"testing"

	"github.com/Aidin1998/pincex_clob/internal/trading/journal"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMarket uint64 = 1
	quoteAsset        = model.AssetType("USDC")
	integrator        = model.Address("0xabc")
)

func utility(amount uint64) model.Coins {
	return model.Coins{Asset: model.UtilityCoin, Amount: amount}
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(DefaultParams())
	require.NoError(t, err)
	l.RegisterEconiaFeeStoreEntry(testMarket, quoteAsset)
	return l
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
		want   error
	}{
		{"defaults", func(*Params) {}, nil},
		{"no utility coin", func(p *Params) { p.UtilityCoinType = "" }, ErrInvalidUtilityCoinType},
		{"market fee", func(p *Params) { p.MarketRegistrationFee = 0 }, ErrMarketRegistrationFeeLessThanMin},
		{"underwriter fee", func(p *Params) { p.UnderwriterRegistrationFee = 0 }, ErrUnderwriterRegistrationFeeLessThanMin},
		{"custodian fee", func(p *Params) { p.CustodianRegistrationFee = 0 }, ErrCustodianRegistrationFeeLessThanMin},
		{"taker divisor", func(p *Params) { p.TakerFeeDivisor = 1 }, ErrTakerDivisorLessThanMin},
		{"empty tiers", func(p *Params) { p.Tiers = nil }, ErrEmptyFeeStoreTiers},
		{"too many tiers", func(p *Params) { p.Tiers = make([]Tier, MaxTiers+1) }, ErrTooManyTiers},
		{"divisor not decreasing", func(p *Params) { p.Tiers[1].FeeShareDivisor = 10000 }, ErrFeeShareDivisorTooBig},
		{"divisor below taker", func(p *Params) { p.Tiers[6].FeeShareDivisor = 1999 }, ErrFeeShareDivisorTooSmall},
		{"first activation nonzero", func(p *Params) { p.Tiers[0].TierActivationFee = 1 }, ErrFirstTierActivationFeeNonzero},
		{"activation not increasing", func(p *Params) { p.Tiers[2].TierActivationFee = 5000000 }, ErrActivationFeeTooSmall},
		{"withdrawal not decreasing", func(p *Params) { p.Tiers[3].WithdrawalFee = 4500000 }, ErrWithdrawalFeeTooBig},
		{"withdrawal zero", func(p *Params) { p.Tiers = p.Tiers[:1]; p.Tiers[0].WithdrawalFee = 0 }, ErrWithdrawalFeeTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate(0)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTiersFromVectors(t *testing.T) {
	tiers, err := TiersFromVectors([][]uint64{{10000, 0, 5}, {9000, 10, 4}})
	require.NoError(t, err)
	assert.Equal(t, Tier{9000, 10, 4}, tiers[1])

	_, err = TiersFromVectors([][]uint64{{10000, 0}})
	assert.ErrorIs(t, err, ErrTierFieldsWrongLength)
}

func TestLedger_SetParamsCannotDropTiers(t *testing.T) {
	l := newTestLedger(t)
	p := DefaultParams()
	p.Tiers = p.Tiers[:3]

	assert.ErrorIs(t, l.SetParams(p, true), ErrFewerTiers)
	assert.Equal(t, 7, l.NumTiers())

	require.NoError(t, l.SetParams(p, false))
	assert.Equal(t, 3, l.NumTiers())
}

func TestCalculateMaxQuoteMatch(t *testing.T) {
	// 2000 * 2001 / 2001 for a buy; the fee fits on top.
	assert.Equal(t, uint64(2000), CalculateMaxQuoteMatch(model.Buy, 2000, 2001))
	// Sellers receive quote minus fee, so more may be matched.
	assert.Equal(t, uint64(2001), CalculateMaxQuoteMatch(model.Sell, 2000, 2000))
	assert.Equal(t, model.Hi64, CalculateMaxQuoteMatch(model.Sell, 2000, model.Hi64))
	assert.Equal(t, uint64(18437525311054024602), CalculateMaxQuoteMatch(model.Buy, 2000, model.Hi64))
}

func TestLedger_AssessTakerFeesWithoutIntegratorStore(t *testing.T) {
	l := newTestLedger(t)
	fee, err := l.AssessTakerFees(testMarket, integrator, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), fee)
	assert.Equal(t, uint64(500), l.EconiaFees(testMarket))

	_, err = l.AssessTakerFees(99, integrator, 1)
	assert.ErrorIs(t, err, ErrNoFeeStore)
}

func TestLedger_FeeMonotonicityAcrossTiers(t *testing.T) {
	const quoteFilled uint64 = 1_000_000_000_000
	params := DefaultParams()

	var lastIntegrator, lastEconia uint64
	for tier := range params.Tiers {
		l := newTestLedger(t)
		activation := params.Tiers[tier].TierActivationFee
		require.NoError(t, l.RegisterIntegratorFeeStore(integrator, testMarket, uint8(tier), utility(activation)))

		total, err := l.AssessTakerFees(testMarket, integrator, quoteFilled)
		require.NoError(t, err)
		store, ok := l.IntegratorFeeStore(integrator, testMarket)
		require.True(t, ok)
		econia := l.EconiaFees(testMarket)

		assert.Equal(t, quoteFilled/2000, total)
		assert.Equal(t, total, store.Fees+econia)
		if tier > 0 {
			assert.Greater(t, store.Fees, lastIntegrator, "tier %d", tier)
			assert.Less(t, econia, lastEconia, "tier %d", tier)
		}
		lastIntegrator, lastEconia = store.Fees, econia
	}
}

func TestLedger_RegisterAndUpgradeIntegratorFeeStore(t *testing.T) {
	l := newTestLedger(t)

	err := l.RegisterIntegratorFeeStore(integrator, testMarket, 1, utility(4_999_999))
	assert.ErrorIs(t, err, ErrNotEnoughUtilityCoins)
	err = l.RegisterIntegratorFeeStore(integrator, testMarket, 1, model.Coins{Asset: "APT", Amount: 5_000_000})
	assert.ErrorIs(t, err, ErrInvalidUtilityCoinType)
	err = l.RegisterIntegratorFeeStore(integrator, testMarket, 7, utility(0))
	assert.ErrorIs(t, err, ErrInvalidTier)
	err = l.RegisterIntegratorFeeStore(integrator, 2, 0, utility(0))
	assert.ErrorIs(t, err, ErrNoFeeStore)
	assert.Equal(t, uint64(0), l.UtilityCoins())

	require.NoError(t, l.RegisterIntegratorFeeStore(integrator, testMarket, 1, utility(5_000_000)))
	assert.Equal(t, uint64(5_000_000), l.UtilityCoins())
	err = l.RegisterIntegratorFeeStore(integrator, testMarket, 2, utility(75_000_000))
	assert.ErrorIs(t, err, ErrIntegratorFeeStoreExists)

	_, err = l.UpgradeCost(integrator, testMarket, 1)
	assert.ErrorIs(t, err, ErrNotAnUpgrade)
	cost, err := l.UpgradeCost(integrator, testMarket, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(995_000_000), cost)

	require.NoError(t, l.UpgradeIntegratorFeeStore(integrator, testMarket, 3, utility(cost)))
	store, _ := l.IntegratorFeeStore(integrator, testMarket)
	assert.Equal(t, uint8(3), store.Tier)
	assert.Equal(t, quoteAsset, store.Asset)

	_, err = l.UpgradeCost("0xdef", testMarket, 3)
	assert.ErrorIs(t, err, ErrNoIntegratorFeeStore)
}

func TestLedger_WithdrawIntegratorFees(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.RegisterIntegratorFeeStore(integrator, testMarket, 0, utility(0)))
	_, err := l.AssessTakerFees(testMarket, integrator, 10_000_000)
	require.NoError(t, err)

	_, err = l.WithdrawIntegratorFees(integrator, testMarket, utility(1))
	assert.ErrorIs(t, err, ErrNotEnoughUtilityCoins)

	coins, err := l.WithdrawIntegratorFees(integrator, testMarket, utility(5_000_000))
	require.NoError(t, err)
	assert.Equal(t, model.Coins{Asset: quoteAsset, Amount: 1000}, coins)
	store, _ := l.IntegratorFeeStore(integrator, testMarket)
	assert.Zero(t, store.Fees)
}

func TestLedger_WithdrawEconiaAndUtilityCoins(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.AssessTakerFees(testMarket, integrator, 4_000_000)
	require.NoError(t, err)
	require.NoError(t, l.DepositMarketRegistrationUtilityCoins(utility(625_000_000)))

	_, err = l.WithdrawEconiaFees(testMarket, 2001)
	assert.ErrorIs(t, err, ErrWithdrawExceedsBalance)
	coins, err := l.WithdrawEconiaFees(testMarket, 2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), coins.Amount)

	_, err = l.WithdrawUtilityCoins(625_000_001)
	assert.ErrorIs(t, err, ErrWithdrawExceedsBalance)
	coins, err = l.WithdrawUtilityCoins(625_000_000)
	require.NoError(t, err)
	assert.Equal(t, model.UtilityCoin, coins.Asset)

	assert.ErrorIs(t, l.DepositCustodianRegistrationUtilityCoins(utility(1)), ErrNotEnoughUtilityCoins)
	assert.ErrorIs(t, l.DepositUnderwriterRegistrationUtilityCoins(utility(1)), ErrNotEnoughUtilityCoins)
}

func TestLedger_JournalRollback(t *testing.T) {
	l := newTestLedger(t)
	j := journal.New()
	l.SetJournal(j)
	before := l.State()

	require.NoError(t, l.RegisterIntegratorFeeStore(integrator, testMarket, 1, utility(5_000_000)))
	_, err := l.AssessTakerFees(testMarket, integrator, 9_000_000)
	require.NoError(t, err)
	_, err = l.AssessTakerFees(testMarket, integrator, 9_000_000)
	require.NoError(t, err)
	p := DefaultParams()
	p.TakerFeeDivisor = 2500
	p.Tiers[6].FeeShareDivisor = 5000
	require.NoError(t, l.SetParams(p, true))

	j.Rollback()
	assert.Equal(t, before, l.State())
}

func TestLedger_StateRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.RegisterIntegratorFeeStore(integrator, testMarket, 2, utility(75_000_000)))
	_, err := l.AssessTakerFees(testMarket, integrator, 123_456_789)
	require.NoError(t, err)

	restored, err := LedgerFromState(l.State())
	require.NoError(t, err)
	assert.Equal(t, l.State(), restored.State())
}

func TestLedger_StateIsOrdered(t *testing.T) {
	l, err := NewLedger(DefaultParams())
	require.NoError(t, err)
	for _, m := range []uint64{3, 1, 2} {
		l.RegisterEconiaFeeStoreEntry(m, quoteAsset)
	}
	other := model.Address("0x0ff")
	for _, k := range []struct {
		who    model.Address
		market uint64
	}{{integrator, 2}, {other, 3}, {integrator, 1}, {other, 1}} {
		require.NoError(t, l.RegisterIntegratorFeeStore(k.who, k.market, 0, utility(0)))
	}

	s := l.State()
	require.Len(t, s.Econia, 3)
	for i, e := range s.Econia {
		assert.Equal(t, uint64(i+1), e.MarketID)
	}
	got := make([]IntegratorFeeStoreEntry, 0, len(s.Integrators))
	for _, e := range s.Integrators {
		got = append(got, IntegratorFeeStoreEntry{Integrator: e.Integrator, MarketID: e.MarketID})
	}
	assert.Equal(t, []IntegratorFeeStoreEntry{
		{Integrator: other, MarketID: 1},
		{Integrator: other, MarketID: 3},
		{Integrator: integrator, MarketID: 1},
		{Integrator: integrator, MarketID: 2},
	}, got)
}
