package incentives

import (
	"github.com/Aidin1998/pincex_clob/internal/trading/journal"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/tidwall/btree"
)

// IntegratorFeeStore accrues an integrator's share of taker fees on one market.
type IntegratorFeeStore struct {
	Tier  uint8           `json:"tier"`
	Asset model.AssetType `json:"asset"`
	Fees  uint64          `json:"fees"`
}

// EconiaFeeStore accrues the protocol's share of taker fees on one market.
type EconiaFeeStore struct {
	Asset model.AssetType `json:"asset"`
	Fees  uint64          `json:"fees"`
}

// Ledger holds the incentive schedule and every fee store.
// It is not safe for concurrent use.
type Ledger struct {
	params      Params
	integrators *btree.BTreeG[*IntegratorFeeStoreEntry]
	econia      *btree.Map[uint64, *EconiaFeeStore]
	utility     uint64
	journal     *journal.Journal
}

// NewLedger validates params and returns an empty ledger.
func NewLedger(params Params) (*Ledger, error) {
	if err := params.Validate(0); err != nil {
		return nil, err
	}
	return &Ledger{
		params:      params.Clone(),
		integrators: btree.NewBTreeG(byIntegratorMarket),
		econia:      btree.NewMap[uint64, *EconiaFeeStore](32),
	}, nil
}

func byIntegratorMarket(a, b *IntegratorFeeStoreEntry) bool {
	if a.Integrator != b.Integrator {
		return a.Integrator < b.Integrator
	}
	return a.MarketID < b.MarketID
}

func (l *Ledger) integratorStore(integrator model.Address, marketID uint64) (*IntegratorFeeStore, bool) {
	e, ok := l.integrators.Get(&IntegratorFeeStoreEntry{Integrator: integrator, MarketID: marketID})
	if !ok {
		return nil, false
	}
	return &e.IntegratorFeeStore, true
}

// SetJournal makes subsequent mutations undoable through j.
func (l *Ledger) SetJournal(j *journal.Journal) { l.journal = j }

// Params returns a copy of the current schedule.
func (l *Ledger) Params() Params { return l.params.Clone() }

// SetParams replaces the schedule. When updating, the new schedule may not
// have fewer tiers than the current one, since existing stores reference them.
func (l *Ledger) SetParams(params Params, updating bool) error {
	nCurrent := 0
	if updating {
		nCurrent = len(l.params.Tiers)
	}
	if err := params.Validate(nCurrent); err != nil {
		return err
	}
	old := l.params
	l.journal.Record(func() { l.params = old })
	l.params = params.Clone()
	return nil
}

func (l *Ledger) TakerFeeDivisor() uint64            { return l.params.TakerFeeDivisor }
func (l *Ledger) MarketRegistrationFee() uint64      { return l.params.MarketRegistrationFee }
func (l *Ledger) UnderwriterRegistrationFee() uint64 { return l.params.UnderwriterRegistrationFee }
func (l *Ledger) CustodianRegistrationFee() uint64   { return l.params.CustodianRegistrationFee }
func (l *Ledger) NumTiers() int                      { return len(l.params.Tiers) }

func (l *Ledger) IsUtilityCoinType(asset model.AssetType) bool {
	return asset == l.params.UtilityCoinType
}

func (l *Ledger) tier(tier uint8) (Tier, error) {
	if int(tier) >= len(l.params.Tiers) {
		return Tier{}, ErrInvalidTier
	}
	return l.params.Tiers[tier], nil
}

func (l *Ledger) FeeShareDivisor(tier uint8) (uint64, error) {
	t, err := l.tier(tier)
	return t.FeeShareDivisor, err
}

func (l *Ledger) TierActivationFee(tier uint8) (uint64, error) {
	t, err := l.tier(tier)
	return t.TierActivationFee, err
}

func (l *Ledger) TierWithdrawalFee(tier uint8) (uint64, error) {
	t, err := l.tier(tier)
	return t.WithdrawalFee, err
}

// RegisterEconiaFeeStoreEntry opens the protocol fee store for a new market.
func (l *Ledger) RegisterEconiaFeeStoreEntry(marketID uint64, quote model.AssetType) {
	if _, ok := l.econia.Get(marketID); ok {
		return
	}
	l.journal.Record(func() { l.econia.Delete(marketID) })
	l.econia.Set(marketID, &EconiaFeeStore{Asset: quote})
}

// AssessTakerFees splits the taker fee on quoteFilled between the integrator,
// if it holds a fee store on the market, and the protocol. Truncation
// remainders stay with the protocol. The total fee is returned.
func (l *Ledger) AssessTakerFees(marketID uint64, integrator model.Address, quoteFilled uint64) (uint64, error) {
	econia, ok := l.econia.Get(marketID)
	if !ok {
		return 0, ErrNoFeeStore
	}
	totalFee := quoteFilled / l.params.TakerFeeDivisor

	var integratorShare uint64
	store, hasStore := l.integratorStore(integrator, marketID)
	if hasStore {
		divisor, err := l.FeeShareDivisor(store.Tier)
		if err != nil {
			return 0, err
		}
		integratorShare = quoteFilled / divisor
		if _, ok := model.Add(store.Fees, integratorShare); !ok {
			return 0, ErrIntegratorFeeStoreOverflow
		}
	}
	econiaShare := totalFee - integratorShare
	if _, ok := model.Add(econia.Fees, econiaShare); !ok {
		return 0, ErrEconiaFeeStoreOverflow
	}

	if hasStore && integratorShare > 0 {
		l.recordIntegrator(store)
		store.Fees += integratorShare
	}
	if econiaShare > 0 {
		l.recordEconia(econia)
		econia.Fees += econiaShare
	}
	return totalFee, nil
}

// depositUtilityCoins verifies the coin type and minimum and moves every coin
// into the utility coin store.
func (l *Ledger) depositUtilityCoins(coins model.Coins, minAmount uint64) error {
	if !l.IsUtilityCoinType(coins.Asset) {
		return ErrInvalidUtilityCoinType
	}
	if coins.Amount < minAmount {
		return ErrNotEnoughUtilityCoins
	}
	sum, ok := model.Add(l.utility, coins.Amount)
	if !ok {
		return ErrUtilityCoinStoreOverflow
	}
	old := l.utility
	l.journal.Record(func() { l.utility = old })
	l.utility = sum
	return nil
}

func (l *Ledger) DepositMarketRegistrationUtilityCoins(coins model.Coins) error {
	return l.depositUtilityCoins(coins, l.params.MarketRegistrationFee)
}

func (l *Ledger) DepositUnderwriterRegistrationUtilityCoins(coins model.Coins) error {
	return l.depositUtilityCoins(coins, l.params.UnderwriterRegistrationFee)
}

func (l *Ledger) DepositCustodianRegistrationUtilityCoins(coins model.Coins) error {
	return l.depositUtilityCoins(coins, l.params.CustodianRegistrationFee)
}

// RegisterIntegratorFeeStore opens a fee store at tier, paying its activation fee.
func (l *Ledger) RegisterIntegratorFeeStore(integrator model.Address, marketID uint64, tier uint8, utilityCoins model.Coins) error {
	econia, ok := l.econia.Get(marketID)
	if !ok {
		return ErrNoFeeStore
	}
	if _, ok := l.integratorStore(integrator, marketID); ok {
		return ErrIntegratorFeeStoreExists
	}
	fee, err := l.TierActivationFee(tier)
	if err != nil {
		return err
	}
	if err := l.depositUtilityCoins(utilityCoins, fee); err != nil {
		return err
	}
	entry := &IntegratorFeeStoreEntry{
		Integrator:         integrator,
		MarketID:           marketID,
		IntegratorFeeStore: IntegratorFeeStore{Tier: tier, Asset: econia.Asset},
	}
	l.journal.Record(func() { l.integrators.Delete(entry) })
	l.integrators.Set(entry)
	return nil
}

// UpgradeCost is the activation fee difference between newTier and the
// store's current tier.
func (l *Ledger) UpgradeCost(integrator model.Address, marketID uint64, newTier uint8) (uint64, error) {
	store, ok := l.integratorStore(integrator, marketID)
	if !ok {
		return 0, ErrNoIntegratorFeeStore
	}
	if newTier <= store.Tier {
		return 0, ErrNotAnUpgrade
	}
	next, err := l.TierActivationFee(newTier)
	if err != nil {
		return 0, err
	}
	current, err := l.TierActivationFee(store.Tier)
	if err != nil {
		return 0, err
	}
	return next - current, nil
}

func (l *Ledger) UpgradeIntegratorFeeStore(integrator model.Address, marketID uint64, newTier uint8, utilityCoins model.Coins) error {
	cost, err := l.UpgradeCost(integrator, marketID, newTier)
	if err != nil {
		return err
	}
	if err := l.depositUtilityCoins(utilityCoins, cost); err != nil {
		return err
	}
	store, _ := l.integratorStore(integrator, marketID)
	l.recordIntegrator(store)
	store.Tier = newTier
	return nil
}

// WithdrawIntegratorFees pays the tier's withdrawal fee and returns every
// accrued fee in the store.
func (l *Ledger) WithdrawIntegratorFees(integrator model.Address, marketID uint64, utilityCoins model.Coins) (model.Coins, error) {
	store, ok := l.integratorStore(integrator, marketID)
	if !ok {
		return model.Coins{}, ErrNoIntegratorFeeStore
	}
	fee, err := l.TierWithdrawalFee(store.Tier)
	if err != nil {
		return model.Coins{}, err
	}
	if err := l.depositUtilityCoins(utilityCoins, fee); err != nil {
		return model.Coins{}, err
	}
	l.recordIntegrator(store)
	out := model.Coins{Asset: store.Asset, Amount: store.Fees}
	store.Fees = 0
	return out, nil
}

// WithdrawEconiaFees takes amount out of a market's protocol fee store.
func (l *Ledger) WithdrawEconiaFees(marketID, amount uint64) (model.Coins, error) {
	store, ok := l.econia.Get(marketID)
	if !ok {
		return model.Coins{}, ErrNoFeeStore
	}
	if amount > store.Fees {
		return model.Coins{}, ErrWithdrawExceedsBalance
	}
	l.recordEconia(store)
	store.Fees -= amount
	return model.Coins{Asset: store.Asset, Amount: amount}, nil
}

func (l *Ledger) WithdrawUtilityCoins(amount uint64) (model.Coins, error) {
	if amount > l.utility {
		return model.Coins{}, ErrWithdrawExceedsBalance
	}
	old := l.utility
	l.journal.Record(func() { l.utility = old })
	l.utility -= amount
	return model.Coins{Asset: l.params.UtilityCoinType, Amount: amount}, nil
}

// IntegratorFeeStore returns a copy of the store, if any.
func (l *Ledger) IntegratorFeeStore(integrator model.Address, marketID uint64) (IntegratorFeeStore, bool) {
	store, ok := l.integratorStore(integrator, marketID)
	if !ok {
		return IntegratorFeeStore{}, false
	}
	return *store, true
}

func (l *Ledger) EconiaFees(marketID uint64) uint64 {
	if store, ok := l.econia.Get(marketID); ok {
		return store.Fees
	}
	return 0
}

func (l *Ledger) UtilityCoins() uint64 { return l.utility }

func (l *Ledger) recordIntegrator(store *IntegratorFeeStore) {
	old := *store
	l.journal.RecordOnce(store, func() { *store = old })
}

func (l *Ledger) recordEconia(store *EconiaFeeStore) {
	old := *store
	l.journal.RecordOnce(store, func() { *store = old })
}
