// Package user keeps each user's market accounts: asset counters, resting
// order slots and the coin collateral backing them.
package user

import (
	"github.com/Aidin1998/pincex_clob/internal/trading/journal"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/pkg/errors"
	"github.com/tidwall/btree"
)

const ModuleName = "user"

var (
	ErrExistsMarketAccount         = errors.NewAbort(ModuleName, 0, "E_EXISTS_MARKET_ACCOUNT", errors.ClassValidation)
	ErrUnregisteredCustodian       = errors.NewAbort(ModuleName, 1, "E_UNREGISTERED_CUSTODIAN", errors.ClassValidation)
	ErrNoMarketAccounts            = errors.NewAbort(ModuleName, 2, "E_NO_MARKET_ACCOUNTS", errors.ClassNotFound)
	ErrNoMarketAccount             = errors.NewAbort(ModuleName, 3, "E_NO_MARKET_ACCOUNT", errors.ClassNotFound)
	ErrAssetNotInPair              = errors.NewAbort(ModuleName, 4, "E_ASSET_NOT_IN_PAIR", errors.ClassValidation)
	ErrDepositOverflowAssetCeiling = errors.NewAbort(ModuleName, 5, "E_DEPOSIT_OVERFLOW_ASSET_CEILING", errors.ClassInvariant)
	ErrInvalidUnderwriter          = errors.NewAbort(ModuleName, 6, "E_INVALID_UNDERWRITER", errors.ClassValidation)
	ErrWithdrawTooLittleAvailable  = errors.NewAbort(ModuleName, 7, "E_WITHDRAW_TOO_LITTLE_AVAILABLE", errors.ClassValidation)
	ErrPrice0                      = errors.NewAbort(ModuleName, 8, "E_PRICE_0", errors.ClassValidation)
	ErrPriceTooHigh                = errors.NewAbort(ModuleName, 9, "E_PRICE_TOO_HIGH", errors.ClassValidation)
	ErrSizeTooLow                  = errors.NewAbort(ModuleName, 10, "E_SIZE_TOO_LOW", errors.ClassValidation)
	ErrTicksOverflow               = errors.NewAbort(ModuleName, 11, "E_TICKS_OVERFLOW", errors.ClassValidation)
	ErrOverflowAssetIn             = errors.NewAbort(ModuleName, 12, "E_OVERFLOW_ASSET_IN", errors.ClassInvariant)
	ErrNotEnoughAssetOut           = errors.NewAbort(ModuleName, 13, "E_NOT_ENOUGH_ASSET_OUT", errors.ClassInvariant)
	ErrChangeOrderNoChange         = errors.NewAbort(ModuleName, 14, "E_CHANGE_ORDER_NO_CHANGE", errors.ClassValidation)
	ErrInvalidMarketOrderID        = errors.NewAbort(ModuleName, 15, "E_INVALID_MARKET_ORDER_ID", errors.ClassNotFound)
	ErrCoinAmountMismatch          = errors.NewAbort(ModuleName, 16, "E_COIN_AMOUNT_MISMATCH", errors.ClassValidation)
	ErrAccessKeyMismatch           = errors.NewAbort(ModuleName, 17, "E_ACCESS_KEY_MISMATCH", errors.ClassInvariant)
	ErrCoinTypeIsGenericAsset      = errors.NewAbort(ModuleName, 18, "E_COIN_TYPE_IS_GENERIC_ASSET", errors.ClassValidation)
	ErrStartSizeMismatch           = errors.NewAbort(ModuleName, 19, "E_START_SIZE_MISMATCH", errors.ClassInvariant)
)

// MarketInfo is the market configuration copied into every market account.
type MarketInfo struct {
	BaseType        model.AssetType `json:"base_type"`
	BaseNameGeneric string          `json:"base_name_generic,omitempty"`
	QuoteType       model.AssetType `json:"quote_type"`
	LotSize         uint64          `json:"lot_size"`
	TickSize        uint64          `json:"tick_size"`
	MinSize         uint64          `json:"min_size"`
	UnderwriterID   uint64          `json:"underwriter_id"`
}

// Order is one order slot. An inactive slot has a nil market order id and
// its Size holds the access key of the next free slot.
type Order struct {
	MarketOrderID model.MarketOrderID `json:"market_order_id"`
	Size          uint64              `json:"size"`
}

// MarketAccount is a user's account on one market under one custodian.
type MarketAccount struct {
	ID   model.MarketAccountID `json:"id"`
	User model.Address         `json:"user"`
	MarketInfo

	Asks         []Order `json:"asks"`
	Bids         []Order `json:"bids"`
	AsksStackTop uint64  `json:"asks_stack_top"`
	BidsStackTop uint64  `json:"bids_stack_top"`

	BaseTotal      uint64 `json:"base_total"`
	BaseAvailable  uint64 `json:"base_available"`
	BaseCeiling    uint64 `json:"base_ceiling"`
	QuoteTotal     uint64 `json:"quote_total"`
	QuoteAvailable uint64 `json:"quote_available"`
	QuoteCeiling   uint64 `json:"quote_ceiling"`
}

func (a *MarketAccount) clone() MarketAccount {
	c := *a
	c.Asks = append([]Order(nil), a.Asks...)
	c.Bids = append([]Order(nil), a.Bids...)
	return c
}

func (a *MarketAccount) orders(side model.Side) (*[]Order, *uint64) {
	if side == model.Ask {
		return &a.Asks, &a.AsksStackTop
	}
	return &a.Bids, &a.BidsStackTop
}

// AssetCounts is a snapshot of a market account's counters.
type AssetCounts struct {
	BaseTotal      uint64 `json:"base_total"`
	BaseAvailable  uint64 `json:"base_available"`
	BaseCeiling    uint64 `json:"base_ceiling"`
	QuoteTotal     uint64 `json:"quote_total"`
	QuoteAvailable uint64 `json:"quote_available"`
	QuoteCeiling   uint64 `json:"quote_ceiling"`
}

func (a *MarketAccount) Counts() AssetCounts {
	return AssetCounts{
		BaseTotal: a.BaseTotal, BaseAvailable: a.BaseAvailable, BaseCeiling: a.BaseCeiling,
		QuoteTotal: a.QuoteTotal, QuoteAvailable: a.QuoteAvailable, QuoteCeiling: a.QuoteCeiling,
	}
}

type collateralKey struct {
	User  model.Address
	Asset model.AssetType
	ID    model.MarketAccountID
}

func (k collateralKey) entry(amount uint64) CollateralEntry {
	return CollateralEntry{User: k.User, Asset: k.Asset, ID: k.ID, Amount: amount}
}

// byCollateralKey orders collateral by user, then account id, then asset.
func byCollateralKey(a, b CollateralEntry) bool {
	if a.User != b.User {
		return a.User < b.User
	}
	if a.ID != b.ID {
		return a.ID.Less(b.ID)
	}
	return a.Asset < b.Asset
}

// Ledger holds every market account and collateral entry.
// It is not safe for concurrent use.
type Ledger struct {
	accounts     *btree.Map[model.Address, *btree.BTreeG[*MarketAccount]]
	collateral   *btree.BTreeG[CollateralEntry]
	custodians   uint64
	underwriters uint64
	journal      *journal.Journal
}

func byAccountID(a, b *MarketAccount) bool { return a.ID.Less(b.ID) }

func NewLedger() *Ledger {
	return &Ledger{
		accounts:   btree.NewMap[model.Address, *btree.BTreeG[*MarketAccount]](32),
		collateral: btree.NewBTreeG(byCollateralKey),
	}
}

// SetJournal makes subsequent mutations undoable through j.
func (l *Ledger) SetJournal(j *journal.Journal) { l.journal = j }

// RegisterMarketAccount opens an account for user on a market. Coin assets
// get a zeroed collateral entry.
func (l *Ledger) RegisterMarketAccount(user model.Address, marketID, custodianID uint64, info MarketInfo) error {
	if custodianID != model.NoCustodian && !l.IsRegisteredCustodian(custodianID) {
		return ErrUnregisteredCustodian
	}
	id := model.MarketAccountID{MarketID: marketID, CustodianID: custodianID}
	tree, ok := l.accounts.Get(user)
	if !ok {
		tree = btree.NewBTreeG(byAccountID)
		l.accounts.Set(user, tree)
		l.journal.Record(func() { l.accounts.Delete(user) })
	}
	probe := &MarketAccount{ID: id}
	if _, exists := tree.Get(probe); exists {
		return ErrExistsMarketAccount
	}
	acct := &MarketAccount{ID: id, User: user, MarketInfo: info}
	tree.Set(acct)
	l.journal.Record(func() { tree.Delete(probe) })

	for _, asset := range []model.AssetType{info.BaseType, info.QuoteType} {
		if asset == model.GenericAsset {
			continue
		}
		key := collateralKey{user, asset, id}
		l.journal.Record(func() { l.collateral.Delete(key.entry(0)) })
		l.collateral.Set(key.entry(0))
	}
	return nil
}

// account returns the market account or the abort a lookup would raise.
func (l *Ledger) account(user model.Address, id model.MarketAccountID) (*MarketAccount, error) {
	tree, ok := l.accounts.Get(user)
	if !ok || tree.Len() == 0 {
		return nil, ErrNoMarketAccounts
	}
	acct, ok := tree.Get(&MarketAccount{ID: id})
	if !ok {
		return nil, ErrNoMarketAccount
	}
	return acct, nil
}

func (l *Ledger) touch(acct *MarketAccount) {
	if l.journal == nil {
		return
	}
	old := acct.clone()
	l.journal.RecordOnce(acct, func() { *acct = old })
}

func (l *Ledger) addCollateral(key collateralKey, delta uint64, add bool) {
	cur, _ := l.collateral.Get(key.entry(0))
	old := cur.Amount
	l.journal.Record(func() { l.collateral.Set(key.entry(old)) })
	if add {
		l.collateral.Set(key.entry(old + delta))
	} else {
		l.collateral.Set(key.entry(old - delta))
	}
}

// HasMarketAccount reports whether the account exists.
func (l *Ledger) HasMarketAccount(user model.Address, id model.MarketAccountID) bool {
	_, err := l.account(user, id)
	return err == nil
}

// MarketAccount returns a copy of the account.
func (l *Ledger) MarketAccount(user model.Address, id model.MarketAccountID) (MarketAccount, error) {
	acct, err := l.account(user, id)
	if err != nil {
		return MarketAccount{}, err
	}
	return acct.clone(), nil
}

// AssetCounts returns the account's counters.
func (l *Ledger) AssetCounts(user model.Address, id model.MarketAccountID) (AssetCounts, error) {
	acct, err := l.account(user, id)
	if err != nil {
		return AssetCounts{}, err
	}
	return acct.Counts(), nil
}

// MarketAccountIDs lists a user's account ids in ascending order.
func (l *Ledger) MarketAccountIDs(user model.Address) []model.MarketAccountID {
	ids := make([]model.MarketAccountID, 0)
	if tree, ok := l.accounts.Get(user); ok {
		tree.Scan(func(a *MarketAccount) bool {
			ids = append(ids, a.ID)
			return true
		})
	}
	return ids
}

// MarketAccountIDsForMarket lists a user's custodian accounts on one market.
func (l *Ledger) MarketAccountIDsForMarket(user model.Address, marketID uint64) []model.MarketAccountID {
	ids := make([]model.MarketAccountID, 0)
	tree, ok := l.accounts.Get(user)
	if !ok {
		return ids
	}
	tree.Ascend(&MarketAccount{ID: model.MarketAccountID{MarketID: marketID}}, func(a *MarketAccount) bool {
		if a.ID.MarketID != marketID {
			return false
		}
		ids = append(ids, a.ID)
		return true
	})
	return ids
}

// Collateral returns the coins held for a market account.
func (l *Ledger) Collateral(user model.Address, asset model.AssetType, id model.MarketAccountID) (uint64, bool) {
	c, ok := l.collateral.Get(collateralKey{user, asset, id}.entry(0))
	return c.Amount, ok
}

// Users returns every user with at least one market account, in ascending order.
func (l *Ledger) Users() []model.Address {
	return l.accounts.Keys()
}
