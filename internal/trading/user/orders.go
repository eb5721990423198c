package user

import "github.com/Aidin1998/pincex_clob/internal/trading/model"

// OrderRef addresses one order slot of a market account.
type OrderRef struct {
	User           model.Address
	ID             model.MarketAccountID
	Side           model.Side
	OrderAccessKey uint64
}

// NextOrderAccessKey returns the slot the next order on side will occupy.
func (l *Ledger) NextOrderAccessKey(user model.Address, id model.MarketAccountID, side model.Side) (uint64, error) {
	acct, err := l.account(user, id)
	if err != nil {
		return 0, err
	}
	orders, top := acct.orders(side)
	if *top == 0 {
		return uint64(len(*orders)) + 1, nil
	}
	return *top, nil
}

// fills returns the amounts an order of side would receive and give up if
// filled completely, and whether each fits in 64 bits.
func (a *MarketAccount) fills(side model.Side, size, price uint64) (in, out uint64, inOK, outOK bool, err error) {
	if price == 0 {
		return 0, 0, false, false, ErrPrice0
	}
	if price > model.HiPrice {
		return 0, 0, false, false, ErrPriceTooHigh
	}
	if size < a.MinSize {
		return 0, 0, false, false, ErrSizeTooLow
	}
	base, baseOK := model.Mul(size, a.LotSize)
	ticks, ok := model.Mul(size, price)
	if !ok {
		return 0, 0, false, false, ErrTicksOverflow
	}
	quote, quoteOK := model.Mul(ticks, a.TickSize)
	if side == model.Ask {
		return quote, base, quoteOK, baseOK, nil
	}
	return base, quote, baseOK, quoteOK, nil
}

// inOut returns the ceiling of the asset an order on side receives and the
// available counter of the asset it gives up.
func (a *MarketAccount) inOut(side model.Side) (inCeiling, outAvailable *uint64) {
	if side == model.Ask {
		return &a.QuoteCeiling, &a.BaseAvailable
	}
	return &a.BaseCeiling, &a.QuoteAvailable
}

// PlaceOrder reserves the assets for a resting order and writes it into the
// next free slot, which must be expectedAccessKey.
func (l *Ledger) PlaceOrder(user model.Address, id model.MarketAccountID, side model.Side, size, price uint64, marketOrderID model.MarketOrderID, expectedAccessKey uint64) error {
	acct, err := l.account(user, id)
	if err != nil {
		return err
	}
	in, out, inOK, outOK, err := acct.fills(side, size, price)
	if err != nil {
		return err
	}
	inCeiling, outAvailable := acct.inOut(side)
	if !inOK || in > model.Hi64-*inCeiling {
		return ErrOverflowAssetIn
	}
	if !outOK || out > *outAvailable {
		return ErrNotEnoughAssetOut
	}
	orders, top := acct.orders(side)
	next := *top
	if next == 0 {
		next = uint64(len(*orders)) + 1
	}
	if next != expectedAccessKey {
		return ErrAccessKeyMismatch
	}

	l.touch(acct)
	*inCeiling += in
	*outAvailable -= out
	if *top == 0 {
		*orders = append(*orders, Order{MarketOrderID: marketOrderID, Size: size})
	} else {
		slot := &(*orders)[*top-1]
		*top = slot.Size
		*slot = Order{MarketOrderID: marketOrderID, Size: size}
	}
	return nil
}

func (a *MarketAccount) slot(side model.Side, accessKey uint64) (*Order, error) {
	orders, _ := a.orders(side)
	if accessKey == 0 || accessKey > uint64(len(*orders)) {
		return nil, ErrInvalidMarketOrderID
	}
	o := &(*orders)[accessKey-1]
	if o.MarketOrderID.IsNil() {
		return nil, ErrInvalidMarketOrderID
	}
	return o, nil
}

// CancelOrder frees an order slot and releases its reservation. A nil
// marketOrderID accepts whatever id the slot holds; otherwise it must match.
// The cancelled order's id is returned.
func (l *Ledger) CancelOrder(ref OrderRef, startSize, price uint64, marketOrderID model.MarketOrderID) (model.MarketOrderID, error) {
	acct, err := l.account(ref.User, ref.ID)
	if err != nil {
		return model.NilMarketOrderID, err
	}
	o, err := acct.slot(ref.Side, ref.OrderAccessKey)
	if err != nil {
		return model.NilMarketOrderID, err
	}
	if o.Size != startSize {
		return model.NilMarketOrderID, ErrStartSizeMismatch
	}
	if marketOrderID.IsNil() {
		marketOrderID = o.MarketOrderID
	} else if o.MarketOrderID != marketOrderID {
		return model.NilMarketOrderID, ErrInvalidMarketOrderID
	}
	// Amounts were range checked when the order was placed.
	quote := startSize * price * acct.TickSize
	base := startSize * acct.LotSize
	in, out := quote, base
	if ref.Side == model.Bid {
		in, out = base, quote
	}

	l.touch(acct)
	_, top := acct.orders(ref.Side)
	*o = Order{Size: *top}
	*top = ref.OrderAccessKey
	inCeiling, outAvailable := acct.inOut(ref.Side)
	*outAvailable += out
	*inCeiling -= in
	return marketOrderID, nil
}

// ChangeOrderSize cancels the order in its slot and places it again, in the
// same slot, under newMarketOrderID.
func (l *Ledger) ChangeOrderSize(ref OrderRef, startSize, newSize, price uint64, oldMarketOrderID, newMarketOrderID model.MarketOrderID) error {
	acct, err := l.account(ref.User, ref.ID)
	if err != nil {
		return err
	}
	o, err := acct.slot(ref.Side, ref.OrderAccessKey)
	if err != nil {
		return err
	}
	if o.Size == newSize {
		return ErrChangeOrderNoChange
	}
	if _, err := l.CancelOrder(ref, startSize, price, oldMarketOrderID); err != nil {
		return err
	}
	return l.PlaceOrder(ref.User, ref.ID, ref.Side, newSize, price, newMarketOrderID, ref.OrderAccessKey)
}

// Fill is a maker-side fill of a resting order.
type Fill struct {
	StartSize    uint64
	FillSize     uint64
	CompleteFill bool
	BaseToRoute  uint64
	QuoteToRoute uint64
}

// FillOrder settles a fill against a maker's order. Coins move between the
// maker's collateral and the taker's holdings. A generic base asset has no
// collateral, so only the taker's notional base amount changes. The order's
// id is returned.
func (l *Ledger) FillOrder(ref OrderRef, f Fill, takerBase, takerQuote *model.Coins) (model.MarketOrderID, error) {
	acct, err := l.account(ref.User, ref.ID)
	if err != nil {
		return model.NilMarketOrderID, err
	}
	o, err := acct.slot(ref.Side, ref.OrderAccessKey)
	if err != nil {
		return model.NilMarketOrderID, err
	}
	if o.Size != f.StartSize {
		return model.NilMarketOrderID, ErrStartSizeMismatch
	}
	marketOrderID := o.MarketOrderID
	generic := acct.BaseType == model.GenericAsset
	baseKey := collateralKey{ref.User, acct.BaseType, ref.ID}
	quoteKey := collateralKey{ref.User, acct.QuoteType, ref.ID}

	l.touch(acct)
	if f.CompleteFill {
		_, top := acct.orders(ref.Side)
		*o = Order{Size: *top}
		*top = ref.OrderAccessKey
	} else {
		o.Size -= f.FillSize
	}

	if ref.Side == model.Ask {
		acct.QuoteTotal += f.QuoteToRoute
		acct.QuoteAvailable += f.QuoteToRoute
		acct.BaseTotal -= f.BaseToRoute
		acct.BaseCeiling -= f.BaseToRoute
		if !generic {
			l.addCollateral(baseKey, f.BaseToRoute, false)
		}
		takerBase.Amount += f.BaseToRoute
		takerQuote.Amount -= f.QuoteToRoute
		l.addCollateral(quoteKey, f.QuoteToRoute, true)
	} else {
		acct.BaseTotal += f.BaseToRoute
		acct.BaseAvailable += f.BaseToRoute
		acct.QuoteTotal -= f.QuoteToRoute
		acct.QuoteCeiling -= f.QuoteToRoute
		takerBase.Amount -= f.BaseToRoute
		if !generic {
			l.addCollateral(baseKey, f.BaseToRoute, true)
		}
		l.addCollateral(quoteKey, f.QuoteToRoute, false)
		takerQuote.Amount += f.QuoteToRoute
	}
	return marketOrderID, nil
}

// OpenOrder is an active order slot.
type OpenOrder struct {
	OrderAccessKey uint64              `json:"order_access_key"`
	MarketOrderID  model.MarketOrderID `json:"market_order_id"`
	Size           uint64              `json:"size"`
}

// OpenOrders lists the active slots on side in access key order.
func (l *Ledger) OpenOrders(user model.Address, id model.MarketAccountID, side model.Side) ([]OpenOrder, error) {
	acct, err := l.account(user, id)
	if err != nil {
		return nil, err
	}
	orders, _ := acct.orders(side)
	open := make([]OpenOrder, 0, len(*orders))
	for i, o := range *orders {
		if o.MarketOrderID.IsNil() {
			continue
		}
		open = append(open, OpenOrder{OrderAccessKey: uint64(i + 1), MarketOrderID: o.MarketOrderID, Size: o.Size})
	}
	return open, nil
}

// ActiveMarketOrderIDs lists the ids of every open order on side.
func (l *Ledger) ActiveMarketOrderIDs(user model.Address, id model.MarketAccountID, side model.Side) ([]model.MarketOrderID, error) {
	open, err := l.OpenOrders(user, id, side)
	if err != nil {
		return nil, err
	}
	ids := make([]model.MarketOrderID, 0, len(open))
	for _, o := range open {
		ids = append(ids, o.MarketOrderID)
	}
	return ids, nil
}

// MarketOrderID returns the id held in an active order slot.
func (l *Ledger) MarketOrderID(ref OrderRef) (model.MarketOrderID, error) {
	acct, err := l.account(ref.User, ref.ID)
	if err != nil {
		return model.NilMarketOrderID, err
	}
	o, err := acct.slot(ref.Side, ref.OrderAccessKey)
	if err != nil {
		return model.NilMarketOrderID, err
	}
	return o.MarketOrderID, nil
}
