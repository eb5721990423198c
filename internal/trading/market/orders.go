package market

import (
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
	"go.uber.org/zap"
)

// LimitOrder is a request to trade size lots at price, resting any remainder.
type LimitOrder struct {
	MarketID    uint64                  `json:"market_id"`
	Integrator  model.Address           `json:"integrator"`
	Side        model.Side              `json:"side"`
	Size        uint64                  `json:"size"`
	Price       uint64                  `json:"price"`
	Restriction model.Restriction       `json:"restriction"`
	SelfMatch   model.SelfMatchBehavior `json:"self_match_behavior"`
}

// LimitOrderResult reports what a limit order traded and, if a remainder
// came to rest, its market order id.
type LimitOrderResult struct {
	MarketOrderID model.MarketOrderID `json:"market_order_id"`
	TradeResult
}

// Resting reports whether part of the order was posted to the book.
func (r LimitOrderResult) Resting() bool { return !r.MarketOrderID.IsNil() }

// MarketOrder is a request to take liquidity within bounds, never resting.
type MarketOrder struct {
	MarketID   uint64                  `json:"market_id"`
	Integrator model.Address           `json:"integrator"`
	Direction  model.Direction         `json:"direction"`
	MinBase    uint64                  `json:"min_base"`
	MaxBase    uint64                  `json:"max_base"`
	MinQuote   uint64                  `json:"min_quote"`
	MaxQuote   uint64                  `json:"max_quote"`
	LimitPrice uint64                  `json:"limit_price"`
	SelfMatch  model.SelfMatchBehavior `json:"self_match_behavior"`
}

// SwapRequest trades coins held outside any market account.
type SwapRequest struct {
	MarketID      uint64          `json:"market_id"`
	UnderwriterID uint64          `json:"underwriter_id"`
	Integrator    model.Address   `json:"integrator"`
	Direction     model.Direction `json:"direction"`
	MinBase       uint64          `json:"min_base"`
	MaxBase       uint64          `json:"max_base"`
	MinQuote      uint64          `json:"min_quote"`
	MaxQuote      uint64          `json:"max_quote"`
	LimitPrice    uint64          `json:"limit_price"`
	Base          model.Coins     `json:"base"`
	Quote         model.Coins     `json:"quote"`
}

// SwapResult holds the swapper's coins after the trade.
type SwapResult struct {
	Base  model.Coins `json:"base"`
	Quote model.Coins `json:"quote"`
	TradeResult
}

// orderAmounts range checks size at price and returns the base and quote
// an order of that size moves.
func orderAmounts(b *OrderBook, size, price uint64) (base, quote uint64, err error) {
	if size < b.MinSize {
		return 0, 0, ErrSizeTooSmall
	}
	base, ok := model.Mul(size, b.LotSize)
	if !ok {
		return 0, 0, ErrSizeBaseOverflow
	}
	ticks, ok := model.Mul(size, price)
	if !ok {
		return 0, 0, ErrSizePriceTicksOverflow
	}
	quote, ok = model.Mul(ticks, b.TickSize)
	if !ok {
		return 0, 0, ErrSizePriceQuoteOverflow
	}
	return base, quote, nil
}

// PlaceLimitOrder matches the order against the opposite side if it crosses
// the spread, then posts the remainder unless the restriction, a self match
// or the minimum size says otherwise. Posting into a crowded side may evict
// that side's worst order.
func (e *Exchange) PlaceLimitOrder(signer user.Signer, o LimitOrder) (LimitOrderResult, error) {
	var res LimitOrderResult
	err := e.run("place_limit_order", func() error {
		var err error
		res, err = e.placeLimitOrder(signer, o)
		return err
	})
	return res, err
}

func (e *Exchange) placeLimitOrder(signer user.Signer, o LimitOrder) (LimitOrderResult, error) {
	var res LimitOrderResult
	switch {
	case !o.Restriction.Valid():
		return res, ErrInvalidRestriction
	case !o.SelfMatch.Valid():
		return res, ErrInvalidSelfMatchBehavior
	case o.Price == 0:
		return res, ErrPrice0
	case o.Price > model.HiPrice:
		return res, ErrPriceTooHigh
	}
	b, err := e.registry.book(o.MarketID)
	if err != nil {
		return res, err
	}
	base, quote, err := orderAmounts(b, o.Size, o.Price)
	if err != nil {
		return res, err
	}

	crosses := b.crosses(o.Side, o.Price)
	if o.Restriction == model.PostOrAbort && crosses {
		return res, ErrPostOrAbortCrossesSpread
	}
	if o.Restriction == model.FillOrAbort && !crosses {
		return res, ErrFillOrAbortNotCrossSpread
	}

	t := taker{user: signer.User(), custodianID: signer.CustodianID(), integrator: o.Integrator}
	if !crosses {
		// A resting order must be fully backed before it is posted.
		counts, err := e.users.AssetCounts(t.user, t.accountID(b.MarketID))
		if err != nil {
			return res, err
		}
		p := matchParams{direction: o.Side.Direction(), maxBase: base, maxQuote: quote}
		if err := rangeCheckTrade(p, counts.BaseAvailable, counts.BaseCeiling, counts.QuoteAvailable, counts.QuoteCeiling); err != nil {
			return res, err
		}
	}

	size := o.Size
	if crosses {
		p := matchParams{
			direction:  o.Side.Direction(),
			maxBase:    base,
			maxQuote:   model.MaxPossible,
			limitPrice: o.Price,
			selfMatch:  o.SelfMatch,
		}
		if o.Restriction == model.FillOrAbort {
			p.minBase = base
		}
		m, err := e.matchFromAccount(b, t, p)
		if err != nil {
			return res, err
		}
		res.TradeResult = m.TradeResult
		size -= m.BaseTraded / b.LotSize
		if m.takerCancelled {
			return res, nil
		}
	}
	if o.Restriction == model.ImmediateOrCancel || o.Restriction == model.FillOrAbort ||
		size == 0 || size < b.MinSize || b.crosses(o.Side, o.Price) {
		return res, nil
	}

	id, err := e.post(b, t, o.Side, size, o.Price)
	if err != nil {
		return res, err
	}
	res.MarketOrderID = id
	return res, nil
}

// PassiveAdvanceOrder is a post-only order priced off the head of its own
// side of the book and moved toward the spread.
type PassiveAdvanceOrder struct {
	MarketID   uint64             `json:"market_id"`
	Integrator model.Address      `json:"integrator"`
	Side       model.Side         `json:"side"`
	Size       uint64             `json:"size"`
	Style      model.AdvanceStyle `json:"advance_style"`
	// Advance is a tick count, or a percent of the distance to one tick
	// short of the opposite side's best price.
	Advance uint64 `json:"target_advance_amount"`
}

// PlaceLimitOrderPassiveAdvance posts a post-or-abort order at the price of
// the best order on its side, advanced toward the spread without crossing
// it. It returns the nil order id, placing nothing, when its side is empty
// or when it should advance but the opposite side is empty.
func (e *Exchange) PlaceLimitOrderPassiveAdvance(signer user.Signer, o PassiveAdvanceOrder) (model.MarketOrderID, error) {
	var id model.MarketOrderID
	err := e.run("place_limit_order_passive_advance", func() error {
		b, err := e.registry.book(o.MarketID)
		if err != nil {
			return err
		}
		price, ok, err := passiveAdvancePrice(b, o.Side, o.Style, o.Advance)
		if err != nil || !ok {
			return err
		}
		res, err := e.placeLimitOrder(signer, LimitOrder{
			MarketID:    o.MarketID,
			Integrator:  o.Integrator,
			Side:        o.Side,
			Size:        o.Size,
			Price:       price,
			Restriction: model.PostOrAbort,
			SelfMatch:   model.Abort,
		})
		id = res.MarketOrderID
		return err
	})
	return id, err
}

// passiveAdvancePrice starts from the head of side and moves toward the
// opposite head, stopping one tick short of it. ok is false when there is
// no price to start from or to advance toward.
func passiveAdvancePrice(b *OrderBook, side model.Side, style model.AdvanceStyle, advance uint64) (price uint64, ok bool, err error) {
	start, ok := b.side(side).HeadKey()
	if !ok {
		return 0, false, nil
	}
	if advance == 0 {
		return start, true, nil
	}
	cross, ok := b.side(!side).HeadKey()
	if !ok {
		return 0, false, nil
	}

	var full, distance uint64
	if side == model.Ask {
		full = min(cross+1, start)
		distance = start - full
	} else {
		full = max(cross-1, start)
		distance = full - start
	}
	if distance == 0 {
		return start, true, nil
	}

	var step uint64
	switch style {
	case model.AdvancePercent:
		if advance > model.Percent100 {
			return 0, false, ErrInvalidPercent
		}
		if advance == model.Percent100 {
			return full, true, nil
		}
		step = distance * advance / model.Percent100
	default:
		if advance >= distance {
			return full, true, nil
		}
		step = advance
	}
	if side == model.Ask {
		return start - step, true, nil
	}
	return start + step, true, nil
}

// post rests an order, evicting the side's worst order if the queue is past
// its critical height or out of list nodes.
func (e *Exchange) post(b *OrderBook, t taker, side model.Side, size, price uint64) (model.MarketOrderID, error) {
	acct := t.accountID(b.MarketID)
	orderAccessKey, err := e.users.NextOrderAccessKey(t.user, acct, side)
	if err != nil {
		return model.NilMarketOrderID, err
	}
	order := model.Order{Size: size, Price: price, User: t.user, CustodianID: t.custodianID, OrderAccessKey: orderAccessKey}
	ev, err := b.side(side).InsertCheckEviction(price, order, e.cfg.CriticalHeight)
	if err != nil {
		return model.NilMarketOrderID, err
	}
	if !ev.Inserted() {
		return model.NilMarketOrderID, ErrPriceTimePriorityTooLow
	}
	id := b.nextMarketOrderID(ev.AccessKey)
	if err := e.users.PlaceOrder(t.user, acct, side, size, price, id, orderAccessKey); err != nil {
		return model.NilMarketOrderID, err
	}
	e.emitMaker(b, side, id, order, model.MakerPlace)

	if ev.Evicted() {
		evictee := ev.Value
		evictedID, err := e.users.CancelOrder(orderRef(b, side, evictee), evictee.Size, evictee.Price, model.NilMarketOrderID)
		if err != nil {
			return model.NilMarketOrderID, err
		}
		e.emitMaker(b, side, evictedID, evictee, model.MakerEvict)
		e.logger.Info("evicted resting order",
			zap.Uint64("market_id", b.MarketID),
			zap.Stringer("side", side),
			zap.Stringer("market_order_id", evictedID),
			zap.String("user", string(evictee.User)))
	}
	return id, nil
}

// PlaceMarketOrder takes liquidity from the signer's market account. Bounds
// of MaxPossible resolve to everything the account can spend or hold.
func (e *Exchange) PlaceMarketOrder(signer user.Signer, o MarketOrder) (TradeResult, error) {
	var res TradeResult
	err := e.run("place_market_order", func() error {
		if !o.SelfMatch.Valid() {
			return ErrInvalidSelfMatchBehavior
		}
		if o.LimitPrice > model.HiPrice {
			return ErrPriceTooHigh
		}
		b, err := e.registry.book(o.MarketID)
		if err != nil {
			return err
		}
		t := taker{user: signer.User(), custodianID: signer.CustodianID(), integrator: o.Integrator}
		m, err := e.matchFromAccount(b, t, matchParams{
			direction:  o.Direction,
			minBase:    o.MinBase,
			maxBase:    o.MaxBase,
			minQuote:   o.MinQuote,
			maxQuote:   o.MaxQuote,
			limitPrice: o.LimitPrice,
			selfMatch:  o.SelfMatch,
		})
		res = m.TradeResult
		return err
	})
	return res, err
}

// Swap trades coins without a market account. On error the request's coins
// are untouched and remain the caller's.
func (e *Exchange) Swap(req SwapRequest) (SwapResult, error) {
	var res SwapResult
	err := e.run("swap", func() error {
		var err error
		res, err = e.swap(req)
		return err
	})
	return res, err
}

func (e *Exchange) swap(req SwapRequest) (SwapResult, error) {
	b, err := e.registry.book(req.MarketID)
	if err != nil {
		return SwapResult{}, err
	}
	if b.IsGeneric() && req.UnderwriterID != b.UnderwriterID {
		return SwapResult{}, ErrInvalidUnderwriter
	}
	base, quote := req.Base, req.Quote
	if base.Asset == "" && base.Amount == 0 {
		base.Asset = b.BaseType
	}
	if quote.Asset == "" && quote.Amount == 0 {
		quote.Asset = b.QuoteType
	}
	if base.Asset != b.BaseType {
		return SwapResult{}, ErrInvalidBase
	}
	if quote.Asset != b.QuoteType {
		return SwapResult{}, ErrInvalidQuote
	}

	p := matchParams{
		direction:  req.Direction,
		minBase:    req.MinBase,
		maxBase:    req.MaxBase,
		minQuote:   req.MinQuote,
		maxQuote:   req.MaxQuote,
		limitPrice: req.LimitPrice,
		selfMatch:  model.Abort,
	}
	if p.direction == model.Buy {
		if p.maxBase == model.MaxPossible {
			p.maxBase = model.Hi64 - base.Amount
		}
		if p.maxQuote == model.MaxPossible {
			p.maxQuote = quote.Amount
		}
	} else {
		if p.maxBase == model.MaxPossible {
			p.maxBase = base.Amount
		}
		if p.maxQuote == model.MaxPossible {
			p.maxQuote = model.Hi64 - quote.Amount
		}
	}
	if err := rangeCheckTrade(p, base.Amount, base.Amount, quote.Amount, quote.Amount); err != nil {
		return SwapResult{}, err
	}

	t := taker{user: model.NoMarketAccount, custodianID: model.NoCustodian, integrator: req.Integrator}
	m, err := e.match(b, t, p, &base, &quote)
	if err != nil {
		return SwapResult{}, err
	}
	return SwapResult{Base: base, Quote: quote, TradeResult: m.TradeResult}, nil
}

// restingOrder looks up the signer's order behind id.
func (e *Exchange) restingOrder(signer user.Signer, b *OrderBook, side model.Side, id model.MarketOrderID) (model.Order, error) {
	if id.IsNil() {
		return model.Order{}, ErrInvalidMarketOrderID
	}
	order, err := b.side(side).Get(id.AccessKey)
	if err != nil {
		return model.Order{}, orderNotFound(err)
	}
	if order.User != signer.User() {
		return model.Order{}, ErrInvalidUser
	}
	if order.CustodianID != signer.CustodianID() {
		return model.Order{}, ErrInvalidCustodian
	}
	return order, nil
}

func orderRef(b *OrderBook, side model.Side, o model.Order) user.OrderRef {
	return user.OrderRef{
		User:           o.User,
		ID:             model.MarketAccountID{MarketID: b.MarketID, CustodianID: o.CustodianID},
		Side:           side,
		OrderAccessKey: o.OrderAccessKey,
	}
}

// CancelOrder removes one of the signer's resting orders.
func (e *Exchange) CancelOrder(signer user.Signer, marketID uint64, side model.Side, id model.MarketOrderID) error {
	return e.run("cancel_order", func() error {
		b, err := e.registry.book(marketID)
		if err != nil {
			return err
		}
		return e.cancelOrder(signer, b, side, id)
	})
}

func (e *Exchange) cancelOrder(signer user.Signer, b *OrderBook, side model.Side, id model.MarketOrderID) error {
	order, err := e.restingOrder(signer, b, side, id)
	if err != nil {
		return err
	}
	if _, err := b.side(side).Remove(id.AccessKey); err != nil {
		return orderNotFound(err)
	}
	if _, err := e.users.CancelOrder(orderRef(b, side, order), order.Size, order.Price, id); err != nil {
		return err
	}
	e.emitMaker(b, side, id, order, model.MakerCancel)
	return nil
}

// CancelAllOrders removes every order the signer has resting on side and
// returns how many were cancelled.
func (e *Exchange) CancelAllOrders(signer user.Signer, marketID uint64, side model.Side) (int, error) {
	var n int
	err := e.run("cancel_all_orders", func() error {
		b, err := e.registry.book(marketID)
		if err != nil {
			return err
		}
		ids, err := e.users.ActiveMarketOrderIDs(signer.User(), signer.AccountID(marketID), side)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := e.cancelOrder(signer, b, side, id); err != nil {
				return err
			}
		}
		n = len(ids)
		return nil
	})
	return n, err
}

// ChangeOrderSize re-sizes a resting order. The order moves to the back of
// its price level and keeps its counter; the returned id carries the new
// access key.
func (e *Exchange) ChangeOrderSize(signer user.Signer, marketID uint64, side model.Side, id model.MarketOrderID, newSize uint64) (model.MarketOrderID, error) {
	var newID model.MarketOrderID
	err := e.run("change_order_size", func() error {
		b, err := e.registry.book(marketID)
		if err != nil {
			return err
		}
		order, err := e.restingOrder(signer, b, side, id)
		if err != nil {
			return err
		}
		if _, _, err := orderAmounts(b, newSize, order.Price); err != nil {
			return err
		}
		q := b.side(side)
		if _, err := q.Remove(id.AccessKey); err != nil {
			return orderNotFound(err)
		}
		startSize := order.Size
		order.Size = newSize
		accessKey, err := q.Insert(order.Price, order)
		if err != nil {
			return err
		}
		newID = model.MarketOrderID{Counter: id.Counter, AccessKey: accessKey}
		if err := e.users.ChangeOrderSize(orderRef(b, side, order), startSize, newSize, order.Price, id, newID); err != nil {
			return err
		}
		e.emitMaker(b, side, newID, order, model.MakerChange)
		return nil
	})
	if err != nil {
		return model.NilMarketOrderID, err
	}
	return newID, nil
}
