package market

import (
	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
)

// taker identifies who is consuming liquidity.
type taker struct {
	user        model.Address
	custodianID uint64
	integrator  model.Address
}

func (t taker) accountID(marketID uint64) model.MarketAccountID {
	return model.MarketAccountID{MarketID: marketID, CustodianID: t.custodianID}
}

type matchParams struct {
	direction  model.Direction
	minBase    uint64
	maxBase    uint64
	minQuote   uint64
	maxQuote   uint64
	limitPrice uint64
	selfMatch  model.SelfMatchBehavior
}

// TradeResult is what a taker traded. QuoteTraded includes the fee for buys
// and is net of it for sells.
type TradeResult struct {
	BaseTraded  uint64 `json:"base_traded"`
	QuoteTraded uint64 `json:"quote_traded"`
	Fees        uint64 `json:"fees"`
}

type matchResult struct {
	TradeResult
	// takerCancelled is set when a self match stopped the taker.
	takerCancelled bool
}

// rangeCheckTrade validates a taker's bounds against what it holds.
func rangeCheckTrade(p matchParams, baseAvailable, baseCeiling, quoteAvailable, quoteCeiling uint64) error {
	switch {
	case p.maxBase == 0:
		return ErrMaxBase0
	case p.maxQuote == 0:
		return ErrMaxQuote0
	case p.minBase > p.maxBase:
		return ErrMinBaseExceedsMax
	case p.minQuote > p.maxQuote:
		return ErrMinQuoteExceedsMax
	}
	inCeiling, outAvailable, inMax, outMax := baseCeiling, quoteAvailable, p.maxBase, p.maxQuote
	if p.direction == model.Sell {
		inCeiling, outAvailable, inMax, outMax = quoteCeiling, baseAvailable, p.maxQuote, p.maxBase
	}
	if _, ok := model.Add(inCeiling, inMax); !ok {
		return ErrOverflowAssetIn
	}
	if outMax > outAvailable {
		return ErrNotEnoughAssetOut
	}
	return nil
}

// match walks the maker side of b from its head, filling against base and
// quote. It stops at the limit price, when the budget cannot buy another
// lot, on a partial fill, or on a self match that cancels the taker.
func (e *Exchange) match(b *OrderBook, t taker, p matchParams, base, quote *model.Coins) (matchResult, error) {
	var res matchResult
	if p.limitPrice > model.HiPrice {
		return res, ErrPriceTooHigh
	}
	divisor := e.incentives.TakerFeeDivisor()
	maxQuoteMatch := incentives.CalculateMaxQuoteMatch(p.direction, divisor, p.maxQuote)
	maxLots := p.maxBase / b.LotSize
	maxTicks := maxQuoteMatch / b.TickSize
	lotsLeft, ticksLeft := maxLots, maxTicks

	side := p.direction.MakerSide()
	q := b.side(side)

loop:
	for !q.IsEmpty() {
		price, _ := q.HeadKey()
		if (p.direction == model.Buy && price > p.limitPrice) ||
			(p.direction == model.Sell && price < p.limitPrice) {
			break
		}
		maxFill := min(ticksLeft/price, lotsLeft)
		if maxFill == 0 {
			break
		}
		accessKey, _ := q.HeadAccessKey()
		order, err := q.Get(accessKey)
		if err != nil {
			return res, err
		}
		if order.Price != price {
			return res, ErrHeadKeyPriceMismatch
		}
		ref := orderRef(b, side, order)

		if order.User == t.user && order.CustodianID == t.custodianID {
			switch p.selfMatch {
			case model.Abort:
				return res, ErrSelfMatch
			case model.CancelBoth, model.CancelMaker:
				id, err := e.users.CancelOrder(ref, order.Size, price, model.NilMarketOrderID)
				if err != nil {
					return res, err
				}
				q.PopHead()
				e.emitMaker(b, side, id, order, model.MakerCancel)
			}
			if p.selfMatch == model.CancelMaker {
				continue
			}
			res.takerCancelled = true
			break loop
		}

		fillSize := min(maxFill, order.Size)
		ticks := fillSize * price
		baseFilled := fillSize * b.LotSize
		quoteFilled := ticks * b.TickSize
		ticksLeft -= ticks
		lotsLeft -= fillSize
		complete := fillSize == order.Size

		id, err := e.users.FillOrder(ref, user.Fill{
			StartSize:    order.Size,
			FillSize:     fillSize,
			CompleteFill: complete,
			BaseToRoute:  baseFilled,
			QuoteToRoute: quoteFilled,
		}, base, quote)
		if err != nil {
			return res, err
		}
		e.emitTaker(b, side, id, order, fillSize)

		if !complete {
			if err := q.Update(accessKey, func(o *model.Order) { o.Size -= fillSize }); err != nil {
				return res, err
			}
			break
		}
		q.PopHead()
	}

	baseFilled := (maxLots - lotsLeft) * b.LotSize
	quoteFilled := (maxTicks - ticksLeft) * b.TickSize
	fee, err := e.incentives.AssessTakerFees(b.MarketID, t.integrator, quoteFilled)
	if err != nil {
		return res, err
	}
	if fee > quote.Amount {
		return res, ErrNotEnoughAssetOut
	}
	quote.Amount -= fee
	if fee > 0 {
		e.pendingFees = append(e.pendingFees, pendingFee{marketID: b.MarketID, amount: fee})
	}

	quoteTraded := quoteFilled - fee
	if p.direction == model.Buy {
		quoteTraded = quoteFilled + fee
	}
	if baseFilled < p.minBase {
		return res, ErrMinBaseNotTraded
	}
	if quoteTraded < p.minQuote {
		return res, ErrMinQuoteNotTraded
	}
	res.TradeResult = TradeResult{BaseTraded: baseFilled, QuoteTraded: quoteTraded, Fees: fee}
	return res, nil
}

// matchFromAccount trades out of a market account: the budget is withdrawn,
// matched, and whatever remains or was received goes back in.
// MaxPossible bounds resolve to what the account can afford or hold.
func (e *Exchange) matchFromAccount(b *OrderBook, t taker, p matchParams) (matchResult, error) {
	id := t.accountID(b.MarketID)
	counts, err := e.users.AssetCounts(t.user, id)
	if err != nil {
		return matchResult{}, err
	}
	if p.direction == model.Buy {
		if p.maxBase == model.MaxPossible {
			p.maxBase = model.Hi64 - counts.BaseCeiling
		}
		if p.maxQuote == model.MaxPossible {
			p.maxQuote = counts.QuoteAvailable
		}
	} else {
		if p.maxBase == model.MaxPossible {
			p.maxBase = counts.BaseAvailable
		}
		if p.maxQuote == model.MaxPossible {
			p.maxQuote = model.Hi64 - counts.QuoteCeiling
		}
	}
	if err := rangeCheckTrade(p, counts.BaseAvailable, counts.BaseCeiling, counts.QuoteAvailable, counts.QuoteCeiling); err != nil {
		return matchResult{}, err
	}

	baseOut, quoteOut := uint64(0), p.maxQuote
	if p.direction == model.Sell {
		baseOut, quoteOut = p.maxBase, 0
	}
	base, quote, err := e.users.WithdrawAssets(t.user, id, baseOut, quoteOut)
	if err != nil {
		return matchResult{}, err
	}
	res, err := e.match(b, t, p, &base, &quote)
	if err != nil {
		return matchResult{}, err
	}
	if err := e.users.DepositAssets(t.user, id, base, quote); err != nil {
		return matchResult{}, err
	}
	return res, nil
}
