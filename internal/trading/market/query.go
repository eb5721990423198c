package market

import (
	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
)

// BestPrices holds the head price of each side; nil when a side is empty.
type BestPrices struct {
	Ask *uint64 `json:"ask"`
	Bid *uint64 `json:"bid"`
}

// RestingOrder is one order as seen in a book snapshot.
type RestingOrder struct {
	MarketOrderID model.MarketOrderID `json:"market_order_id"`
	User          model.Address       `json:"user"`
	CustodianID   uint64              `json:"custodian_id"`
	Size          uint64              `json:"size"`
	Price         uint64              `json:"price"`
}

// BookSnapshot lists both sides from best to worst price, oldest first
// within a price.
type BookSnapshot struct {
	MarketID uint64         `json:"market_id"`
	Asks     []RestingOrder `json:"asks"`
	Bids     []RestingOrder `json:"bids"`
}

// PriceLevel aggregates the orders resting at one price.
type PriceLevel struct {
	Price  uint64 `json:"price"`
	Size   uint64 `json:"size"`
	Orders int    `json:"orders"`
}

// Depth is the aggregated book.
type Depth struct {
	MarketID uint64       `json:"market_id"`
	Asks     []PriceLevel `json:"asks"`
	Bids     []PriceLevel `json:"bids"`
}

func (e *Exchange) MarketInfo(marketID uint64) (Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Info(marketID)
}

func (e *Exchange) Markets() []Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Markets()
}

// BestPrices returns the best ask and bid of a market.
func (e *Exchange) BestPrices(marketID uint64) (BestPrices, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.registry.book(marketID)
	if err != nil {
		return BestPrices{}, err
	}
	var out BestPrices
	if p, ok := b.asks.HeadKey(); ok {
		out.Ask = &p
	}
	if p, ok := b.bids.HeadKey(); ok {
		out.Bid = &p
	}
	return out, nil
}

// BookSnapshot walks both sides of a market head to tail.
func (e *Exchange) BookSnapshot(marketID uint64) (BookSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.registry.book(marketID)
	if err != nil {
		return BookSnapshot{}, err
	}
	snap := BookSnapshot{MarketID: marketID}
	for _, side := range []model.Side{model.Ask, model.Bid} {
		orders := make([]RestingOrder, 0, b.side(side).Len())
		var walkErr error
		b.side(side).Walk(func(_ uint64, o model.Order) bool {
			id, err := e.users.MarketOrderID(orderRef(b, side, o))
			if err != nil {
				walkErr = err
				return false
			}
			orders = append(orders, RestingOrder{MarketOrderID: id, User: o.User, CustodianID: o.CustodianID, Size: o.Size, Price: o.Price})
			return true
		})
		if walkErr != nil {
			return BookSnapshot{}, walkErr
		}
		if side == model.Ask {
			snap.Asks = orders
		} else {
			snap.Bids = orders
		}
	}
	return snap, nil
}

// Depth aggregates up to levels prices per side; levels <= 0 means all.
func (e *Exchange) Depth(marketID uint64, levels int) (Depth, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.registry.book(marketID)
	if err != nil {
		return Depth{}, err
	}
	return Depth{
		MarketID: marketID,
		Asks:     aggregate(b, model.Ask, levels),
		Bids:     aggregate(b, model.Bid, levels),
	}, nil
}

func aggregate(b *OrderBook, side model.Side, levels int) []PriceLevel {
	out := make([]PriceLevel, 0)
	b.side(side).Walk(func(_ uint64, o model.Order) bool {
		if n := len(out); n > 0 && out[n-1].Price == o.Price {
			out[n-1].Size += o.Size
			out[n-1].Orders++
			return true
		}
		if levels > 0 && len(out) == levels {
			return false
		}
		out = append(out, PriceLevel{Price: o.Price, Size: o.Size, Orders: 1})
		return true
	})
	return out
}

// OpenOrders lists a market account's resting orders on side.
func (e *Exchange) OpenOrders(owner model.Address, marketID, custodianID uint64, side model.Side) ([]user.OpenOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.users.OpenOrders(owner, model.MarketAccountID{MarketID: marketID, CustodianID: custodianID}, side)
}

// MarketAccount returns a copy of a market account.
func (e *Exchange) MarketAccount(owner model.Address, marketID, custodianID uint64) (user.MarketAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.users.MarketAccount(owner, model.MarketAccountID{MarketID: marketID, CustodianID: custodianID})
}

// MarketAccountIDs lists a user's market accounts in id order.
func (e *Exchange) MarketAccountIDs(owner model.Address) []model.MarketAccountID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.users.MarketAccountIDs(owner)
}

// Collateral returns the coins held for a market account.
func (e *Exchange) Collateral(owner model.Address, asset model.AssetType, marketID, custodianID uint64) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.users.Collateral(owner, asset, model.MarketAccountID{MarketID: marketID, CustodianID: custodianID})
}

func (e *Exchange) EconiaFees(marketID uint64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.incentives.EconiaFees(marketID)
}

func (e *Exchange) IntegratorFeeStore(integrator model.Address, marketID uint64) (incentives.IntegratorFeeStore, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.incentives.IntegratorFeeStore(integrator, marketID)
}

func (e *Exchange) UtilityCoins() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.incentives.UtilityCoins()
}

// Capabilities reissues the registered custodian and underwriter
// capabilities to the operator after a restore.
func (e *Exchange) Capabilities() ([]user.CustodianCapability, []user.UnderwriterCapability) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.users.Capabilities()
}
