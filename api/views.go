package api

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// maxAddressBytes is the width of an account address.
const maxAddressBytes = 32

// parseAddress normalises a 0x-prefixed hex address to lower case without
// leading zeros. The zero address is reserved.
func parseAddress(s string) (model.Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") {
		return "", fmt.Errorf("address %q must start with 0x", s)
	}
	digits := strings.TrimLeft(s[2:], "0")
	if digits == "" {
		return "", fmt.Errorf("the zero address is reserved")
	}
	padded := digits
	if len(padded)%2 == 1 {
		padded = "0" + padded
	}
	b, err := hexutil.Decode("0x" + padded)
	if err != nil {
		return "", fmt.Errorf("address %q: %w", s, err)
	}
	if len(b) > maxAddressBytes {
		return "", fmt.Errorf("address %q is longer than %d bytes", s, maxAddressBytes)
	}
	return model.Address("0x" + digits), nil
}

func decimalFromUint(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// unitPrice converts a price in ticks per lot to quote subunits per base
// subunit.
func unitPrice(info market.Info, price uint64) decimal.Decimal {
	return decimalFromUint(price).
		Mul(decimalFromUint(info.TickSize)).
		DivRound(decimalFromUint(info.LotSize), 18)
}

type marketView struct {
	market.Info
	BestAsk     *uint64 `json:"best_ask"`
	BestBid     *uint64 `json:"best_bid"`
	BestAskUnit *string `json:"best_ask_unit_price,omitempty"`
	BestBidUnit *string `json:"best_bid_unit_price,omitempty"`
}

func newMarketView(info market.Info, best market.BestPrices) marketView {
	v := marketView{Info: info, BestAsk: best.Ask, BestBid: best.Bid}
	if best.Ask != nil {
		s := unitPrice(info, *best.Ask).String()
		v.BestAskUnit = &s
	}
	if best.Bid != nil {
		s := unitPrice(info, *best.Bid).String()
		v.BestBidUnit = &s
	}
	return v
}

type orderView struct {
	market.RestingOrder
	UnitPrice string `json:"unit_price"`
	Base      string `json:"base"`
}

type bookView struct {
	MarketID uint64      `json:"market_id"`
	Asks     []orderView `json:"asks"`
	Bids     []orderView `json:"bids"`
}

func newBookView(info market.Info, snap market.BookSnapshot) bookView {
	convert := func(orders []market.RestingOrder) []orderView {
		out := make([]orderView, len(orders))
		for i, o := range orders {
			out[i] = orderView{
				RestingOrder: o,
				UnitPrice:    unitPrice(info, o.Price).String(),
				Base:         decimalFromUint(o.Size).Mul(decimalFromUint(info.LotSize)).String(),
			}
		}
		return out
	}
	return bookView{MarketID: snap.MarketID, Asks: convert(snap.Asks), Bids: convert(snap.Bids)}
}
