package market

import (
	"github.com/Aidin1998/pincex_clob/internal/trading/avlqueue"
	"github.com/Aidin1998/pincex_clob/internal/trading/journal"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
	"github.com/tidwall/btree"
)

// Info describes a registered market.
type Info struct {
	MarketID        uint64          `json:"market_id" yaml:"market_id"`
	BaseType        model.AssetType `json:"base_type" yaml:"base_type"`
	BaseNameGeneric string          `json:"base_name_generic,omitempty" yaml:"base_name_generic"`
	QuoteType       model.AssetType `json:"quote_type" yaml:"quote_type"`
	LotSize         uint64          `json:"lot_size" yaml:"lot_size"`
	TickSize        uint64          `json:"tick_size" yaml:"tick_size"`
	MinSize         uint64          `json:"min_size" yaml:"min_size"`
	UnderwriterID   uint64          `json:"underwriter_id" yaml:"underwriter_id"`
}

// IsGeneric reports whether the base asset is underwriter-tracked.
func (i Info) IsGeneric() bool { return i.BaseType == model.GenericAsset }

func (i Info) accountInfo() user.MarketInfo {
	return user.MarketInfo{
		BaseType:        i.BaseType,
		BaseNameGeneric: i.BaseNameGeneric,
		QuoteType:       i.QuoteType,
		LotSize:         i.LotSize,
		TickSize:        i.TickSize,
		MinSize:         i.MinSize,
		UnderwriterID:   i.UnderwriterID,
	}
}

func (i Info) sameParams(o Info) bool {
	i.MarketID, o.MarketID = 0, 0
	return i == o
}

// OrderBook holds both sides of one market. Asks sort ascending and bids
// descending, so the head of either queue is the best price.
type OrderBook struct {
	Info
	asks    *avlqueue.Queue[model.Order]
	bids    *avlqueue.Queue[model.Order]
	counter uint64
	journal *journal.Journal
}

func newOrderBook(info Info, nTree, nList int) *OrderBook {
	return &OrderBook{
		Info: info,
		asks: avlqueue.New[model.Order](avlqueue.Ascending, nTree, nList),
		bids: avlqueue.New[model.Order](avlqueue.Descending, nTree, nList),
	}
}

func (b *OrderBook) setJournal(j *journal.Journal) {
	b.journal = j
	b.asks.SetJournal(j)
	b.bids.SetJournal(j)
}

func (b *OrderBook) side(s model.Side) *avlqueue.Queue[model.Order] {
	if s == model.Ask {
		return b.asks
	}
	return b.bids
}

// nextMarketOrderID combines the book's counter with an access key and
// advances the counter.
func (b *OrderBook) nextMarketOrderID(accessKey uint64) model.MarketOrderID {
	id := model.MarketOrderID{Counter: b.counter, AccessKey: accessKey}
	old := b.counter
	b.journal.Record(func() { b.counter = old })
	b.counter++
	return id
}

// crosses reports whether a limit order at price on side would take
// liquidity from the opposite side.
func (b *OrderBook) crosses(side model.Side, price uint64) bool {
	if side == model.Ask {
		head, ok := b.bids.HeadKey()
		return ok && price <= head
	}
	head, ok := b.asks.HeadKey()
	return ok && price >= head
}

// Counter returns the number of market order ids issued so far.
func (b *OrderBook) Counter() uint64 { return b.counter }

// Registry indexes order books by market id.
type Registry struct {
	books   *btree.Map[uint64, *OrderBook]
	nTree   int
	nList   int
	journal *journal.Journal
}

// NewRegistry creates an empty registry. New books preallocate nTree tree
// nodes and nList list nodes per side.
func NewRegistry(nTree, nList int) *Registry {
	return &Registry{books: btree.NewMap[uint64, *OrderBook](32), nTree: nTree, nList: nList}
}

func (r *Registry) setJournal(j *journal.Journal) {
	r.journal = j
	r.books.Scan(func(_ uint64, b *OrderBook) bool {
		b.setJournal(j)
		return true
	})
}

// validateInfo checks market parameters before registration.
func validateInfo(info Info) error {
	switch {
	case info.LotSize == 0:
		return ErrInvalidLotSize
	case info.TickSize == 0:
		return ErrInvalidTickSize
	case info.MinSize == 0:
		return ErrInvalidMinSize
	case info.BaseType == info.QuoteType:
		return ErrSameAssets
	case info.BaseType == "":
		return ErrInvalidBase
	case info.QuoteType == "" || info.QuoteType == model.GenericAsset:
		return ErrInvalidQuote
	case info.IsGeneric() && info.UnderwriterID == model.NoUnderwriter:
		return ErrInvalidUnderwriter
	case !info.IsGeneric() && (info.UnderwriterID != model.NoUnderwriter || info.BaseNameGeneric != ""):
		return ErrInvalidUnderwriter
	}
	return nil
}

// register assigns the next market id to info and creates its book.
func (r *Registry) register(info Info) (*OrderBook, error) {
	if err := validateInfo(info); err != nil {
		return nil, err
	}
	var dup bool
	r.books.Scan(func(_ uint64, b *OrderBook) bool {
		dup = b.sameParams(info)
		return !dup
	})
	if dup {
		return nil, ErrMarketRegistered
	}
	info.MarketID = uint64(r.books.Len()) + 1
	b := newOrderBook(info, r.nTree, r.nList)
	b.setJournal(r.journal)
	r.books.Set(info.MarketID, b)
	id := info.MarketID
	r.journal.Record(func() { r.books.Delete(id) })
	return b, nil
}

func (r *Registry) book(marketID uint64) (*OrderBook, error) {
	b, ok := r.books.Get(marketID)
	if !ok {
		return nil, ErrInvalidMarketID
	}
	return b, nil
}

// Info returns a market's parameters.
func (r *Registry) Info(marketID uint64) (Info, error) {
	b, err := r.book(marketID)
	if err != nil {
		return Info{}, err
	}
	return b.Info, nil
}

// Markets lists every market in id order.
func (r *Registry) Markets() []Info {
	out := make([]Info, 0, r.books.Len())
	r.books.Scan(func(_ uint64, b *OrderBook) bool {
		out = append(out, b.Info)
		return true
	})
	return out
}

func (r *Registry) Len() int { return r.books.Len() }
