package market

import (
	"fmt"

	"github.com/Aidin1998/pincex_clob/internal/trading/avlqueue"
	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
)

// BookState is a serializable order book.
type BookState struct {
	Info    Info                        `json:"info"`
	Counter uint64                      `json:"counter"`
	Asks    avlqueue.State[model.Order] `json:"asks"`
	Bids    avlqueue.State[model.Order] `json:"bids"`
}

// State is everything an Exchange needs to resume: books, market accounts,
// fee stores and the event sequence.
type State struct {
	Sequence   uint64           `json:"sequence"`
	Books      []BookState      `json:"books"`
	Users      user.State       `json:"users"`
	Incentives incentives.State `json:"incentives"`
}

// Snapshot copies the exchange state between operations.
func (e *Exchange) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := State{
		Sequence:   e.sequence,
		Books:      make([]BookState, 0, e.registry.Len()),
		Users:      e.users.State(),
		Incentives: e.incentives.State(),
	}
	e.registry.books.Scan(func(_ uint64, b *OrderBook) bool {
		s.Books = append(s.Books, BookState{
			Info:    b.Info,
			Counter: b.counter,
			Asks:    b.asks.State(),
			Bids:    b.bids.State(),
		})
		return true
	})
	return s
}

// Restore replaces the exchange state with s. Events committed before the
// snapshot are not replayed; the sequence continues from s.Sequence.
func (e *Exchange) Restore(s State) error {
	registry := NewRegistry(e.cfg.InactiveTreeNodes, e.cfg.InactiveListNodes)
	for i, bs := range s.Books {
		if bs.Info.MarketID != uint64(i)+1 {
			return fmt.Errorf("restore: book %d has market id %d", i+1, bs.Info.MarketID)
		}
		asks, err := avlqueue.FromState(bs.Asks)
		if err != nil {
			return fmt.Errorf("restore market %d asks: %w", bs.Info.MarketID, err)
		}
		bids, err := avlqueue.FromState(bs.Bids)
		if err != nil {
			return fmt.Errorf("restore market %d bids: %w", bs.Info.MarketID, err)
		}
		if !asks.IsAscending() || bids.IsAscending() {
			return fmt.Errorf("restore market %d: sides have the wrong sort order", bs.Info.MarketID)
		}
		registry.books.Set(bs.Info.MarketID, &OrderBook{Info: bs.Info, asks: asks, bids: bids, counter: bs.Counter})
	}
	inc, err := incentives.LedgerFromState(s.Incentives)
	if err != nil {
		return fmt.Errorf("restore incentives: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry = registry
	e.users = user.LedgerFromState(s.Users)
	e.incentives = inc
	e.sequence = s.Sequence
	e.history = e.history[:0]
	e.wire()
	return nil
}
