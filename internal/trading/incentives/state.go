package incentives

import (
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
)

// IntegratorFeeStoreEntry is an integrator fee store together with its owner.
type IntegratorFeeStoreEntry struct {
	Integrator model.Address `json:"integrator"`
	MarketID   uint64        `json:"market_id"`
	IntegratorFeeStore
}

// EconiaFeeStoreEntry is a protocol fee store together with its market.
type EconiaFeeStoreEntry struct {
	MarketID uint64 `json:"market_id"`
	EconiaFeeStore
}

// State is a serializable copy of a Ledger.
type State struct {
	Params       Params                    `json:"params"`
	Integrators  []IntegratorFeeStoreEntry `json:"integrators"`
	Econia       []EconiaFeeStoreEntry     `json:"econia"`
	UtilityCoins uint64                    `json:"utility_coins"`
}

// State returns the ledger contents in a deterministic order.
func (l *Ledger) State() State {
	s := State{
		Params:       l.params.Clone(),
		Integrators:  make([]IntegratorFeeStoreEntry, 0, l.integrators.Len()),
		Econia:       make([]EconiaFeeStoreEntry, 0, l.econia.Len()),
		UtilityCoins: l.utility,
	}
	l.integrators.Scan(func(e *IntegratorFeeStoreEntry) bool {
		s.Integrators = append(s.Integrators, *e)
		return true
	})
	l.econia.Scan(func(id uint64, v *EconiaFeeStore) bool {
		s.Econia = append(s.Econia, EconiaFeeStoreEntry{MarketID: id, EconiaFeeStore: *v})
		return true
	})
	return s
}

// LedgerFromState rebuilds a ledger from a State.
func LedgerFromState(s State) (*Ledger, error) {
	l, err := NewLedger(s.Params)
	if err != nil {
		return nil, err
	}
	for _, e := range s.Integrators {
		if int(e.Tier) >= len(l.params.Tiers) {
			return nil, ErrInvalidTier
		}
		entry := e
		l.integrators.Set(&entry)
	}
	for _, e := range s.Econia {
		store := e.EconiaFeeStore
		l.econia.Set(e.MarketID, &store)
	}
	l.utility = s.UtilityCoins
	return l, nil
}
