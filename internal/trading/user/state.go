package user

import (
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/tidwall/btree"
)

// CollateralEntry is the coin balance held for one market account.
type CollateralEntry struct {
	User   model.Address         `json:"user"`
	Asset  model.AssetType       `json:"asset"`
	ID     model.MarketAccountID `json:"id"`
	Amount uint64                `json:"amount"`
}

// State is a serializable copy of a Ledger.
type State struct {
	Accounts     []MarketAccount   `json:"accounts"`
	Collateral   []CollateralEntry `json:"collateral"`
	Custodians   uint64            `json:"custodians"`
	Underwriters uint64            `json:"underwriters"`
}

// State returns the ledger contents ordered by user, then account id.
func (l *Ledger) State() State {
	s := State{
		Accounts:     make([]MarketAccount, 0),
		Collateral:   make([]CollateralEntry, 0, l.collateral.Len()),
		Custodians:   l.custodians,
		Underwriters: l.underwriters,
	}
	l.accounts.Scan(func(_ model.Address, tree *btree.BTreeG[*MarketAccount]) bool {
		tree.Scan(func(a *MarketAccount) bool {
			s.Accounts = append(s.Accounts, a.clone())
			return true
		})
		return true
	})
	s.Collateral = append(s.Collateral, l.collateral.Items()...)
	return s
}

// LedgerFromState rebuilds a ledger from a State.
func LedgerFromState(s State) *Ledger {
	l := NewLedger()
	l.custodians, l.underwriters = s.Custodians, s.Underwriters
	for i := range s.Accounts {
		acct := s.Accounts[i].clone()
		tree, ok := l.accounts.Get(acct.User)
		if !ok {
			tree = btree.NewBTreeG(byAccountID)
			l.accounts.Set(acct.User, tree)
		}
		tree.Set(&acct)
	}
	for _, c := range s.Collateral {
		l.collateral.Set(c)
	}
	return l
}
