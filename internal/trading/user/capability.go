package user

import "github.com/Aidin1998/pincex_clob/internal/trading/model"

// CustodianCapability authorises a custodian to act on the market accounts
// opened under its id. Only the ledger can mint one.
type CustodianCapability struct{ id uint64 }

func (c CustodianCapability) ID() uint64 { return c.id }

// UnderwriterCapability authorises deposits and withdrawals of a generic
// base asset on markets that name the underwriter.
type UnderwriterCapability struct{ id uint64 }

func (c UnderwriterCapability) ID() uint64 { return c.id }

// NoUnderwriterCapability is held by every swapper of coin-only markets.
var NoUnderwriterCapability = UnderwriterCapability{}

// Signer is the authority behind an operation on a market account: either
// the user directly, or a custodian acting for the user.
type Signer struct {
	user      model.Address
	custodian uint64
}

// Self is the user acting on its own, non-custodial accounts.
func Self(user model.Address) Signer { return Signer{user: user, custodian: model.NoCustodian} }

// For is the custodian acting on user's accounts under its id.
func (c CustodianCapability) For(user model.Address) Signer {
	return Signer{user: user, custodian: c.id}
}

func (s Signer) User() model.Address { return s.user }
func (s Signer) CustodianID() uint64 { return s.custodian }

// AccountID is the signer's market account id on marketID.
func (s Signer) AccountID(marketID uint64) model.MarketAccountID {
	return model.MarketAccountID{MarketID: marketID, CustodianID: s.custodian}
}

// RegisterCustodian mints the next custodian capability. Ids start at 1.
// Registration fees are collected by the caller.
func (l *Ledger) RegisterCustodian() CustodianCapability {
	old := l.custodians
	l.journal.Record(func() { l.custodians = old })
	l.custodians++
	return CustodianCapability{id: l.custodians}
}

// RegisterUnderwriter mints the next underwriter capability. Ids start at 1.
func (l *Ledger) RegisterUnderwriter() UnderwriterCapability {
	old := l.underwriters
	l.journal.Record(func() { l.underwriters = old })
	l.underwriters++
	return UnderwriterCapability{id: l.underwriters}
}

func (l *Ledger) IsRegisteredCustodian(id uint64) bool {
	return id != model.NoCustodian && id <= l.custodians
}

func (l *Ledger) IsRegisteredUnderwriter(id uint64) bool {
	return id != model.NoUnderwriter && id <= l.underwriters
}

// Capabilities reissues every registered capability. Only the process that
// owns the ledger may hold these; it needs them again after a restore.
func (l *Ledger) Capabilities() ([]CustodianCapability, []UnderwriterCapability) {
	custodians := make([]CustodianCapability, l.custodians)
	for i := range custodians {
		custodians[i] = CustodianCapability{id: uint64(i) + 1}
	}
	underwriters := make([]UnderwriterCapability, l.underwriters)
	for i := range underwriters {
		underwriters[i] = UnderwriterCapability{id: uint64(i) + 1}
	}
	return custodians, underwriters
}
