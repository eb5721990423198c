package model

import (
	"fmt"
	"math"
	"strings"
)

// Address identifies a user, integrator or signer.
type Address string

// AssetType names a coin type, or GenericAsset for underwriter-tracked base assets.
type AssetType string

const (
	// NoMarketAccount is the taker address used by account-less swaps.
	NoMarketAccount Address = "0x0"
	// GenericAsset marks a base asset whose supply is vouched for by an underwriter.
	GenericAsset AssetType = "generic"
	// UtilityCoin is the asset fees are paid in.
	UtilityCoin AssetType = "utility"
)

const (
	NoCustodian   uint64 = 0
	NoUnderwriter uint64 = 0
	// HiPrice is the largest price, in ticks per lot.
	HiPrice uint64 = 0xFFFFFFFF
	Hi64    uint64 = math.MaxUint64
	// MaxPossible asks a market order to use everything the account can afford.
	MaxPossible = Hi64
	// CriticalHeight is the default AVL height past which a new limit order
	// must evict the worst resting order on its side.
	CriticalHeight uint8 = 18
)

// Side is the side of the book an order rests on.
type Side bool

const (
	Ask Side = true
	Bid Side = false
)

func (s Side) String() string {
	if s == Ask {
		return "ask"
	}
	return "bid"
}

// ParseSide accepts "ask"/"sell" and "bid"/"buy" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "ask", "sell":
		return Ask, nil
	case "bid", "buy":
		return Bid, nil
	}
	return Bid, fmt.Errorf("invalid side %q", s)
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Direction is the direction of a taker order.
type Direction bool

const (
	Buy  Direction = false
	Sell Direction = true
)

func (d Direction) String() string {
	if d == Sell {
		return "sell"
	}
	return "buy"
}

// MakerSide is the side a taker in direction d matches against.
func (d Direction) MakerSide() Side { return Side(!bool(d)) }

// TakerDirection is the direction of a taker that would match a maker on s.
func (s Side) TakerDirection() Direction { return Direction(!bool(s)) }

// Direction is the direction a limit order on s trades in when it crosses
// the spread: asks sell, bids buy.
func (s Side) Direction() Direction { return Direction(s) }

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "buy", "bid":
		return Buy, nil
	case "sell", "ask":
		return Sell, nil
	}
	return Buy, fmt.Errorf("invalid direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Restriction constrains how a limit order may interact with the spread.
type Restriction uint8

const (
	NoRestriction Restriction = iota
	FillOrAbort
	ImmediateOrCancel
	PostOrAbort
)

func (r Restriction) Valid() bool { return r <= PostOrAbort }

func (r Restriction) String() string {
	switch r {
	case NoRestriction:
		return "NO_RESTRICTION"
	case FillOrAbort:
		return "FILL_OR_ABORT"
	case ImmediateOrCancel:
		return "IMMEDIATE_OR_CANCEL"
	case PostOrAbort:
		return "POST_OR_ABORT"
	}
	return fmt.Sprintf("RESTRICTION(%d)", uint8(r))
}

// ParseRestriction accepts the names String returns, in any case. The empty
// string is NoRestriction.
func ParseRestriction(s string) (Restriction, error) {
	if s == "" {
		return NoRestriction, nil
	}
	for r := NoRestriction; r <= PostOrAbort; r++ {
		if strings.EqualFold(r.String(), s) {
			return r, nil
		}
	}
	return NoRestriction, fmt.Errorf("invalid restriction %q", s)
}

// SelfMatchBehavior decides what happens when a taker meets its own resting order.
type SelfMatchBehavior uint8

const (
	Abort SelfMatchBehavior = iota
	CancelBoth
	CancelMaker
	CancelTaker
)

func (b SelfMatchBehavior) Valid() bool { return b <= CancelTaker }

func (b SelfMatchBehavior) String() string {
	switch b {
	case Abort:
		return "ABORT"
	case CancelBoth:
		return "CANCEL_BOTH"
	case CancelMaker:
		return "CANCEL_MAKER"
	case CancelTaker:
		return "CANCEL_TAKER"
	}
	return fmt.Sprintf("SELF_MATCH(%d)", uint8(b))
}

// ParseSelfMatchBehavior accepts the names String returns, in any case. The
// empty string is Abort.
func ParseSelfMatchBehavior(s string) (SelfMatchBehavior, error) {
	if s == "" {
		return Abort, nil
	}
	for b := Abort; b <= CancelTaker; b++ {
		if strings.EqualFold(b.String(), s) {
			return b, nil
		}
	}
	return Abort, fmt.Errorf("invalid self match behavior %q", s)
}

// AdvanceStyle is how a passive advance order measures its move toward the
// spread.
type AdvanceStyle bool

const (
	AdvanceTicks   AdvanceStyle = false
	AdvancePercent AdvanceStyle = true
)

// Percent100 is the largest percent advance: one tick short of crossing.
const Percent100 uint64 = 100

func (a AdvanceStyle) String() string {
	if a == AdvancePercent {
		return "percent"
	}
	return "ticks"
}

// ParseAdvanceStyle accepts "ticks" and "percent" in any case.
func ParseAdvanceStyle(s string) (AdvanceStyle, error) {
	switch strings.ToLower(s) {
	case "ticks", "tick":
		return AdvanceTicks, nil
	case "percent", "%":
		return AdvancePercent, nil
	}
	return AdvanceTicks, fmt.Errorf("invalid advance style %q", s)
}

func (a AdvanceStyle) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AdvanceStyle) UnmarshalText(b []byte) error {
	v, err := ParseAdvanceStyle(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Order is a resting order as stored in a book's AVL queue.
type Order struct {
	Size           uint64  `json:"size"`
	Price          uint64  `json:"price"`
	User           Address `json:"user"`
	CustodianID    uint64  `json:"custodian_id"`
	OrderAccessKey uint64  `json:"order_access_key"`
}

// Coins is an amount of a single coin type held outside any ledger.
type Coins struct {
	Asset  AssetType `json:"asset"`
	Amount uint64    `json:"amount"`
}

// Split removes amount from c and returns it as new coins.
func (c *Coins) Split(amount uint64) (Coins, error) {
	if amount > c.Amount {
		return Coins{}, fmt.Errorf("split %d from %d %s", amount, c.Amount, c.Asset)
	}
	c.Amount -= amount
	return Coins{Asset: c.Asset, Amount: amount}, nil
}

// Merge adds o into c. Both must be the same asset.
func (c *Coins) Merge(o Coins) error {
	if o.Amount == 0 {
		return nil
	}
	if c.Asset != o.Asset {
		return fmt.Errorf("merge %s into %s", o.Asset, c.Asset)
	}
	if c.Amount > Hi64-o.Amount {
		return fmt.Errorf("merge overflows %s", c.Asset)
	}
	c.Amount += o.Amount
	return nil
}
