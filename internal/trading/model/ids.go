package model

import (
	"encoding/json"
	"fmt"
	"math/big"
)

const shiftCounter = 64

// MarketOrderID is the 128-bit durable order id: counter<<64 | AVL queue access key.
// The low 32 bits of the access key are the order's price.
type MarketOrderID struct {
	Counter   uint64
	AccessKey uint64
}

// NilMarketOrderID is the zero id.
var NilMarketOrderID = MarketOrderID{}

func (id MarketOrderID) IsNil() bool { return id == NilMarketOrderID }

// Price decodes the price without a book lookup.
func (id MarketOrderID) Price() uint64 { return id.AccessKey & HiPrice }

// Less orders ids by counter, then access key.
func (id MarketOrderID) Less(o MarketOrderID) bool {
	if id.Counter != o.Counter {
		return id.Counter < o.Counter
	}
	return id.AccessKey < o.AccessKey
}

func (id MarketOrderID) Big() *big.Int {
	return join128(id.Counter, id.AccessKey)
}

func (id MarketOrderID) String() string { return id.Big().String() }

// ParseMarketOrderID parses the decimal form produced by String.
func ParseMarketOrderID(s string) (MarketOrderID, error) {
	hi, lo, err := split128(s)
	if err != nil {
		return NilMarketOrderID, fmt.Errorf("market order id: %w", err)
	}
	return MarketOrderID{Counter: hi, AccessKey: lo}, nil
}

func (id MarketOrderID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *MarketOrderID) UnmarshalJSON(b []byte) error {
	v, err := ParseMarketOrderID(unquote(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// MarketAccountID is market_id<<64 | custodian_id.
type MarketAccountID struct {
	MarketID    uint64
	CustodianID uint64
}

func (id MarketAccountID) Less(o MarketAccountID) bool {
	if id.MarketID != o.MarketID {
		return id.MarketID < o.MarketID
	}
	return id.CustodianID < o.CustodianID
}

func (id MarketAccountID) Big() *big.Int {
	return join128(id.MarketID, id.CustodianID)
}

func (id MarketAccountID) String() string { return id.Big().String() }

func ParseMarketAccountID(s string) (MarketAccountID, error) {
	hi, lo, err := split128(s)
	if err != nil {
		return MarketAccountID{}, fmt.Errorf("market account id: %w", err)
	}
	return MarketAccountID{MarketID: hi, CustodianID: lo}, nil
}

func (id MarketAccountID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *MarketAccountID) UnmarshalJSON(b []byte) error {
	v, err := ParseMarketAccountID(unquote(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

var mask64 = new(big.Int).SetUint64(Hi64)

func join128(hi, lo uint64) *big.Int {
	v := new(big.Int).SetUint64(hi)
	v.Lsh(v, shiftCounter)
	return v.Or(v, new(big.Int).SetUint64(lo))
}

func split128(s string) (uint64, uint64, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, 0, fmt.Errorf("invalid integer %q", s)
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		return 0, 0, fmt.Errorf("%q out of range", s)
	}
	lo := new(big.Int).And(v, mask64).Uint64()
	hi := new(big.Int).Rsh(v, shiftCounter).Uint64()
	return hi, lo, nil
}

// unquote accepts both "123" and 123.
func unquote(b []byte) string {
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return string(b[1 : len(b)-1])
	}
	return string(b)
}
