package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MakerEventType classifies a change to a resting order.
type MakerEventType uint8

const (
	MakerCancel MakerEventType = iota
	MakerChange
	MakerEvict
	MakerPlace
)

func (t MakerEventType) String() string {
	switch t {
	case MakerCancel:
		return "CANCEL"
	case MakerChange:
		return "CHANGE"
	case MakerEvict:
		return "EVICT"
	case MakerPlace:
		return "PLACE"
	}
	return "UNKNOWN"
}

func (t MakerEventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *MakerEventType) UnmarshalText(b []byte) error {
	for c := MakerCancel; c <= MakerPlace; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("invalid maker event type %q", b)
}

// MakerEvent records a resting order being placed, changed, cancelled or evicted.
type MakerEvent struct {
	MarketID      uint64         `json:"market_id"`
	Side          Side           `json:"side"`
	MarketOrderID MarketOrderID  `json:"market_order_id"`
	User          Address        `json:"user"`
	CustodianID   uint64         `json:"custodian_id"`
	Type          MakerEventType `json:"type"`
	Size          uint64         `json:"size"`
	Price         uint64         `json:"price"`
}

// TakerEvent records one fill against a resting order. Side is the maker's side.
type TakerEvent struct {
	MarketID      uint64        `json:"market_id"`
	Side          Side          `json:"side"`
	MarketOrderID MarketOrderID `json:"market_order_id"`
	Maker         Address       `json:"maker"`
	CustodianID   uint64        `json:"custodian_id"`
	Size          uint64        `json:"size"`
	Price         uint64        `json:"price"`
}

const (
	EventKindMaker = "maker"
	EventKindTaker = "taker"
)

// Event is the envelope committed events are logged and published in.
type Event struct {
	ID       uuid.UUID   `json:"id"`
	Sequence uint64      `json:"sequence"`
	MarketID uint64      `json:"market_id"`
	Kind     string      `json:"kind"`
	Time     time.Time   `json:"time"`
	Maker    *MakerEvent `json:"maker,omitempty"`
	Taker    *TakerEvent `json:"taker,omitempty"`
}

// NewMakerEvent wraps e in an envelope with a fresh id. Sequence is set on commit.
func NewMakerEvent(e MakerEvent) Event {
	return Event{ID: uuid.New(), MarketID: e.MarketID, Kind: EventKindMaker, Maker: &e}
}

func NewTakerEvent(e TakerEvent) Event {
	return Event{ID: uuid.New(), MarketID: e.MarketID, Kind: EventKindTaker, Taker: &e}
}
