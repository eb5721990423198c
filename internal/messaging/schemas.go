package messaging

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Aidin1998/pincex_clob/internal/trading/model"
)

// MessageType names the kind of exchange event carried by a message.
type MessageType string

const (
	MsgOrderPlaced   MessageType = "order.placed"
	MsgOrderChanged  MessageType = "order.changed"
	MsgOrderCanceled MessageType = "order.canceled"
	MsgOrderEvicted  MessageType = "order.evicted"
	MsgOrderFilled   MessageType = "order.filled"
)

// SchemaVersion is bumped whenever EventMessage changes incompatibly.
const SchemaVersion = "1"

// MessageTypeOf maps an event to its message type.
func MessageTypeOf(ev model.Event) MessageType {
	if ev.Taker != nil {
		return MsgOrderFilled
	}
	if ev.Maker == nil {
		return ""
	}
	switch ev.Maker.Type {
	case model.MakerPlace:
		return MsgOrderPlaced
	case model.MakerChange:
		return MsgOrderChanged
	case model.MakerCancel:
		return MsgOrderCanceled
	case model.MakerEvict:
		return MsgOrderEvicted
	}
	return ""
}

// EventMessage is the wire envelope for a committed event.
type EventMessage struct {
	MessageID string      `json:"message_id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Version   string      `json:"version"`
	Source    string      `json:"source"`
	Event     model.Event `json:"event"`
}

func newEventMessage(source string, ev model.Event) EventMessage {
	return EventMessage{
		MessageID: ev.ID.String(),
		Type:      MessageTypeOf(ev),
		Timestamp: ev.Time,
		Version:   SchemaVersion,
		Source:    source,
		Event:     ev,
	}
}

// encodeEvent returns the partition key and payload of ev. Keying by market
// keeps one market's events ordered within a partition.
func encodeEvent(source string, ev model.Event) (key, value []byte, err error) {
	value, err = json.Marshal(newEventMessage(source, ev))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal event %d: %w", ev.Sequence, err)
	}
	return []byte(strconv.FormatUint(ev.MarketID, 10)), value, nil
}

// DecodeEventMessage parses a payload written by a publisher in this package.
func DecodeEventMessage(data []byte) (EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return EventMessage{}, fmt.Errorf("failed to decode event message: %w", err)
	}
	if msg.Version != SchemaVersion {
		return EventMessage{}, fmt.Errorf("unsupported event message version %q", msg.Version)
	}
	return msg, nil
}
