package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// EventRecord is the row form of a committed event.
type EventRecord struct {
	Sequence      uint64    `gorm:"primaryKey;autoIncrement:false"`
	ID            string    `gorm:"type:varchar(36);uniqueIndex;not null"`
	MarketID      uint64    `gorm:"index:idx_events_market_seq,priority:1;not null"`
	Kind          string    `gorm:"type:varchar(8);not null"`
	Side          string    `gorm:"type:varchar(4);not null"`
	MarketOrderID string    `gorm:"type:varchar(40);index;not null"`
	User          string    `gorm:"type:varchar(128);index;not null"`
	CustodianID   uint64    `gorm:"not null"`
	Type          uint8     `gorm:"not null;default:0"`
	Size          uint64    `gorm:"not null"`
	Price         uint64    `gorm:"not null"`
	Time          time.Time `gorm:"index:idx_events_market_seq,priority:2;not null"`
}

func (EventRecord) TableName() string { return "clob_events" }

func recordFromEvent(e model.Event) EventRecord {
	r := EventRecord{
		Sequence: e.Sequence,
		ID:       e.ID.String(),
		MarketID: e.MarketID,
		Kind:     e.Kind,
		Time:     e.Time.UTC(),
	}
	switch {
	case e.Maker != nil:
		m := e.Maker
		r.Side = m.Side.String()
		r.MarketOrderID = m.MarketOrderID.String()
		r.User = string(m.User)
		r.CustodianID = m.CustodianID
		r.Type = uint8(m.Type)
		r.Size, r.Price = m.Size, m.Price
	case e.Taker != nil:
		t := e.Taker
		r.Side = t.Side.String()
		r.MarketOrderID = t.MarketOrderID.String()
		r.User = string(t.Maker)
		r.CustodianID = t.CustodianID
		r.Size, r.Price = t.Size, t.Price
	}
	return r
}

func (r EventRecord) event() (model.Event, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %d: %w", r.Sequence, err)
	}
	side, err := model.ParseSide(r.Side)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %d: %w", r.Sequence, err)
	}
	orderID, err := model.ParseMarketOrderID(r.MarketOrderID)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %d: %w", r.Sequence, err)
	}
	e := model.Event{ID: id, Sequence: r.Sequence, MarketID: r.MarketID, Kind: r.Kind, Time: r.Time.UTC()}
	switch r.Kind {
	case model.EventKindMaker:
		e.Maker = &model.MakerEvent{
			MarketID:      r.MarketID,
			Side:          side,
			MarketOrderID: orderID,
			User:          model.Address(r.User),
			CustodianID:   r.CustodianID,
			Type:          model.MakerEventType(r.Type),
			Size:          r.Size,
			Price:         r.Price,
		}
	case model.EventKindTaker:
		e.Taker = &model.TakerEvent{
			MarketID:      r.MarketID,
			Side:          side,
			MarketOrderID: orderID,
			Maker:         model.Address(r.User),
			CustodianID:   r.CustodianID,
			Size:          r.Size,
			Price:         r.Price,
		}
	default:
		return model.Event{}, fmt.Errorf("event %d: unknown kind %q", r.Sequence, r.Kind)
	}
	return e, nil
}

// EventStore is a gorm-backed model.EventRepository.
type EventStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ model.EventRepository = (*EventStore)(nil)

// OpenEventStore connects to driver ("postgres" or "sqlite") and migrates
// the events table.
func OpenEventStore(driver, dsn string, logger *zap.Logger) (*EventStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported event store driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect event store: %w", err)
	}
	if driver == "sqlite" {
		// Every connection to an in-memory sqlite database sees its own database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate event store: %w", err)
	}
	return &EventStore{db: db, logger: logger.Named("event_store")}, nil
}

// AppendEvents inserts events, ignoring sequences already stored.
func (s *EventStore) AppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]EventRecord, len(events))
	for i, e := range events {
		records[i] = recordFromEvent(e)
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(records, 500).Error
	if err != nil {
		s.logger.Error("Failed to append events",
			zap.Uint64("first_sequence", events[0].Sequence),
			zap.Int("count", len(events)),
			zap.Error(err))
		return fmt.Errorf("failed to append events: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events of one market after a sequence,
// oldest first.
func (s *EventStore) ListEvents(ctx context.Context, marketID, afterSequence uint64, limit int) ([]model.Event, error) {
	q := s.db.WithContext(ctx).
		Where("market_id = ? AND sequence > ?", marketID, afterSequence).
		Order("sequence ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []EventRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	out := make([]model.Event, 0, len(records))
	for _, r := range records {
		e, err := r.event()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// LastSequence returns the highest stored sequence, or 0.
func (s *EventStore) LastSequence(ctx context.Context) (uint64, error) {
	var seq uint64
	row := s.db.WithContext(ctx).Model(&EventRecord{}).Select("COALESCE(MAX(sequence), 0)").Row()
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read last sequence: %w", err)
	}
	return seq, nil
}

func (s *EventStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
