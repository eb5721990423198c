// Package market runs the order books: market registration, matching,
// limit and market orders, swaps, cancellation and the committed event log.
//
// Every mutating Exchange method is one atomic operation. Mutations are
// journaled as they happen; an abort rolls all of them back and discards the
// events the operation produced.
package market

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aidin1998/pincex_clob/internal/trading/avlqueue"
	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/Aidin1998/pincex_clob/internal/trading/journal"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
	"github.com/Aidin1998/pincex_clob/pkg/errors"
	"github.com/Aidin1998/pincex_clob/pkg/metrics"
	"go.uber.org/zap"
)

// Config tunes an Exchange.
type Config struct {
	// CriticalHeight is the AVL height past which a new limit order must
	// evict the worst order on its side.
	CriticalHeight uint8 `mapstructure:"critical_height" yaml:"critical_height" json:"critical_height"`
	// InactiveTreeNodes and InactiveListNodes are preallocated per book side.
	InactiveTreeNodes int `mapstructure:"inactive_tree_nodes" yaml:"inactive_tree_nodes" json:"inactive_tree_nodes"`
	InactiveListNodes int `mapstructure:"inactive_list_nodes" yaml:"inactive_list_nodes" json:"inactive_list_nodes"`
	// EventHistory is how many committed events stay queryable in memory.
	EventHistory int `mapstructure:"event_history" yaml:"event_history" json:"event_history"`
	// DispatchBuffer is the number of committed batches queued for publishers.
	DispatchBuffer int `mapstructure:"dispatch_buffer" yaml:"dispatch_buffer" json:"dispatch_buffer"`
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		CriticalHeight:    model.CriticalHeight,
		InactiveTreeNodes: 16,
		InactiveListNodes: 64,
		EventHistory:      10000,
		DispatchBuffer:    1024,
	}
}

// Exchange is the single writer over every order book, market account and
// fee store. It is safe for concurrent use; operations are serialised.
type Exchange struct {
	mu         sync.Mutex
	cfg        Config
	logger     *zap.Logger
	registry   *Registry
	users      *user.Ledger
	incentives *incentives.Ledger
	journal    *journal.Journal

	pending     []model.Event
	pendingFees []pendingFee
	sequence    uint64
	history     []model.Event

	repo        model.EventRepository
	publishers  []model.EventPublisher
	out         chan []model.Event
	done        chan struct{}
	dispatching atomic.Bool
}

type pendingFee struct {
	marketID uint64
	amount   uint64
}

// NewExchange creates an exchange with no markets.
func NewExchange(cfg Config, params incentives.Params, logger *zap.Logger) (*Exchange, error) {
	if cfg.CriticalHeight > avlqueue.MaxHeight {
		return nil, fmt.Errorf("critical height %d exceeds %d", cfg.CriticalHeight, avlqueue.MaxHeight)
	}
	inc, err := incentives.NewLedger(params)
	if err != nil {
		return nil, fmt.Errorf("incentive parameters: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = 1
	}
	e := &Exchange{
		cfg:        cfg,
		logger:     logger.Named("exchange"),
		registry:   NewRegistry(cfg.InactiveTreeNodes, cfg.InactiveListNodes),
		users:      user.NewLedger(),
		incentives: inc,
		journal:    journal.New(),
		out:        make(chan []model.Event, cfg.DispatchBuffer),
		done:       make(chan struct{}),
	}
	e.wire()
	return e, nil
}

// wire attaches the journal to every component.
func (e *Exchange) wire() {
	e.registry.setJournal(e.journal)
	e.users.SetJournal(e.journal)
	e.incentives.SetJournal(e.journal)
}

// SetRepository makes committed events durable. Call before Run.
func (e *Exchange) SetRepository(r model.EventRepository) { e.repo = r }

// AddPublisher registers a publisher for committed events. Call before Run.
func (e *Exchange) AddPublisher(p model.EventPublisher) { e.publishers = append(e.publishers, p) }

// run executes fn as one atomic operation.
func (e *Exchange) run(op string, fn func() error) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			e.abort(op, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	if err := fn(); err != nil {
		e.abort(op, err)
		return err
	}
	e.commit()
	return nil
}

func (e *Exchange) abort(op string, err error) {
	e.journal.Rollback()
	e.pending = e.pending[:0]
	e.pendingFees = e.pendingFees[:0]

	module, code := "", ""
	if a, ok := errors.AbortOf(err); ok {
		module, code = a.Module, strconv.FormatUint(a.Code, 10)
	}
	metrics.Rollbacks.WithLabelValues(module, code).Inc()
	e.logger.Debug("operation rolled back", zap.String("operation", op), zap.Error(err))
}

func (e *Exchange) commit() {
	e.journal.Commit()
	for _, f := range e.pendingFees {
		metrics.TakerFees.WithLabelValues(strconv.FormatUint(f.marketID, 10)).Add(float64(f.amount))
	}
	e.pendingFees = e.pendingFees[:0]
	if len(e.pending) == 0 {
		return
	}

	now := time.Now().UTC()
	batch := make([]model.Event, len(e.pending))
	for i, ev := range e.pending {
		e.sequence++
		ev.Sequence = e.sequence
		ev.Time = now
		batch[i] = ev
		countEvent(ev)
	}
	e.pending = e.pending[:0]
	metrics.EventsCommitted.Add(float64(len(batch)))

	e.history = append(e.history, batch...)
	if over := len(e.history) - e.cfg.EventHistory; e.cfg.EventHistory > 0 && over > 0 {
		e.history = append(e.history[:0:0], e.history[over:]...)
	}
	if e.dispatching.Load() {
		select {
		case e.out <- batch:
		case <-e.done:
		}
	}
}

func countEvent(ev model.Event) {
	switch {
	case ev.Taker != nil:
		metrics.Fills.WithLabelValues(ev.Taker.Side.String()).Inc()
	case ev.Maker != nil:
		side := ev.Maker.Side.String()
		switch ev.Maker.Type {
		case model.MakerPlace:
			metrics.OrdersPlaced.WithLabelValues(side).Inc()
		case model.MakerCancel:
			metrics.OrdersCancelled.WithLabelValues(side).Inc()
		case model.MakerEvict:
			metrics.OrdersEvicted.WithLabelValues(side).Inc()
		}
	}
}

func (e *Exchange) emitMaker(b *OrderBook, side model.Side, id model.MarketOrderID, o model.Order, typ model.MakerEventType) {
	e.pending = append(e.pending, model.NewMakerEvent(model.MakerEvent{
		MarketID:      b.MarketID,
		Side:          side,
		MarketOrderID: id,
		User:          o.User,
		CustodianID:   o.CustodianID,
		Type:          typ,
		Size:          o.Size,
		Price:         o.Price,
	}))
}

func (e *Exchange) emitTaker(b *OrderBook, side model.Side, id model.MarketOrderID, maker model.Order, size uint64) {
	e.pending = append(e.pending, model.NewTakerEvent(model.TakerEvent{
		MarketID:      b.MarketID,
		Side:          side,
		MarketOrderID: id,
		Maker:         maker.User,
		CustodianID:   maker.CustodianID,
		Size:          size,
		Price:         maker.Price,
	}))
}

// Run hands committed events to the repository and publishers until ctx is
// cancelled. Batches are delivered in commit order.
func (e *Exchange) Run(ctx context.Context) error {
	if !e.dispatching.CompareAndSwap(false, true) {
		return fmt.Errorf("exchange dispatcher already running")
	}
	defer close(e.done)
	e.logger.Info("event dispatcher started",
		zap.Int("publishers", len(e.publishers)),
		zap.Bool("repository", e.repo != nil))

	for {
		select {
		case <-ctx.Done():
			// Deliver what was already committed with a fresh deadline.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			for drained := false; !drained; {
				select {
				case batch := <-e.out:
					e.dispatch(flushCtx, batch)
				default:
					drained = true
				}
			}
			cancel()
			e.logger.Info("event dispatcher stopped")
			return ctx.Err()
		case batch := <-e.out:
			e.dispatch(ctx, batch)
		}
	}
}

func (e *Exchange) dispatch(ctx context.Context, batch []model.Event) {
	if e.repo != nil {
		if err := e.repo.AppendEvents(ctx, batch); err != nil {
			metrics.PublishFailures.WithLabelValues("repository").Inc()
			e.logger.Error("failed to store events", zap.Int("count", len(batch)), zap.Error(err))
		}
	}
	for _, p := range e.publishers {
		if err := p.PublishEvents(ctx, batch); err != nil {
			name := fmt.Sprintf("%T", p)
			metrics.PublishFailures.WithLabelValues(name).Inc()
			e.logger.Warn("failed to publish events", zap.String("publisher", name), zap.Error(err))
		}
	}
}

// Events returns committed events of a market, or of every market when
// marketID is 0, with sequence numbers above after.
func (e *Exchange) Events(marketID, after uint64, limit int) []model.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Event, 0)
	for _, ev := range e.history {
		if ev.Sequence <= after || (marketID != 0 && ev.MarketID != marketID) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Sequence returns the sequence number of the last committed event.
func (e *Exchange) Sequence() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}
