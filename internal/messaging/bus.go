package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"go.uber.org/zap"
)

// MessageBus fans committed events out to every registered publisher. A
// failing publisher does not stop delivery to the others.
type MessageBus struct {
	mu         sync.RWMutex
	publishers map[string]model.EventPublisher
	order      []string
	logger     *zap.Logger
}

var _ model.EventPublisher = (*MessageBus)(nil)

func NewMessageBus(logger *zap.Logger) *MessageBus {
	return &MessageBus{
		publishers: make(map[string]model.EventPublisher),
		logger:     logger.Named("bus"),
	}
}

// Register adds a named publisher, replacing any publisher of the same name.
func (mb *MessageBus) Register(name string, p model.EventPublisher) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if _, ok := mb.publishers[name]; !ok {
		mb.order = append(mb.order, name)
	}
	mb.publishers[name] = p
	mb.logger.Info("Registered event publisher", zap.String("publisher", name))
}

// Len returns the number of registered publishers.
func (mb *MessageBus) Len() int {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.order)
}

// PublishEvents hands events to each publisher in registration order and
// joins their errors.
func (mb *MessageBus) PublishEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	mb.mu.RLock()
	names := append([]string(nil), mb.order...)
	pubs := make([]model.EventPublisher, len(names))
	for i, n := range names {
		pubs[i] = mb.publishers[n]
	}
	mb.mu.RUnlock()

	var errs []error
	for i, p := range pubs {
		if err := p.PublishEvents(ctx, events); err != nil {
			mb.logger.Warn("Publisher failed",
				zap.String("publisher", names[i]),
				zap.Int("events", len(events)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher that implements io.Closer.
func (mb *MessageBus) Close() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var errs []error
	for _, name := range mb.order {
		if c, ok := mb.publishers[name].(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
