package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/port"
)

// OrderService serves committed orders back to their owner and queues
// them for asynchronous event publishing.
type OrderService struct {
	db         port.DatabaseRepository
	logger     *zap.Logger
	orderQueue chan domain.Order

	mu     sync.RWMutex
	closed bool
}

func NewOrderService(db port.DatabaseRepository, queueSize int, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		db:         db,
		logger:     logger,
		orderQueue: make(chan domain.Order, queueSize),
	}
}

func (s *OrderService) GetOrder(ctx context.Context, caller domain.Identity, orderID int64) (*domain.Order, error) {
	if err := authorize(caller); err != nil {
		return nil, err
	}
	order, err := s.db.GetOrder(ctx, caller.OwnerID, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %d", domain.ErrNotFound, orderID)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, caller domain.Identity) ([]domain.Order, error) {
	if err := authorize(caller); err != nil {
		return nil, err
	}
	orders, err := s.db.ListOrders(ctx, caller.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Enqueue never blocks the request path: when the queue is full the event
// is dropped and logged. The order itself is already committed.
func (s *OrderService) Enqueue(order domain.Order) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("order queue closed, event dropped", zap.Int64("order_id", order.ID))
		return
	}
	select {
	case s.orderQueue <- order:
	default:
		s.logger.Warn("order queue full, event dropped", zap.Int64("order_id", order.ID))
	}
}

func (s *OrderService) GetOrderQueue() <-chan domain.Order {
	return s.orderQueue
}

func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.orderQueue)
}
