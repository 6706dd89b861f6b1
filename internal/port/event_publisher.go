package port

import (
	"context"

	"github.com/rl1809/card-shop/internal/core/domain"
)

type EventPublisher interface {
	PublishOrderCompleted(ctx context.Context, order domain.Order) error
	Close() error
}
