package port

import (
	"context"

	"github.com/rl1809/card-shop/internal/core/domain"
)

type IdentityVerifier interface {
	// Verify resolves a bearer token. Invalid tokens yield domain.ErrUnauthorized.
	Verify(ctx context.Context, token string) (domain.Identity, error)
}
