package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/port"
)

// RemoteVerifier asks the identity service to validate a token.
type RemoteVerifier struct {
	url    string
	client *http.Client
}

var _ port.IdentityVerifier = (*RemoteVerifier)(nil)

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	OwnerID int64  `json:"ownerId"`
	Role    string `json:"role"`
	Cargo   string `json:"cargo"`
}

func NewRemoteVerifier(url string, timeout time.Duration) *RemoteVerifier {
	return &RemoteVerifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	body, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return domain.Identity{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return domain.Identity{}, fmt.Errorf("%w: identity service rejected token (%d)", domain.ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Identity{}, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	var out validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Identity{}, fmt.Errorf("decode identity response: %w", err)
	}
	if !out.Valid || out.OwnerID <= 0 {
		return domain.Identity{}, fmt.Errorf("%w: token not valid", domain.ErrUnauthorized)
	}
	raw := out.Role
	if raw == "" {
		raw = out.Cargo
	}
	role, err := parseRole(raw)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return domain.Identity{OwnerID: out.OwnerID, Role: role}, nil
}
