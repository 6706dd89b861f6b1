package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/port"
)

// JWTVerifier validates HS256 tokens issued by the identity service.
// Claims: "id" (owner id) and "role", or "cargo" as the identity service
// signs it.
type JWTVerifier struct {
	secret []byte
}

var _ port.IdentityVerifier = (*JWTVerifier)(nil)

func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("JWT secret not configured")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (domain.Identity, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return domain.Identity{}, fmt.Errorf("%w: invalid or expired token", domain.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}

	ownerID, err := ownerIDClaim(claims["id"])
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	raw, ok := claims["role"]
	if !ok {
		raw = claims["cargo"]
	}
	role, err := parseRole(raw)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return domain.Identity{OwnerID: ownerID, Role: role}, nil
}

// Issue signs a token for id. Used by tooling and tests; production tokens
// come from the identity service.
func (v *JWTVerifier) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"id":   id.OwnerID,
		"role": string(id.Role),
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func ownerIDClaim(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case float64:
		if v > 0 && v == float64(int64(v)) {
			return int64(v), nil
		}
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, errors.New("token has no valid id claim")
}

// parseRole accepts the role names used by this service and the ones the
// identity service signs ("usuario", "funcionario"). Anything else is
// rejected.
func parseRole(raw interface{}) (domain.Role, error) {
	role, _ := raw.(string)
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "customer", "usuario":
		return domain.RoleCustomer, nil
	case "staff", "funcionario":
		return domain.RoleStaff, nil
	case "":
		return "", errors.New("token has no role claim")
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}
