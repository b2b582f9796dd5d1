// Package auth verifies access tokens issued by the platform auth service.
package auth

import (
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dentflow/dentflow-backend/pkg/actor"
	"github.com/dentflow/dentflow-backend/pkg/config"
	"github.com/dentflow/dentflow-backend/pkg/errors"
)

// Claims represents the access token claims. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	ClinicID string `json:"clinic_id"`
}

// Actor converts the claims into the identity recorded on ledger entries.
func (c *Claims) Actor() *actor.Actor {
	return &actor.Actor{
		ID:       c.Subject,
		Name:     c.Name,
		Email:    c.Email,
		ClinicID: c.ClinicID,
		Role:     c.Role,
	}
}

// Identity is the input for minting a token.
type Identity struct {
	UserID   string
	Name     string
	Email    string
	Role     string
	ClinicID string
}

// Manager signs and verifies HS256 access tokens with a shared secret.
type Manager struct {
	config *config.JWTConfig
}

// NewManager creates a new JWT manager
func NewManager(cfg *config.JWTConfig) *Manager {
	return &Manager{config: cfg}
}

// Issue mints an access token. The auth service owns issuance in production;
// this is used by tests and local tooling.
func (m *Manager) Issue(id Identity) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.AccessExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Name:     id.Name,
		Email:    id.Email,
		Role:     id.Role,
		ClinicID: id.ClinicID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify validates an access token and returns its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(m.config.Secret), nil
	}, opts...)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.TokenInvalid()
	}
	return claims, nil
}
