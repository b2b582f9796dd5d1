package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentflow/dentflow-backend/pkg/config"
	"github.com/dentflow/dentflow-backend/pkg/errors"
)

func testConfig() *config.JWTConfig {
	return &config.JWTConfig{Secret: "test-secret", AccessExpiry: time.Minute, Issuer: "dentflow"}
}

func TestIssueAndVerify(t *testing.T) {
	m := NewManager(testConfig())

	token, expiresAt, err := m.Issue(Identity{
		UserID: "user-1", Name: "Dr. Smith", Email: "smith@clinic.test", Role: "Doctor", ClinicID: "clinic-1",
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "clinic-1", claims.ClinicID)
	assert.Equal(t, "Doctor", claims.Role)

	a := claims.Actor()
	assert.Equal(t, "Dr. Smith", a.DisplayName())
	assert.Equal(t, "clinic-1", a.ClinicID)
}

func TestVerify_Expired(t *testing.T) {
	cfg := testConfig()
	cfg.AccessExpiry = -time.Minute
	m := NewManager(cfg)

	token, _, err := m.Issue(Identity{UserID: "user-1", ClinicID: "clinic-1"})
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.True(t, errors.Is(err, errors.ErrTokenExpired))
}

func TestVerify_WrongSecret(t *testing.T) {
	token, _, err := NewManager(testConfig()).Issue(Identity{UserID: "user-1"})
	require.NoError(t, err)

	other := testConfig()
	other.Secret = "another-secret"
	_, err = NewManager(other).Verify(token)
	assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
}

func TestVerify_WrongIssuer(t *testing.T) {
	cfg := testConfig()
	cfg.Issuer = "someone-else"
	token, _, err := NewManager(cfg).Issue(Identity{UserID: "user-1"})
	require.NoError(t, err)

	_, err = NewManager(testConfig()).Verify(token)
	assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ClinicID: "clinic-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewManager(testConfig()).Verify(token)
	assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
}

func TestVerify_Garbage(t *testing.T) {
	_, err := NewManager(testConfig()).Verify("not-a-token")
	assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
}
