package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, key *rsa.PrivateKey, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func accessClaims(issuer, audience string) Claims {
	now := time.Now()
	return Claims{
		IdentityID:     42,
		Roles:          []string{"billing_admin"},
		SessionPurpose: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestVerifyAccessToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewVerifier(&key.PublicKey, "isp-auth", "isp-billing")

	t.Run("valid", func(t *testing.T) {
		claims, err := v.VerifyAccessToken(sign(t, key, jwt.SigningMethodRS256, accessClaims("isp-auth", "isp-billing")))
		require.NoError(t, err)
		assert.EqualValues(t, 42, claims.IdentityID)
		assert.True(t, claims.HasAnyRole("admin", "billing_admin"))
		assert.False(t, claims.HasRole("super_admin"))
	})

	tests := []struct {
		name   string
		mutate func(c *Claims)
	}{
		{"wrong issuer", func(c *Claims) { c.Issuer = "someone-else" }},
		{"wrong audience", func(c *Claims) { c.Audience = jwt.ClaimStrings{"other"} }},
		{"missing audience", func(c *Claims) { c.Audience = nil }},
		{"expired", func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute)) }},
		{"refresh token", func(c *Claims) { c.SessionPurpose = "refresh" }},
		{"temporary token", func(c *Claims) { c.IsTemp = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := accessClaims("isp-auth", "isp-billing")
			tt.mutate(&claims)
			_, err := v.VerifyAccessToken(sign(t, key, jwt.SigningMethodRS256, claims))
			assert.Error(t, err)
		})
	}

	t.Run("foreign key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		_, err = v.VerifyAccessToken(sign(t, other, jwt.SigningMethodRS256, accessClaims("isp-auth", "isp-billing")))
		assert.Error(t, err)
	})

	t.Run("hmac token", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims("isp-auth", "isp-billing")).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = v.VerifyAccessToken(token)
		assert.Error(t, err)
	})
}

func TestLoadVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "jwt_public.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	v, err := LoadVerifier(Config{PubPath: path, Issuer: "isp-auth", Audience: "isp-billing"})
	require.NoError(t, err)
	_, err = v.VerifyAccessToken(sign(t, key, jwt.SigningMethodRS256, accessClaims("isp-auth", "isp-billing")))
	assert.NoError(t, err)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)})
	pub, err := ParseRSAPublicKey(pkcs1)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&key.PublicKey))

	_, err = ParseRSAPublicKey([]byte("not pem"))
	assert.Error(t, err)

	_, err = LoadVerifier(Config{PubPath: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)
}
