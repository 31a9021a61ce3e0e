// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"isp-billing-service/internal/pkg/jwt"
	"isp-billing-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Roles allowed to operate the discount engine.
const (
	RoleSuperAdmin   = "super_admin"
	RoleAdmin        = "admin"
	RoleBillingAdmin = "billing_admin"
)

type TokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

// RevocationChecker reports tokens revoked before their expiry.
type RevocationChecker interface {
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

type AuthMiddleware struct {
	verifier    TokenVerifier
	revocations RevocationChecker
	logger      *zap.Logger
}

// NewAuthMiddleware builds the middleware. revocations may be nil when no Redis is configured.
func NewAuthMiddleware(verifier TokenVerifier, revocations RevocationChecker, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:    verifier,
		revocations: revocations,
		logger:      logger,
	}
}

// Auth is the base authentication middleware that validates JWT tokens
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		c.Set("claims", claims)
		c.Set("identity_id", claims.IdentityID)
		c.Set("jti", claims.ID)
		c.Set("roles", claims.Roles)
		c.Set("permissions", claims.Permissions)

		c.Next()
	}
}

// ValidateToken verifies the signature and scope of token and that it was not revoked.
func (m *AuthMiddleware) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := m.verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}

	if m.revocations != nil && claims.ID != "" {
		revoked, err := m.revocations.IsTokenBlacklisted(ctx, claims.ID)
		if err != nil {
			m.logger.Warn("token revocation check failed", zap.String("jti", claims.ID), zap.Error(err))
			return nil, err
		}
		if revoked {
			return nil, errors.New("token has been revoked")
		}
	}

	return claims, nil
}

// RequireRole middleware that requires user to have at least one of the specified roles
// MUST be used after Auth() middleware
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get("claims")
		if !exists {
			response.Error(c, http.StatusForbidden, "no roles found - authentication required", nil)
			return
		}

		claims, ok := value.(*jwt.Claims)
		if !ok {
			response.Error(c, http.StatusInternalServerError, "invalid claims format", nil)
			return
		}

		if !claims.HasAnyRole(roles...) {
			err := errors.New("user does not have required role")
			response.Error(c, http.StatusForbidden, "insufficient permissions", err, map[string]interface{}{
				"required_roles": roles,
			})
			return
		}

		c.Next()
	}
}

// BillingAdmin returns middlewares for routes that operate discounts and referrals
func (m *AuthMiddleware) BillingAdmin() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole(RoleAdmin, RoleBillingAdmin, RoleSuperAdmin),
	}
}

// AdminOnly returns middlewares for routes that change engine-wide settings
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole(RoleAdmin, RoleSuperAdmin),
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	// Browsers cannot set headers on websocket upgrades
	return c.Query("token")
}

// GetIdentityID gets the authenticated identity from context
func GetIdentityID(c *gin.Context) (int64, bool) {
	identityID, exists := c.Get("identity_id")
	if !exists {
		return 0, false
	}

	id, ok := identityID.(int64)
	return id, ok
}
