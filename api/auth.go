package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aidin1998/pincex_clob/api/responses"
	"github.com/Aidin1998/pincex_clob/internal/config"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	RoleTrader = "trader"
	RoleAdmin  = "admin"

	ctxUser = "user"
	ctxRole = "role"

	// Development-only identity headers, honoured when auth is disabled.
	headerUser = "X-User-Address"
	headerRole = "X-User-Role"
)

// CustomClaims are the non-registered claims of an access token.
type CustomClaims struct {
	Role string `json:"role"`
}

func (c *CustomClaims) Validate(ctx context.Context) error {
	switch c.Role {
	case "", RoleTrader, RoleAdmin:
		return nil
	}
	return fmt.Errorf("unknown role %q", c.Role)
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 access token for subject.
func IssueToken(cfg config.AuthConfig, subject model.Address, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   string(subject),
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

func newTokenValidator(cfg config.AuthConfig) (*validator.Validator, error) {
	keyFunc := func(context.Context) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}
	return validator.New(
		keyFunc,
		validator.HS256,
		cfg.Issuer,
		[]string{cfg.Audience},
		validator.WithAllowedClockSkew(cfg.Leeway),
		validator.WithCustomClaims(func() validator.CustomClaims { return &CustomClaims{} }),
	)
}

// authMiddleware resolves the caller's address and role. With auth disabled
// it trusts the development identity headers.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.tokens == nil {
			addr, err := parseAddress(c.GetHeader(headerUser))
			if err != nil {
				responses.Unauthorized(c, headerUser+" header required: "+err.Error())
				return
			}
			role := c.GetHeader(headerRole)
			if role == "" {
				role = RoleTrader
			}
			c.Set(ctxUser, addr)
			c.Set(ctxRole, role)
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			responses.Unauthorized(c, "Bearer token required")
			return
		}
		raw, err := s.tokens.ValidateToken(c.Request.Context(), token)
		if err != nil {
			s.logger.Debug("Rejected access token", zap.Error(err))
			responses.Unauthorized(c, "invalid access token")
			return
		}
		claims := raw.(*validator.ValidatedClaims)
		addr, err := parseAddress(claims.RegisteredClaims.Subject)
		if err != nil {
			responses.Unauthorized(c, "token subject is not an address")
			return
		}
		role := RoleTrader
		if custom, ok := claims.CustomClaims.(*CustomClaims); ok && custom.Role != "" {
			role = custom.Role
		}
		c.Set(ctxUser, addr)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// requireRole must run after authMiddleware.
func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != role {
			responses.Forbidden(c, "insufficient role")
			return
		}
		c.Next()
	}
}

func caller(c *gin.Context) model.Address {
	addr, _ := c.Get(ctxUser)
	a, _ := addr.(model.Address)
	return a
}
