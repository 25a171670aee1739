package server

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/directory/internal/principal"
	obscontext "github.com/smallbiznis/directory/internal/observability/context"
)

const (
	headerAuthorization = "Authorization"
	HeaderAdminToken    = "X-Admin-Token"
)

var errInvalidToken = errors.New("invalid_token")

// Principal resolves the bearer token into the acting owner. Requests without a
// token pass through anonymous; services decide whether that is acceptable.
func (s *Server) Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader(headerAuthorization))
		if raw == "" {
			c.Next()
			return
		}

		userID, err := parseOwnerToken(raw, s.cfg.AuthJWTSecret)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := principal.WithUserID(c.Request.Context(), userID)
		ctx = obscontext.WithActor(ctx, "user", userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AdminRequired gates platform review routes behind the shared admin token.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(s.cfg.AdminToken)
		if expected == "" {
			AbortWithError(c, ErrForbidden)
			return
		}
		got := strings.TrimSpace(c.GetHeader(HeaderAdminToken))
		if got == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "admin", "platform"))
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func parseOwnerToken(raw, secret string) (snowflake.ID, error) {
	if strings.TrimSpace(secret) == "" {
		return 0, errInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return 0, errInvalidToken
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(claims.Subject))
	if err != nil || userID <= 0 {
		return 0, errInvalidToken
	}
	return userID, nil
}

// SignOwnerToken issues an HS256 token for userID. Used by tooling and tests.
func SignOwnerToken(secret string, userID snowflake.ID, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = userID.String()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
