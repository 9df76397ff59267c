package middleware

import (
	"net/http"
	"strings"

	"stockledger/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ClaimsKey = "claims"
)

// JWTClaims are the claims read from tokens issued by the identity provider.
// Only the subject's display name is used, as the actor on ledger writes.
type JWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Actor is the name recorded on history entries: username, else subject.
func (c *JWTClaims) Actor() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// Identity attaches the caller's claims when a Bearer token is present.
// Anonymous requests pass through with no actor; a token that is present but
// invalid or expired is rejected.
func Identity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(header, "Bearer ") || secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("invalid authorization header"))
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})

		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("invalid or expired token"))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// GetClaims returns the caller's claims, or nil for anonymous requests.
func GetClaims(c *gin.Context) *JWTClaims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*JWTClaims)
	return claims
}

// ActorFrom is the actor to record for this request, nil when anonymous.
func ActorFrom(c *gin.Context) *string {
	claims := GetClaims(c)
	if claims == nil {
		return nil
	}
	actor := claims.Actor()
	if actor == "" {
		return nil
	}
	return &actor
}
