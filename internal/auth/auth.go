// Package auth verifies the signed credentials presented by chat clients and
// mints development tokens with the same shape.
package auth

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"protalent/backend/internal/models"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const issuer = "protalent-chat"

var (
	ErrMissingToken = errors.New("token not provided")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier creates a Verifier for the given secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify validates signature and expiry and returns the identity carried in
// the "id" claim (falling back to "sub"). Numeric ids are returned in decimal form.
func (v *Verifier) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, ok := identity(claims)
	if !ok {
		return "", fmt.Errorf("%w: no identity claim", ErrInvalidToken)
	}
	return id, nil
}

func identity(claims jwt.MapClaims) (string, bool) {
	for _, key := range []string{"id", "sub"} {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			return models.NumericID(v), true
		}
	}
	return "", false
}

// Issue signs a token for userID valid for ttl.
func Issue(secret, userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
		"iss": issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// FromRequest extracts a credential from the token query parameter, the
// Authorization bearer header or a "bearer, <token>" websocket subprotocol, in that order.
func FromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if t := BearerToken(r.Header.Get("Authorization")); t != "" {
		return t
	}

	protocols := strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",")
	for i := 0; i+1 < len(protocols); i++ {
		if strings.EqualFold(strings.TrimSpace(protocols[i]), "bearer") {
			return strings.TrimSpace(protocols[i+1])
		}
	}
	return ""
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
