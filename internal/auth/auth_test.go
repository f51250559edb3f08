package auth_test

import (
	"net/http/httptest"
	"protalent/backend/internal/auth"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestIssueAndVerify(t *testing.T) {
	token, err := auth.Issue(secret, "42", time.Hour)
	require.NoError(t, err)

	id, err := auth.NewVerifier(secret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestVerify_NumericID(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"id":  float64(7),
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	id, err := auth.NewVerifier(secret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "7", id)
}

func TestVerify_LargeNumericID(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"id":  float64(1e19),
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	id, err := auth.NewVerifier(secret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", id)
}

func TestVerify_SubFallback(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub": "user-9",
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	id, err := auth.NewVerifier(secret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", id)
}

func TestVerify_Failures(t *testing.T) {
	v := auth.NewVerifier(secret)

	cases := map[string]string{
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{
			"id": "1", "exp": time.Now().Add(time.Minute).Unix(),
		}),
		"expired": sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"id": "1", "exp": time.Now().Add(-time.Minute).Unix(),
		}),
		"no expiry": sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"id": "1",
		}),
		"wrong algorithm": sign(t, jwt.SigningMethodHS512, []byte(secret), jwt.MapClaims{
			"id": "1", "exp": time.Now().Add(time.Minute).Unix(),
		}),
		"no identity": sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"exp": time.Now().Add(time.Minute).Unix(),
		}),
		"garbage": "not.a.token",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestVerify_Missing(t *testing.T) {
	_, err := auth.NewVerifier(secret).Verify("")
	assert.ErrorIs(t, err, auth.ErrMissingToken)
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=q", nil)
	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "q", auth.FromRequest(r), "query parameter wins")

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", auth.FromRequest(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "bearer, p")
	assert.Equal(t, "p", auth.FromRequest(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	assert.Empty(t, auth.FromRequest(r))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", auth.BearerToken("Bearer abc"))
	assert.Equal(t, "abc", auth.BearerToken("bearer abc"))
	assert.Empty(t, auth.BearerToken("Basic abc"))
	assert.Empty(t, auth.BearerToken("Bearer "))
	assert.Empty(t, auth.BearerToken(""))
}
