package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockledger/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_jwt_secret_32_chars_minimum!"

func signToken(t *testing.T, secret, username string, dur time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "u-42", "username": username,
		"exp": time.Now().Add(dur).Unix(), "iat": time.Now().Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func identityRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Identity(testSecret))
	r.GET("/whoami", func(c *gin.Context) {
		actor := middleware.ActorFrom(c)
		if actor == nil {
			c.JSON(http.StatusOK, gin.H{"actor": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"actor": *actor})
	})
	return r
}

func get(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

// ── Identity ─────────────────────────────────────────────────────────────────

func TestIdentity_AnonymousPassesWithoutActor(t *testing.T) {
	w := get(identityRouter(), "/whoami", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"actor":null}`, w.Body.String())
}

func TestIdentity_ValidTokenSetsActor(t *testing.T) {
	tok := signToken(t, testSecret, "ama", time.Hour)
	w := get(identityRouter(), "/whoami", map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"actor":"ama"}`, w.Body.String())
}

func TestIdentity_FallsBackToSubject(t *testing.T) {
	tok := signToken(t, testSecret, "", time.Hour)
	w := get(identityRouter(), "/whoami", map[string]string{"Authorization": "Bearer " + tok})
	assert.JSONEq(t, `{"actor":"u-42"}`, w.Body.String())
}

func TestIdentity_RejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"expired":    "Bearer " + signToken(t, testSecret, "ama", -time.Second),
		"wrong key":  "Bearer " + signToken(t, "another_secret_entirely_different", "ama", time.Hour),
		"garbage":    "Bearer this.is.garbage",
		"not bearer": "Basic YWRtaW46YWRtaW4=",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			w := get(identityRouter(), "/whoami", map[string]string{"Authorization": header})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"detail"`)
		})
	}
}

// ── RequestID ────────────────────────────────────────────────────────────────

func TestRequestID_EchoesOrGenerates(t *testing.T) {
	r := identityRouter()

	w := get(r, "/whoami", map[string]string{middleware.RequestIDHeader: "till-7"})
	assert.Equal(t, "till-7", w.Header().Get(middleware.RequestIDHeader))

	w = get(r, "/whoami", nil)
	assert.Len(t, w.Header().Get(middleware.RequestIDHeader), 36)
}

// ── RateLimiter ──────────────────────────────────────────────────────────────

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RateLimiter(2, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, get(r, "/ping", nil).Code)
	assert.Equal(t, http.StatusNoContent, get(r, "/ping", nil).Code)
	w := get(r, "/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimiter_DisabledWithZeroLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RateLimiter(0, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, get(r, "/ping", nil).Code)
	}
}

// ── Recovery ─────────────────────────────────────────────────────────────────

func TestRecovery_HidesPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("pq: password authentication failed") })

	w := get(r, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

// ── ErrorHandler ─────────────────────────────────────────────────────────────

func TestErrorHandler_HidesCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler())
	r.GET("/fail", func(c *gin.Context) { _ = c.Error(errors.New("dial tcp 10.0.0.7:5432: connection refused")) })
	r.GET("/written", func(c *gin.Context) {
		c.JSON(http.StatusTeapot, gin.H{"detail": "already answered"})
		_ = c.Error(errors.New("late failure"))
	})

	w := get(r, "/fail", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"internal server error"}`, w.Body.String())

	w = get(r, "/written", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Contains(t, w.Body.String(), "already answered")
}

// ── CORS ─────────────────────────────────────────────────────────────────────

func TestCORS_AllowList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CORS([]string{"https://till.example.com/"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/ping", map[string]string{"Origin": "https://till.example.com"})
	assert.Equal(t, "https://till.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	w = get(r, "/ping", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://till.example.com")
	r.ServeHTTP(pre, req)
	assert.Equal(t, http.StatusNoContent, pre.Code)
	assert.Contains(t, pre.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}

func TestCORS_AnyOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, origins := range [][]string{nil, {"*"}} {
		r := gin.New()
		r.Use(middleware.CORS(origins))
		r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := get(r, "/ping", map[string]string{"Origin": "https://anywhere.example.com"})
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	}
}
