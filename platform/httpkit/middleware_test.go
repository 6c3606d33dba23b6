package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pipeline_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type stubPublicConfig struct {
	credentialHash string
}

func (s stubPublicConfig) GetAppBaseURL() string            { return "http://localhost:3000" }
func (s stubPublicConfig) GetServiceCredentialHash() string { return s.credentialHash }
func (s stubPublicConfig) GetPublicLinkTTL() time.Duration  { return 14 * 24 * time.Hour }

func newLimitedEngine(limiter *PublicRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/book", limiter.RateLimit(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return engine
}

func doBook(engine *gin.Engine, remoteAddr, credential string) int {
	req := httptest.NewRequest(http.MethodPost, "/book", nil)
	req.RemoteAddr = remoteAddr
	if credential != "" {
		req.Header.Set(ServiceCredentialHeader, credential)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec.Code
}

func TestPublicRateLimitThrottlesSixthRequest(t *testing.T) {
	limiter := NewPublicRateLimiter(stubPublicConfig{}, logger.New("development"))
	engine := newLimitedEngine(limiter)

	for i := 0; i < 5; i++ {
		if code := doBook(engine, "203.0.113.7:4000", ""); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := doBook(engine, "203.0.113.7:4000", ""); code != http.StatusTooManyRequests {
		t.Fatalf("sixth request: expected 429, got %d", code)
	}

	// Other clients keep their own budget.
	if code := doBook(engine, "203.0.113.8:4000", ""); code != http.StatusOK {
		t.Fatalf("different IP: expected 200, got %d", code)
	}
}

func TestPublicRateLimitServiceCredentialBypass(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("internal-tooling-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	limiter := NewPublicRateLimiter(stubPublicConfig{credentialHash: string(hash)}, logger.New("development"))
	engine := newLimitedEngine(limiter)

	for i := 0; i < 5; i++ {
		if code := doBook(engine, "203.0.113.9:4000", ""); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := doBook(engine, "203.0.113.9:4000", ""); code != http.StatusTooManyRequests {
		t.Fatalf("expected limiter exhausted, got %d", code)
	}

	if code := doBook(engine, "203.0.113.9:4000", "internal-tooling-secret"); code != http.StatusOK {
		t.Fatalf("valid credential must bypass an exhausted limiter, got %d", code)
	}
	if code := doBook(engine, "203.0.113.9:4000", "wrong-secret"); code != http.StatusTooManyRequests {
		t.Fatalf("invalid credential must not bypass the limiter, got %d", code)
	}
}

func TestCredentialBypassDisabledWithoutHash(t *testing.T) {
	limiter := NewPublicRateLimiter(stubPublicConfig{}, logger.New("development"))
	if limiter.hasValidCredential("anything") {
		t.Fatalf("credential check must fail closed when no hash is configured")
	}
	if limiter.hasValidCredential("") {
		t.Fatalf("empty credential must never validate")
	}
}
