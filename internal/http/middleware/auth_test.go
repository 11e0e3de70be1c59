// README: Tests for session auth middleware and role gates.
package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"spaeti/internal/auth"
	"spaeti/internal/http/middleware"
)

const testSecret = "test-secret"

func signToken(t *testing.T, subject, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func newTestRouter(roles ...auth.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/", middleware.Auth(testSecret))
	if len(roles) > 0 {
		group = group.Group("/", middleware.RequireRole(roles...))
	}
	group.GET("/test", func(c *gin.Context) {
		p, _ := auth.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"id": p.ID, "role": p.Role})
	})
	return r
}

func doRequest(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingHeader(t *testing.T) {
	w := doRequest(newTestRouter(), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_InvalidBearerPrefix(t *testing.T) {
	w := doRequest(newTestRouter(), "Token "+signToken(t, "42", "customer"))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_BadSignature(t *testing.T) {
	claims := jwt.MapClaims{"sub": "42", "role": "customer", "exp": time.Now().Add(time.Hour).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	w := doRequest(newTestRouter(), "Bearer "+tok)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	claims := jwt.MapClaims{"sub": "42", "role": "customer", "exp": time.Now().Add(-time.Hour).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	w := doRequest(newTestRouter(), "Bearer "+tok)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_UnknownRole(t *testing.T) {
	w := doRequest(newTestRouter(), "Bearer "+signToken(t, "42", "superuser"))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	w := doRequest(newTestRouter(), "Bearer "+signToken(t, "42", "driver"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "42") || !strings.Contains(body, "driver") {
		t.Errorf("expected id and role in body, got %s", body)
	}
}

func TestRequireRole(t *testing.T) {
	r := newTestRouter(auth.RoleDriver, auth.RoleAdmin)

	if w := doRequest(r, "Bearer "+signToken(t, "7", "driver")); w.Code != http.StatusOK {
		t.Errorf("driver: expected 200, got %d", w.Code)
	}
	if w := doRequest(r, "Bearer "+signToken(t, "8", "admin")); w.Code != http.StatusOK {
		t.Errorf("admin: expected 200, got %d", w.Code)
	}
	if w := doRequest(r, "Bearer "+signToken(t, "9", "customer")); w.Code != http.StatusForbidden {
		t.Errorf("customer: expected 403, got %d", w.Code)
	}
}
