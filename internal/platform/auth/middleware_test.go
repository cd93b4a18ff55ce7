package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func invoke(t *testing.T, secret, authHeader string) (error, *echo.Echo) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	return Middleware(secret)(handler)(c), e
}

func TestMiddleware_DisabledWithoutSecret(t *testing.T) {
	if err, _ := invoke(t, "", ""); err != nil {
		t.Fatalf("expected pass-through without a secret, got %v", err)
	}
}

func TestMiddleware_RejectsMissingToken(t *testing.T) {
	err, _ := invoke(t, testSecret, "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestMiddleware_RejectsWrongSecret(t *testing.T) {
	token, err := IssueToken("another-secret-that-is-long-enough", "svc", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	mwErr, _ := invoke(t, testSecret, "Bearer "+token)
	httpErr, ok := mwErr.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", mwErr)
	}
}

func TestMiddleware_AcceptsValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, "reporting-service", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if mwErr, _ := invoke(t, testSecret, "Bearer "+token); mwErr != nil {
		t.Fatalf("unexpected error: %v", mwErr)
	}
}

func TestMiddleware_StoresSubject(t *testing.T) {
	token, err := IssueToken(testSecret, "reporting-service", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if sub, _ := c.Get(ContextSubjectKey).(string); sub != "reporting-service" {
			t.Errorf("subject = %q", sub)
		}
		return c.String(http.StatusOK, "ok")
	}
	if err := Middleware(testSecret)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
