package evolution

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestServer(t *testing.T) (*echo.Echo, string) {
	t.Helper()
	exportDir := filepath.Join(t.TempDir(), "exports")
	e := echo.New()
	NewHandler(newOrchestrator(t), exportDir).RegisterRoutes(e.Group("/api/v1"))
	return e, exportDir
}

func TestGetEvolution_OK(t *testing.T) {
	e, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+patientUUID+"/evolution", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body Report
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Identity == nil || len(body.Timeline) == 0 {
		t.Errorf("incomplete report: %+v", body)
	}
}

func TestGetEvolution_Unknown(t *testing.T) {
	e, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/nobody/evolution", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestExportEvolution_WritesFile(t *testing.T) {
	e, exportDir := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/"+patientUUID+"/evolution/export", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if filepath.Dir(body.Path) != exportDir {
		t.Errorf("export path %q outside %q", body.Path, exportDir)
	}
	if _, err := os.Stat(body.Path); err != nil {
		t.Errorf("exported file missing: %v", err)
	}
}
