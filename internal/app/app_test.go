package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/auth"
	"github.com/spec-kit/change-service/internal/config"
)

type testServer struct {
	app    *App
	server *fiber.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SEED_FILE", "../../configs/seed.example.yaml")
	t.Setenv("APPROVAL_ENFORCE_ROLES", "true")
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("AUTH_ISSUER", "change-service-test")

	cfg, err := config.Parse()
	require.NoError(t, err)
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return &testServer{app: a, server: a.HTTP()}
}

func (s *testServer) token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	token, _, err := s.app.Tokens.GenerateToken(subject, "acme", roles)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && resp.Header.Get("Content-Type") == fiber.MIMEApplicationJSON {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (s *testServer) categoryID(t *testing.T, token, name string) string {
	t.Helper()
	status, body := s.do(t, http.MethodGet, "/api/v1/settings/creation-options", token, nil)
	require.Equal(t, http.StatusOK, status)
	for _, raw := range data(t, body)["categories"].([]any) {
		c := raw.(map[string]any)
		if c["name"] == name {
			return c["id"].(string)
		}
	}
	t.Fatalf("category %q not seeded", name)
	return ""
}

func TestPinnedWorkflowApprovalOverHTTP(t *testing.T) {
	s := newTestServer(t)
	requester := s.token(t, "rita")
	network := s.categoryID(t, requester, "Network")

	status, body := s.do(t, http.MethodPost, "/api/v1/changes", requester, map[string]any{
		"title":      "Replace core switch",
		"categoryId": network,
	})
	require.Equal(t, http.StatusCreated, status, body)
	created := data(t, body)
	id := created["id"].(string)
	assert.Equal(t, "CHG-000001", created["changeNumber"])
	assert.Equal(t, "pending_approval", created["status"])
	assert.Equal(t, "High risk", created["workflow"].(map[string]any)["name"])
	assert.EqualValues(t, 1, created["currentStep"])

	status, body = s.do(t, http.MethodPost, "/api/v1/changes/"+id+"/approve", s.token(t, "mallory"), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/v1/changes/"+id+"/approve", s.token(t, "bob"), map[string]any{"reason": "looks fine"})
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 3, data(t, body)["currentStep"])

	carol := s.token(t, "carol")
	for i := 0; i < 2; i++ {
		status, body = s.do(t, http.MethodPost, "/api/v1/changes/"+id+"/approve", carol, nil)
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, "pending_approval", data(t, body)["status"])
	}

	status, body = s.do(t, http.MethodPost, "/api/v1/changes/"+id+"/approve", s.token(t, "dave"), nil)
	require.Equal(t, http.StatusOK, status, body)
	approved := data(t, body)
	assert.Equal(t, "approved", approved["status"])
	assert.Equal(t, "dave", approved["approvedBy"])

	status, body = s.do(t, http.MethodGet, "/api/v1/changes/"+id+"/approvals", requester, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"].([]any), 3)

	status, body = s.do(t, http.MethodGet, "/api/v1/changes/"+id+"/progress", requester, nil)
	require.Equal(t, http.StatusOK, status)
	steps := data(t, body)["steps"].([]any)
	require.Len(t, steps, 3)
	assert.Equal(t, true, steps[1].(map[string]any)["skipped"])

	status, body = s.do(t, http.MethodPost, "/api/v1/changes/"+id+"/start", requester, nil)
	require.Equal(t, http.StatusOK, status, body)
	status, body = s.do(t, http.MethodPost, "/api/v1/changes/"+id+"/complete", requester, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "completed", data(t, body)["status"])

	status, body = s.do(t, http.MethodPost, "/api/v1/changes/"+id+"/start", requester, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(body))
}

func TestRejectRequiresReason(t *testing.T) {
	s := newTestServer(t)
	requester := s.token(t, "rita")
	status, body := s.do(t, http.MethodPost, "/api/v1/changes", requester, map[string]any{"title": "Rotate keys"})
	require.Equal(t, http.StatusCreated, status, body)
	id := data(t, body)["id"].(string)

	alice := s.token(t, "alice")
	status, body = s.do(t, http.MethodPost, "/api/v1/changes/"+id+"/reject", alice, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/v1/changes/"+id+"/reject", alice, map[string]any{"reason": "no rollback plan"})
	require.Equal(t, http.StatusOK, status, body)
	rejected := data(t, body)
	assert.Equal(t, "rejected", rejected["status"])
	assert.Equal(t, "no rollback plan", rejected["rejectionReason"])
}

func TestCreateValidationErrors(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodPost, "/api/v1/changes", s.token(t, "rita"), map[string]any{
		"riskLevel":    "extreme",
		"impactScores": map[string]any{"business": 140},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "title")
	assert.Contains(t, details, "riskLevel")
}

func TestSettingsWritesRequireAdminRole(t *testing.T) {
	s := newTestServer(t)
	category := map[string]any{"name": "Database", "requiresApproval": true}

	status, body := s.do(t, http.MethodPost, "/api/v1/settings/categories", s.token(t, "rita"), category)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	admin := s.token(t, "ops", auth.RoleSettingsAdmin)
	status, body = s.do(t, http.MethodPost, "/api/v1/settings/categories", admin, category)
	require.Equal(t, http.StatusCreated, status, body)
	id := data(t, body)["id"].(string)

	status, body = s.do(t, http.MethodPost, "/api/v1/settings/categories", admin, category)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_NAME", errorCode(body))

	status, _ = s.do(t, http.MethodDelete, "/api/v1/settings/categories/"+id, admin, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, body = s.do(t, http.MethodGet, "/api/v1/settings/categories/"+id, admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestTenantsAreIsolated(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodPost, "/api/v1/changes", s.token(t, "rita"), map[string]any{"title": "Rotate keys"})
	require.Equal(t, http.StatusCreated, status, body)
	id := data(t, body)["id"].(string)

	other, _, err := s.app.Tokens.GenerateToken("rita", "globex", nil)
	require.NoError(t, err)
	status, _ = s.do(t, http.MethodGet, "/api/v1/changes/"+id, other, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.do(t, http.MethodGet, "/api/v1/changes/pending-approval", other, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["data"])
}

func TestUnauthenticatedAndUnknownRoutes(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/api/v1/changes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = s.do(t, http.MethodGet, "/api/v1/changes", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = s.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"store": "ok"}, body["dependencies"])

	s.do(t, http.MethodGet, "/api/v1/changes", s.token(t, "rita"), nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.server.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "change_service_http_requests_total")
}

func TestRiskPreviewUsesSeededMatrix(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodPost, "/api/v1/changes/risk-preview", s.token(t, "rita"), map[string]any{
		"impactScores": map[string]any{"business": 90, "technical": 80, "user": 70, "compliance": 60},
	})
	require.Equal(t, http.StatusOK, status, body)
	preview := data(t, body)
	assert.InDelta(t, 77, preview["riskScore"], 0.001)
	assert.Equal(t, "critical", preview["riskLevel"])
}
