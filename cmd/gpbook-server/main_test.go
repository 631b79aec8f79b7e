package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpbook/gpbook/internal/config"
	"github.com/gpbook/gpbook/internal/domain/booking"
	"github.com/gpbook/gpbook/internal/platform/auth"
	"github.com/gpbook/gpbook/internal/platform/db"
	"github.com/gpbook/gpbook/internal/platform/middleware"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "REDIS_URL", "SIGNING_KEY", "SIGNING_KEY_FILE", "ADMIN_TOKEN_SECRET"} {
		t.Setenv(k, "")
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	a, err := buildApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return newRouter(cfg, a, zerolog.Nop())
}

func serve(h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuildApp_DemoWithoutDatabase(t *testing.T) {
	cfg := testConfig(t)
	a, err := buildApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.pool)
	p, err := a.directory.Lookup(context.Background(), "a12345")
	require.NoError(t, err)
	assert.Equal(t, "A12345", p.Code)
}

func TestBuildApp_RejectsUnknownChannel(t *testing.T) {
	cfg := testConfig(t)
	cfg.NotificationChannels = []string{"pager"}
	_, err := buildApp(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "NOTIFICATION_CHANNELS")
}

func TestRouter_Health(t *testing.T) {
	h := newTestRouter(t, testConfig(t))

	rec := serve(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = serve(h, http.MethodGet, "/health/db", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_configured")
}

func TestRouter_NotFoundIsJSON(t *testing.T) {
	h := newTestRouter(t, testConfig(t))

	rec := serve(h, http.MethodGet, "/api/v1/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body middleware.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	assert.Equal(t, rec.Header().Get(middleware.RequestIDHeader), body.TraceID)
}

func TestRouter_AdminRoutesRequireSecret(t *testing.T) {
	h := newTestRouter(t, testConfig(t))
	rec := serve(h, http.MethodPost, "/api/v1/admin/practices", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AdminAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminTokenSecret = "test-admin-secret"
	h := newTestRouter(t, cfg)

	rec := serve(h, http.MethodPost, "/api/v1/admin/practices", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	viewer, err := auth.IssueToken([]byte(cfg.AdminTokenSecret), "viewer", []string{"viewer"}, time.Minute)
	require.NoError(t, err)
	rec = serve(h, http.MethodPost, "/api/v1/admin/practices", viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin, err := auth.IssueToken([]byte(cfg.AdminTokenSecret), "operator", []string{auth.RoleAdmin}, time.Minute)
	require.NoError(t, err)
	rec = serve(h, http.MethodPost, "/api/v1/admin/practices", admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestRouter_AvailabilityInDemoMode(t *testing.T) {
	h := newTestRouter(t, testConfig(t))

	rec := serve(h, http.MethodGet, "/api/v1/availability?practiceCode=A12345", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Total)
}

func TestRouter_BookInDemoMode(t *testing.T) {
	h := newTestRouter(t, testConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(
		`{"patientId":"9876543210","practiceCode":"A12345","duration":15,"reason":"Annual health check"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res booking.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEqual(t, uuid.Nil, res.BookingID)
	assert.True(t, res.Simulated)
	require.NotNil(t, res.Appointment)
	assert.Equal(t, 15*time.Minute, res.Appointment.End.Sub(res.Appointment.Start))
	require.Len(t, res.Notifications, 2)
	for _, o := range res.Notifications {
		assert.True(t, o.Success, "%s: %s", o.Channel, o.Error)
	}
}

func TestRouter_BookingRecordsRequireAdmin(t *testing.T) {
	const recordID = "7d3c8f5e-1b2a-4c9d-8e7f-6a5b4c3d2e1f"

	t.Run("not mounted without secret", func(t *testing.T) {
		h := newTestRouter(t, testConfig(t))
		for _, target := range []string{"/api/v1/bookings?practiceCode=A12345", "/api/v1/admin/bookings?practiceCode=A12345"} {
			rec := serve(h, http.MethodGet, target, "")
			assert.NotEqual(t, http.StatusOK, rec.Code, target)
		}
		rec := serve(h, http.MethodDelete, "/api/v1/bookings/"+recordID, "")
		assert.NotEqual(t, http.StatusOK, rec.Code)
	})

	t.Run("anonymous is rejected", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AdminTokenSecret = "test-admin-secret"
		h := newTestRouter(t, cfg)

		assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/v1/admin/bookings?practiceCode=A12345", "").Code)
		assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/v1/admin/bookings/"+recordID, "").Code)
		assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodDelete, "/api/v1/admin/bookings/"+recordID, "").Code)
		assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/v1/admin/audit?traceId=t", "").Code)
		assert.NotEqual(t, http.StatusOK, serve(h, http.MethodGet, "/api/v1/bookings?practiceCode=A12345", "").Code)
		assert.NotEqual(t, http.StatusOK, serve(h, http.MethodDelete, "/api/v1/bookings/"+recordID, "").Code)
	})

	t.Run("operator sees full record", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AdminTokenSecret = "test-admin-secret"
		h := newTestRouter(t, cfg)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(
			`{"patientId":"9876543210","practiceCode":"A12345","reason":"Annual health check"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res booking.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

		viewer, err := auth.IssueToken([]byte(cfg.AdminTokenSecret), "viewer", []string{"viewer"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, serve(h, http.MethodGet, "/api/v1/admin/bookings?practiceCode=A12345", viewer).Code)

		admin, err := auth.IssueToken([]byte(cfg.AdminTokenSecret), "operator", []string{auth.RoleAdmin}, time.Minute)
		require.NoError(t, err)
		rec = serve(h, http.MethodGet, "/api/v1/admin/bookings/"+res.BookingID.String(), admin)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var b booking.Booking
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
		assert.Equal(t, "9876543210", b.PatientID)

		rec = serve(h, http.MethodDelete, "/api/v1/admin/bookings/"+res.BookingID.String(), admin)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// No database, so nothing to read the trail from.
		rec = serve(h, http.MethodGet, "/api/v1/admin/audit?traceId=t", admin)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestMigrationsDir(t *testing.T) {
	cfg := &config.Config{MigrationsDir: "migrations"}

	cmd := &cobra.Command{}
	cmd.Flags().String("dir", "", "")
	assert.Equal(t, "migrations", migrationsDir(cmd, cfg))

	require.NoError(t, cmd.Flags().Set("dir", "/srv/migrations"))
	assert.Equal(t, "/srv/migrations", migrationsDir(cmd, cfg))
}

func TestPrintStatuses(t *testing.T) {
	applied := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	printStatuses(cmd, []db.MigrationStatus{
		{Version: 1, Name: "practices", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "bookings"},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "applied")
	assert.Contains(t, lines[2], "2026-03-01 09:30:00")
	assert.Contains(t, lines[3], "pending")
}

func TestRouter_RejectsPathTraversal(t *testing.T) {
	h := newTestRouter(t, testConfig(t))
	rec := serve(h, http.MethodGet, "/api/v1/practices/..%2f..%2fetc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
