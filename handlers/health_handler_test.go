package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/portal/repositories/postgres"
	"go.uber.org/zap"
)

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.HandleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	data := response["data"].(map[string]interface{})
	assert.Equal(t, "healthy", data["status"])
	assert.NotEmpty(t, data["timestamp"])
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	readiness := func(t *testing.T, h *HealthHandler) (int, map[string]interface{}) {
		t.Helper()
		w := httptest.NewRecorder()
		h.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		return w.Code, response["data"].(map[string]interface{})
	}

	t.Run("healthy with no dependencies", func(t *testing.T) {
		code, data := readiness(t, NewHealthHandler(logger))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", data["status"])
	})

	t.Run("all dependencies healthy", func(t *testing.T) {
		code, data := readiness(t, NewHealthHandler(logger,
			DependencyCheck{Name: "identity", Probe: ok},
			DependencyCheck{Name: "redis", Probe: ok}))

		assert.Equal(t, http.StatusOK, code)
		checks := data["checks"].(map[string]interface{})
		assert.Equal(t, "healthy", checks["identity"])
		assert.Equal(t, "healthy", checks["redis"])
	})

	t.Run("one dependency down", func(t *testing.T) {
		code, data := readiness(t, NewHealthHandler(logger,
			DependencyCheck{Name: "identity", Probe: down},
			DependencyCheck{Name: "redis", Probe: ok}))

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", data["status"])
		checks := data["checks"].(map[string]interface{})
		assert.Equal(t, "unhealthy", checks["identity"])
		assert.Equal(t, "healthy", checks["redis"])
	})

	t.Run("database probe", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer sqlDB.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		db := postgres.Wrap(sqlDB, logger)
		code, data := readiness(t, NewHealthHandler(logger, DependencyCheck{Name: "database", Probe: db.HealthCheck}))

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", data["checks"].(map[string]interface{})["database"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database ping fails", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer sqlDB.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		db := postgres.Wrap(sqlDB, logger)
		code, _ := readiness(t, NewHealthHandler(logger, DependencyCheck{Name: "database", Probe: db.HealthCheck}))

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
