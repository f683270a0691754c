package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func fail(context.Context) error { return errors.New("down") }

func TestRegistryStatus(t *testing.T) {
	tests := []struct {
		name     string
		build    func(r *CheckerRegistry)
		expected Status
	}{
		{"empty", func(r *CheckerRegistry) {}, StatusHealthy},
		{"all healthy", func(r *CheckerRegistry) {
			r.Register(NewFuncChecker("a", ok))
			r.RegisterOptional(NewFuncChecker("b", ok))
		}, StatusHealthy},
		{"optional failing", func(r *CheckerRegistry) {
			r.Register(NewFuncChecker("a", ok))
			r.RegisterOptional(NewFuncChecker("b", fail))
		}, StatusDegraded},
		{"required failing", func(r *CheckerRegistry) {
			r.Register(NewFuncChecker("a", fail))
			r.RegisterOptional(NewFuncChecker("b", fail))
		}, StatusUnhealthy},
		{"required failing after degraded", func(r *CheckerRegistry) {
			r.RegisterOptional(NewFuncChecker("b", fail))
			r.Register(NewFuncChecker("a", fail))
		}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			tt.build(r)
			assert.Equal(t, tt.expected, r.Check(context.Background()).Status)
		})
	}
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := NewCheckerRegistry()
	r.Register(NewFuncChecker("filter_sets", fail))

	engine := gin.New()
	engine.GET("/health", Handler(r))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var h Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, StatusUnhealthy, h.Checks["filter_sets"].Status)
	assert.Equal(t, "down", h.Checks["filter_sets"].Message)
}

func TestPostgreSQLChecker(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("refused"))

	c := NewPostgreSQLChecker(db)
	assert.Equal(t, "postgresql", c.Name())
	assert.NoError(t, c.Check(context.Background()))
	assert.ErrorContains(t, c.Check(context.Background()), "postgresql ping failed")
}

func TestKafkaCheckerWithoutBrokers(t *testing.T) {
	assert.Error(t, NewKafkaChecker(nil).Check(context.Background()))
}
