package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/phonginreallife/oncall-notifier/db"
	"github.com/phonginreallife/oncall-notifier/services"
	"github.com/phonginreallife/oncall-notifier/workers"
)

type stubRunner struct{}

func (stubRunner) RunCycle(context.Context, workers.Trigger) (*services.CycleResult, error) {
	return nil, workers.ErrCycleInProgress
}

func (stubRunner) Stats() workers.WorkerStats { return workers.WorkerStats{Runs: 2} }

type stubTickets struct{}

func (stubTickets) ListRecent(context.Context, int) ([]db.Ticket, error) { return []db.Ticket{}, nil }

type stubCoverage struct{}

func (stubCoverage) CoverageStatus(context.Context) (*services.CoverageStatus, error) {
	return &services.CoverageStatus{Timezone: "UTC", OnCall: []db.Technician{}}, nil
}

func TestNewGinRouter_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewGinRouter(Deps{Worker: stubRunner{}, Tickets: stubTickets{}, Coverage: stubCoverage{}})

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodPost, "/refresh-tickets", http.StatusConflict},
		{http.MethodGet, "/tickets", http.StatusOK},
		{http.MethodGet, "/worker/stats", http.StatusOK},
		{http.MethodGet, "/business-hours/status", http.StatusOK},
		{http.MethodGet, "/refresh-tickets", http.StatusNotFound},
		{http.MethodOptions, "/tickets", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, tt.path, nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
