package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/phonginreallife/oncall-notifier/db"
	"github.com/phonginreallife/oncall-notifier/services"
	"github.com/phonginreallife/oncall-notifier/workers"
)

const maxTicketListLimit = 100

// CycleRunner is the scheduler as seen by the HTTP layer
type CycleRunner interface {
	RunCycle(ctx context.Context, trigger workers.Trigger) (*services.CycleResult, error)
	Stats() workers.WorkerStats
}

type TicketLister interface {
	ListRecent(ctx context.Context, limit int) ([]db.Ticket, error)
}

type TicketHandler struct {
	Worker  CycleRunner
	Tickets TicketLister
}

func NewTicketHandler(worker CycleRunner, tickets TicketLister) *TicketHandler {
	return &TicketHandler{
		Worker:  worker,
		Tickets: tickets,
	}
}

// RefreshTickets runs one ingestion cycle now. Returns 409 while another
// cycle is running.
func (h *TicketHandler) RefreshTickets(c *gin.Context) {
	// a client disconnect must not abort a cycle that is already sending SMS
	ctx := context.WithoutCancel(c.Request.Context())

	res, err := h.Worker.RunCycle(ctx, workers.TriggerManual)
	if errors.Is(err, workers.ErrCycleInProgress) {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": "A ticket refresh is already in progress",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	body := gin.H{
		"success":        res.Outcome == services.OutcomeOK,
		"message":        res.Message(),
		"outcome":        res.Outcome,
		"cycle_id":       res.CycleID,
		"last_check":     res.LastCheck,
		"ticket_count":   len(res.Introduced),
		"notified_count": res.Notified,
	}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// ListTickets returns the most recent tickets, newest first
func (h *TicketHandler) ListTickets(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTicketListLimit)
	}

	tickets, err := h.Tickets.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
		"total":   len(tickets),
	})
}

func (h *TicketHandler) WorkerStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Worker.Stats())
}
