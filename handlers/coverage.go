package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phonginreallife/oncall-notifier/services"
)

type CoverageReporter interface {
	CoverageStatus(ctx context.Context) (*services.CoverageStatus, error)
}

type CoverageHandler struct {
	OnCall CoverageReporter
}

func NewCoverageHandler(onCall CoverageReporter) *CoverageHandler {
	return &CoverageHandler{OnCall: onCall}
}

// GetStatus reports whether now is inside business hours and who is on call
func (h *CoverageHandler) GetStatus(c *gin.Context) {
	status, err := h.OnCall.CoverageStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}
