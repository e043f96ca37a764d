package router

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	"github.com/phonginreallife/oncall-notifier/handlers"
)

// Deps are the services the HTTP surface reads from
type Deps struct {
	PG       *sql.DB
	Worker   handlers.CycleRunner
	Tickets  handlers.TicketLister
	Coverage handlers.CoverageReporter
}

func NewGinRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	healthHandler := handlers.NewHealthHandler(deps.PG)
	ticketHandler := handlers.NewTicketHandler(deps.Worker, deps.Tickets)
	coverageHandler := handlers.NewCoverageHandler(deps.Coverage)

	r.GET("/health", healthHandler.Health)

	r.POST("/refresh-tickets", ticketHandler.RefreshTickets)
	r.GET("/tickets", ticketHandler.ListTickets)
	r.GET("/worker/stats", ticketHandler.WorkerStats)

	r.GET("/business-hours/status", coverageHandler.GetStatus)

	return r
}
