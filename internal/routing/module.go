// Package routing provides the lead routing bounded context module.
package routing

import (
	"netimob_lead_router/internal/events"
	"netimob_lead_router/internal/routing/handler"
	"netimob_lead_router/internal/routing/repository"
	"netimob_lead_router/internal/routing/service"
	"netimob_lead_router/platform/config"
	"netimob_lead_router/platform/logger"
	"netimob_lead_router/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the routing bounded context module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates and wires the routing module.
func NewModule(pool *pgxpool.Pool, bus events.Bus, enqueuer handler.SweepEnqueuer, val *validator.Validator, cfg *config.Config, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, repo, repo, repo, repo, bus, log, cfg.GetSweepBatchSize())
	h := handler.New(svc, enqueuer, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "routing"
}

// Service returns the service layer for the scheduler and worker binaries.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts routing routes on the provided group.
func (m *Module) RegisterRoutes(rg *gin.RouterGroup) {
	routing := rg.Group("/routing")
	routing.POST("/sweeps", m.handler.TriggerSweep)
	routing.POST("/sweeps/async", m.handler.TriggerSweepAsync)
	routing.POST("/leads/:id/route", m.handler.RouteLead)
	routing.POST("/leads/:id/assign", m.handler.AssignLead)
	routing.POST("/assignments/:id/accept", m.handler.AcceptAssignment)
	routing.POST("/assignments/:id/reject", m.handler.RejectAssignment)
	routing.GET("/parameters", m.handler.GetParameters)
}
