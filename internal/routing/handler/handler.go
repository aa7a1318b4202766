// Package handler exposes the routing trigger API.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"netimob_lead_router/internal/routing/service"
	"netimob_lead_router/internal/routing/transport"
	"netimob_lead_router/platform/httpkit"
	"netimob_lead_router/platform/validator"
)

// SweepEnqueuer schedules a sweep for asynchronous execution.
type SweepEnqueuer interface {
	EnqueueSweep(triggeredBy string) (taskID, queue string, err error)
}

// Handler handles HTTP requests for the routing engine.
type Handler struct {
	svc      *service.Service
	enqueuer SweepEnqueuer
	val      *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead id"
	msgInvalidBrokerID  = "invalid broker id"

	msgInvalidAssignmentID = "invalid assignment id"
)

// New creates a new routing handler.
func New(svc *service.Service, enqueuer SweepEnqueuer, val *validator.Validator) *Handler {
	return &Handler{svc: svc, enqueuer: enqueuer, val: val}
}

// TriggerSweep runs a sweep synchronously and returns its summary.
// POST /api/v1/routing/sweeps
func (h *Handler) TriggerSweep(c *gin.Context) {
	summary, err := h.svc.Sweep(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}

// TriggerSweepAsync enqueues a sweep task and returns its id.
// POST /api/v1/routing/sweeps/async
func (h *Handler) TriggerSweepAsync(c *gin.Context) {
	var req transport.SweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}

	taskID, queue, err := h.enqueuer.EnqueueSweep(req.TriggeredBy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Accepted(c, transport.AsyncSweepResponse{TaskID: taskID, Queue: queue})
}

// RouteLead performs intake routing for one lead.
// POST /api/v1/routing/leads/:id/route
func (h *Handler) RouteLead(c *gin.Context) {
	leadID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || leadID <= 0 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}

	result, err := h.svc.RouteNewLead(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// AssignLead pins a lead to an operator-chosen broker.
// POST /api/v1/routing/leads/:id/assign
func (h *Handler) AssignLead(c *gin.Context) {
	leadID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || leadID <= 0 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}

	var req transport.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	brokerID, err := uuid.Parse(req.BrokerID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidBrokerID, nil)
		return
	}

	result, err := h.svc.AssignLead(c.Request.Context(), leadID, brokerID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// AcceptAssignment records a broker taking an offer.
// POST /api/v1/routing/assignments/:id/accept
func (h *Handler) AcceptAssignment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidAssignmentID, nil)
		return
	}

	if httpkit.HandleError(c, h.svc.AcceptAssignment(c.Request.Context(), id)) {
		return
	}
	httpkit.OK(c, gin.H{"status": "accepted"})
}

// RejectAssignment records a broker declining an offer and returns the
// re-routing outcome.
// POST /api/v1/routing/assignments/:id/reject
func (h *Handler) RejectAssignment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidAssignmentID, nil)
		return
	}

	result, err := h.svc.RejectAssignment(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetParameters returns the routing configuration snapshot.
// GET /api/v1/routing/parameters
func (h *Handler) GetParameters(c *gin.Context) {
	cfg, err := h.svc.Parameters(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ParametersResponse{
		ExternalSLAMinutes:       cfg.ExternalSLAMinutes,
		InternalSLAMinutes:       cfg.InternalSLAMinutes,
		ExternalFanOut:           cfg.ExternalFanOut,
		InternalFanOut:           cfg.InternalFanOut,
		OnCallEscalationEnabled:  cfg.OnCallEscalationEnabled,
		FixedBrokerRoutingExempt: cfg.FixedBrokerRoutingExempt,
	})
}
