package http

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/pmajay-coordination/internal/application/workflow"
	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	"github.com/garyjia/pmajay-coordination/pkg/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps      Dependencies
	heartbeat time.Duration
	version   string
	logger    Logger

	// shutdown ends open event streams so graceful shutdown can finish
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, config ServerConfig, logger Logger) *Handlers {
	heartbeat := config.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Handlers{
		deps:      deps,
		heartbeat: heartbeat,
		version:   config.Version,
		logger:    logger,
		shutdown:  make(chan struct{}),
	}
}

func (h *Handlers) closeStreams() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	}
	status := http.StatusOK
	if h.deps.Health != nil {
		if err := h.deps.Health(c.Request.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// InitializeWorkflow handles POST /api/workflows
func (h *Handlers) InitializeWorkflow(c *gin.Context) {
	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.deps.Engine.Initialize(c.Request.Context(),
		utils.SanitizeString(req.ProjectID),
		utils.SanitizeString(req.ImplementingAgencyID))
	if err != nil {
		h.handleEngineError(c, err)
		return
	}
	h.writeResult(c, http.StatusCreated, result)
}

// ListWorkflows handles GET /api/workflows?agency_id=
func (h *Handlers) ListWorkflows(c *gin.Context) {
	states, err := h.deps.Engine.ListWorkflows(c.Request.Context(), workflow.ListFilter{
		AgencyID: c.Query("agency_id"),
	})
	if err != nil {
		h.handleEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: nonNilStates(states)})
}

// GetStats handles GET /api/workflows/stats
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.deps.Engine.GetStats(c.Request.Context())
	if err != nil {
		h.handleEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

// ExportWorkflows handles GET /api/workflows/export?agency_id=
func (h *Handlers) ExportWorkflows(c *gin.Context) {
	var buf bytes.Buffer
	filter := workflow.ListFilter{AgencyID: c.Query("agency_id")}
	if err := h.deps.Reports.WriteWorkbook(c.Request.Context(), &buf, filter); err != nil {
		h.handleEngineError(c, err)
		return
	}

	name := fmt.Sprintf("workflows-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// GetWorkflow handles GET /api/workflows/:projectId
func (h *Handlers) GetWorkflow(c *gin.Context) {
	state, err := h.deps.Engine.GetWorkflow(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		h.handleEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: state})
}

// ListMessages handles GET /api/workflows/:projectId/messages
func (h *Handlers) ListMessages(c *gin.Context) {
	projectID := c.Param("projectId")
	if _, err := h.deps.Engine.GetWorkflow(c.Request.Context(), projectID); err != nil {
		h.handleEngineError(c, err)
		return
	}

	messages, err := h.deps.Notifications.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		h.logger.Error("Failed to list messages", "project_id", projectID, "error", err)
		writeProblem(c, http.StatusServiceUnavailable, string(workflow.KindUnavailable), "failed to load messages")
		return
	}
	if messages == nil {
		messages = []*entity.Notification{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: messages})
}

// Approve handles POST /api/workflows/:projectId/approve
func (h *Handlers) Approve(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.deps.Engine.Approve(c.Request.Context(), c.Param("projectId"),
		req.AgencyID, utils.SanitizeString(req.Notes))
	if err != nil {
		h.handleEngineError(c, err)
		return
	}
	h.writeResult(c, http.StatusOK, result)
}

// Reject handles POST /api/workflows/:projectId/reject
func (h *Handlers) Reject(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.deps.Engine.Reject(c.Request.Context(), c.Param("projectId"),
		req.AgencyID, utils.SanitizeString(req.Notes))
	if err != nil {
		h.handleEngineError(c, err)
		return
	}
	h.writeResult(c, http.StatusOK, result)
}

// StartExecution handles POST /api/workflows/:projectId/start
func (h *Handlers) StartExecution(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.deps.Engine.StartExecution(c.Request.Context(), c.Param("projectId"), req.AgencyID)
	if err != nil {
		h.handleEngineError(c, err)
		return
	}
	h.writeResult(c, http.StatusOK, result)
}

// UpdateProgress handles POST /api/workflows/:projectId/progress
func (h *Handlers) UpdateProgress(c *gin.Context) {
	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.deps.Engine.UpdateProgress(c.Request.Context(), c.Param("projectId"), req.AgencyID,
		workflow.ProgressInput{
			Completion: *req.Completion,
			Summary:    utils.SanitizeString(req.Summary),
		})
	if err != nil {
		h.handleEngineError(c, err)
		return
	}
	h.writeResult(c, http.StatusOK, result)
}

// Complete handles POST /api/workflows/:projectId/complete
func (h *Handlers) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.deps.Engine.Complete(c.Request.Context(), c.Param("projectId"),
		req.AgencyID, utils.SanitizeString(req.FinalReport))
	if err != nil {
		h.handleEngineError(c, err)
		return
	}
	h.writeResult(c, http.StatusOK, result)
}

// Resume handles POST /api/workflows/:projectId/resume
func (h *Handlers) Resume(c *gin.Context) {
	result, err := h.deps.Engine.Resume(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		h.handleEngineError(c, err)
		return
	}
	h.writeResult(c, http.StatusOK, result)
}

// ListPending handles GET /api/agencies/:agencyId/pending
func (h *Handlers) ListPending(c *gin.Context) {
	states, err := h.deps.Engine.ListPending(c.Request.Context(), c.Param("agencyId"))
	if err != nil {
		h.handleEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: nonNilStates(states)})
}

// CreateAgency handles POST /api/agencies
func (h *Handlers) CreateAgency(c *gin.Context) {
	var req CreateAgencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	agency := &entity.Agency{
		ID:         utils.SanitizeString(req.ID),
		Name:       utils.SanitizeString(req.Name),
		Type:       entity.AgencyType(req.Type),
		Region:     utils.SanitizeString(req.Region),
		ChatOpenID: utils.SanitizeString(req.ChatOpenID),
	}

	ctx := c.Request.Context()
	existing, err := h.deps.Agencies.GetByID(ctx, agency.ID)
	if err != nil {
		h.logger.Error("Failed to look up agency", "agency_id", agency.ID, "error", err)
		writeProblem(c, http.StatusServiceUnavailable, string(workflow.KindUnavailable), "agency directory unavailable")
		return
	}
	if existing != nil {
		writeProblem(c, http.StatusConflict, string(workflow.KindConflict), "agency "+agency.ID+" already exists")
		return
	}

	if err := h.deps.Agencies.Create(ctx, agency); err != nil {
		h.logger.Error("Failed to create agency", "agency_id", agency.ID, "error", err)
		writeProblem(c, http.StatusServiceUnavailable, string(workflow.KindUnavailable), "failed to create agency")
		return
	}

	h.logger.Info("Agency registered", "agency_id", agency.ID, "type", agency.Type, "region", agency.Region)
	c.JSON(http.StatusCreated, Response{Success: true, Data: agency})
}

// ListAgencies handles GET /api/agencies?type=&region=&limit=
func (h *Handlers) ListAgencies(c *gin.Context) {
	var req ListAgenciesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	agencies, err := h.deps.Agencies.FindAll(c.Request.Context(), entity.AgencyCriteria{
		Type:   entity.AgencyType(req.Type),
		Region: req.Region,
	}, req.Limit)
	if err != nil {
		h.logger.Error("Failed to list agencies", "error", err)
		writeProblem(c, http.StatusServiceUnavailable, string(workflow.KindUnavailable), "agency directory unavailable")
		return
	}
	if agencies == nil {
		agencies = []*entity.Agency{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: agencies})
}

func (h *Handlers) writeResult(c *gin.Context, status int, result *workflow.Result) {
	c.JSON(status, Response{
		Success: true,
		Data: TransitionResponse{
			Workflow:        result.State,
			NotificationIDs: result.NotificationIDs,
		},
		Warnings: result.Warnings,
	})
}

func nonNilStates(states []*entity.WorkflowState) []*entity.WorkflowState {
	if states == nil {
		return []*entity.WorkflowState{}
	}
	return states
}
