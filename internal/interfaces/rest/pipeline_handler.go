package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erdflow/backend/internal/application/services"
	"github.com/erdflow/backend/internal/deploy"
	"github.com/erdflow/backend/internal/domain/metadata"
	"github.com/erdflow/backend/internal/generator"
	appErrors "github.com/erdflow/backend/pkg/errors"
)

// PipelineHandler exposes the diagram-to-deployment flow over HTTP.
type PipelineHandler struct {
	svc *services.PipelineService
}

// NewPipelineHandler creates the handler over the pipeline service.
func NewPipelineHandler(svc *services.PipelineService) *PipelineHandler {
	return &PipelineHandler{svc: svc}
}

// RegisterRoutes mounts all pipeline endpoints under the given group.
func (h *PipelineHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/diagram/parse", h.ParseDiagram)
	api.POST("/diagram/validate", h.ValidateDiagram)
	api.POST("/diagram/autofix", h.AutoFix)
	api.POST("/cdm/detect", h.DetectCDM)
	api.POST("/schema/generate", h.GenerateSchema)
	api.POST("/deploy", h.StartDeploy)
	api.GET("/deploy/:id", h.GetDeployment)
	api.POST("/deploy/:id/rollback", h.RollbackDeployment)
}

type diagramRequest struct {
	Diagram string `json:"diagram"`
}

// ParseDiagram handles POST /api/diagram/parse
func (h *PipelineHandler) ParseDiagram(c *gin.Context) {
	var req diagramRequest
	if !BindJSON(c, &req) {
		return
	}
	model, warnings, err := h.svc.ParseDiagram(req.Diagram)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"model":    model,
		"warnings": warnings,
	})
}

// ValidateDiagram handles POST /api/diagram/validate
func (h *PipelineHandler) ValidateDiagram(c *gin.Context) {
	var req diagramRequest
	if !BindJSON(c, &req) {
		return
	}
	issues, warnings, err := h.svc.ValidateDiagram(req.Diagram)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"issues":   issues,
		"warnings": warnings,
	})
}

// AutoFix handles POST /api/diagram/autofix. With an issueId the single
// issue is fixed; without one every fixable issue is resolved.
func (h *PipelineHandler) AutoFix(c *gin.Context) {
	var req struct {
		Diagram string `json:"diagram"`
		IssueID string `json:"issueId"`
	}
	if !BindJSON(c, &req) {
		return
	}

	if req.IssueID != "" {
		fixed, err := h.svc.AutoFixIssue(req.Diagram, req.IssueID)
		if err != nil {
			RespondAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"diagram": fixed})
		return
	}

	fixed, remaining, err := h.svc.AutoFixAll(req.Diagram)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"diagram":         fixed,
		"remainingIssues": remaining,
	})
}

// DetectCDM handles POST /api/cdm/detect
func (h *PipelineHandler) DetectCDM(c *gin.Context) {
	var req diagramRequest
	HandlePostEnvelope(c, "detection", &req, func() (interface{}, error) {
		return h.svc.DetectCDM(req.Diagram)
	})
}

// GenerateSchema handles POST /api/schema/generate
func (h *PipelineHandler) GenerateSchema(c *gin.Context) {
	var req struct {
		Diagram string `json:"diagram"`
		Prefix  string `json:"prefix"`
		Source  string `json:"source"`
		UseCDM  bool   `json:"useCdm"`
	}
	HandlePostEnvelope(c, "result", &req, func() (interface{}, error) {
		return h.svc.GenerateSchema(req.Diagram, generator.Options{
			Prefix: req.Prefix,
			Source: req.Source,
			UseCDM: req.UseCDM,
		})
	})
}

// StartDeploy handles POST /api/deploy. The deployment runs in the
// background; the response carries the tracking id.
func (h *PipelineHandler) StartDeploy(c *gin.Context) {
	var req struct {
		Document *metadata.Document `json:"document"`
		Config   deploy.Config      `json:"config"`
	}
	if !BindJSON(c, &req) {
		return
	}
	runID, err := h.svc.StartDeploy(req.Document, req.Config)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"runId": runID})
}

// GetDeployment handles GET /api/deploy/:id
func (h *PipelineHandler) GetDeployment(c *gin.Context) {
	HandleGetEnvelope(c, "run", func() (interface{}, error) {
		return h.svc.GetRun(c.Param("id"))
	})
}

// RollbackDeployment handles POST /api/deploy/:id/rollback
func (h *PipelineHandler) RollbackDeployment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		RespondAppError(c, appErrors.NewValidationError("id", "run id is required"))
		return
	}
	rollback, err := h.svc.RollbackRun(c.Request.Context(), id)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rollback": rollback})
}
