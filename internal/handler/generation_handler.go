package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/service"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

// GenerationHandler exposes the timetable generation endpoints.
type GenerationHandler struct {
	service *service.GenerationService
	exports *service.ExportService
}

// NewGenerationHandler constructs handler.
func NewGenerationHandler(svc *service.GenerationService, exports *service.ExportService) *GenerationHandler {
	return &GenerationHandler{service: svc, exports: exports}
}

// Generate godoc
// @Summary Generate a timetable from the posted teaching loads
// @Tags Generation
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /generation/runs [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	if req.Async {
		runID, err := h.service.Enqueue(req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusAccepted, dto.GenerationRunResponse{RunID: runID, Status: string(service.RunStatusQueued)}, nil)
		return
	}

	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GenerateFromYear godoc
// @Summary Generate a timetable from stored loads of an academic year
// @Tags Generation
// @Produce json
// @Param institutionId path string true "Institution ID"
// @Param yearId path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /institutions/{institutionId}/years/{yearId}/generation [post]
func (h *GenerationHandler) GenerateFromYear(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	req.InstitutionID = c.Param("institutionId")
	req.AcademicYearID = c.Param("yearId")

	result, err := h.service.GenerateFromYear(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RunState godoc
// @Summary Report the status of an async generation run
// @Tags Generation
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /generation/runs/{id} [get]
func (h *GenerationHandler) RunState(c *gin.Context) {
	state, err := h.service.RunStateByID(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// ValidateWorkload godoc
// @Summary Validate teaching loads without generating a timetable
// @Tags Generation
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /generation/workload/validate [post]
func (h *GenerationHandler) ValidateWorkload(c *gin.Context) {
	var req dto.ValidateWorkloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	report, err := h.service.ValidateWorkload(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Analyze godoc
// @Summary Predict outcome quality for a session set
// @Tags Generation
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /generation/analyze [post]
func (h *GenerationHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	prediction, err := h.service.Analyze(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prediction, nil)
}

// Export godoc
// @Summary Export a completed async run as CSV or PDF
// @Tags Generation
// @Produce text/csv,application/pdf
// @Param id path string true "Run ID"
// @Param format query string false "csv or pdf"
// @Router /generation/runs/{id}/export [get]
func (h *GenerationHandler) Export(c *gin.Context) {
	state, err := h.service.RunStateByID(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if state.Status != service.RunStatusCompleted || state.Result == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrRunInProgress, "run has no exportable result yet"))
		return
	}

	filename := fmt.Sprintf("timetable-%s", time.Now().Format("20060102"))
	switch c.DefaultQuery("format", "csv") {
	case "pdf":
		payload, err := h.service.ExportPDF(state.Result)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", filename))
		c.Data(http.StatusOK, "application/pdf", payload)
	default:
		payload, err := h.service.ExportCSV(state.Result)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
		c.Data(http.StatusOK, "text/csv", payload)
	}
}

// ArchiveExport godoc
// @Summary Store a completed run's export and return a signed download link
// @Tags Generation
// @Produce json
// @Param id path string true "Run ID"
// @Param format query string false "csv or pdf"
// @Success 201 {object} response.Envelope
// @Router /generation/runs/{id}/archive [post]
func (h *GenerationHandler) ArchiveExport(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "stored exports are not configured"))
		return
	}

	state, err := h.service.RunStateByID(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if state.Status != service.RunStatusCompleted || state.Result == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrRunInProgress, "run has no exportable result yet"))
		return
	}

	artifact, err := h.exports.Archive(state.Result, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, artifact, nil)
}

// DownloadExport godoc
// @Summary Download a stored export with a signed token
// @Tags Generation
// @Produce text/csv,application/pdf
// @Param token path string true "Signed download token"
// @Router /generation/exports/{token} [get]
func (h *GenerationHandler) DownloadExport(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "stored exports are not configured"))
		return
	}

	file, relPath, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "export file unreadable"))
		return
	}

	contentType := "text/csv"
	if strings.HasSuffix(relPath, ".pdf") {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(relPath)))
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
