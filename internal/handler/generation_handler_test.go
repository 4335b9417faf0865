package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/service"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

func newGenerationTestRouter(t *testing.T, exports *service.ExportService) (*gin.Engine, *service.GenerationService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	detector := service.NewConflictDetector(0, nil)
	resolver := service.NewConflictResolver(nil)
	search := service.NewSearchOptimizer(service.DefaultSearchConfig(), nil)
	svc := service.NewGenerationService(
		service.NewWorkloadService(nil, nil, service.WorkloadConfig{}, nil),
		nil,
		service.NewGenerationEngine(nil),
		detector,
		resolver,
		service.NewOptimizerService(detector, resolver, search, service.OptimizerOptions{}, nil),
		nil,
		service.NewPerformanceService(service.PerformanceConfig{}, nil),
		service.NewMetricsService(),
		nil,
		nil,
		nil,
	)

	h := NewGenerationHandler(svc, exports)
	router := gin.New()
	router.POST("/generation/runs", h.Generate)
	router.GET("/generation/runs/:id", h.RunState)
	router.GET("/generation/runs/:id/export", h.Export)
	router.POST("/generation/runs/:id/archive", h.ArchiveExport)
	router.GET("/generation/exports/:token", h.DownloadExport)
	router.POST("/generation/workload/validate", h.ValidateWorkload)
	router.POST("/generation/analyze", h.Analyze)
	return router, svc
}

func newTestExportService(t *testing.T) *service.ExportService {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return service.NewExportService(files, signer, service.ExportConfig{APIPrefix: "/api/v1"}, nil)
}

func performGenerationRequest(router *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func generationPayload() dto.GenerateTimetableRequest {
	return dto.GenerateTimetableRequest{
		InstitutionID:  "inst-1",
		AcademicYearID: "year-1",
		Loads: []dto.TeachingLoadRequest{
			{ID: "l1", TeacherID: "t1", SubjectID: "mathematics", SubjectName: "mathematics", ClassID: "c1", WeeklyHours: 3},
			{ID: "l2", TeacherID: "t2", SubjectID: "art", SubjectName: "art", ClassID: "c2", WeeklyHours: 3},
		},
	}
}

func TestGenerationHandlerGenerate(t *testing.T) {
	router, _ := newGenerationTestRouter(t, nil)

	resp := performGenerationRequest(router, http.MethodPost, "/generation/runs", generationPayload())
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"schedule"`)
	require.Contains(t, resp.Body.String(), `"sessions"`)
}

func TestGenerationHandlerGenerateBadBody(t *testing.T) {
	router, _ := newGenerationTestRouter(t, nil)

	req, _ := http.NewRequest(http.MethodPost, "/generation/runs", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Contains(t, resp.Body.String(), "VALIDATION_ERROR")
}

func TestGenerationHandlerAsyncWithoutQueue(t *testing.T) {
	router, _ := newGenerationTestRouter(t, nil)

	payload := generationPayload()
	payload.Async = true
	resp := performGenerationRequest(router, http.MethodPost, "/generation/runs", payload)
	require.Equal(t, http.StatusPreconditionFailed, resp.Code)
}

func TestGenerationHandlerRunStateNotFound(t *testing.T) {
	router, _ := newGenerationTestRouter(t, nil)

	resp := performGenerationRequest(router, http.MethodGet, "/generation/runs/missing", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Contains(t, resp.Body.String(), "RUN_NOT_FOUND")
}

func TestGenerationHandlerValidateWorkload(t *testing.T) {
	router, _ := newGenerationTestRouter(t, nil)

	payload := dto.ValidateWorkloadRequest{
		InstitutionID:  "inst-1",
		AcademicYearID: "year-1",
		Loads: []dto.TeachingLoadRequest{
			{ID: "l1", TeacherID: "t1", SubjectID: "mathematics", ClassID: "c1", WeeklyHours: 26},
		},
	}
	resp := performGenerationRequest(router, http.MethodPost, "/generation/workload/validate", payload)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "teacher_overloaded")
}

func TestGenerationHandlerAnalyze(t *testing.T) {
	router, _ := newGenerationTestRouter(t, nil)

	empty := dto.AnalyzeScheduleRequest{InstitutionID: "inst-1"}
	resp := performGenerationRequest(router, http.MethodPost, "/generation/analyze", empty)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	payload := dto.AnalyzeScheduleRequest{
		InstitutionID: "inst-1",
		Sessions: []models.ScheduleSession{
			{ID: "s1", TeachingLoadID: "l1", SubjectID: "mathematics", TeacherID: "t1", ClassID: "c1", Day: "monday", Period: 1},
		},
	}
	resp = performGenerationRequest(router, http.MethodPost, "/generation/analyze", payload)
	require.Equal(t, http.StatusPreconditionFailed, resp.Code, "analyzer is not wired in this router")
}

func TestGenerationHandlerExportLifecycle(t *testing.T) {
	router, svc := newGenerationTestRouter(t, nil)

	resp := performGenerationRequest(router, http.MethodGet, "/generation/runs/missing/export", nil)
	require.Equal(t, http.StatusNotFound, resp.Code)

	// drive a run to completion through the job handler
	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "run-1", Payload: generationPayload()}))

	resp = performGenerationRequest(router, http.MethodGet, "/generation/runs/run-1/export?format=csv", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "text/csv", resp.Header().Get("Content-Type"))
	require.Contains(t, resp.Header().Get("Content-Disposition"), "attachment")
	require.Contains(t, resp.Body.String(), "Day,Period,Start,End,Class,Subject,Teacher,Room")

	resp = performGenerationRequest(router, http.MethodGet, "/generation/runs/run-1/export?format=pdf", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
}

func TestGenerationHandlerArchiveUnconfigured(t *testing.T) {
	router, svc := newGenerationTestRouter(t, nil)

	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "run-1", Payload: generationPayload()}))

	resp := performGenerationRequest(router, http.MethodPost, "/generation/runs/run-1/archive", nil)
	require.Equal(t, http.StatusPreconditionFailed, resp.Code)
}

func TestGenerationHandlerArchiveAndDownload(t *testing.T) {
	router, svc := newGenerationTestRouter(t, newTestExportService(t))

	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "run-1", Payload: generationPayload()}))

	resp := performGenerationRequest(router, http.MethodPost, "/generation/runs/run-1/archive?format=csv", nil)
	require.Equal(t, http.StatusCreated, resp.Code)

	var envelope struct {
		Data struct {
			Token string `json:"token"`
			URL   string `json:"url"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Data.Token)
	require.Contains(t, envelope.Data.URL, "/generation/exports/")

	resp = performGenerationRequest(router, http.MethodGet, "/generation/exports/"+envelope.Data.Token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "Day,Period,Start,End,Class,Subject,Teacher,Room")

	resp = performGenerationRequest(router, http.MethodGet, "/generation/exports/bogus-token", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
