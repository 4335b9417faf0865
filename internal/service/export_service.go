package service

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/export"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes stored export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportArtifact describes a stored timetable export.
type ExportArtifact struct {
	RelativePath string    `json:"relative_path"`
	Token        string    `json:"token"`
	URL          string    `json:"url"`
	Format       string    `json:"format"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ExportService renders generation results into downloadable files and
// keeps them on disk behind signed tokens.
type ExportService struct {
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		storage: files,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Archive renders the result in the requested format, stores the file
// and returns a signed download reference.
func (s *ExportService) Archive(result *models.GenerationResult, format string) (*ExportArtifact, error) {
	if result == nil || result.Schedule == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "result has no schedule to export")
	}
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "stored exports are not configured")
	}

	dataset := timetableDataset(result)

	var (
		payload []byte
		err     error
	)
	switch format {
	case "pdf":
		payload, err = s.pdf.Render(dataset, result.Schedule.Name)
	case "", "csv":
		format = "csv"
		payload, err = s.csv.Render(dataset)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "export rendering failed")
	}

	filename := s.buildFilename(result.Schedule, format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "export storage failed")
	}

	token, expiresAt, err := s.signer.Generate(result.Schedule.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "export token signing failed")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportArtifact{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/generation/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// Open validates the token and returns a handle to the stored file.
func (s *ExportService) Open(token string) (*os.File, string, error) {
	if s.storage == nil || s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "stored exports are not configured")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file is gone")
	}
	return file, relPath, nil
}

// Cleanup drops stored exports older than the configured TTL.
func (s *ExportService) Cleanup() ([]string, error) {
	if s.storage == nil {
		return nil, nil
	}
	deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
	}
	return deleted, nil
}

func (s *ExportService) buildFilename(schedule *models.Schedule, format string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s.%s", sanitizeFilename(schedule.ID), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
