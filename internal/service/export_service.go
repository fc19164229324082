package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campuschain/feedback-api/internal/models"
	appErrors "github.com/campuschain/feedback-api/pkg/errors"
	"github.com/campuschain/feedback-api/pkg/export"
)

type feedbackLister interface {
	ListAllFeedback(ctx context.Context) ([]models.FeedbackRecord, error)
}

// ExportResult carries a rendered report.
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders the on-chain feedback log as downloadable reports.
type ExportService struct {
	feedback feedbackLister
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	enabled  bool
	logger   *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(feedback feedbackLister, enabled bool, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		feedback: feedback,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		enabled:  enabled,
		logger:   logger,
	}
}

// FeedbackReport renders the full feedback log in the requested format,
// either csv or pdf.
func (s *ExportService) FeedbackReport(ctx context.Context, format string) (*ExportResult, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled")
	}

	records, err := s.feedback.ListAllFeedback(ctx)
	if err != nil {
		return nil, err
	}

	dataset := feedbackDataset(records)
	stamp := time.Now().UTC().Format("20060102-150405")

	switch strings.ToLower(format) {
	case "csv":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("feedback-report-%s.csv", stamp),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case "pdf":
		data, err := s.pdf.Render(dataset, "Course Feedback Report")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("feedback-report-%s.pdf", stamp),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format, use csv or pdf")
	}
}

func feedbackDataset(records []models.FeedbackRecord) export.Dataset {
	headers := []string{"ID", "Student Wallet", "Teacher", "Course"}
	headers = append(headers, models.RatingLabels[:]...)
	headers = append(headers, "Total", "Comments", "Submitted At")

	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		row := map[string]string{
			"ID":             strconv.FormatInt(record.ID, 10),
			"Student Wallet": record.StudentWallet,
			"Teacher":        record.TeacherID,
			"Course":         strconv.FormatInt(record.CourseID, 10),
			"Total":          strconv.FormatInt(record.TotalScore, 10),
			"Comments":       record.Comments,
			"Submitted At":   record.Timestamp.Format(time.RFC3339),
		}
		for i, label := range models.RatingLabels {
			row[label] = strconv.Itoa(int(record.Ratings[i]))
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
