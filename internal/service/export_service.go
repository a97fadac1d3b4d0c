package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/edutech/college-api/internal/models"
	appErrors "github.com/edutech/college-api/pkg/errors"
	"github.com/edutech/college-api/pkg/export"
)

type rosterReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	EnrolledStudents(ctx context.Context, courseID string) ([]models.EnrolledStudent, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders course rosters into downloadable CSV or PDF files.
type ExportService struct {
	courses rosterReader
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
}

// NewExportService constructs an ExportService instance.
func NewExportService(courses rosterReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		courses: courses,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
	}
}

// Roster renders the enrollment roster of a course. Access follows the same
// owner-or-admin rule as viewing the roster.
func (s *ExportService) Roster(ctx context.Context, p models.Principal, courseID, format string) (*ExportFile, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch course")
	}
	if !isOwnerOrAdmin(p, course.FacultyID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning faculty or an admin may export the roster")
	}

	students, err := s.courses.EnrolledStudents(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}

	table := export.Table{
		Columns: []export.Column{
			{Title: "No", Weight: 1},
			{Title: "Student", Weight: 4},
			{Title: "Email", Weight: 5},
			{Title: "Enrolled", Weight: 3},
		},
	}
	for i, student := range students {
		table.Cells = append(table.Cells, []string{
			strconv.Itoa(i + 1),
			student.Name,
			student.Email,
			student.EnrolledAt.Format(time.RFC3339),
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case "csv", "":
		content, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("roster_%s_%s.csv", course.Code, stamp),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case "pdf":
		title := fmt.Sprintf("%s - %s roster", course.Code, course.Title)
		content, err := s.pdf.Render(table, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("roster_%s_%s.pdf", course.Code, stamp),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}
