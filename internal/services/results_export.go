package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/SAP-F-2025/test-session-service/internal/errors"
	"github.com/SAP-F-2025/test-session-service/internal/models"
	"github.com/SAP-F-2025/test-session-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

const resultsSheet = "Results"

var resultHeaders = []string{
	"Student", "Status", "Score", "Max Score", "Violations", "Pending Manual", "Started At", "Finished At",
}

// ResultsExporter renders every session of a test as a spreadsheet.
type ResultsExporter struct {
	store   repositories.SessionStore
	catalog repositories.TestCatalog
	logger  *slog.Logger
}

func NewResultsExporter(store repositories.SessionStore, catalog repositories.TestCatalog, logger *slog.Logger) *ResultsExporter {
	return &ResultsExporter{
		store:   store,
		catalog: catalog,
		logger:  logger,
	}
}

// ExportResults returns an xlsx workbook with one row per session.
func (e *ResultsExporter) ExportResults(ctx context.Context, testID string) ([]byte, error) {
	if _, err := e.catalog.GetTestDefinition(ctx, testID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, apperrors.NewSessionError(apperrors.ErrTestNotFound,
				fmt.Sprintf("test %s does not exist", testID),
				map[string]interface{}{"test_id": testID})
		}
		return nil, apperrors.NewUnhandledSessionError("load test definition", err)
	}

	sessions, err := e.store.ListByTest(ctx, testID)
	if err != nil {
		return nil, apperrors.NewUnhandledSessionError("list sessions", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(resultsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	if err := f.SetSheetRow(resultsSheet, "A1", &resultHeaders); err != nil {
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}

	for i, session := range sessions {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := resultRow(session)
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row for session %s: %w", session.ID(), err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	e.logger.Info("Exported test results", "test_id", testID, "sessions", len(sessions))
	return buf.Bytes(), nil
}

func resultRow(session *models.TestSession) []interface{} {
	finished := ""
	if at := session.FinishedAt(); at != nil {
		finished = at.UTC().Format(time.RFC3339)
	}
	return []interface{}{
		session.StudentID(),
		string(session.Status()),
		session.TotalScore(),
		session.MaxScore(),
		session.ViolationCount(),
		session.PendingManualCount(),
		session.StartedAt().UTC().Format(time.RFC3339),
		finished,
	}
}
