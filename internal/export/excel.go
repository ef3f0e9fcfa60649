// Package export renders audit data as spreadsheets for the admin surface.
package export

import (
	"fmt"
	"time"

	"qbsync/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Sync Log"

// SyncLogWorkbook builds an XLSX workbook from sync log entries, newest
// first as given.
func SyncLogWorkbook(entries []models.SyncLogEntry) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	headers := []string{"ID", "Organization", "Provider", "Sync Type", "Status", "Request Data", "Error", "Created At"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, err
		}
	}

	for row, entry := range entries {
		errMsg := ""
		if entry.ErrorMessage != nil {
			errMsg = *entry.ErrorMessage
		}
		values := []any{
			entry.ID,
			entry.OrganizationID,
			entry.Provider,
			entry.SyncType,
			entry.Status,
			entry.RequestData,
			errMsg,
			entry.CreatedAt.Format(time.RFC3339),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}
