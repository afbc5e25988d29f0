package export

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/xuri/excelize/v2"
)

// writeXLSX writes the bundle as a workbook with one sheet per record
// kind.
func (e *Exporter) writeXLSX(ctx context.Context, path string, data bundle, showProgress bool) error {
	f := excelize.NewFile()
	defer f.Close()

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.Default(int64(len(data.Sessions)+len(data.LogEntries)), "exporting")
	}
	tick := func() {
		if bar != nil {
			bar.Add(1)
		}
	}

	// Sessions sheet.
	const sessionSheet = "Sessions"
	if err := f.SetSheetName("Sheet1", sessionSheet); err != nil {
		return fmt.Errorf("failed to create sessions sheet: %w", err)
	}
	header := []any{"Session ID", "Boot Time", "Expected Entry", "Actual Entry", "Status", "Diagnosis", "Pending Ops", "Events"}
	if err := f.SetSheetRow(sessionSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write sessions header: %w", err)
	}
	for i, sess := range data.Sessions {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := []any{
			sess.ID,
			sess.FormattedTime(),
			sess.ExpectedBootEntry,
			sess.ActualBootEntry,
			sess.MatchStatus.String(),
			sess.Diagnosis,
			len(sess.PendingOperations),
			len(sess.Events),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sessionSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write session row: %w", err)
		}
		tick()
	}

	// Ledger sheet.
	const ledgerSheet = "Ledger"
	if _, err := f.NewSheet(ledgerSheet); err != nil {
		return fmt.Errorf("failed to create ledger sheet: %w", err)
	}
	header = []any{"Timestamp", "Level", "Category", "Operation ID", "Session ID", "Message"}
	if err := f.SetSheetRow(ledgerSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write ledger header: %w", err)
	}
	for i, entry := range data.LogEntries {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := []any{
			entry.FormattedTime(),
			entry.Level,
			entry.Category,
			entry.OperationID,
			entry.SessionID,
			entry.Message,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(ledgerSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write ledger row: %w", err)
		}
		tick()
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
