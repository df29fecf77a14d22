// Package export renders a finance summary as an XLSX workbook, one
// sheet per grouping plus a totals sheet.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"invoiced/internal/core"
)

// WriteSummaryXLSX writes the workbook to w. Sheets: Summary (status
// totals), By Client, By Month, By Year.
func WriteSummaryXLSX(w io.Writer, summary core.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	f.SetSheetName("Sheet1", summarySheet)

	totals := [][]any{
		{"Metric", "EUR"},
		{"Total income", summary.TotalIncome.Euros()},
		{"Pending to accountant", summary.PendingToAccountant.Euros()},
		{"Sent to client", summary.SentToClient.Euros()},
		{"Sent to accountant", summary.SentToAccountant.Euros()},
	}
	if err := writeRows(f, summarySheet, totals); err != nil {
		return err
	}

	clientRows := [][]any{{"Client", "EUR"}}
	for _, ct := range summary.ByClient {
		clientRows = append(clientRows, []any{ct.Name, ct.Amount.Euros()})
	}
	if err := addSheet(f, "By Client", clientRows); err != nil {
		return err
	}

	monthRows := [][]any{{"Month", "EUR"}}
	for _, mt := range summary.ByMonth {
		monthRows = append(monthRows, []any{mt.Key, mt.Amount.Euros()})
	}
	if err := addSheet(f, "By Month", monthRows); err != nil {
		return err
	}

	yearRows := [][]any{{"Year", "EUR"}}
	for _, yt := range summary.ByYear {
		yearRows = append(yearRows, []any{yt.Year, yt.Amount.Euros()})
	}
	if err := addSheet(f, "By Year", yearRows); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func addSheet(f *excelize.File, name string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	return writeRows(f, name, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d of %s: %w", i+1, sheet, err)
		}
	}
	return nil
}
