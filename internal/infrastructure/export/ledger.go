// Package export renders reports as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"milkwms/internal/domain/registers/ledger"
)

// XLSXContentType is the MIME type of the workbooks produced here.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const ledgerSheet = "Ledger"

var ledgerHeaders = []string{
	"Seq", "Event date", "Goods", "Goods packing", "Type",
	"In", "Out", "Balance", "Units", "Unit", "Document", "Document number",
}

// LedgerWorkbook builds a workbook with one row per ledger entry.
// The caller owns the returned file and must Close it.
func LedgerWorkbook(rows []ledger.ReportRow) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(ledgerSheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open stream writer: %w", err)
	}

	header := make([]any, len(ledgerHeaders))
	for i, h := range ledgerHeaders {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		_ = f.Close()
		return nil, err
	}

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		var docID string
		if r.DocumentID != nil {
			docID = r.DocumentID.String()
		}
		units, _ := r.UnitsAfter.Float64()
		values := []any{
			r.Seq,
			r.EventDate,
			r.GoodsID.String(),
			r.GoodsPackingID.String(),
			string(r.TypeChange),
			r.InQty,
			r.OutQty,
			r.BalanceAfter,
			units,
			r.UnitMeasure,
			docID,
			r.DocumentNumber,
		}
		if err := sw.SetRow(cell, values); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flush sheet: %w", err)
	}
	return f, nil
}

// WriteLedger streams the workbook for rows to w.
func WriteLedger(w io.Writer, rows []ledger.ReportRow) error {
	f, err := LedgerWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Write(w)
}
