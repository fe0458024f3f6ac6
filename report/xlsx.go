/*
xlsx.go - Spreadsheet export of a payroll run

PURPOSE:
  Renders a run and its items as a single-sheet .xlsx workbook for the
  people who actually pay salaries: one row per item, a totals row at
  the bottom.

LAYOUT:
  Row 1:   title (scope and period), merged across all columns
  Row 2:   column headers
  Row 3..: one row per item, in the run's item order
  Last:    totals for payable base, allowances and gross pay

  Money cells are numeric so the sheet can be summed again; units are
  written as numbers too.

SEE ALSO:
  - api/handlers.go: ExportRun serves the workbook
  - payroll/types.go: RunWithItems.Totals
*/
package report

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/payroll-engine/payroll"
)

// SheetName is the name of the only sheet in the workbook.
const SheetName = "Payroll"

var headers = []string{
	"Name", "Kind", "Pay Method", "Base Rate",
	"Worked", "Paid Leave", "Unpaid Leave", "Absent", "Period Units",
	"Payable Base", "Allowances", "Gross Pay", "Paid", "Paid By",
}

// Filename suggests a download name for the run.
func Filename(run payroll.Run) string {
	return fmt.Sprintf("payroll_%s_%s_%s.xlsx", run.LocationScope, run.Period.Start, run.Period.End)
}

// WriteRun renders the run as an xlsx workbook.
func WriteRun(rw payroll.RunWithItems) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	last := colName(len(headers))
	if err := f.SetColWidth(SheetName, "A", "A", 24); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}
	if err := f.SetColWidth(SheetName, "B", last, 13); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	title := fmt.Sprintf("Payroll %s %s (%s)", rw.Run.LocationScope, rw.Run.Period, rw.Run.Status)
	if err := f.SetCellValue(SheetName, "A1", title); err != nil {
		return nil, fmt.Errorf("write title: %w", err)
	}
	if err := f.MergeCell(SheetName, "A1", last+"1"); err != nil {
		return nil, fmt.Errorf("merge title: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "A1", headerStyle); err != nil {
		return nil, fmt.Errorf("style title: %w", err)
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A2", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A2", last+"2", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	row := 3
	for _, it := range rw.Items {
		paid := "No"
		if it.IsPaid {
			paid = "Yes"
		}
		values := []any{
			it.PersonName, string(it.Person.Kind), string(it.PayMethod), num(it.BaseRate),
			num(it.WorkedUnits), num(it.PaidLeaveUnits), num(it.UnpaidLeaveUnits), num(it.AbsentUnits), it.PeriodUnits,
			num(it.PayableBase.Round(2)), num(it.AllowancesAmount), num(it.GrossPay), paid, it.PaidBy,
		}
		if err := f.SetSheetRow(SheetName, cell("A", row), &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		row++
	}

	totals := rw.Totals()
	totalCells := []struct {
		col   string
		value any
	}{
		{"A", "Total"},
		{"J", num(totals.PayableBase.Round(2))},
		{"K", num(totals.Allowances)},
		{"L", num(totals.GrossPay)},
		{"M", fmt.Sprintf("%d/%d", totals.Paid, totals.Items)},
	}
	for _, c := range totalCells {
		if err := f.SetCellValue(SheetName, cell(c.col, row), c.value); err != nil {
			return nil, fmt.Errorf("write totals: %w", err)
		}
	}
	if err := f.SetCellStyle(SheetName, cell("A", row), cell(last, row), headerStyle); err != nil {
		return nil, fmt.Errorf("style totals: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func num(d decimal.Decimal) float64 { return d.InexactFloat64() }

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
