package reports

import (
	"context"
	"fmt"
	"net/http"

	"bitbucket.org/serviconsa/portal_backend/models"
	"github.com/xuri/excelize/v2"
)

// WriteInvoiceLedgerExcel streams the invoice ledger as an .xlsx for the
// finance role.
func WriteInvoiceLedgerExcel(ctx context.Context, w http.ResponseWriter) error {
	invoices, err := models.ListInvoices(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", "Folio")
	f.SetCellValue(sheet, "B1", "Type")
	f.SetCellValue(sheet, "C1", "ProjectId")
	f.SetCellValue(sheet, "D1", "Amount")
	f.SetCellValue(sheet, "E1", "IssueDate")
	f.SetCellValue(sheet, "F1", "Estado")
	f.SetCellValue(sheet, "G1", "ActualPaymentDate")

	for i, invoice := range invoices {
		row := i + 2
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), invoice.Folio)
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), string(invoice.Type))
		projectRef := "general"
		if invoice.ProjectId != nil {
			projectRef = fmt.Sprint(*invoice.ProjectId)
		}
		f.SetCellValue(sheet, "C"+fmt.Sprint(row), projectRef)
		f.SetCellValue(sheet, "D"+fmt.Sprint(row), invoice.Amount.InexactFloat64())
		f.SetCellValue(sheet, "E"+fmt.Sprint(row), invoice.IssueDate.Format("2006-01-02"))
		f.SetCellValue(sheet, "F"+fmt.Sprint(row), string(invoice.Estado))
		if invoice.ActualPaymentDate != nil {
			f.SetCellValue(sheet, "G"+fmt.Sprint(row), invoice.ActualPaymentDate.Format("2006-01-02"))
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=invoices.xlsx")
	return f.Write(w)
}
