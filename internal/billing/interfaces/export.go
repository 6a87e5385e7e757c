package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	billingapp "jpusap-cobranzas/internal/billing/application"
	billing "jpusap-cobranzas/internal/billing/domain"
)

var debtorHeader = []string{"empadronado_id", "nombre", "telefono", "estado", "cuotas_vencidas", "periodos", "deuda_total", "por_vencer"}

// BuildDebtorCSV renders the debtor report as CSV.
func BuildDebtorCSV(report *billingapp.DebtorReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(debtorHeader); err != nil {
		return nil, err
	}
	for _, row := range report.Rows {
		if err := writer.Write([]string{
			row.Member.ID,
			row.Member.DisplayName(),
			row.Member.Phone,
			row.Debt.Tier.Label(),
			fmt.Sprintf("%d", row.Debt.OverdueCount),
			overduePeriods(row.Debt),
			row.Debt.DebtTotal.StringFixed(2),
			row.Debt.UpcomingTotal.StringFixed(2),
		}); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDebtorXLSX renders the debtor report with a summary sheet and a detail sheet.
func BuildDebtorXLSX(report *billingapp.DebtorReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "resumen"
	rowsSheet := "morosos"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(rowsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Reporte de morosos")
	_ = f.SetCellValue(summarySheet, "A3", "Generado")
	_ = f.SetCellValue(summarySheet, "B3", report.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "Estado mínimo")
	_ = f.SetCellValue(summarySheet, "B4", report.MinTier.Label())
	_ = f.SetCellValue(summarySheet, "A5", "Empadronados")
	_ = f.SetCellValue(summarySheet, "B5", report.MembersTotal)
	_ = f.SetCellValue(summarySheet, "A6", "Deuda total")
	_ = f.SetCellValue(summarySheet, "B6", report.TotalDebt.InexactFloat64())
	tiers := []billing.Tier{billing.TierCurrent, billing.TierLate, billing.TierDelinquent, billing.TierDebtor}
	for i, tier := range tiers {
		row := 8 + i
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), tier.Label())
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), report.TierCounts[string(tier)])
	}

	for i, title := range debtorHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(rowsSheet, cell, title)
	}
	for i, debtor := range report.Rows {
		row := i + 2
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("A%d", row), debtor.Member.ID)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("B%d", row), debtor.Member.DisplayName())
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("C%d", row), debtor.Member.Phone)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("D%d", row), debtor.Debt.Tier.Label())
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("E%d", row), debtor.Debt.OverdueCount)
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("F%d", row), overduePeriods(debtor.Debt))
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("G%d", row), debtor.Debt.DebtTotal.InexactFloat64())
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("H%d", row), debtor.Debt.UpcomingTotal.InexactFloat64())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDebtorPDF renders the debtor report as a landscape table.
func BuildDebtorPDF(association string, report *billingapp.DebtorReport) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, tr(association))
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 6, tr("Reporte de morosos"))
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 5, fmt.Sprintf("Generado: %s", report.GeneratedAt.Format("2006-01-02 15:04")))
	pdf.Ln(5)
	pdf.Cell(0, 5, tr(fmt.Sprintf("Deuda total: S/ %s  -  Empadronados: %d", report.TotalDebt.StringFixed(2), len(report.Rows))))
	pdf.Ln(8)

	widths := []float64{28, 70, 30, 25, 22, 72, 30}
	headers := []string{"Código", "Nombre", "Teléfono", "Estado", "Vencidas", "Periodos", "Deuda (S/)"}
	pdf.SetFont("Arial", "B", 9)
	for i, title := range headers {
		pdf.CellFormat(widths[i], 6, tr(title), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, row := range report.Rows {
		cells := []string{
			row.Member.ID,
			row.Member.DisplayName(),
			row.Member.Phone,
			row.Debt.Tier.Label(),
			fmt.Sprintf("%d", row.Debt.OverdueCount),
			overduePeriods(row.Debt),
			row.Debt.DebtTotal.StringFixed(2),
		}
		for i, value := range cells {
			align := "L"
			if i == 4 || i == 6 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 5, tr(truncate(value, 48)), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	return outputPDF(pdf)
}

// BuildStatementPDF renders a member account statement: charges with their live state and
// the payment history.
func BuildStatementPDF(association string, statement *billingapp.MemberStatement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, tr(association))
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 6, "Estado de cuenta")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Empadronado: %s (%s)", statement.Member.DisplayName(), statement.Member.ID)))
	pdf.Ln(5)
	if statement.Member.Address != "" {
		pdf.Cell(0, 6, tr("Dirección: "+statement.Member.Address))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Fecha: %s", statement.GeneratedAt.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Estado: %s  -  Cuotas vencidas: %d", statement.Debt.Tier.Label(), statement.Debt.OverdueCount)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Deuda vencida: S/ %s", statement.Debt.DebtTotal.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Por vencer: S/ %s", statement.Debt.UpcomingTotal.StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(25, 6, "Periodo", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Vencimiento", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Monto", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Pagado", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Saldo", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Estado", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, state := range statement.Debt.Charges {
		pdf.CellFormat(25, 6, state.Charge.Period.Label(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, state.Charge.DueAt.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, state.Charge.OriginalAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, state.EffectivePaid.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, state.RemainingBalance.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, chargeStatusLabel(state), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	if len(statement.Payments) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, "Pagos registrados")
		pdf.Ln(7)
		pdf.CellFormat(30, 6, "Fecha", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Monto", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, tr("Método"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Estado", "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 6, "Referencia", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
		for _, payment := range statement.Payments {
			pdf.CellFormat(30, 6, payment.PaidAt.Format("2006-01-02"), "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 6, payment.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, string(payment.Method), "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 6, string(payment.Status), "1", 0, "C", false, 0, "")
			pdf.CellFormat(60, 6, tr(truncate(payment.Reference, 36)), "1", 0, "L", false, 0, "")
			pdf.Ln(-1)
		}
	}
	return outputPDF(pdf)
}

func outputPDF(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func chargeStatusLabel(state billing.ChargeState) string {
	switch {
	case state.Covered:
		return "Pagado"
	case state.Overdue:
		return "Vencido"
	case state.Upcoming:
		return "Por vencer"
	default:
		return "-"
	}
}

func overduePeriods(debt billing.MemberDebt) string {
	periods := make([]string, 0, debt.OverdueCount)
	for _, state := range debt.Charges {
		if state.Overdue {
			periods = append(periods, state.Charge.Period.Label())
		}
	}
	return strings.Join(periods, " ")
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-3]) + "..."
}
