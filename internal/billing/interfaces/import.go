package interfaces

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	billingapp "jpusap-cobranzas/internal/billing/application"
	billing "jpusap-cobranzas/internal/billing/domain"
)

// Columns of the payment sheet, in default order. A header row may reorder them.
var importColumns = []string{"periodo", "empadronado_id", "monto", "metodo", "fecha", "referencia"}

// ErrEmptySheet is returned when the workbook has no data rows.
var ErrEmptySheet = errors.New("payment import: empty sheet")

// ParsePaymentSheet reads the first sheet of an XLSX workbook. Rows that cannot be parsed
// are reported individually; the rest are returned as import lines.
func ParsePaymentSheet(r io.Reader) ([]billingapp.ImportLine, []billingapp.ImportRowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("payment import: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptySheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("payment import: read rows: %w", err)
	}

	index := defaultColumnIndex()
	start := 0
	if len(rows) > 0 && isHeader(rows[0]) {
		index = headerIndex(rows[0])
		start = 1
	}
	if len(rows) <= start {
		return nil, nil, ErrEmptySheet
	}

	var (
		lines []billingapp.ImportLine
		errs  []billingapp.ImportRowError
	)
	for i := start; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}
		rowNumber := i + 1
		line, err := parseImportRow(row, index)
		if err != nil {
			errs = append(errs, billingapp.ImportRowError{Row: rowNumber, Message: err.Error()})
			continue
		}
		line.Row = rowNumber
		lines = append(lines, line)
	}
	return lines, errs, nil
}

func parseImportRow(row []string, index map[string]int) (billingapp.ImportLine, error) {
	cell := func(name string) string {
		pos, ok := index[name]
		if !ok || pos >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[pos])
	}

	period, err := billing.ParsePeriod(cell("periodo"))
	if err != nil {
		return billingapp.ImportLine{}, err
	}
	memberID := cell("empadronado_id")
	if memberID == "" {
		return billingapp.ImportLine{}, billing.ErrEmptyMemberID
	}
	amount, err := parseSheetAmount(cell("monto"))
	if err != nil {
		return billingapp.ImportLine{}, err
	}
	method, err := billing.ParsePaymentMethod(cell("metodo"))
	if err != nil {
		return billingapp.ImportLine{}, err
	}
	paidAt, err := parseSheetDate(cell("fecha"))
	if err != nil {
		return billingapp.ImportLine{}, fmt.Errorf("fecha invalida %q", cell("fecha"))
	}
	return billingapp.ImportLine{
		Period:    period,
		MemberID:  memberID,
		Amount:    amount,
		Method:    method,
		PaidAt:    paidAt,
		Reference: cell("referencia"),
	}, nil
}

// parseSheetAmount accepts "S/ 1,200.50", "1.200,50", "1200,50", "1,200" and plain numbers.
// A lone comma followed by three digits is a thousands separator, with one or two digits it is
// the decimal mark. Anything else with a comma is rejected rather than guessed.
func parseSheetAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "S/"))
	value = strings.ReplaceAll(value, " ", "")
	lastComma, lastDot := strings.LastIndex(value, ","), strings.LastIndex(value, ".")
	switch {
	case lastComma < 0:
	case lastDot > lastComma:
		value = strings.ReplaceAll(value, ",", "")
	case lastDot >= 0:
		value = strings.ReplaceAll(strings.ReplaceAll(value, ".", ""), ",", ".")
	default:
		groups := strings.Split(value, ",")
		decimals := groups[len(groups)-1]
		switch {
		case len(groups) == 2 && (len(decimals) == 1 || len(decimals) == 2):
			value = groups[0] + "." + decimals
		case thousandGroups(groups[1:]):
			value = strings.Join(groups, "")
		default:
			return decimal.Decimal{}, billing.ErrInvalidAmount
		}
	}
	amount, err := decimal.NewFromString(value)
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, billing.ErrInvalidAmount
	}
	return amount.Round(2), nil
}

func thousandGroups(groups []string) bool {
	for _, g := range groups {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// parseSheetDate accepts ISO dates, dd/mm/yyyy and Excel serial dates. Empty is zero.
func parseSheetDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := parseDate(value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("02/01/2006", value); err == nil {
		return t.UTC(), nil
	}
	serial, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, err
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func defaultColumnIndex() map[string]int {
	index := make(map[string]int, len(importColumns))
	for i, name := range importColumns {
		index[name] = i
	}
	return index
}

func isHeader(row []string) bool {
	for _, value := range row {
		if normalizeHeader(value) == "periodo" {
			return true
		}
	}
	return false
}

func headerIndex(row []string) map[string]int {
	index := make(map[string]int, len(importColumns))
	for i, value := range row {
		name := normalizeHeader(value)
		switch name {
		case "empadronado", "empadronadoid", "codigo":
			name = "empadronado_id"
		case "metodopago", "metodo_pago":
			name = "metodo"
		case "fechapago", "fecha_pago":
			name = "fecha"
		case "reference":
			name = "referencia"
		}
		if _, known := index[name]; !known {
			index[name] = i
		}
	}
	return index
}

func normalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.NewReplacer("é", "e", "í", "i", "ó", "o", " ", "_").Replace(value)
	return value
}

func blankRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func sortRowErrors(errs []billingapp.ImportRowError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Row < errs[j].Row })
}
