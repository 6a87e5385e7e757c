package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"jpusap-cobranzas/internal/auth"
	billingapp "jpusap-cobranzas/internal/billing/application"
	billing "jpusap-cobranzas/internal/billing/domain"
	"jpusap-cobranzas/internal/observability/metrics"
)

type exportFormat string

const (
	formatCSV  exportFormat = "csv"
	formatXLSX exportFormat = "xlsx"
	formatPDF  exportFormat = "pdf"
)

func (h *Handler) handleDebtorReport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDebtorFilter(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	report, err := h.services.Debts.DebtorReport(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleDebtorExport(format exportFormat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		result := metrics.ResultSuccess
		defer func() {
			metrics.ObserveExport(string(format), result, time.Since(start))
		}()

		filter, err := parseDebtorFilter(r)
		if err != nil {
			result = metrics.ResultError
			h.respondError(w, r, err)
			return
		}
		report, err := h.services.Debts.DebtorReport(r.Context(), filter)
		if err != nil {
			result = metrics.ResultError
			h.respondError(w, r, err)
			return
		}

		var (
			data        []byte
			contentType string
		)
		switch format {
		case formatCSV:
			data, err = BuildDebtorCSV(report)
			contentType = contentTypeCSV
		case formatXLSX:
			data, err = BuildDebtorXLSX(report)
			contentType = contentTypeXLSX
		default:
			data, err = BuildDebtorPDF(h.association, report)
			contentType = contentTypePDF
		}
		if err != nil {
			result = metrics.ResultError
			h.logger.Error("debtor export failed", zap.String("format", string(format)), zap.Error(err))
			http.Error(w, "export error", http.StatusInternalServerError)
			return
		}
		filename := "morosos-" + report.GeneratedAt.Format("20060102") + "." + string(format)
		writeFile(w, contentType, filename, data)
		h.logAudit(r, "report.export", "debtor_report", "", "", map[string]any{
			"format":   format,
			"min_tier": report.MinTier,
			"rows":     len(report.Rows),
		})
	}
}

func (h *Handler) handleStatementPDF(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport("statement_pdf", result, time.Since(start))
	}()

	memberID := mux.Vars(r)["id"]
	statement, err := h.services.Debts.Statement(r.Context(), memberID, parseNow(r))
	if err != nil {
		result = metrics.ResultError
		h.respondError(w, r, err)
		return
	}
	data, err := BuildStatementPDF(h.association, statement)
	if err != nil {
		result = metrics.ResultError
		h.logger.Error("statement export failed", zap.String("empadronado_id", memberID), zap.Error(err))
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	writeFile(w, contentTypePDF, "estado-cuenta-"+memberID+".pdf", data)
	h.logAudit(r, "statement.export", "member", memberID, memberID, map[string]any{"format": "pdf"})
}

func (h *Handler) handleSendReminders(w http.ResponseWriter, r *http.Request) {
	if h.services.Reminders == nil {
		http.Error(w, "reminders not configured", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		MinTier string `json:"min_tier"`
		From    string `json:"from"`
		To      string `json:"to"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid json")
			return
		}
	}
	filter := billingapp.DebtorFilter{
		Periods: billing.PeriodRange{From: billing.Period(req.From), To: billing.Period(req.To)},
	}
	if req.MinTier != "" {
		tier, ok := billing.ParseTier(req.MinTier)
		if !ok {
			badRequest(w, "invalid min_tier")
			return
		}
		filter.MinTier = tier
	} else {
		filter.MinTier = billing.TierDelinquent
	}
	result, err := h.services.Reminders.SendDebtorReminders(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
	h.logAudit(r, "reminders.send", "member", "", "", map[string]any{
		"min_tier": filter.MinTier,
		"sent":     result.Sent,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
	})
}

func (h *Handler) handleRefreshCache(w http.ResponseWriter, r *http.Request) {
	if h.services.Refresher == nil {
		http.Error(w, "refresher not configured", http.StatusServiceUnavailable)
		return
	}
	tenantID := auth.TenantOr(r.Context(), h.defaultTenant)
	updated, err := h.services.Refresher.Refresh(r.Context(), tenantID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "updated": updated})
	h.logAudit(r, "maintenance.refresh_cache", "charge", "", "", map[string]any{"updated": updated})
}

func parseDebtorFilter(r *http.Request) (billingapp.DebtorFilter, error) {
	query := r.URL.Query()
	periods, err := parsePeriodRange(r)
	if err != nil {
		return billingapp.DebtorFilter{}, err
	}
	filter := billingapp.DebtorFilter{Periods: periods, Now: parseNow(r)}
	if value := strings.TrimSpace(query.Get("min_tier")); value != "" {
		tier, ok := billing.ParseTier(value)
		if !ok {
			return billingapp.DebtorFilter{}, billing.ErrInvalidTier
		}
		filter.MinTier = tier
	}
	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	return filter, nil
}

// parseNow reads the optional as-of date; zero means now.
func parseNow(r *http.Request) time.Time {
	at, err := parseDate(r.URL.Query().Get("at"))
	if err != nil {
		return time.Time{}
	}
	return at
}
