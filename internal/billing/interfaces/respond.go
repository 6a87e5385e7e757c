package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"jpusap-cobranzas/internal/auth"
	billing "jpusap-cobranzas/internal/billing/domain"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrTenantMismatch), errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotFound),
		errors.Is(err, billing.ErrChargeNotFound),
		errors.Is(err, billing.ErrPaymentNotFound),
		errors.Is(err, billing.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrConcurrentModification),
		errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrChargeVoided):
		return http.StatusConflict
	case errors.Is(err, billing.ErrEmptyTenantID),
		errors.Is(err, billing.ErrEmptyMemberID),
		errors.Is(err, billing.ErrEmptyChargeID),
		errors.Is(err, billing.ErrEmptyPaymentID),
		errors.Is(err, billing.ErrEmptyApprover),
		errors.Is(err, billing.ErrInvalidAmount),
		errors.Is(err, billing.ErrInvalidPeriod),
		errors.Is(err, billing.ErrInvalidStatus),
		errors.Is(err, billing.ErrInvalidMethod),
		errors.Is(err, billing.ErrInvalidTier),
		errors.Is(err, billing.ErrRejectionReasonRequired),
		errors.Is(err, billing.ErrVoidReasonRequired),
		errors.Is(err, billing.ErrMemberMismatch),
		errors.Is(err, billing.ErrNoCharges),
		errors.Is(err, billing.ErrDuplicateCharge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}

func parsePeriodRange(r *http.Request) (billing.PeriodRange, error) {
	query := r.URL.Query()
	periods := billing.PeriodRange{
		From: billing.Period(strings.TrimSpace(query.Get("from"))),
		To:   billing.Period(strings.TrimSpace(query.Get("to"))),
	}
	return periods, periods.Validate()
}

// parseDate accepts RFC3339 timestamps and plain dates.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
