package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"jpusap-cobranzas/internal/audit"
	"jpusap-cobranzas/internal/auth"
	billingapp "jpusap-cobranzas/internal/billing/application"
	billing "jpusap-cobranzas/internal/billing/domain"
)

const maxImportBytes = 10 << 20

// Services bundles the use cases served over HTTP. Reminders and Refresher are optional.
type Services struct {
	Payments  *billingapp.PaymentService
	Charges   *billingapp.ChargeService
	Debts     *billingapp.DebtService
	Reminders *billingapp.ReminderService
	Refresher *billingapp.CacheRefresher
}

// Handler serves the billing API under /api/v1.
type Handler struct {
	services      Services
	memberChecker auth.MemberTenantChecker
	auditLogger   audit.Logger
	logger        *zap.Logger
	defaultTenant string
	association   string
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithMemberChecker enables member tenant checks on member routes.
func WithMemberChecker(checker auth.MemberTenantChecker) HandlerOption {
	return func(h *Handler) {
		h.memberChecker = checker
	}
}

// WithAuditLogger records mutations and exports.
func WithAuditLogger(logger audit.Logger) HandlerOption {
	return func(h *Handler) {
		h.auditLogger = logger
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithDefaultTenant is used when requests carry no tenant (auth disabled).
func WithDefaultTenant(tenantID string) HandlerOption {
	return func(h *Handler) {
		h.defaultTenant = tenantID
	}
}

// WithAssociationName sets the heading printed on exported documents.
func WithAssociationName(name string) HandlerOption {
	return func(h *Handler) {
		h.association = name
	}
}

// NewHandler constructs a handler.
func NewHandler(services Services, opts ...HandlerOption) (*Handler, error) {
	if services.Payments == nil {
		return nil, errors.New("billing handler: nil payment service")
	}
	if services.Charges == nil {
		return nil, errors.New("billing handler: nil charge service")
	}
	if services.Debts == nil {
		return nil, errors.New("billing handler: nil debt service")
	}
	h := &Handler{services: services, logger: zap.NewNop(), association: "Asociación JPUSAP"}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the billing routes on router.
func (h *Handler) Register(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/members/{id}/debt", h.handleMemberDebt).Methods(http.MethodGet)
	api.HandleFunc("/members/{id}/statement.pdf", h.handleStatementPDF).Methods(http.MethodGet)

	api.HandleFunc("/charges", h.handleListCharges).Methods(http.MethodGet)
	api.HandleFunc("/charges/{id}/void", h.handleVoidCharge).Methods(http.MethodPost)

	api.HandleFunc("/payments", h.handleListPayments).Methods(http.MethodGet)
	api.HandleFunc("/payments", h.handleRegisterPayment).Methods(http.MethodPost)
	api.HandleFunc("/payments/import", h.handleImportPayments).Methods(http.MethodPost)
	api.HandleFunc("/payments/{id}", h.handleGetPayment).Methods(http.MethodGet)
	api.HandleFunc("/payments/{id}", h.handleDeletePayment).Methods(http.MethodDelete)
	api.HandleFunc("/payments/{id}/approve", h.handleApprovePayment).Methods(http.MethodPost)
	api.HandleFunc("/payments/{id}/reject", h.handleRejectPayment).Methods(http.MethodPost)

	api.HandleFunc("/reports/debtors", h.handleDebtorReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/debtors.csv", h.handleDebtorExport(formatCSV)).Methods(http.MethodGet)
	api.HandleFunc("/reports/debtors.xlsx", h.handleDebtorExport(formatXLSX)).Methods(http.MethodGet)
	api.HandleFunc("/reports/debtors.pdf", h.handleDebtorExport(formatPDF)).Methods(http.MethodGet)

	api.HandleFunc("/reminders/debtors", h.handleSendReminders).Methods(http.MethodPost)
	api.HandleFunc("/maintenance/refresh-cache", h.handleRefreshCache).Methods(http.MethodPost)
}

func (h *Handler) handleMemberDebt(w http.ResponseWriter, r *http.Request) {
	memberID := mux.Vars(r)["id"]
	if err := h.ensureMember(r, memberID); err != nil {
		h.respondError(w, r, err)
		return
	}
	debt, err := h.services.Debts.MemberDebt(r.Context(), memberID, parseNow(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

func (h *Handler) handleListCharges(w http.ResponseWriter, r *http.Request) {
	memberID := strings.TrimSpace(r.URL.Query().Get("member_id"))
	if memberID == "" {
		badRequest(w, "member_id is required")
		return
	}
	periods, err := parsePeriodRange(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.ensureMember(r, memberID); err != nil {
		h.respondError(w, r, err)
		return
	}
	states, err := h.services.Charges.List(r.Context(), memberID, periods)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *Handler) handleVoidCharge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	charge, err := h.services.Charges.Void(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, charge)
	h.logAudit(r, "charge.void", "charge", charge.ID, charge.MemberID, map[string]any{"reason": charge.VoidReason})
}

type registerRequest struct {
	MemberID  string          `json:"empadronado_id"`
	ChargeID  string          `json:"charge_id"`
	ChargeIDs []string        `json:"charge_ids"`
	Amount    decimal.Decimal `json:"monto"`
	Method    string          `json:"metodo_pago"`
	PaidAt    string          `json:"fecha_pago"`
	Reference string          `json:"reference"`
}

func (h *Handler) handleRegisterPayment(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	paidAt, err := parseDate(req.PaidAt)
	if err != nil {
		badRequest(w, "fecha_pago must be RFC3339 or YYYY-MM-DD")
		return
	}
	method := billing.PaymentMethod(req.Method)

	if len(req.ChargeIDs) > 0 {
		created, err := h.services.Payments.RegisterSplit(r.Context(), billingapp.RegisterSplitPayment{
			MemberID:  req.MemberID,
			ChargeIDs: req.ChargeIDs,
			Amount:    req.Amount,
			Method:    method,
			PaidAt:    paidAt,
			Reference: req.Reference,
		})
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		h.logAudit(r, "payment.register_split", "payment", created[0].Reference, req.MemberID, map[string]any{
			"charge_ids": req.ChargeIDs,
			"monto":      req.Amount.StringFixed(2),
		})
		return
	}

	payment, err := h.services.Payments.Register(r.Context(), billingapp.RegisterPayment{
		ChargeID:  req.ChargeID,
		MemberID:  req.MemberID,
		Amount:    req.Amount,
		Method:    method,
		PaidAt:    paidAt,
		Reference: req.Reference,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
	h.logAudit(r, "payment.register", "payment", payment.ID, payment.MemberID, map[string]any{
		"charge_id": payment.ChargeID,
		"monto":     payment.Amount.StringFixed(2),
	})
}

func (h *Handler) handleImportPayments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	source := r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			badRequest(w, "file is required")
			return
		}
		defer file.Close()
		source = file
	}
	lines, rowErrors, err := ParsePaymentSheet(source)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	report, err := h.services.Payments.Import(r.Context(), lines)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	report.Errors = mergeRowErrors(rowErrors, report.Errors)
	writeJSON(w, http.StatusOK, report)
	h.logAudit(r, "payment.import", "payment", "", "", map[string]any{
		"imported": len(report.Imported),
		"errors":   len(report.Errors),
	})
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := billingapp.PaymentFilter{MemberID: strings.TrimSpace(query.Get("member_id"))}
	if status := query.Get("estado"); status != "" {
		parsed, err := billing.ParsePaymentStatus(status)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		filter.Status = parsed
	}
	if filter.MemberID != "" {
		if err := h.ensureMember(r, filter.MemberID); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	payments, err := h.services.Payments.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if payments == nil {
		payments = []billing.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.services.Payments.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) handleApprovePayment(w http.ResponseWriter, r *http.Request) {
	approver := auth.SubjectFromContext(r.Context())
	if approver == "" {
		var req struct {
			ApprovedBy string `json:"approved_by"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		approver = req.ApprovedBy
	}
	payment, err := h.services.Payments.Approve(r.Context(), mux.Vars(r)["id"], approver)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
	h.logAudit(r, "payment.approve", "payment", payment.ID, payment.MemberID, map[string]any{
		"version": payment.Version,
	})
}

func (h *Handler) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	payment, err := h.services.Payments.Reject(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
	h.logAudit(r, "payment.reject", "payment", payment.ID, payment.MemberID, map[string]any{
		"reason": payment.RejectionReason,
	})
}

func (h *Handler) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.services.Payments.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, "payment.delete", "payment", payment.ID, payment.MemberID, map[string]any{
		"estado": payment.Status,
		"monto":  payment.Amount.StringFixed(2),
	})
}

func (h *Handler) ensureMember(r *http.Request, memberID string) error {
	if h.memberChecker == nil {
		return nil
	}
	tenantID := auth.TenantOr(r.Context(), h.defaultTenant)
	return h.memberChecker.EnsureMemberTenant(r.Context(), tenantID, memberID)
}

func (h *Handler) logAudit(r *http.Request, action, resourceType, resourceID, memberID string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	tenantID := auth.TenantOr(r.Context(), h.defaultTenant)
	if tenantID == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	if err := h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		MemberID:     memberID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}); err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func mergeRowErrors(parse, apply []billingapp.ImportRowError) []billingapp.ImportRowError {
	merged := make([]billingapp.ImportRowError, 0, len(parse)+len(apply))
	merged = append(merged, parse...)
	merged = append(merged, apply...)
	sortRowErrors(merged)
	return merged
}
