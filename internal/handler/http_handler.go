package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/finvela/gl-approvals/internal/platform/errors"
	"github.com/finvela/gl-approvals/internal/platform/logger"
	"github.com/finvela/gl-approvals/internal/platform/middleware"
	"github.com/finvela/gl-approvals/internal/service"
)

// HTTPHandler handles transaction and approval HTTP requests.
type HTTPHandler struct {
	approvals *service.ApprovalService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(approvals *service.ApprovalService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		approvals: approvals,
		log:       log,
	}
}

// CreateTransaction handles create transaction HTTP requests.
func (h *HTTPHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID   string  `json:"company_id"`
		Amount      string  `json:"amount"`
		Currency    string  `json:"currency"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, errors.InvalidInput("amount", "must be a decimal number"))
		return
	}

	tx, err := h.approvals.CreateTransaction(r.Context(), &service.CreateTransactionRequest{
		CompanyID:   req.CompanyID,
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
		CreatedBy:   middleware.UserID(r.Context()),
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, tx)
}

// GetTransaction handles get transaction HTTP requests.
func (h *HTTPHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	companyID := r.URL.Query().Get("company_id")
	if id == "" || companyID == "" {
		http.Error(w, "Transaction ID and Company ID are required", http.StatusBadRequest)
		return
	}

	tx, err := h.approvals.GetTransaction(r.Context(), id, companyID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tx)
}

// ListTransactions handles list transaction HTTP requests.
func (h *HTTPHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		http.Error(w, "Company ID is required", http.StatusBadRequest)
		return
	}

	var statusPtr *string
	if status := r.URL.Query().Get("status"); status != "" {
		statusPtr = &status
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	txs, total, err := h.approvals.ListTransactions(r.Context(), companyID, statusPtr, page, pageSize)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"total":        total,
		"page":         page,
		"pageSize":     pageSize,
	})
}

// SubmitForApproval handles submit for approval HTTP requests.
func (h *HTTPHandler) SubmitForApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string `json:"id"`
		CompanyID string `json:"company_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	wf, err := h.approvals.SubmitForApproval(r.Context(), req.ID, req.CompanyID, middleware.UserID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}

	// An empty eligible set is a business outcome, not an error: the
	// workflow is parked for escalation and the caller sees that status.
	respondJSON(w, http.StatusOK, wf)
}

// ApproveTransaction handles approve HTTP requests.
func (h *HTTPHandler) ApproveTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string  `json:"id"`
		CompanyID string  `json:"company_id"`
		Notes     *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.approvals.Approve(r.Context(), req.ID, req.CompanyID, middleware.UserID(r.Context()), req.Notes); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// RejectTransaction handles reject HTTP requests.
func (h *HTTPHandler) RejectTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string `json:"id"`
		CompanyID string `json:"company_id"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.approvals.Reject(r.Context(), req.ID, req.CompanyID, middleware.UserID(r.Context()), req.Reason); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// RecallTransaction handles recall HTTP requests.
func (h *HTTPHandler) RecallTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string `json:"id"`
		CompanyID string `json:"company_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.approvals.Recall(r.Context(), req.ID, req.CompanyID, middleware.UserID(r.Context())); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "recalled"})
}

// DeleteTransaction handles delete transaction HTTP requests.
func (h *HTTPHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	companyID := r.URL.Query().Get("company_id")
	if id == "" || companyID == "" {
		http.Error(w, "Transaction ID and Company ID are required", http.StatusBadRequest)
		return
	}

	if err := h.approvals.DeleteTransaction(r.Context(), id, companyID); err != nil {
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PendingApprovals returns the workflows awaiting action from the caller.
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		http.Error(w, "Company ID is required", http.StatusBadRequest)
		return
	}

	pending, err := h.approvals.GetPendingApprovals(r.Context(), companyID, middleware.UserID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"pending": pending})
}

// ApprovalHistory returns the audit trail for a transaction.
func (h *HTTPHandler) ApprovalHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	companyID := r.URL.Query().Get("company_id")
	if id == "" || companyID == "" {
		http.Error(w, "Transaction ID and Company ID are required", http.StatusBadRequest)
		return
	}

	trail, err := h.approvals.GetApprovalHistory(r.Context(), id, companyID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"history": trail})
}

// PreviewRoute runs the routing decision without persisting anything.
func (h *HTTPHandler) PreviewRoute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID string `json:"company_id"`
		Amount    string `json:"amount"`
		CreatorID string `json:"creator_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, errors.InvalidInput("amount", "must be a decimal number"))
		return
	}

	creatorID := req.CreatorID
	if creatorID == "" {
		creatorID = middleware.UserID(r.Context())
	}

	decision, err := h.approvals.PreviewRoute(r.Context(), req.CompanyID, amount, creatorID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, decision)
}

// ── Response helpers ──────────────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, errors.HTTPStatus(err), map[string]string{
		"code":  string(errors.CodeOf(err)),
		"error": err.Error(),
	})
}
