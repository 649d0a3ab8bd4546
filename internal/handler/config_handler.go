package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/finvela/gl-approvals/internal/platform/errors"
	"github.com/finvela/gl-approvals/internal/platform/logger"
	"github.com/finvela/gl-approvals/internal/repository"
	"github.com/finvela/gl-approvals/internal/service"
)

// ConfigHandler handles routing-configuration admin requests: tier
// thresholds and the approver roster.
type ConfigHandler struct {
	config *service.ConfigService
	log    *logger.Logger
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(config *service.ConfigService, log *logger.Logger) *ConfigHandler {
	return &ConfigHandler{config: config, log: log}
}

// ListThresholds returns a company's threshold bands.
func (h *ConfigHandler) ListThresholds(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		http.Error(w, "Company ID is required", http.StatusBadRequest)
		return
	}

	thresholds, err := h.config.ListThresholds(r.Context(), companyID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"thresholds": thresholds})
}

// ReplaceThresholds swaps a company's full threshold table.
func (h *ConfigHandler) ReplaceThresholds(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID  string `json:"company_id"`
		Thresholds []struct {
			Tier string  `json:"tier"`
			Min  string  `json:"min"`
			Max  *string `json:"max"`
		} `json:"thresholds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	thresholds := make([]*repository.TierThreshold, 0, len(req.Thresholds))
	for _, t := range req.Thresholds {
		min, err := decimal.NewFromString(t.Min)
		if err != nil {
			respondError(w, errors.InvalidInput("min", "must be a decimal number"))
			return
		}
		th := &repository.TierThreshold{Tier: t.Tier, MinAmount: min}
		if t.Max != nil {
			max, err := decimal.NewFromString(*t.Max)
			if err != nil {
				respondError(w, errors.InvalidInput("max", "must be a decimal number"))
				return
			}
			th.MaxAmount = &max
		}
		thresholds = append(thresholds, th)
	}

	if err := h.config.ReplaceThresholds(r.Context(), req.CompanyID, thresholds); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"thresholds": thresholds})
}

// DeleteThreshold removes a single band. Routing surfaces any resulting
// gap as a configuration error on the next route.
func (h *ConfigHandler) DeleteThreshold(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	companyID := r.URL.Query().Get("company_id")
	if id == "" || companyID == "" {
		http.Error(w, "Threshold ID and Company ID are required", http.StatusBadRequest)
		return
	}

	if err := h.config.DeleteThreshold(r.Context(), id, companyID); err != nil {
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListApprovers returns the full roster for a company.
func (h *ConfigHandler) ListApprovers(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		http.Error(w, "Company ID is required", http.StatusBadRequest)
		return
	}

	approvers, err := h.config.ListApprovers(r.Context(), companyID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"approvers": approvers})
}

// AddApprover appends a user to a company tier roster.
func (h *ConfigHandler) AddApprover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID string `json:"company_id"`
		UserID    string `json:"user_id"`
		Tier      string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	approver, err := h.config.AddApprover(r.Context(), req.CompanyID, req.UserID, req.Tier)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, approver)
}

// Delegate records a single-hop delegation.
func (h *ConfigHandler) Delegate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID  string `json:"company_id"`
		UserID     string `json:"user_id"`
		DelegateTo string `json:"delegate_to"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.DelegateTo == "" {
		if err := h.config.ClearDelegation(r.Context(), req.CompanyID, req.UserID); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "delegation_cleared"})
		return
	}

	if err := h.config.Delegate(r.Context(), req.CompanyID, req.UserID, req.DelegateTo, req.Reason); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "delegated"})
}

// RemoveApprover deletes a roster entry.
func (h *ConfigHandler) RemoveApprover(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	companyID := r.URL.Query().Get("company_id")
	if id == "" || companyID == "" {
		http.Error(w, "Approver ID and Company ID are required", http.StatusBadRequest)
		return
	}

	if err := h.config.RemoveApprover(r.Context(), id, companyID); err != nil {
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
