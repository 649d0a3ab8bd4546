package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Domain types for approval routing ────────────────────────────────────────

// Transaction is a journal-entry amount pending approval. Routing inputs
// (amount, company, creator) are immutable once submitted.
type Transaction struct {
	ID          string
	CompanyID   string
	Amount      decimal.Decimal
	Currency    string
	Description *string
	Status      string // draft | pending_approval | approved | rejected | escalation_required
	CreatedBy   string
	SubmittedBy *string
	SubmittedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TierThreshold is one configured [MinAmount, MaxAmount) band mapping to
// an approval tier. A nil MaxAmount means unbounded above.
type TierThreshold struct {
	ID        string
	CompanyID string
	Tier      string // supervisor | manager | director
	MinAmount decimal.Decimal
	MaxAmount *decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Approver is one roster entry for a company tier. DelegateTo, when set,
// substitutes that user for this approver during routing (single hop).
type Approver struct {
	ID               string
	CompanyID        string
	UserID           string
	Tier             string
	Position         int // roster order within (company, tier)
	DelegateTo       *string
	DelegatedAt      *time.Time
	DelegationReason *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ApprovalWorkflow is one submission attempt: the routing decision as
// computed at submit time plus its lifecycle state. Resubmission after
// rejection creates a fresh workflow routed from scratch.
type ApprovalWorkflow struct {
	ID                string
	TransactionID     string
	CompanyID         string
	RequiredTier      string
	EligibleApprovers []string // as routed; empty means escalation required
	Status            string   // pending | approved | rejected | recalled | escalation_required
	SubmittedBy       string
	SubmittedAt       time.Time
	ActedBy           *string
	ActedAt           *time.Time
	ActionNotes       *string
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AuditEntry is one immutable record in the approval audit log.
type AuditEntry struct {
	ID            string
	TransactionID string
	WorkflowID    *string
	CompanyID     string
	Action        string // submitted | approved | rejected | recalled | escalation_required
	PerformedBy   string
	PerformedAt   time.Time
	StatusBefore  *string
	StatusAfter   *string
	Metadata      map[string]interface{}
}
