package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/finvela/gl-approvals/internal/platform/logger"
)

// EscalationService periodically re-surfaces workflows that are stuck:
// either parked in escalation_required (segregation-of-duties emptied
// the eligible set) or pending longer than the overdue interval. Each
// sweep re-publishes an escalation event so an administrator assigns an
// approver manually; the sweep never mutates workflow state itself.
type EscalationService struct {
	wfStore  WorkflowStore
	notifier Notifier
	log      *logger.Logger
	overdue  time.Duration
	cron     *cron.Cron
}

// NewEscalationService creates a new EscalationService. overdue is how
// long a workflow may sit pending before it is flagged.
func NewEscalationService(wfStore WorkflowStore, notifier Notifier, log *logger.Logger, overdue time.Duration) *EscalationService {
	return &EscalationService{
		wfStore:  wfStore,
		notifier: notifier,
		log:      log,
		overdue:  overdue,
	}
}

// Start schedules the sweep on the given cron spec (e.g. "@every 15m").
func (s *EscalationService) Start(spec string) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("Escalation sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", spec).Msg("Escalation sweep scheduled")
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (s *EscalationService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep publishes escalation events for stuck workflows.
func (s *EscalationService) Sweep(ctx context.Context) error {
	stuck, err := s.wfStore.ListByStatus(ctx, WorkflowEscalationRequired, nil)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-s.overdue)
	overdue, err := s.wfStore.ListByStatus(ctx, WorkflowPending, &cutoff)
	if err != nil {
		return err
	}

	for _, wf := range append(stuck, overdue...) {
		s.notifier.PublishApprovalEvent(ctx, "escalation_required",
			wf.TransactionID, wf.CompanyID, wf.SubmittedBy,
			[]string{wf.SubmittedBy}, map[string]interface{}{
				"workflow_id":   wf.ID,
				"required_tier": wf.RequiredTier,
				"submitted_at":  wf.SubmittedAt,
				"reason":        escalationReason(wf.Status),
			})
	}

	if n := len(stuck) + len(overdue); n > 0 {
		s.log.Info().
			Int("stuck", len(stuck)).
			Int("overdue", len(overdue)).
			Msg("Escalation sweep published events")
	}
	return nil
}

func escalationReason(status string) string {
	if status == WorkflowEscalationRequired {
		return "no_eligible_approver"
	}
	return "approval_overdue"
}
