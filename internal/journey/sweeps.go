package journey

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/compliance"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// RunTriggerSweep evaluates trigger windows until the context is
// cancelled.
func (m *Manager) RunTriggerSweep(ctx context.Context) {
	interval := time.Duration(m.cfg.Journey.TriggerSweepSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("Trigger sweep started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Trigger sweep stopped")
			return
		case <-ticker.C:
			m.TriggerSweepOnce(ctx)
		}
	}
}

// TriggerSweepOnce partitions the schedule into trigger buckets and
// evaluates every operation whose window is open and unalerted.
func (m *Manager) TriggerSweepOnce(ctx context.Context) {
	buckets := m.registry.NeedsTrigger(m.now())
	for _, trigger := range models.AllTriggers {
		for _, op := range buckets[trigger] {
			m.evaluateTrigger(ctx, trigger, op)
		}
	}
}

// evaluateTrigger runs one compliance check for one operation at one
// trigger point. The journey's flag is set and persisted before the
// alert leaves the process.
func (m *Manager) evaluateTrigger(ctx context.Context, trigger models.Trigger, op models.ScheduledOperation) {
	journey := m.journeyForCase(op)

	lock := m.journeyLock(journey.JourneyID)
	lock.Lock()
	defer lock.Unlock()

	if journey.Status != models.JourneyActive {
		return
	}
	if journey.Alerts.Sent(trigger) {
		return
	}

	if journey.Operation == nil {
		snapshot := op
		snapshot.JourneyID = journey.JourneyID
		journey.Operation = &snapshot
		m.registry.LinkJourney(op.CaseID, journey.JourneyID)
	}

	status := m.prophylaxisStatus(ctx, journey)

	exclusionReason := ""
	if journey.ExclusionReason != nil {
		exclusionReason = *journey.ExclusionReason
	}
	result := m.checker.Check(compliance.Input{
		JourneyID:       journey.JourneyID,
		Operation:       op,
		Status:          status,
		Location:        journey.CurrentLocation,
		Excluded:        journey.Excluded,
		ExclusionReason: exclusionReason,
		Trigger:         trigger,
	})

	// Every evaluation is logged, alerting or not.
	if !result.AlertRequired {
		if err := m.checkLog.AppendCheck(ctx, &result); err != nil {
			m.logger.Error("Failed to append compliance check",
				zap.String("journey_id", journey.JourneyID),
				zap.Error(err),
			)
		}
		// A clean check closes out any stale alert content.
		if status.Administered {
			m.mu.Lock()
			delete(m.lastAlert, journey.JourneyID)
			m.mu.Unlock()
		}
		return
	}

	journey.Alerts.MarkSent(trigger)
	journey.UpdatedAt = m.now()
	m.persist(ctx, journey)
	m.registry.MarkAlertSent(op.CaseID, trigger)

	m.recordAndDispatch(ctx, journey, result)
}

// prophylaxisStatus queries the order system at evaluation time,
// falling back to the journey's last refreshed picture when the query
// fails.
func (m *Manager) prophylaxisStatus(ctx context.Context, journey *models.SurgicalJourney) models.ProphylaxisStatus {
	if m.orders != nil && journey.PatientID != "" {
		status, err := m.orders.QueryProphylaxisStatus(ctx, journey.PatientID)
		if err == nil {
			m.applyStatus(journey, status)
			return status
		}
		m.logger.Warn("Order query failed, using cached prophylaxis status",
			zap.String("journey_id", journey.JourneyID),
			zap.Error(err),
		)
	}
	return models.ProphylaxisStatus{
		OrderExists:       journey.ProphylaxisOrdered,
		Administered:      journey.ProphylaxisAdministered,
		TherapeuticActive: journey.TherapeuticAntibiotics,
	}
}

func (m *Manager) applyStatus(journey *models.SurgicalJourney, status models.ProphylaxisStatus) {
	journey.ProphylaxisOrdered = status.OrderExists
	journey.ProphylaxisAdministered = status.Administered
	journey.TherapeuticAntibiotics = status.TherapeuticActive
	if journey.CaseID != "" {
		m.registry.SetProphylaxisStatus(journey.CaseID, status.OrderExists, status.Administered)
	}
}

// RunRefreshSweep keeps each active journey's prophylaxis picture
// current between trigger windows.
func (m *Manager) RunRefreshSweep(ctx context.Context) {
	interval := time.Duration(m.cfg.Journey.RefreshSweepSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("Prophylaxis refresh sweep started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Prophylaxis refresh sweep stopped")
			return
		case <-ticker.C:
			m.RefreshSweepOnce(ctx)
		}
	}
}

// RefreshSweepOnce re-queries the order system for every active
// journey. Query failures are logged and retried next cycle.
func (m *Manager) RefreshSweepOnce(ctx context.Context) {
	if m.orders == nil {
		return
	}

	m.mu.Lock()
	ids := make([]string, 0, len(m.journeys))
	for id := range m.journeys {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.refreshJourney(ctx, id)
	}
}

func (m *Manager) refreshJourney(ctx context.Context, journeyID string) {
	m.mu.Lock()
	journey, ok := m.journeys[journeyID]
	m.mu.Unlock()
	if !ok || journey.PatientID == "" {
		return
	}

	lock := m.journeyLock(journeyID)
	lock.Lock()
	defer lock.Unlock()

	status, err := m.orders.QueryProphylaxisStatus(ctx, journey.PatientID)
	if err != nil {
		m.logger.Warn("Prophylaxis refresh failed",
			zap.String("journey_id", journeyID),
			zap.Error(err),
		)
		return
	}

	changed := status.OrderExists != journey.ProphylaxisOrdered ||
		status.Administered != journey.ProphylaxisAdministered ||
		status.TherapeuticActive != journey.TherapeuticAntibiotics
	if !changed {
		return
	}

	m.applyStatus(journey, status)
	journey.UpdatedAt = m.now()
	m.persist(ctx, journey)

	if status.Administered {
		m.mu.Lock()
		delete(m.lastAlert, journeyID)
		m.mu.Unlock()
	}
}
