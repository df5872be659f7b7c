package registry

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/config"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// Registry maintains the upcoming-operation set from two sources:
// booking-system polls and SIU/ORM scheduling messages. The operation
// map is owned exclusively by the registry and mutated only through
// its methods (single-writer discipline).
type Registry struct {
	cfg    *config.Config
	logger *zap.Logger

	mu  sync.Mutex
	ops map[string]*models.ScheduledOperation // keyed by case id

	// Sinks wired to the journey manager.
	onUpsert func(op models.ScheduledOperation)
	onCancel func(caseID string)
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *config.Config, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:    cfg,
		logger: logger,
		ops:    make(map[string]*models.ScheduledOperation),
	}
}

// SetSinks wires the consumers of schedule changes.
func (r *Registry) SetSinks(onUpsert func(models.ScheduledOperation), onCancel func(string)) {
	r.onUpsert = onUpsert
	r.onCancel = onCancel
}

// UpsertFromPoll merges one operation observed on the booking
// interface. Returns the merged copy.
func (r *Registry) UpsertFromPoll(incoming models.ScheduledOperation) models.ScheduledOperation {
	return r.upsert(incoming, "poll")
}

// UpsertFromMessage merges one operation normalized from a scheduling
// message. Returns the merged copy.
func (r *Registry) UpsertFromMessage(incoming models.ScheduledOperation) models.ScheduledOperation {
	return r.upsert(incoming, "message")
}

// upsert merges by case id: schedule-derived fields overwrite when they
// materially differ; alert-sent flags, journey linkage, and prophylaxis
// status survive the merge.
func (r *Registry) upsert(incoming models.ScheduledOperation, source string) models.ScheduledOperation {
	now := time.Now()

	r.mu.Lock()
	existing, ok := r.ops[incoming.CaseID]
	if !ok {
		op := incoming
		if op.CreatedAt.IsZero() {
			op.CreatedAt = now
		}
		op.UpdatedAt = now
		r.ops[op.CaseID] = &op
		r.mu.Unlock()

		r.logger.Info("Scheduled operation registered",
			zap.String("case_id", op.CaseID),
			zap.String("patient_id", op.PatientID),
			zap.Time("scheduled_time", op.ScheduledTime),
			zap.String("source", source),
		)
		r.notifyUpsert(op)
		return op
	}

	changed := false
	if !incoming.ScheduledTime.IsZero() && !incoming.ScheduledTime.Equal(existing.ScheduledTime) {
		existing.ScheduledTime = incoming.ScheduledTime
		changed = true
	}
	if incoming.PatientID != "" && incoming.PatientID != existing.PatientID {
		existing.PatientID = incoming.PatientID
		changed = true
	}
	if len(incoming.ProcedureCodes) > 0 &&
		(!equalCodes(incoming.ProcedureCodes, existing.ProcedureCodes) ||
			incoming.ProcedureDescription != existing.ProcedureDescription) {
		existing.ProcedureCodes = incoming.ProcedureCodes
		existing.ProcedureDescription = incoming.ProcedureDescription
		changed = true
	}
	if incoming.Location != "" && incoming.Location != existing.Location {
		existing.Location = incoming.Location
		changed = true
	}
	if incoming.Surgeon != "" && incoming.Surgeon != existing.Surgeon {
		existing.Surgeon = incoming.Surgeon
		changed = true
	}
	if incoming.Emergency && !existing.Emergency {
		existing.Emergency = true
		changed = true
	}

	// A poll cycle re-observing an unchanged booking is not an update;
	// the sink hears only about first observations and material changes.
	if !changed {
		op := *existing
		r.mu.Unlock()
		return op
	}

	existing.UpdatedAt = now
	op := *existing
	r.mu.Unlock()

	r.logger.Info("Scheduled operation updated",
		zap.String("case_id", op.CaseID),
		zap.Time("scheduled_time", op.ScheduledTime),
		zap.String("source", source),
	)
	r.notifyUpsert(op)
	return op
}

func (r *Registry) notifyUpsert(op models.ScheduledOperation) {
	if r.onUpsert != nil {
		r.onUpsert(op)
	}
}

// Cancel removes an operation (SIU S15) and notifies the journey
// manager. Unknown case ids are ignored.
func (r *Registry) Cancel(caseID string) {
	r.mu.Lock()
	_, ok := r.ops[caseID]
	if ok {
		delete(r.ops, caseID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.logger.Info("Scheduled operation cancelled", zap.String("case_id", caseID))
	if r.onCancel != nil {
		r.onCancel(caseID)
	}
}

// GetByCase returns a copy of the operation for a case id.
func (r *Registry) GetByCase(caseID string) (models.ScheduledOperation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[caseID]
	if !ok {
		return models.ScheduledOperation{}, false
	}
	return *op, true
}

// FindByPatient returns copies of all operations for a patient, soonest
// first.
func (r *Registry) FindByPatient(patientID string) []models.ScheduledOperation {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.ScheduledOperation
	for _, op := range r.ops {
		if op.PatientID == patientID {
			out = append(out, *op)
		}
	}
	sortByScheduledTime(out)
	return out
}

// NeedsTrigger partitions all non-past operations into the four
// disjoint trigger buckets, returning only those whose alert for that
// trigger has not fired yet.
func (r *Registry) NeedsTrigger(now time.Time) map[models.Trigger][]models.ScheduledOperation {
	r.mu.Lock()
	defer r.mu.Unlock()

	buckets := make(map[models.Trigger][]models.ScheduledOperation)
	for _, op := range r.ops {
		trigger, ok := TriggerFor(op.MinutesUntil(now))
		if !ok {
			continue
		}
		if op.Alerts.Sent(trigger) {
			continue
		}
		buckets[trigger] = append(buckets[trigger], *op)
	}
	return buckets
}

// MarkAlertSent flips one alert flag for a case (false→true once).
func (r *Registry) MarkAlertSent(caseID string, trigger models.Trigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if op, ok := r.ops[caseID]; ok {
		op.Alerts.MarkSent(trigger)
	}
}

// LinkJourney records the journey owning a case.
func (r *Registry) LinkJourney(caseID, journeyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if op, ok := r.ops[caseID]; ok {
		op.JourneyID = journeyID
	}
}

// SetProphylaxisStatus updates the order/administration flags from the
// prophylaxis refresh.
func (r *Registry) SetProphylaxisStatus(caseID string, ordered, administered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if op, ok := r.ops[caseID]; ok {
		op.ProphylaxisOrdered = ordered
		op.ProphylaxisAdministered = administered
		op.UpdatedAt = time.Now()
	}
}

// Retire drops operations whose scheduled time is more than the
// retention window in the past. Returns how many were retired.
func (r *Registry) Retire(now time.Time) int {
	retention := time.Duration(r.cfg.Schedule.RetentionHours) * time.Hour

	r.mu.Lock()
	defer r.mu.Unlock()

	retired := 0
	for caseID, op := range r.ops {
		if !op.ScheduledTime.IsZero() && now.Sub(op.ScheduledTime) > retention {
			delete(r.ops, caseID)
			retired++
		}
	}
	if retired > 0 {
		r.logger.Info("Retired past operations", zap.Int("count", retired))
	}
	return retired
}

// Restore seeds the registry from persisted journey snapshots at
// process start, bypassing the sinks.
func (r *Registry) Restore(ops []models.ScheduledOperation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range ops {
		op := ops[i]
		r.ops[op.CaseID] = &op
	}
}

// Size reports how many operations are tracked.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

func equalCodes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortByScheduledTime(ops []models.ScheduledOperation) {
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].ScheduledTime.Before(ops[j].ScheduledTime)
	})
}
