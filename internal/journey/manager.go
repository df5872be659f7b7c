package journey

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/common/rediscache"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/compliance"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/config"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/registry"
)

const lockShards = 32

// JourneyStore is the slice of the journey repository the manager
// needs.
type JourneyStore interface {
	UpsertJourney(ctx context.Context, journey *models.SurgicalJourney) error
	ListActiveJourneys(ctx context.Context) ([]*models.SurgicalJourney, error)
}

// CheckLog appends compliance check results to the audit log.
type CheckLog interface {
	AppendCheck(ctx context.Context, result *models.ComplianceCheckResult) error
}

// Alerter dispatches an alert into the escalation engine.
type Alerter interface {
	Dispatch(ctx context.Context, result models.ComplianceCheckResult) (*models.EscalationRecord, error)
}

// OrdersSource queries the clinical-order system for a patient's
// antibiotic picture.
type OrdersSource interface {
	QueryProphylaxisStatus(ctx context.Context, patientID string) (models.ProphylaxisStatus, error)
}

// Manager owns the active-journey cache and coordinates the tracker,
// registry, checker, and escalation engine. Every journey mutation is
// persisted before any alert is dispatched, so a crash never loses an
// alert that was already acted on.
type Manager struct {
	cfg      *config.Config
	store    JourneyStore
	checkLog CheckLog
	checker  *compliance.Checker
	registry *registry.Registry
	alerter  Alerter
	orders   OrdersSource
	redis    *redis.Client
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	journeys  map[string]*models.SurgicalJourney      // journey id -> journey
	byCase    map[string]string                       // case id -> journey id
	byPatient map[string]string                       // patient id -> journey id
	lastAlert map[string]models.ComplianceCheckResult // journey id -> latest alerting result

	// locks serialize read-modify-persist per journey; two sweeps or a
	// sweep and a message handler must never interleave on one journey.
	locks [lockShards]sync.Mutex
}

func NewManager(
	cfg *config.Config,
	store JourneyStore,
	checkLog CheckLog,
	checker *compliance.Checker,
	reg *registry.Registry,
	alerter Alerter,
	orders OrdersSource,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     store,
		checkLog:  checkLog,
		checker:   checker,
		registry:  reg,
		alerter:   alerter,
		orders:    orders,
		redis:     redisClient,
		logger:    logger,
		now:       time.Now,
		journeys:  make(map[string]*models.SurgicalJourney),
		byCase:    make(map[string]string),
		byPatient: make(map[string]string),
		lastAlert: make(map[string]models.ComplianceCheckResult),
	}
}

func (m *Manager) journeyLock(journeyID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(journeyID))
	return &m.locks[h.Sum32()%lockShards]
}

// Reload rebuilds the active-journey cache and re-seeds the schedule
// registry from the database. Called once at process start so window
// partitioning and alert dedup survive a restart.
func (m *Manager) Reload(ctx context.Context) error {
	journeys, err := m.store.ListActiveJourneys(ctx)
	if err != nil {
		return err
	}

	var ops []models.ScheduledOperation
	m.mu.Lock()
	for _, journey := range journeys {
		m.journeys[journey.JourneyID] = journey
		if journey.CaseID != "" {
			m.byCase[journey.CaseID] = journey.JourneyID
		}
		if journey.PatientID != "" {
			m.byPatient[journey.PatientID] = journey.JourneyID
		}
		if journey.Operation != nil {
			op := *journey.Operation
			op.JourneyID = journey.JourneyID
			op.Alerts = journey.Alerts
			ops = append(ops, op)
		}
	}
	m.mu.Unlock()

	m.registry.Restore(ops)
	m.logger.Info("Reloaded active journeys",
		zap.Int("journeys", len(journeys)),
		zap.Int("operations", len(ops)),
	)
	return nil
}

// ActiveCount reports the size of the active-journey cache.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.journeys)
}

// LatestAlert returns the most recent alerting check result for a
// journey; the escalation sweep uses it when re-sending.
func (m *Manager) LatestAlert(journeyID string) (models.ComplianceCheckResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.lastAlert[journeyID]
	return result, ok
}

// HandleLocationUpdate is the tracker sink. It moves the journey's
// current location, fires the unscheduled-OR-entry alert, and
// completes the journey on recovery arrival or discharge.
func (m *Manager) HandleLocationUpdate(ctx context.Context, update models.PatientLocationUpdate) {
	journey := m.journeyForPatient(update.PatientID, update.NewLocationCode, update.NewState)

	lock := m.journeyLock(journey.JourneyID)
	lock.Lock()
	defer lock.Unlock()

	journey.CurrentLocationCode = update.NewLocationCode
	journey.CurrentLocation = update.NewState
	journey.UpdatedAt = m.now()

	switch update.Transition {
	case models.TransitionOREntry:
		m.persist(ctx, journey)
		m.checkOREntry(ctx, journey, update)
	case models.TransitionRecoveryArrival:
		m.complete(ctx, journey, models.JourneyCompleted)
	case models.TransitionDischarge:
		m.complete(ctx, journey, models.JourneyCompleted)
	default:
		m.persist(ctx, journey)
	}
}

// HandleScheduleUpsert is the registry upsert sink: it attaches the
// operation snapshot to the journey, creating the journey when the
// schedule arrives before any tracking message.
func (m *Manager) HandleScheduleUpsert(op models.ScheduledOperation) {
	ctx := context.Background()
	journey := m.journeyForCase(op)

	lock := m.journeyLock(journey.JourneyID)
	lock.Lock()
	defer lock.Unlock()

	snapshot := op
	snapshot.JourneyID = journey.JourneyID
	journey.Operation = &snapshot
	if journey.PatientID == "" && op.PatientID != "" {
		journey.PatientID = op.PatientID
		m.mu.Lock()
		m.byPatient[op.PatientID] = journey.JourneyID
		m.mu.Unlock()
	}
	journey.UpdatedAt = m.now()

	m.registry.LinkJourney(op.CaseID, journey.JourneyID)
	m.persist(ctx, journey)
}

// HandleScheduleCancel is the registry cancel sink.
func (m *Manager) HandleScheduleCancel(caseID string) {
	ctx := context.Background()

	m.mu.Lock()
	journeyID, ok := m.byCase[caseID]
	journey := m.journeys[journeyID]
	m.mu.Unlock()
	if !ok || journey == nil {
		return
	}

	lock := m.journeyLock(journeyID)
	lock.Lock()
	defer lock.Unlock()

	m.complete(ctx, journey, models.JourneyCancelled)
}

// MarkExcluded flags a journey so no further trigger ever alerts on
// it. The reason is kept for audit.
func (m *Manager) MarkExcluded(ctx context.Context, journeyID, reason string) error {
	m.mu.Lock()
	journey, ok := m.journeys[journeyID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	lock := m.journeyLock(journeyID)
	lock.Lock()
	defer lock.Unlock()

	journey.Excluded = true
	journey.ExclusionReason = &reason
	journey.UpdatedAt = m.now()
	return m.store.UpsertJourney(ctx, journey)
}

// journeyForPatient finds or creates the active journey for a tracked
// patient.
func (m *Manager) journeyForPatient(patientID, locationCode string, state models.LocationState) *models.SurgicalJourney {
	m.mu.Lock()
	defer m.mu.Unlock()

	if journeyID, ok := m.byPatient[patientID]; ok {
		if journey, ok := m.journeys[journeyID]; ok {
			return journey
		}
	}

	now := m.now()
	journey := &models.SurgicalJourney{
		JourneyID:           uuid.New().String(),
		PatientID:           patientID,
		CurrentLocationCode: locationCode,
		CurrentLocation:     state,
		Status:              models.JourneyActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	m.journeys[journey.JourneyID] = journey
	m.byPatient[patientID] = journey.JourneyID
	m.logger.Info("Journey created from tracking",
		zap.String("journey_id", journey.JourneyID),
		zap.String("patient_id", patientID),
	)
	return journey
}

// journeyForCase finds or creates the active journey for a scheduled
// case, preferring an existing journey for the same patient.
func (m *Manager) journeyForCase(op models.ScheduledOperation) *models.SurgicalJourney {
	m.mu.Lock()
	defer m.mu.Unlock()

	if journeyID, ok := m.byCase[op.CaseID]; ok {
		if journey, ok := m.journeys[journeyID]; ok {
			return journey
		}
	}
	if op.PatientID != "" {
		if journeyID, ok := m.byPatient[op.PatientID]; ok {
			if journey, ok := m.journeys[journeyID]; ok {
				journey.CaseID = op.CaseID
				m.byCase[op.CaseID] = journeyID
				return journey
			}
		}
	}

	now := m.now()
	journey := &models.SurgicalJourney{
		JourneyID: uuid.New().String(),
		CaseID:    op.CaseID,
		PatientID: op.PatientID,
		Status:    models.JourneyActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.journeys[journey.JourneyID] = journey
	m.byCase[op.CaseID] = journey.JourneyID
	if op.PatientID != "" {
		m.byPatient[op.PatientID] = journey.JourneyID
	}
	m.logger.Info("Journey created from schedule",
		zap.String("journey_id", journey.JourneyID),
		zap.String("case_id", op.CaseID),
	)
	return journey
}

// checkOREntry raises the highest-severity alert when a patient enters
// an operating room without any schedule record. Guarded by the T0
// flag so duplicate tracking messages alert once.
func (m *Manager) checkOREntry(ctx context.Context, journey *models.SurgicalJourney, update models.PatientLocationUpdate) {
	if journey.Operation != nil {
		return
	}
	if len(m.registry.FindByPatient(journey.PatientID)) > 0 {
		return
	}
	if journey.Excluded || journey.Alerts.Sent(models.TriggerT0) {
		return
	}

	result := m.checker.CheckUnscheduledOREntry(journey.JourneyID, journey.PatientID, update.NewLocationCode)

	journey.Alerts.MarkSent(models.TriggerT0)
	journey.UpdatedAt = m.now()
	m.persist(ctx, journey)

	m.recordAndDispatch(ctx, journey, result)
}

func (m *Manager) complete(ctx context.Context, journey *models.SurgicalJourney, status string) {
	if journey.Status != models.JourneyActive {
		return
	}
	now := m.now()
	journey.Status = status
	journey.CompletedAt = &now
	journey.UpdatedAt = now
	m.persist(ctx, journey)

	m.mu.Lock()
	delete(m.journeys, journey.JourneyID)
	if journey.CaseID != "" {
		delete(m.byCase, journey.CaseID)
	}
	if journey.PatientID != "" {
		delete(m.byPatient, journey.PatientID)
	}
	delete(m.lastAlert, journey.JourneyID)
	m.mu.Unlock()

	m.logger.Info("Journey closed",
		zap.String("journey_id", journey.JourneyID),
		zap.String("status", status),
	)
}

func (m *Manager) persist(ctx context.Context, journey *models.SurgicalJourney) {
	if err := m.store.UpsertJourney(ctx, journey); err != nil {
		m.logger.Error("Failed to persist journey",
			zap.String("journey_id", journey.JourneyID),
			zap.Error(err),
		)
	}
}

// recordAndDispatch appends the audit row, publishes to the alert
// stream, and hands the alert to the escalation engine. The journey
// row has already been persisted with its flag set.
func (m *Manager) recordAndDispatch(ctx context.Context, journey *models.SurgicalJourney, result models.ComplianceCheckResult) {
	if err := m.checkLog.AppendCheck(ctx, &result); err != nil {
		m.logger.Error("Failed to append compliance check",
			zap.String("journey_id", journey.JourneyID),
			zap.Error(err),
		)
	}

	m.mu.Lock()
	m.lastAlert[journey.JourneyID] = result
	m.mu.Unlock()

	m.publishAlert(ctx, result)

	if m.alerter != nil {
		if _, err := m.alerter.Dispatch(ctx, result); err != nil {
			m.logger.Error("Failed to dispatch alert",
				zap.String("journey_id", journey.JourneyID),
				zap.Error(err),
			)
		}
	}
}

func (m *Manager) publishAlert(ctx context.Context, result models.ComplianceCheckResult) {
	if m.redis == nil {
		return
	}
	if _, err := rediscache.PublishJSONToStream(ctx, m.redis, m.cfg.Cache.AlertStream, result); err != nil {
		m.logger.Warn("Failed to publish alert to stream",
			zap.String("journey_id", result.JourneyID),
			zap.Error(err),
		)
	}
}
