package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/config"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/hl7"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// Tracking trigger events the state machine accepts. Anything else on
// the ADT feed is ignored (still acknowledged by the listener).
var acceptedTriggers = map[string]bool{
	"A01": true, // admit
	"A02": true, // transfer
	"A03": true, // discharge
	"A04": true, // register
	"A08": true, // update
}

// HistoryAppender persists processed updates to the per-patient
// append-only log.
type HistoryAppender interface {
	AppendUpdate(ctx context.Context, update *models.PatientLocationUpdate) error
}

// UpdateSink consumes transition events; wired to the journey manager.
type UpdateSink func(ctx context.Context, update models.PatientLocationUpdate)

// Tracker is the per-patient location state machine. Every accepted
// tracking message updates state last-write-wins; out-of-order and
// duplicate messages are applied, not rejected.
type Tracker struct {
	cfg         *config.Config
	redisClient *redis.Client
	historyRepo HistoryAppender
	logger      *zap.Logger

	mu     sync.Mutex
	states map[string]patientState

	sink UpdateSink
}

type patientState struct {
	code  string
	state models.LocationState
}

// NewTracker creates the tracker. redisClient may be nil (no location
// mirror).
func NewTracker(cfg *config.Config, redisClient *redis.Client, historyRepo HistoryAppender, logger *zap.Logger) *Tracker {
	return &Tracker{
		cfg:         cfg,
		redisClient: redisClient,
		historyRepo: historyRepo,
		logger:      logger,
		states:      make(map[string]patientState),
	}
}

// SetSink wires the consumer of transition events.
func (t *Tracker) SetSink(sink UpdateSink) {
	t.sink = sink
}

// CurrentState returns the tracked location for a patient, if any.
func (t *Tracker) CurrentState(patientID string) (string, models.LocationState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[patientID]
	if !ok {
		return "", models.LocationUnknown, false
	}
	return st.code, st.state, true
}

// HandleMessage is the ADT handler registered on the listener.
//
// A message without a resolvable patient identifier is logged and
// dropped without creating or mutating any entry; that is a fail-safe
// default, not a processing error, so the frame is still ACK'd AA.
func (t *Tracker) HandleMessage(ctx context.Context, msg *hl7.Message) error {
	trigger := msg.TriggerEvent()
	if !acceptedTriggers[trigger] {
		t.logger.Debug("Ignoring ADT trigger event",
			zap.String("trigger_event", trigger),
			zap.String("control_id", msg.ControlID()),
		)
		return nil
	}

	patientID := resolvePatientID(msg)
	if patientID == "" {
		t.logger.Warn("Dropping tracking message without patient identifier",
			zap.String("message_type", msg.TypeAndTrigger()),
			zap.String("control_id", msg.ControlID()),
		)
		return nil
	}

	locationCode := resolveLocationCode(msg)
	eventTime := resolveEventTime(msg)

	update := t.applyUpdate(patientID, trigger, locationCode, eventTime, msg.ControlID())

	// Persist the history row before anything acts on the transition.
	if err := t.historyRepo.AppendUpdate(ctx, &update); err != nil {
		return fmt.Errorf("failed to persist location update: %w", err)
	}

	t.mirrorToRedis(ctx, update)

	if t.sink != nil {
		t.sink(ctx, update)
	}
	return nil
}

// applyUpdate mutates the state machine and computes the fired
// transition event under the tracker lock.
func (t *Tracker) applyUpdate(patientID, trigger, locationCode string, eventTime time.Time, messageID string) models.PatientLocationUpdate {
	newState := Classify(locationCode)
	if trigger == "A03" {
		// Discharge is unconditional regardless of the location code.
		newState = models.LocationDischarged
	}

	t.mu.Lock()
	prior, existed := t.states[patientID]
	if !existed {
		prior = patientState{state: models.LocationUnknown}
	}

	if newState == models.LocationDischarged {
		// Terminal: tracking entry removed.
		delete(t.states, patientID)
	} else {
		t.states[patientID] = patientState{code: locationCode, state: newState}
	}
	t.mu.Unlock()

	update := models.PatientLocationUpdate{
		PatientID:         patientID,
		NewLocationCode:   locationCode,
		NewState:          newState,
		PriorLocationCode: prior.code,
		PriorState:        prior.state,
		Transition:        transitionFor(prior.state, newState),
		EventTime:         eventTime,
		SourceMessageID:   messageID,
	}

	t.logger.Debug("Location updated",
		zap.String("patient_id", patientID),
		zap.String("location_code", locationCode),
		zap.String("state", string(newState)),
		zap.String("transition", string(update.Transition)),
	)
	return update
}

// transitionFor fires at most one pathway event per accepted message.
func transitionFor(prior, next models.LocationState) models.TransitionEvent {
	switch next {
	case models.LocationDischarged:
		return models.TransitionDischarge
	case models.LocationPreOpHolding:
		if prior != models.LocationORSuite && prior != models.LocationPACU && prior != models.LocationPreOpHolding {
			return models.TransitionPreOpArrival
		}
	case models.LocationORSuite:
		if prior != models.LocationORSuite {
			return models.TransitionOREntry
		}
	case models.LocationPACU:
		if prior != models.LocationPACU {
			return models.TransitionRecoveryArrival
		}
	}
	return models.TransitionNone
}

// mirrorToRedis writes the current location for operator visibility.
// A cache failure never fails the update.
func (t *Tracker) mirrorToRedis(ctx context.Context, update models.PatientLocationUpdate) {
	if t.redisClient == nil {
		return
	}

	key := t.cfg.Cache.LocationKeyPrefix + update.PatientID + t.cfg.Cache.LocationKeySuffix
	jsonData, err := json.Marshal(update)
	if err != nil {
		t.logger.Error("Failed to marshal location update", zap.Error(err))
		return
	}

	ttl := time.Duration(t.cfg.Cache.LocationTTLSeconds) * time.Second
	if err := t.redisClient.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		t.logger.Error("Failed to mirror location to cache",
			zap.String("patient_id", update.PatientID),
			zap.Error(err),
		)
	}
}

// resolvePatientID tries PID-3 (first repetition, first component),
// then PID-2, then PID-4.
func resolvePatientID(msg *hl7.Message) string {
	pid := msg.Segment("PID")
	if pid == nil {
		return ""
	}
	if reps := pid.Repetitions(3); len(reps) > 0 {
		if id := firstComponent(reps[0], msg.Delimiters.Component); id != "" {
			return id
		}
	}
	if id := pid.Component(2, 1); id != "" {
		return id
	}
	return pid.Component(4, 1)
}

// resolveLocationCode reads PV1-3 (assigned patient location), taking
// the point-of-care component.
func resolveLocationCode(msg *hl7.Message) string {
	pv1 := msg.Segment("PV1")
	if pv1 == nil {
		return ""
	}
	return pv1.Component(3, 1)
}

// resolveEventTime prefers EVN-2, then the header timestamp, then now.
func resolveEventTime(msg *hl7.Message) time.Time {
	if evn := msg.Segment("EVN"); evn != nil {
		if ts := hl7.ParseTimestamp(evn.Field(2)); !ts.IsZero() {
			return ts
		}
	}
	if ts := msg.Timestamp(); !ts.IsZero() {
		return ts
	}
	return time.Now()
}

func firstComponent(value string, sep byte) string {
	for i := 0; i < len(value); i++ {
		if value[i] == sep {
			return value[:i]
		}
	}
	return value
}
