package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/config"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// RecipientResolver maps a role to a concrete person. Supplied by the
// deployment (on-call roster, staffing system).
type RecipientResolver func(ctx context.Context, role string) (recipientID, recipientName string, err error)

// Channel delivers one alert to one recipient. Implementations must
// not block indefinitely; a failed send is logged by the engine and
// never stops the other channels.
type Channel interface {
	Name() string
	Send(ctx context.Context, result models.ComplianceCheckResult, role, recipientID, recipientName string) error
}

// RecordStore is the slice of the escalation repository the engine
// needs.
type RecordStore interface {
	CreateRecord(ctx context.Context, record *models.EscalationRecord) error
	UpdateRecord(ctx context.Context, record *models.EscalationRecord) error
	ListPendingRecords(ctx context.Context) ([]*models.EscalationRecord, error)
}

// ResultLookup returns the latest unresolved check result for a
// journey. The sweep uses it to re-send current content instead of a
// stale snapshot; returning false means the gap has since cleared.
type ResultLookup func(journeyID string) (models.ComplianceCheckResult, bool)

// pendingAlert pairs a record with its own mutex. Every
// read-modify-persist of the record (promotion, exhaustion,
// acknowledgment) runs under this mutex, so a resolution and an
// in-flight promotion serialize instead of racing on the shared
// record.
type pendingAlert struct {
	mu     sync.Mutex
	record *models.EscalationRecord
}

// Engine routes alerts to recipients, fans out across channels, and
// promotes unacknowledged alerts through the escalation chain.
//
// Lock order: an alert's own mutex first, then the engine map mutex.
type Engine struct {
	store    RecordStore
	resolver RecipientResolver
	channels []Channel
	rules    map[models.Trigger]Rule
	delay    time.Duration
	interval time.Duration
	maxLevel int
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingAlert
}

func NewEngine(cfg *config.Config, store RecordStore, resolver RecipientResolver, channels []Channel, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		resolver: resolver,
		channels: channels,
		rules:    defaultRules,
		delay:    time.Duration(cfg.Escalation.AckDelayMinutes) * time.Minute,
		interval: time.Duration(cfg.Escalation.SweepSeconds) * time.Second,
		maxLevel: cfg.Escalation.MaxLevel,
		logger:   logger,
		now:      time.Now,
		pending:  make(map[string]*pendingAlert),
	}
}

// Resume reloads unresolved records so the sweep continues escalating
// alerts dispatched before a restart.
func (e *Engine) Resume(ctx context.Context) error {
	records, err := e.store.ListPendingRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to resume escalations: %w", err)
	}

	e.mu.Lock()
	for _, record := range records {
		e.pending[record.AlertID] = &pendingAlert{record: record}
	}
	e.mu.Unlock()

	if len(records) > 0 {
		e.logger.Info("Resumed pending escalations", zap.Int("count", len(records)))
	}
	return nil
}

// Dispatch sends a fresh alert at level 1 and, when the rule expects
// acknowledgment and has somewhere to escalate, schedules the first
// re-check.
func (e *Engine) Dispatch(ctx context.Context, result models.ComplianceCheckResult) (*models.EscalationRecord, error) {
	rule, ok := e.rules[result.Trigger]
	if !ok {
		return nil, fmt.Errorf("no escalation rule for trigger %s", result.Trigger)
	}

	now := e.now()
	record := &models.EscalationRecord{
		AlertID:       uuid.New().String(),
		JourneyID:     result.JourneyID,
		Trigger:       result.Trigger,
		Level:         1,
		RecipientRole: rule.PrimaryRole,
		Status:        models.EscalationPending,
		SentAt:        now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	record.RecipientID, record.RecipientName = e.resolveRecipient(ctx, rule.PrimaryRole)
	record.ChannelsAttempted = e.sendAll(ctx, result, record, e.channelsFor(rule))

	if rule.RequireAck {
		due := now.Add(e.delay)
		record.NextEscalationAt = &due
	}

	if err := e.store.CreateRecord(ctx, record); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.pending[record.AlertID] = &pendingAlert{record: record}
	e.mu.Unlock()

	e.logger.Info("Alert dispatched",
		zap.String("alert_id", record.AlertID),
		zap.String("journey_id", record.JourneyID),
		zap.String("trigger", string(record.Trigger)),
		zap.String("severity", string(result.Severity)),
		zap.String("recipient_role", record.RecipientRole),
	)
	return record, nil
}

// Run drives the escalation sweep until the context is cancelled.
func (e *Engine) Run(ctx context.Context, lookup ResultLookup) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("Escalation sweep started", zap.Duration("interval", e.interval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Escalation sweep stopped")
			return
		case <-ticker.C:
			e.Sweep(ctx, lookup)
		}
	}
}

// Sweep promotes every pending record whose due time has passed.
// Called periodically; each promotion re-resolves the next role in the
// chain, re-sends, and bumps the level exactly once. Due-ness is
// re-checked under the alert's mutex so a resolution that landed after
// the map snapshot wins.
func (e *Engine) Sweep(ctx context.Context, lookup ResultLookup) {
	now := e.now()

	e.mu.Lock()
	entries := make([]*pendingAlert, 0, len(e.pending))
	for _, entry := range e.pending {
		entries = append(entries, entry)
	}
	e.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		record := entry.record
		if record.Status == models.EscalationPending &&
			record.NextEscalationAt != nil && !record.NextEscalationAt.After(now) {
			e.promote(ctx, record, lookup)
		}
		entry.mu.Unlock()
	}
}

// promote runs under the alert's mutex.
func (e *Engine) promote(ctx context.Context, record *models.EscalationRecord, lookup ResultLookup) {
	rule := e.rules[record.Trigger]
	nextLevel := record.Level + 1
	role, ok := rule.roleForLevel(nextLevel)
	if !ok || record.Level >= e.maxLevel {
		// Chain spent and the final acknowledgment window has closed.
		e.exhaust(ctx, record)
		return
	}

	check, found := lookup(record.JourneyID)
	if !found {
		// The journey resolved itself (alert condition cleared) while
		// the escalation was waiting. Nothing left to send.
		e.exhaust(ctx, record)
		return
	}

	now := e.now()
	record.Level = nextLevel
	record.RecipientRole = role
	record.RecipientID, record.RecipientName = e.resolveRecipient(ctx, role)
	record.SentAt = now
	record.UpdatedAt = now
	record.ChannelsAttempted = e.sendAll(ctx, check, record, e.channelsFor(rule))

	// Always schedule the next check: either a further promotion or
	// the final acknowledgment window before the record exhausts.
	due := now.Add(e.delay)
	record.NextEscalationAt = &due

	if err := e.store.UpdateRecord(ctx, record); err != nil {
		e.logger.Error("Failed to persist escalation promotion",
			zap.String("alert_id", record.AlertID),
			zap.Error(err),
		)
		return
	}

	e.logger.Warn("Alert escalated",
		zap.String("alert_id", record.AlertID),
		zap.String("journey_id", record.JourneyID),
		zap.Int("level", record.Level),
		zap.String("recipient_role", record.RecipientRole),
	)
}

// exhaust runs under the alert's mutex.
func (e *Engine) exhaust(ctx context.Context, record *models.EscalationRecord) {
	record.Status = models.EscalationExhausted
	record.NextEscalationAt = nil
	record.UpdatedAt = e.now()

	if err := e.store.UpdateRecord(ctx, record); err != nil {
		e.logger.Error("Failed to persist escalation exhaustion",
			zap.String("alert_id", record.AlertID),
			zap.Error(err),
		)
		return
	}

	e.mu.Lock()
	delete(e.pending, record.AlertID)
	e.mu.Unlock()

	e.logger.Warn("Escalation chain exhausted",
		zap.String("alert_id", record.AlertID),
		zap.String("journey_id", record.JourneyID),
		zap.Int("level", record.Level),
	)
}

// Acknowledge marks an alert acknowledged and cancels any pending
// re-check. Acknowledging an already-terminal alert is a no-op.
func (e *Engine) Acknowledge(ctx context.Context, alertID string) error {
	return e.resolve(ctx, alertID, models.EscalationAcknowledged)
}

// RecordResponse marks an alert responded-to. Idempotent like
// Acknowledge.
func (e *Engine) RecordResponse(ctx context.Context, alertID string) error {
	return e.resolve(ctx, alertID, models.EscalationResponded)
}

func (e *Engine) resolve(ctx context.Context, alertID, status string) error {
	e.mu.Lock()
	entry, ok := e.pending[alertID]
	e.mu.Unlock()

	if !ok {
		// Already terminal (or never dispatched here); nothing to do.
		e.logger.Debug("Ignoring resolution for unknown or resolved alert",
			zap.String("alert_id", alertID),
			zap.String("status", status),
		)
		return nil
	}

	// Taking the alert mutex serializes with an in-flight promotion;
	// once this returns the record can never be re-sent.
	entry.mu.Lock()
	defer entry.mu.Unlock()

	record := entry.record
	if record.Terminal() {
		return nil
	}

	now := e.now()
	record.Status = status
	record.NextEscalationAt = nil
	record.UpdatedAt = now
	switch status {
	case models.EscalationAcknowledged:
		record.AcknowledgedAt = &now
	case models.EscalationResponded:
		record.RespondedAt = &now
	}

	if err := e.store.UpdateRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to resolve alert %s: %w", alertID, err)
	}

	e.mu.Lock()
	delete(e.pending, alertID)
	e.mu.Unlock()

	e.logger.Info("Alert resolved",
		zap.String("alert_id", alertID),
		zap.String("status", status),
	)
	return nil
}

// PendingCount reports how many alerts still await acknowledgment.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// sendAll delivers through every given channel independently. A failed
// channel is logged and counted; the remaining channels still run.
func (e *Engine) sendAll(ctx context.Context, result models.ComplianceCheckResult, record *models.EscalationRecord, channels []Channel) []string {
	attempted := make([]string, 0, len(channels))
	failures := 0
	for _, channel := range channels {
		attempted = append(attempted, channel.Name())
		if err := channel.Send(ctx, result, record.RecipientRole, record.RecipientID, record.RecipientName); err != nil {
			failures++
			e.logger.Error("Channel send failed",
				zap.String("channel", channel.Name()),
				zap.String("alert_id", record.AlertID),
				zap.Error(err),
			)
		}
	}
	if failures == len(channels) && len(channels) > 0 {
		e.logger.Error("All channels failed for alert",
			zap.String("alert_id", record.AlertID),
			zap.String("journey_id", record.JourneyID),
		)
	}
	return attempted
}

func (e *Engine) resolveRecipient(ctx context.Context, role string) (string, string) {
	if e.resolver == nil {
		return "", ""
	}
	id, name, err := e.resolver(ctx, role)
	if err != nil {
		// Send to the role address anyway rather than dropping the alert.
		e.logger.Warn("Recipient resolution failed, sending to role",
			zap.String("role", role),
			zap.Error(err),
		)
		return "", ""
	}
	return id, name
}

// channelsFor narrows the configured channels to the rule's channel
// set. A rule without one uses every configured channel.
func (e *Engine) channelsFor(rule Rule) []Channel {
	if len(rule.Channels) == 0 {
		return e.channels
	}
	allowed := make(map[string]bool, len(rule.Channels))
	for _, name := range rule.Channels {
		allowed[name] = true
	}
	out := make([]Channel, 0, len(e.channels))
	for _, channel := range e.channels {
		if allowed[channel.Name()] {
			out = append(out, channel)
		}
	}
	return out
}
