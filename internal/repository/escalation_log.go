package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// EscalationRepository persists escalation records (escalation_records
// table): one current row per alert plus an append-only history of
// level changes in escalation_history.
type EscalationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEscalationRepository creates the escalation repository.
func NewEscalationRepository(db *sql.DB, logger *zap.Logger) *EscalationRepository {
	return &EscalationRepository{
		db:     db,
		logger: logger,
	}
}

// CreateRecord inserts the level-1 record for a new alert and appends
// the first history row.
func (r *EscalationRepository) CreateRecord(ctx context.Context, record *models.EscalationRecord) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if record.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	channelsJSON, err := json.Marshal(record.ChannelsAttempted)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	query := `
		INSERT INTO escalation_records (
			alert_id,
			journey_id,
			trigger_point,
			level,
			recipient_role,
			recipient_id,
			recipient_name,
			channels_attempted,
			status,
			sent_at,
			acknowledged_at,
			responded_at,
			next_escalation_at,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.AlertID,
		record.JourneyID,
		string(record.Trigger),
		record.Level,
		record.RecipientRole,
		record.RecipientID,
		record.RecipientName,
		channelsJSON,
		record.Status,
		record.SentAt,
		record.AcknowledgedAt,
		record.RespondedAt,
		record.NextEscalationAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create escalation record: %w", err)
	}

	return r.appendHistory(ctx, record)
}

// UpdateRecord overwrites the current row after a level promotion or a
// terminal transition, and appends the history row.
func (r *EscalationRepository) UpdateRecord(ctx context.Context, record *models.EscalationRecord) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if record.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	channelsJSON, err := json.Marshal(record.ChannelsAttempted)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	query := `
		UPDATE escalation_records SET
			level = $2,
			recipient_role = $3,
			recipient_id = $4,
			recipient_name = $5,
			channels_attempted = $6,
			status = $7,
			sent_at = $8,
			acknowledged_at = $9,
			responded_at = $10,
			next_escalation_at = $11,
			updated_at = $12
		WHERE alert_id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		record.AlertID,
		record.Level,
		record.RecipientRole,
		record.RecipientID,
		record.RecipientName,
		channelsJSON,
		record.Status,
		record.SentAt,
		record.AcknowledgedAt,
		record.RespondedAt,
		record.NextEscalationAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update escalation record: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("escalation record not found: %s", record.AlertID)
	}

	return r.appendHistory(ctx, record)
}

// appendHistory writes the append-only audit row for the record's
// current shape.
func (r *EscalationRepository) appendHistory(ctx context.Context, record *models.EscalationRecord) error {
	channelsJSON, err := json.Marshal(record.ChannelsAttempted)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	query := `
		INSERT INTO escalation_history (
			alert_id, journey_id, trigger_point, level, recipient_role, recipient_id,
			channels_attempted, status, sent_at, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()
		)
	`
	_, err = r.db.ExecContext(ctx, query,
		record.AlertID,
		record.JourneyID,
		string(record.Trigger),
		record.Level,
		record.RecipientRole,
		record.RecipientID,
		channelsJSON,
		record.Status,
		record.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append escalation history: %w", err)
	}
	return nil
}

// ListPendingRecords loads unresolved records, used to resume the
// escalation sweep after a restart.
func (r *EscalationRepository) ListPendingRecords(ctx context.Context) ([]*models.EscalationRecord, error) {
	query := `
		SELECT alert_id, journey_id, trigger_point, level, recipient_role, recipient_id, recipient_name,
		       channels_attempted, status, sent_at, acknowledged_at, responded_at, next_escalation_at,
		       created_at, updated_at
		FROM escalation_records
		WHERE status = $1
		ORDER BY sent_at
	`
	rows, err := r.db.QueryContext(ctx, query, models.EscalationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending escalations: %w", err)
	}
	defer rows.Close()

	var records []*models.EscalationRecord
	for rows.Next() {
		var record models.EscalationRecord
		var trigger string
		var channelsJSON []byte
		var acknowledgedAt, respondedAt, nextEscalationAt sql.NullTime
		if err := rows.Scan(
			&record.AlertID,
			&record.JourneyID,
			&trigger,
			&record.Level,
			&record.RecipientRole,
			&record.RecipientID,
			&record.RecipientName,
			&channelsJSON,
			&record.Status,
			&record.SentAt,
			&acknowledgedAt,
			&respondedAt,
			&nextEscalationAt,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan escalation record: %w", err)
		}
		record.Trigger = models.Trigger(trigger)
		if acknowledgedAt.Valid {
			record.AcknowledgedAt = &acknowledgedAt.Time
		}
		if respondedAt.Valid {
			record.RespondedAt = &respondedAt.Time
		}
		if nextEscalationAt.Valid {
			record.NextEscalationAt = &nextEscalationAt.Time
		}
		if len(channelsJSON) > 0 {
			if err := json.Unmarshal(channelsJSON, &record.ChannelsAttempted); err != nil {
				return nil, fmt.Errorf("failed to unmarshal channels: %w", err)
			}
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate escalation records: %w", err)
	}
	return records, nil
}
