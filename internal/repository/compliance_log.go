package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// ComplianceLogRepository is the append-only audit log of checker
// decisions (compliance_checks table). Rows are never updated, so a
// crash mid-cycle loses at most the in-flight check.
type ComplianceLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewComplianceLogRepository creates the compliance log repository.
func NewComplianceLogRepository(db *sql.DB, logger *zap.Logger) *ComplianceLogRepository {
	return &ComplianceLogRepository{
		db:     db,
		logger: logger,
	}
}

// AppendCheck writes one check result.
func (r *ComplianceLogRepository) AppendCheck(ctx context.Context, result *models.ComplianceCheckResult) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}
	if result.CheckID == "" {
		return fmt.Errorf("check_id is required")
	}
	if result.JourneyID == "" {
		return fmt.Errorf("journey_id is required")
	}

	snapshotJSON, err := json.Marshal(result.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO compliance_checks (
			check_id,
			journey_id,
			trigger_point,
			alert_required,
			severity,
			recommendation,
			snapshot,
			checked_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		result.CheckID,
		result.JourneyID,
		string(result.Trigger),
		result.AlertRequired,
		string(result.Severity),
		result.Recommendation,
		snapshotJSON,
		result.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append compliance check: %w", err)
	}
	return nil
}

// ListChecksForJourney returns a journey's checks oldest first.
func (r *ComplianceLogRepository) ListChecksForJourney(ctx context.Context, journeyID string) ([]*models.ComplianceCheckResult, error) {
	if journeyID == "" {
		return nil, fmt.Errorf("journey_id is required")
	}

	query := `
		SELECT check_id, journey_id, trigger_point, alert_required, severity, recommendation, snapshot, checked_at
		FROM compliance_checks
		WHERE journey_id = $1
		ORDER BY checked_at
	`
	rows, err := r.db.QueryContext(ctx, query, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list compliance checks: %w", err)
	}
	defer rows.Close()

	var results []*models.ComplianceCheckResult
	for rows.Next() {
		var result models.ComplianceCheckResult
		var trigger, severity string
		var snapshotJSON []byte
		if err := rows.Scan(
			&result.CheckID,
			&result.JourneyID,
			&trigger,
			&result.AlertRequired,
			&severity,
			&result.Recommendation,
			&snapshotJSON,
			&result.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan compliance check: %w", err)
		}
		result.Trigger = models.Trigger(trigger)
		result.Severity = models.Severity(severity)
		if len(snapshotJSON) > 0 {
			if err := json.Unmarshal(snapshotJSON, &result.Snapshot); err != nil {
				return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
			}
		}
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate compliance checks: %w", err)
	}
	return results, nil
}
