package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// LocationHistoryRepository is the append-only per-patient log of
// processed tracking updates (location_history table).
type LocationHistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLocationHistoryRepository creates the location history repository.
func NewLocationHistoryRepository(db *sql.DB, logger *zap.Logger) *LocationHistoryRepository {
	return &LocationHistoryRepository{
		db:     db,
		logger: logger,
	}
}

// AppendUpdate writes one processed tracking update.
func (r *LocationHistoryRepository) AppendUpdate(ctx context.Context, update *models.PatientLocationUpdate) error {
	if update == nil {
		return fmt.Errorf("update is required")
	}
	if update.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}

	query := `
		INSERT INTO location_history (
			patient_id,
			new_location_code,
			new_state,
			prior_location_code,
			prior_state,
			transition,
			event_time,
			source_message_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		update.PatientID,
		update.NewLocationCode,
		string(update.NewState),
		update.PriorLocationCode,
		string(update.PriorState),
		string(update.Transition),
		update.EventTime,
		update.SourceMessageID,
	)
	if err != nil {
		return fmt.Errorf("failed to append location update: %w", err)
	}
	return nil
}

// ListUpdatesForPatient returns a patient's location history oldest
// first.
func (r *LocationHistoryRepository) ListUpdatesForPatient(ctx context.Context, patientID string) ([]*models.PatientLocationUpdate, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	query := `
		SELECT patient_id, new_location_code, new_state, prior_location_code, prior_state, transition, event_time, source_message_id
		FROM location_history
		WHERE patient_id = $1
		ORDER BY event_time
	`
	rows, err := r.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list location history: %w", err)
	}
	defer rows.Close()

	var updates []*models.PatientLocationUpdate
	for rows.Next() {
		var update models.PatientLocationUpdate
		var newState, priorState, transition string
		if err := rows.Scan(
			&update.PatientID,
			&update.NewLocationCode,
			&newState,
			&update.PriorLocationCode,
			&priorState,
			&transition,
			&update.EventTime,
			&update.SourceMessageID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan location update: %w", err)
		}
		update.NewState = models.LocationState(newState)
		update.PriorState = models.LocationState(priorState)
		update.Transition = models.TransitionEvent(transition)
		updates = append(updates, &update)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate location history: %w", err)
	}
	return updates, nil
}
