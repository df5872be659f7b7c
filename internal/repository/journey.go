package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// JourneyRepository persists SurgicalJourney aggregates
// (surgical_journeys table). One row per journey; completed journeys
// are retained for audit, never deleted.
type JourneyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewJourneyRepository creates the journey repository.
func NewJourneyRepository(db *sql.DB, logger *zap.Logger) *JourneyRepository {
	return &JourneyRepository{
		db:     db,
		logger: logger,
	}
}

const journeyColumns = `
		journey_id,
		case_id,
		patient_id,
		operation,
		current_location_code,
		current_location,
		prophylaxis_ordered,
		prophylaxis_administered,
		therapeutic_antibiotics,
		t24_sent,
		t2_sent,
		t60_sent,
		t0_sent,
		excluded,
		exclusion_reason,
		status,
		created_at,
		updated_at,
		completed_at`

// UpsertJourney writes the journey's current state. Inserts on first
// observation, full overwrite on conflict by journey_id.
func (r *JourneyRepository) UpsertJourney(ctx context.Context, journey *models.SurgicalJourney) error {
	if journey == nil {
		return fmt.Errorf("journey is required")
	}
	if journey.JourneyID == "" {
		return fmt.Errorf("journey_id is required")
	}

	operationJSON := []byte("null")
	if journey.Operation != nil {
		var err error
		operationJSON, err = json.Marshal(journey.Operation)
		if err != nil {
			return fmt.Errorf("failed to marshal operation snapshot: %w", err)
		}
	}

	query := `
		INSERT INTO surgical_journeys (` + journeyColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
		ON CONFLICT (journey_id) DO UPDATE SET
			case_id = EXCLUDED.case_id,
			patient_id = EXCLUDED.patient_id,
			operation = EXCLUDED.operation,
			current_location_code = EXCLUDED.current_location_code,
			current_location = EXCLUDED.current_location,
			prophylaxis_ordered = EXCLUDED.prophylaxis_ordered,
			prophylaxis_administered = EXCLUDED.prophylaxis_administered,
			therapeutic_antibiotics = EXCLUDED.therapeutic_antibiotics,
			t24_sent = EXCLUDED.t24_sent,
			t2_sent = EXCLUDED.t2_sent,
			t60_sent = EXCLUDED.t60_sent,
			t0_sent = EXCLUDED.t0_sent,
			excluded = EXCLUDED.excluded,
			exclusion_reason = EXCLUDED.exclusion_reason,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err := r.db.ExecContext(ctx, query,
		journey.JourneyID,
		journey.CaseID,
		journey.PatientID,
		operationJSON,
		journey.CurrentLocationCode,
		string(journey.CurrentLocation),
		journey.ProphylaxisOrdered,
		journey.ProphylaxisAdministered,
		journey.TherapeuticAntibiotics,
		journey.Alerts.T24Sent,
		journey.Alerts.T2Sent,
		journey.Alerts.T60Sent,
		journey.Alerts.T0Sent,
		journey.Excluded,
		journey.ExclusionReason,
		journey.Status,
		journey.CreatedAt,
		journey.UpdatedAt,
		journey.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert journey: %w", err)
	}
	return nil
}

// GetJourney loads one journey by id.
func (r *JourneyRepository) GetJourney(ctx context.Context, journeyID string) (*models.SurgicalJourney, error) {
	if journeyID == "" {
		return nil, fmt.Errorf("journey_id is required")
	}

	query := `SELECT ` + journeyColumns + ` FROM surgical_journeys WHERE journey_id = $1`
	row := r.db.QueryRowContext(ctx, query, journeyID)
	journey, err := scanJourney(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("journey not found: %s", journeyID)
		}
		return nil, fmt.Errorf("failed to get journey: %w", err)
	}
	return journey, nil
}

// ListActiveJourneys loads every journey still in flight, used to
// rebuild the in-memory cache at process start.
func (r *JourneyRepository) ListActiveJourneys(ctx context.Context) ([]*models.SurgicalJourney, error) {
	query := `SELECT ` + journeyColumns + ` FROM surgical_journeys WHERE status = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, models.JourneyActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active journeys: %w", err)
	}
	defer rows.Close()

	var journeys []*models.SurgicalJourney
	for rows.Next() {
		journey, err := scanJourney(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey: %w", err)
		}
		journeys = append(journeys, journey)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journeys: %w", err)
	}
	return journeys, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJourney(row rowScanner) (*models.SurgicalJourney, error) {
	var journey models.SurgicalJourney
	var operationJSON []byte
	var location string
	var exclusionReason sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&journey.JourneyID,
		&journey.CaseID,
		&journey.PatientID,
		&operationJSON,
		&journey.CurrentLocationCode,
		&location,
		&journey.ProphylaxisOrdered,
		&journey.ProphylaxisAdministered,
		&journey.TherapeuticAntibiotics,
		&journey.Alerts.T24Sent,
		&journey.Alerts.T2Sent,
		&journey.Alerts.T60Sent,
		&journey.Alerts.T0Sent,
		&journey.Excluded,
		&exclusionReason,
		&journey.Status,
		&journey.CreatedAt,
		&journey.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	journey.CurrentLocation = models.LocationState(location)
	if exclusionReason.Valid {
		journey.ExclusionReason = &exclusionReason.String
	}
	if completedAt.Valid {
		journey.CompletedAt = &completedAt.Time
	}
	if len(operationJSON) > 0 && string(operationJSON) != "null" {
		var op models.ScheduledOperation
		if err := json.Unmarshal(operationJSON, &op); err != nil {
			return nil, fmt.Errorf("failed to unmarshal operation snapshot: %w", err)
		}
		journey.Operation = &op
	}
	return &journey, nil
}
