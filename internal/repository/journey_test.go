package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

func setupJourneyRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *JourneyRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewJourneyRepository(db, zap.NewNop())
}

func TestUpsertJourney_Insert(t *testing.T) {
	db, mock, repo := setupJourneyRepo(t)
	defer db.Close()

	now := time.Now()
	journey := &models.SurgicalJourney{
		JourneyID:           uuid.New().String(),
		CaseID:              "CASE-001",
		PatientID:           "MRN12345",
		CurrentLocationCode: "4A",
		CurrentLocation:     models.LocationInpatient,
		Status:              models.JourneyActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	mock.ExpectExec(`INSERT INTO surgical_journeys`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.UpsertJourney(context.Background(), journey))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertJourney_Validation(t *testing.T) {
	db, mock, repo := setupJourneyRepo(t)
	defer db.Close()

	err := repo.UpsertJourney(context.Background(), nil)
	assert.Error(t, err)

	err = repo.UpsertJourney(context.Background(), &models.SurgicalJourney{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "journey_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJourney_RoundTrip(t *testing.T) {
	db, mock, repo := setupJourneyRepo(t)
	defer db.Close()

	journeyID := uuid.New().String()
	now := time.Now()
	operationJSON := `{"case_id":"CASE-001","patient_id":"MRN12345","scheduled_time":"2025-06-10T09:00:00Z"}`

	rows := sqlmock.NewRows([]string{
		"journey_id", "case_id", "patient_id", "operation",
		"current_location_code", "current_location",
		"prophylaxis_ordered", "prophylaxis_administered", "therapeutic_antibiotics",
		"t24_sent", "t2_sent", "t60_sent", "t0_sent",
		"excluded", "exclusion_reason", "status", "created_at", "updated_at", "completed_at",
	}).AddRow(
		journeyID, "CASE-001", "MRN12345", operationJSON,
		"PREOP-2", "PRE_OP_HOLDING",
		true, false, false,
		true, false, false, false,
		false, nil, "active", now, now, nil,
	)

	mock.ExpectQuery(`SELECT`).WithArgs(journeyID).WillReturnRows(rows)

	journey, err := repo.GetJourney(context.Background(), journeyID)
	require.NoError(t, err)

	assert.Equal(t, "CASE-001", journey.CaseID)
	assert.Equal(t, models.LocationPreOpHolding, journey.CurrentLocation)
	assert.True(t, journey.ProphylaxisOrdered)
	assert.True(t, journey.Alerts.T24Sent)
	assert.False(t, journey.Alerts.T2Sent)
	require.NotNil(t, journey.Operation)
	assert.Equal(t, "CASE-001", journey.Operation.CaseID)
	assert.Nil(t, journey.CompletedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJourney_NotFound(t *testing.T) {
	db, mock, repo := setupJourneyRepo(t)
	defer db.Close()

	journeyID := uuid.New().String()
	mock.ExpectQuery(`SELECT`).WithArgs(journeyID).WillReturnError(sql.ErrNoRows)

	journey, err := repo.GetJourney(context.Background(), journeyID)
	assert.Error(t, err)
	assert.Nil(t, journey)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveJourneys(t *testing.T) {
	db, mock, repo := setupJourneyRepo(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"journey_id", "case_id", "patient_id", "operation",
		"current_location_code", "current_location",
		"prophylaxis_ordered", "prophylaxis_administered", "therapeutic_antibiotics",
		"t24_sent", "t2_sent", "t60_sent", "t0_sent",
		"excluded", "exclusion_reason", "status", "created_at", "updated_at", "completed_at",
	}).
		AddRow("j1", "CASE-001", "MRN1", "null", "4A", "INPATIENT",
			false, false, false, false, false, false, false,
			false, nil, "active", now, now, nil).
		AddRow("j2", "CASE-002", "MRN2", "null", "PREOP-1", "PRE_OP_HOLDING",
			true, false, false, true, false, false, false,
			false, nil, "active", now, now, nil)

	mock.ExpectQuery(`SELECT`).WithArgs(models.JourneyActive).WillReturnRows(rows)

	journeys, err := repo.ListActiveJourneys(context.Background())
	require.NoError(t, err)
	require.Len(t, journeys, 2)
	assert.Equal(t, "CASE-001", journeys[0].CaseID)
	assert.Equal(t, "CASE-002", journeys[1].CaseID)
	assert.Nil(t, journeys[0].Operation)

	require.NoError(t, mock.ExpectationsWereMet())
}
