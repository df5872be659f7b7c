package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

func TestAppendCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewComplianceLogRepository(db, zap.NewNop())

	result := &models.ComplianceCheckResult{
		CheckID:        uuid.New().String(),
		JourneyID:      uuid.New().String(),
		Trigger:        models.TriggerT2,
		AlertRequired:  true,
		Severity:       models.SeverityWarning,
		Recommendation: "Prophylaxis ordered but not administered.",
		Snapshot: models.ComplianceSnapshot{
			CaseID:              "CASE-001",
			MinutesUntilSurgery: 100,
			OrderExists:         true,
		},
		CheckedAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO compliance_checks`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.AppendCheck(context.Background(), result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendCheck_Validation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewComplianceLogRepository(db, zap.NewNop())

	assert.Error(t, repo.AppendCheck(context.Background(), nil))
	assert.Error(t, repo.AppendCheck(context.Background(), &models.ComplianceCheckResult{}))
}

func TestAppendUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewLocationHistoryRepository(db, zap.NewNop())

	update := &models.PatientLocationUpdate{
		PatientID:       "MRN12345",
		NewLocationCode: "OR3",
		NewState:        models.LocationORSuite,
		PriorLocationCode: "4A",
		PriorState:      models.LocationInpatient,
		Transition:      models.TransitionOREntry,
		EventTime:       time.Now(),
		SourceMessageID: "MSG001",
	}

	mock.ExpectExec(`INSERT INTO location_history`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.AppendUpdate(context.Background(), update))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendUpdate_RequiresPatientID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewLocationHistoryRepository(db, zap.NewNop())

	err = repo.AppendUpdate(context.Background(), &models.PatientLocationUpdate{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "patient_id is required")
}
