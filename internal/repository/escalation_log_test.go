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

func setupEscalationRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *EscalationRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewEscalationRepository(db, zap.NewNop())
}

func pendingRecord() *models.EscalationRecord {
	now := time.Now()
	due := now.Add(5 * time.Minute)
	return &models.EscalationRecord{
		AlertID:           uuid.New().String(),
		JourneyID:         uuid.New().String(),
		Trigger:           models.TriggerT0,
		Level:             1,
		RecipientRole:     models.RoleAnesthesia,
		RecipientID:       "u-100",
		RecipientName:     "Dr. Reyes",
		ChannelsAttempted: []string{"webhook"},
		Status:            models.EscalationPending,
		SentAt:            now,
		NextEscalationAt:  &due,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestCreateRecord_WritesCurrentRowAndHistory(t *testing.T) {
	db, mock, repo := setupEscalationRepo(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO escalation_records`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO escalation_history`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.CreateRecord(context.Background(), pendingRecord()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRecord_NotFound(t *testing.T) {
	db, mock, repo := setupEscalationRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE escalation_records`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateRecord(context.Background(), pendingRecord())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPendingRecords(t *testing.T) {
	db, mock, repo := setupEscalationRepo(t)
	defer db.Close()

	now := time.Now()
	due := now.Add(5 * time.Minute)
	rows := sqlmock.NewRows([]string{
		"alert_id", "journey_id", "trigger_point", "level", "recipient_role", "recipient_id",
		"recipient_name", "channels_attempted", "status", "sent_at", "acknowledged_at",
		"responded_at", "next_escalation_at", "created_at", "updated_at",
	}).AddRow(
		"a1", "j1", "T0", 2, models.RoleAnesthesia, "u-100",
		"Dr. Reyes", `["webhook","mqtt"]`, "pending", now, nil,
		nil, due, now, now,
	)

	mock.ExpectQuery(`SELECT`).WithArgs(models.EscalationPending).WillReturnRows(rows)

	records, err := repo.ListPendingRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, models.TriggerT0, record.Trigger)
	assert.Equal(t, 2, record.Level)
	assert.Equal(t, []string{"webhook", "mqtt"}, record.ChannelsAttempted)
	require.NotNil(t, record.NextEscalationAt)
	assert.WithinDuration(t, due, *record.NextEscalationAt, time.Second)
	assert.Nil(t, record.AcknowledgedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}
