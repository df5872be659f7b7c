package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/config"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/hl7"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

func newTestRegistry(t *testing.T) *Registry {
	cfg := &config.Config{}
	cfg.Schedule.RetentionHours = 24
	cfg.Schedule.HorizonHours = 48
	cfg.Schedule.PollIntervalSeconds = 300
	return NewRegistry(cfg, zap.NewNop())
}

func TestTriggerFor_Windows(t *testing.T) {
	tests := []struct {
		minutes  float64
		trigger  models.Trigger
		inWindow bool
	}{
		{1500, models.TriggerT24, true},
		{1440, models.TriggerT24, true},
		{1381, models.TriggerT24, true},
		{1380, "", false}, // lower bound exclusive
		{150, models.TriggerT2, true},
		{100, models.TriggerT2, true}, // T-100 is T2 and nothing else
		{91, models.TriggerT2, true},
		{90, "", false},
		{75, models.TriggerT60, true},
		{60, models.TriggerT60, true},
		{46, models.TriggerT60, true},
		{45, "", false},
		{15, models.TriggerT0, true},
		{0, models.TriggerT0, true},
		{-15, models.TriggerT0, true},
		{-16, "", false},
		{300, "", false},
	}
	for _, tt := range tests {
		trigger, ok := TriggerFor(tt.minutes)
		assert.Equal(t, tt.inWindow, ok, "minutes %v", tt.minutes)
		assert.Equal(t, tt.trigger, trigger, "minutes %v", tt.minutes)
	}
}

func TestUpsert_MergePreservesFlagsAndLinkage(t *testing.T) {
	r := newTestRegistry(t)

	scheduled := time.Now().Add(24 * time.Hour)
	r.UpsertFromPoll(models.ScheduledOperation{
		CaseID:        "CASE-001",
		PatientID:     "MRN1",
		ScheduledTime: scheduled,
		Location:      "OR3",
	})
	r.MarkAlertSent("CASE-001", models.TriggerT24)
	r.LinkJourney("CASE-001", "journey-1")

	// A later message moves the time; flags and linkage survive.
	moved := scheduled.Add(30 * time.Minute)
	merged := r.UpsertFromMessage(models.ScheduledOperation{
		CaseID:        "CASE-001",
		ScheduledTime: moved,
		Location:      "OR5",
	})

	assert.True(t, merged.ScheduledTime.Equal(moved))
	assert.Equal(t, "OR5", merged.Location)
	assert.Equal(t, "MRN1", merged.PatientID)

	op, ok := r.GetByCase("CASE-001")
	require.True(t, ok)
	assert.True(t, op.Alerts.T24Sent)
	assert.Equal(t, "journey-1", op.JourneyID)
}

func TestUpsert_UnchangedPollDoesNotNotify(t *testing.T) {
	r := newTestRegistry(t)

	var notified int
	r.SetSinks(func(models.ScheduledOperation) { notified++ }, nil)

	op := models.ScheduledOperation{
		CaseID:        "CASE-001",
		PatientID:     "MRN1",
		ScheduledTime: time.Now().Add(24 * time.Hour),
		Location:      "OR3",
	}
	r.UpsertFromPoll(op)
	assert.Equal(t, 1, notified)

	// The next poll cycles see the same booking; the sink stays quiet.
	r.UpsertFromPoll(op)
	r.UpsertFromPoll(op)
	assert.Equal(t, 1, notified)

	op.ScheduledTime = op.ScheduledTime.Add(30 * time.Minute)
	r.UpsertFromPoll(op)
	assert.Equal(t, 2, notified)
}

func TestNeedsTrigger_DisjointBuckets(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()

	add := func(caseID string, minutes int) {
		r.UpsertFromPoll(models.ScheduledOperation{
			CaseID:        caseID,
			PatientID:     "MRN-" + caseID,
			ScheduledTime: now.Add(time.Duration(minutes) * time.Minute),
		})
	}
	add("T24-CASE", 1440)
	add("T2-CASE", 100)
	add("T60-CASE", 60)
	add("T0-CASE", 5)
	add("FAR-CASE", 600) // no bucket

	buckets := r.NeedsTrigger(now)

	require.Len(t, buckets[models.TriggerT24], 1)
	assert.Equal(t, "T24-CASE", buckets[models.TriggerT24][0].CaseID)
	require.Len(t, buckets[models.TriggerT2], 1)
	assert.Equal(t, "T2-CASE", buckets[models.TriggerT2][0].CaseID)
	require.Len(t, buckets[models.TriggerT60], 1)
	require.Len(t, buckets[models.TriggerT0], 1)

	total := 0
	for _, ops := range buckets {
		total += len(ops)
	}
	assert.Equal(t, 4, total)
}

func TestNeedsTrigger_SkipsAlreadySent(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()

	r.UpsertFromPoll(models.ScheduledOperation{
		CaseID:        "CASE-001",
		ScheduledTime: now.Add(100 * time.Minute),
	})
	r.MarkAlertSent("CASE-001", models.TriggerT2)

	buckets := r.NeedsTrigger(now)
	assert.Empty(t, buckets[models.TriggerT2])
}

func TestRetire(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()

	r.UpsertFromPoll(models.ScheduledOperation{
		CaseID:        "OLD",
		ScheduledTime: now.Add(-30 * time.Hour),
	})
	r.UpsertFromPoll(models.ScheduledOperation{
		CaseID:        "RECENT",
		ScheduledTime: now.Add(-2 * time.Hour),
	})

	assert.Equal(t, 1, r.Retire(now))
	_, ok := r.GetByCase("OLD")
	assert.False(t, ok)
	_, ok = r.GetByCase("RECENT")
	assert.True(t, ok)
}

func TestHandleSIU_UpsertAndCancel(t *testing.T) {
	r := newTestRegistry(t)

	var cancelled []string
	r.SetSinks(nil, func(caseID string) { cancelled = append(cancelled, caseID) })

	siu := "MSH|^~\\&|SCHED|HOSP|PERIOP|HOSP|20250609073000||SIU^S12|C1|P|2.3\r" +
		"SCH|APPT-77|FILLER-1||||NORMAL|||||^^^20250610090000\r" +
		"PID|1||MRN9^^^HOSP^MR\r" +
		"AIS|1||44950^APPENDECTOMY\r" +
		"AIL|1||OR3\r"
	msg, err := hl7.Parse([]byte(siu))
	require.NoError(t, err)
	require.NoError(t, r.HandleSIU(context.Background(), msg))

	op, ok := r.GetByCase("APPT-77")
	require.True(t, ok)
	assert.Equal(t, "MRN9", op.PatientID)
	assert.Equal(t, []string{"44950"}, op.ProcedureCodes)
	assert.Equal(t, "APPENDECTOMY", op.ProcedureDescription)
	assert.Equal(t, "OR3", op.Location)
	assert.Equal(t, time.Date(2025, 6, 10, 9, 0, 0, 0, time.Local), op.ScheduledTime)

	cancel := "MSH|^~\\&|SCHED|HOSP|PERIOP|HOSP|20250609083000||SIU^S15|C2|P|2.3\r" +
		"SCH|APPT-77\r"
	msg, err = hl7.Parse([]byte(cancel))
	require.NoError(t, err)
	require.NoError(t, r.HandleSIU(context.Background(), msg))

	_, ok = r.GetByCase("APPT-77")
	assert.False(t, ok)
	assert.Equal(t, []string{"APPT-77"}, cancelled)
}

func TestHandleORM_Upsert(t *testing.T) {
	r := newTestRegistry(t)

	orm := "MSH|^~\\&|CPOE|HOSP|PERIOP|HOSP|20250609073000||ORM^O01|C3|P|2.3\r" +
		"PID|1||MRN4^^^HOSP^MR\r" +
		"ORC|NW|ORD-55\r" +
		"OBR|1|ORD-55||47562^LAP CHOLECYSTECTOMY||20250611103000\r"
	msg, err := hl7.Parse([]byte(orm))
	require.NoError(t, err)
	require.NoError(t, r.HandleORM(context.Background(), msg))

	op, ok := r.GetByCase("ORD-55")
	require.True(t, ok)
	assert.Equal(t, "MRN4", op.PatientID)
	assert.Equal(t, []string{"47562"}, op.ProcedureCodes)
}

func TestHandleSIU_MissingCaseIDDropped(t *testing.T) {
	r := newTestRegistry(t)

	siu := "MSH|^~\\&|SCHED|HOSP|PERIOP|HOSP|20250609073000||SIU^S12|C4|P|2.3\r" +
		"PID|1||MRN9\r"
	msg, err := hl7.Parse([]byte(siu))
	require.NoError(t, err)

	require.NoError(t, r.HandleSIU(context.Background(), msg))
	assert.Equal(t, 0, r.Size())
}
