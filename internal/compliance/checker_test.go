package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

func colectomyInput(trigger models.Trigger) Input {
	return Input{
		JourneyID: "journey-1",
		Operation: models.ScheduledOperation{
			CaseID:         "CASE-001",
			PatientID:      "MRN1",
			ProcedureCodes: []string{"44140"},
			ScheduledTime:  time.Now().Add(2 * time.Hour),
		},
		Trigger: trigger,
	}
}

func TestCheck_SeverityMatrix(t *testing.T) {
	checker := NewChecker(nil, zap.NewNop())

	tests := []struct {
		name        string
		trigger     models.Trigger
		orderExists bool
		severity    models.Severity
	}{
		{"ordered not administered T24", models.TriggerT24, true, models.SeverityWarning},
		{"ordered not administered T2", models.TriggerT2, true, models.SeverityWarning},
		{"ordered not administered T60", models.TriggerT60, true, models.SeverityWarning},
		{"ordered not administered T0", models.TriggerT0, true, models.SeverityCritical},
		{"no order T24", models.TriggerT24, false, models.SeverityInfo},
		{"no order T2", models.TriggerT2, false, models.SeverityWarning},
		{"no order T60", models.TriggerT60, false, models.SeverityWarning},
		{"no order T0", models.TriggerT0, false, models.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := colectomyInput(tt.trigger)
			in.Status.OrderExists = tt.orderExists

			result := checker.Check(in)
			assert.True(t, result.AlertRequired)
			assert.Equal(t, tt.severity, result.Severity)
			assert.NotEmpty(t, result.CheckID)
			assert.Equal(t, "journey-1", result.JourneyID)
		})
	}
}

func TestCheck_OrderedNotAdministeredNearIncision(t *testing.T) {
	checker := NewChecker(nil, zap.NewNop())

	in := colectomyInput(models.TriggerT0)
	in.Operation.ScheduledTime = time.Now().Add(10 * time.Minute)
	in.Status.OrderExists = true

	result := checker.Check(in)
	require.True(t, result.AlertRequired)
	assert.Equal(t, models.SeverityCritical, result.Severity)
	assert.Contains(t, result.Recommendation, "ordered but not yet administered")
	assert.Contains(t, result.Recommendation, "cefazolin")
	assert.InDelta(t, 10, result.Snapshot.MinutesUntilSurgery, 1)
}

func TestCheck_AdministeredNeverAlerts(t *testing.T) {
	checker := NewChecker(nil, zap.NewNop())

	for _, trigger := range models.AllTriggers {
		in := colectomyInput(trigger)
		in.Status.OrderExists = true
		in.Status.Administered = true

		result := checker.Check(in)
		assert.False(t, result.AlertRequired, "trigger %s", trigger)
		assert.Contains(t, result.Recommendation, "administered")
	}
}

func TestCheck_ExclusionShortCircuit(t *testing.T) {
	checker := NewChecker(nil, zap.NewNop())

	t.Run("therapeutic antibiotics", func(t *testing.T) {
		in := colectomyInput(models.TriggerT0)
		in.Status.TherapeuticActive = true
		result := checker.Check(in)
		assert.False(t, result.AlertRequired)
		assert.Contains(t, result.Recommendation, "therapeutic antibiotics")
	})

	t.Run("emergency case", func(t *testing.T) {
		in := colectomyInput(models.TriggerT0)
		in.Operation.Emergency = true
		result := checker.Check(in)
		assert.False(t, result.AlertRequired)
		assert.Contains(t, result.Recommendation, "emergency")
	})

	t.Run("prior exclusion", func(t *testing.T) {
		in := colectomyInput(models.TriggerT0)
		in.Excluded = true
		in.ExclusionReason = "documented allergy workup"
		result := checker.Check(in)
		assert.False(t, result.AlertRequired)
		assert.Contains(t, result.Recommendation, "documented allergy workup")
	})
}

func TestCheck_NotIndicatedProcedure(t *testing.T) {
	checker := NewChecker(nil, zap.NewNop())

	in := colectomyInput(models.TriggerT2)
	in.Operation.ProcedureCodes = []string{"19100"} // breast biopsy

	result := checker.Check(in)
	assert.False(t, result.AlertRequired)
	assert.Contains(t, result.Recommendation, "not indicated")
}

func TestCheck_UnknownProcedureDefaultsToIndicated(t *testing.T) {
	checker := NewChecker(nil, zap.NewNop())

	in := colectomyInput(models.TriggerT2)
	in.Operation.ProcedureCodes = []string{"99999"}

	result := checker.Check(in)
	assert.True(t, result.AlertRequired)
	assert.Equal(t, models.SeverityWarning, result.Severity)
}

func TestGuidelineTable_FirstMatchWins(t *testing.T) {
	table := NewGuidelineTable([]GuidelineEntry{
		{CodePrefix: "45378", Indicated: false},
		{CodePrefix: "45", Indicated: true, FirstLineAgents: []string{"cefazolin"}},
	})

	entry, ok := table.Lookup([]string{"45378"})
	require.True(t, ok)
	assert.False(t, entry.Indicated)

	entry, ok = table.Lookup([]string{"45380"})
	require.True(t, ok)
	assert.True(t, entry.Indicated)

	_, ok = table.Lookup([]string{"70000"})
	assert.False(t, ok)
}

func TestCheckUnscheduledOREntry(t *testing.T) {
	checker := NewChecker(nil, zap.NewNop())

	result := checker.CheckUnscheduledOREntry("journey-2", "MRN7", "OR3")
	assert.True(t, result.AlertRequired)
	assert.Equal(t, models.SeverityCritical, result.Severity)
	assert.Equal(t, models.TriggerT0, result.Trigger)
	assert.Contains(t, result.Recommendation, "no scheduled surgery record")
	assert.Equal(t, "MRN7", result.Snapshot.PatientID)
}
