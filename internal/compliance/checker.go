package compliance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// Input is the point-in-time picture the checker evaluates. It is
// assembled by the journey manager; the checker itself reads nothing
// and writes nothing.
type Input struct {
	JourneyID       string
	Operation       models.ScheduledOperation
	Status          models.ProphylaxisStatus
	Location        models.LocationState
	Excluded        bool
	ExclusionReason string
	Trigger         models.Trigger
}

// Checker decides whether a prophylaxis gap exists for an upcoming
// operation and how severe it is.
type Checker struct {
	guidelines *GuidelineTable
	logger     *zap.Logger
	now        func() time.Time
}

func NewChecker(guidelines *GuidelineTable, logger *zap.Logger) *Checker {
	if guidelines == nil {
		guidelines = DefaultGuidelineTable()
	}
	return &Checker{
		guidelines: guidelines,
		logger:     logger,
		now:        time.Now,
	}
}

// Check evaluates one trigger point. Exclusions short-circuit before
// the indication lookup: therapeutic antibiotics already running, an
// emergency case, or a journey previously marked excluded all produce
// a no-alert result without further evaluation.
func (c *Checker) Check(in Input) models.ComplianceCheckResult {
	now := c.now()
	result := models.ComplianceCheckResult{
		CheckID:   uuid.New().String(),
		JourneyID: in.JourneyID,
		Trigger:   in.Trigger,
		Snapshot:  c.snapshot(in, now),
		CheckedAt: now,
	}

	if reason := exclusionReason(in); reason != "" {
		result.Recommendation = "No action required: " + reason
		return result
	}

	entry, matched := c.guidelines.Lookup(in.Operation.ProcedureCodes)
	if !matched {
		// Unknown procedures are treated as indicated rather than
		// silently skipped.
		c.logger.Warn("No guideline entry for procedure, treating as indicated",
			zap.String("journey_id", in.JourneyID),
			zap.String("case_id", in.Operation.CaseID),
			zap.Strings("procedure_codes", in.Operation.ProcedureCodes),
		)
		entry = GuidelineEntry{Indicated: true}
	}
	if !entry.Indicated {
		result.Recommendation = "No action required: prophylaxis not indicated for this procedure"
		return result
	}

	if in.Status.Administered {
		result.Recommendation = "No action required: prophylaxis administered"
		return result
	}

	result.AlertRequired = true
	result.Severity = severityFor(in.Trigger, in.Status.OrderExists)
	result.Recommendation = recommendation(in, entry)
	return result
}

// CheckUnscheduledOREntry handles a patient arriving in an operating
// room with no schedule record at all. This always alerts at the
// highest severity.
func (c *Checker) CheckUnscheduledOREntry(journeyID, patientID, locationCode string) models.ComplianceCheckResult {
	now := c.now()
	return models.ComplianceCheckResult{
		CheckID:       uuid.New().String(),
		JourneyID:     journeyID,
		Trigger:       models.TriggerT0,
		AlertRequired: true,
		Severity:      models.SeverityCritical,
		Recommendation: fmt.Sprintf(
			"Patient %s entered %s with no scheduled surgery record; verify the booking and confirm antibiotic prophylaxis immediately",
			patientID, locationCode),
		Snapshot: models.ComplianceSnapshot{
			PatientID: patientID,
			Location:  models.LocationORSuite,
		},
		CheckedAt: now,
	}
}

func (c *Checker) snapshot(in Input, now time.Time) models.ComplianceSnapshot {
	return models.ComplianceSnapshot{
		CaseID:              in.Operation.CaseID,
		PatientID:           in.Operation.PatientID,
		ProcedureCodes:      in.Operation.ProcedureCodes,
		ScheduledTime:       in.Operation.ScheduledTime,
		MinutesUntilSurgery: in.Operation.MinutesUntil(now),
		Location:            in.Location,
		OrderExists:         in.Status.OrderExists,
		Administered:        in.Status.Administered,
		TherapeuticActive:   in.Status.TherapeuticActive,
		Emergency:           in.Operation.Emergency,
	}
}

func exclusionReason(in Input) string {
	switch {
	case in.Status.TherapeuticActive:
		return "therapeutic antibiotics already active"
	case in.Operation.Emergency:
		return "emergency case"
	case in.Excluded:
		if in.ExclusionReason != "" {
			return "journey excluded (" + in.ExclusionReason + ")"
		}
		return "journey excluded"
	}
	return ""
}

// severityFor implements the trigger x order-state matrix. An order
// that exists but has not been given is less urgent far out than no
// order at all, and both converge to CRITICAL at T0.
func severityFor(trigger models.Trigger, orderExists bool) models.Severity {
	if trigger == models.TriggerT0 {
		return models.SeverityCritical
	}
	if orderExists {
		return models.SeverityWarning
	}
	if trigger == models.TriggerT24 {
		return models.SeverityInfo
	}
	return models.SeverityWarning
}

func recommendation(in Input, entry GuidelineEntry) string {
	var b strings.Builder
	if in.Status.OrderExists {
		b.WriteString("Prophylaxis ordered but not yet administered")
	} else {
		b.WriteString("No prophylaxis order found")
	}
	fmt.Fprintf(&b, " for case %s", in.Operation.CaseID)
	if !in.Operation.ScheduledTime.IsZero() {
		fmt.Fprintf(&b, " (surgery %s)", in.Operation.ScheduledTime.Format("2006-01-02 15:04"))
	}
	if len(entry.FirstLineAgents) > 0 {
		fmt.Fprintf(&b, "; first-line agents: %s", strings.Join(entry.FirstLineAgents, ", "))
	}
	if in.Trigger == models.TriggerT0 {
		b.WriteString("; administer within 60 minutes before incision")
	}
	return b.String()
}
