package registry

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/hl7"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// SIU trigger events treated as schedule upserts; S15 is cancellation.
var siuUpsertTriggers = map[string]bool{
	"S12": true, // new appointment
	"S13": true, // reschedule
	"S14": true, // modification
}

// HandleSIU is the listener handler for appointment notifications.
// Messages that normalize to no case id are logged and dropped, a
// fail-safe default rather than an error.
func (r *Registry) HandleSIU(ctx context.Context, msg *hl7.Message) error {
	trigger := msg.TriggerEvent()

	if trigger == "S15" {
		caseID := scheduleCaseID(msg)
		if caseID == "" {
			r.logger.Warn("Dropping SIU cancellation without case id",
				zap.String("control_id", msg.ControlID()),
			)
			return nil
		}
		r.Cancel(caseID)
		return nil
	}

	if !siuUpsertTriggers[trigger] {
		r.logger.Debug("Ignoring SIU trigger event",
			zap.String("trigger_event", trigger),
			zap.String("control_id", msg.ControlID()),
		)
		return nil
	}

	op, ok := operationFromSIU(msg)
	if !ok {
		r.logger.Warn("Dropping scheduling message without case id",
			zap.String("message_type", msg.TypeAndTrigger()),
			zap.String("control_id", msg.ControlID()),
		)
		return nil
	}
	r.UpsertFromMessage(op)
	return nil
}

// HandleORM is the listener handler for general order notifications
// carrying procedure scheduling.
func (r *Registry) HandleORM(ctx context.Context, msg *hl7.Message) error {
	op, ok := operationFromORM(msg)
	if !ok {
		r.logger.Debug("Ignoring order message without schedulable content",
			zap.String("control_id", msg.ControlID()),
		)
		return nil
	}
	r.UpsertFromMessage(op)
	return nil
}

// operationFromSIU normalizes SCH/PID/AIS/AIL/AIP segments.
func operationFromSIU(msg *hl7.Message) (models.ScheduledOperation, bool) {
	caseID := scheduleCaseID(msg)
	if caseID == "" {
		return models.ScheduledOperation{}, false
	}

	op := models.ScheduledOperation{
		CaseID:    caseID,
		PatientID: patientID(msg),
	}

	if sch := msg.Segment("SCH"); sch != nil {
		// SCH-11 component 4 is the appointment start; fall back to the
		// header timestamp precision senders that put it in SCH-11.1.
		if ts := hl7.ParseTimestamp(sch.Component(11, 4)); !ts.IsZero() {
			op.ScheduledTime = ts
		} else if ts := hl7.ParseTimestamp(sch.Component(11, 1)); !ts.IsZero() {
			op.ScheduledTime = ts
		}
		if strings.EqualFold(sch.Field(6), "EMERGENCY") || strings.EqualFold(sch.Component(7, 1), "EMERGENCY") {
			op.Emergency = true
		}
	}

	if ais := msg.Segment("AIS"); ais != nil {
		if code := ais.Component(3, 1); code != "" {
			op.ProcedureCodes = append(op.ProcedureCodes, code)
		}
		op.ProcedureDescription = ais.Component(3, 2)
	}
	if ail := msg.Segment("AIL"); ail != nil {
		op.Location = ail.Component(3, 1)
	}
	if aip := msg.Segment("AIP"); aip != nil {
		op.Surgeon = aip.Component(3, 2)
	}
	return op, true
}

// operationFromORM normalizes ORC/OBR segments.
func operationFromORM(msg *hl7.Message) (models.ScheduledOperation, bool) {
	orc := msg.Segment("ORC")
	obr := msg.Segment("OBR")
	if orc == nil && obr == nil {
		return models.ScheduledOperation{}, false
	}

	caseID := ""
	if orc != nil {
		caseID = orc.Component(2, 1) // placer order number
		if caseID == "" {
			caseID = orc.Component(3, 1) // filler order number
		}
	}
	if caseID == "" && obr != nil {
		caseID = obr.Component(2, 1)
		if caseID == "" {
			caseID = obr.Component(3, 1)
		}
	}
	if caseID == "" {
		return models.ScheduledOperation{}, false
	}

	op := models.ScheduledOperation{
		CaseID:    caseID,
		PatientID: patientID(msg),
	}
	if obr != nil {
		if code := obr.Component(4, 1); code != "" {
			op.ProcedureCodes = append(op.ProcedureCodes, code)
		}
		op.ProcedureDescription = obr.Component(4, 2)
		if ts := hl7.ParseTimestamp(obr.Field(6)); !ts.IsZero() {
			op.ScheduledTime = ts
		}
	}
	if orc != nil && op.ScheduledTime.IsZero() {
		if ts := hl7.ParseTimestamp(orc.Component(7, 4)); !ts.IsZero() {
			op.ScheduledTime = ts
		}
	}
	return op, true
}

// scheduleCaseID prefers the placer appointment id, then the filler.
func scheduleCaseID(msg *hl7.Message) string {
	sch := msg.Segment("SCH")
	if sch == nil {
		return ""
	}
	if id := sch.Component(1, 1); id != "" {
		return id
	}
	return sch.Component(2, 1)
}

func patientID(msg *hl7.Message) string {
	pid := msg.Segment("PID")
	if pid == nil {
		return ""
	}
	if reps := pid.Repetitions(3); len(reps) > 0 {
		if idx := strings.IndexByte(reps[0], msg.Delimiters.Component); idx >= 0 {
			return reps[0][:idx]
		}
		return reps[0]
	}
	return pid.Component(2, 1)
}
