package models

import (
	"time"
)

// Escalation record status values.
const (
	EscalationPending      = "pending"
	EscalationAcknowledged = "acknowledged"
	EscalationResponded    = "responded"
	EscalationExhausted    = "exhausted"
)

// Recipient roles for alert routing.
const (
	RolePharmacy       = "pharmacy"
	RoleBedsideNursing = "bedside_nursing"
	RoleAnesthesia     = "anesthesia"
	RoleChargeNurse    = "charge_nurse"
)

// EscalationRecord tracks delivery and escalation of one alert
// (escalation_records table, append-only log plus current row).
// Level only increases; terminal on acknowledgment, response, or
// chain exhaustion.
type EscalationRecord struct {
	AlertID           string     `json:"alert_id" db:"alert_id"`
	JourneyID         string     `json:"journey_id" db:"journey_id"`
	Trigger           Trigger    `json:"trigger" db:"trigger"`
	Level             int        `json:"level" db:"level"`
	RecipientRole     string     `json:"recipient_role" db:"recipient_role"`
	RecipientID       string     `json:"recipient_id" db:"recipient_id"`
	RecipientName     string     `json:"recipient_name" db:"recipient_name"`
	ChannelsAttempted []string   `json:"channels_attempted"`
	Status            string     `json:"status" db:"status"`
	SentAt            time.Time  `json:"sent_at" db:"sent_at"`
	AcknowledgedAt    *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	RespondedAt       *time.Time `json:"responded_at,omitempty" db:"responded_at"`
	NextEscalationAt  *time.Time `json:"next_escalation_at,omitempty" db:"next_escalation_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether escalation has permanently stopped.
func (r *EscalationRecord) Terminal() bool {
	return r.Status != EscalationPending
}
