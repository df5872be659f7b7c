package escalation

import (
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// Rule routes one trigger's alerts: the first recipient role, the
// roles the alert escalates through when unacknowledged, and whether
// acknowledgment is expected at all. Channels optionally restricts
// delivery to the named channels; empty means every configured
// channel.
type Rule struct {
	PrimaryRole     string
	EscalationChain []string
	RequireAck      bool
	Channels        []string
}

// defaultRules is the per-trigger routing table. T24 informs pharmacy
// far ahead of incision and never escalates; the near-incision
// triggers expect acknowledgment and climb toward the charge nurse.
var defaultRules = map[models.Trigger]Rule{
	models.TriggerT24: {
		PrimaryRole: models.RolePharmacy,
	},
	models.TriggerT2: {
		PrimaryRole:     models.RoleBedsideNursing,
		EscalationChain: []string{models.RoleChargeNurse},
		RequireAck:      true,
	},
	models.TriggerT60: {
		PrimaryRole:     models.RoleAnesthesia,
		EscalationChain: []string{models.RoleChargeNurse},
		RequireAck:      true,
	},
	models.TriggerT0: {
		PrimaryRole:     models.RoleAnesthesia,
		EscalationChain: []string{models.RoleChargeNurse},
		RequireAck:      true,
	},
}

// roleForLevel returns the recipient role at an escalation level.
// Level 1 is the primary role; each later level consumes one chain
// entry. The second return is false past the end of the chain.
func (r Rule) roleForLevel(level int) (string, bool) {
	if level <= 1 {
		return r.PrimaryRole, true
	}
	idx := level - 2
	if idx >= len(r.EscalationChain) {
		return "", false
	}
	return r.EscalationChain[idx], true
}
