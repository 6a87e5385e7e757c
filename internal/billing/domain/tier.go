package billing

// Tier is the delinquency classification derived from the overdue charge count.
type Tier string

const (
	TierCurrent    Tier = "al-dia"
	TierLate       Tier = "atrasado"
	TierDelinquent Tier = "moroso"
	TierDebtor     Tier = "deudor"
)

// TierForCount maps a count of overdue uncovered charges to a tier.
func TierForCount(overdue int) Tier {
	switch {
	case overdue <= 0:
		return TierCurrent
	case overdue == 1:
		return TierLate
	case overdue == 2:
		return TierDelinquent
	default:
		return TierDebtor
	}
}

// ParseTier validates a tier name.
func ParseTier(value string) (Tier, bool) {
	switch Tier(value) {
	case TierCurrent, TierLate, TierDelinquent, TierDebtor:
		return Tier(value), true
	default:
		return "", false
	}
}

// Rank orders tiers from current (0) to debtor (3).
func (t Tier) Rank() int {
	switch t {
	case TierLate:
		return 1
	case TierDelinquent:
		return 2
	case TierDebtor:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether t is at or beyond min.
func (t Tier) AtLeast(min Tier) bool {
	return t.Rank() >= min.Rank()
}

// Label returns a display label.
func (t Tier) Label() string {
	switch t {
	case TierCurrent:
		return "Al día"
	case TierLate:
		return "Atrasado"
	case TierDelinquent:
		return "Moroso"
	case TierDebtor:
		return "Deudor"
	default:
		return string(t)
	}
}
