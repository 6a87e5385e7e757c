package billing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeState is the live evaluation of one charge against its payments.
type ChargeState struct {
	Charge           Charge          `json:"charge"`
	EffectivePaid    decimal.Decimal `json:"effective_paid"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Covered          bool            `json:"covered"`
	Overdue          bool            `json:"overdue"`
	Upcoming         bool            `json:"upcoming"`
}

// MemberDebt is the per-member aggregate used by the debt screens and reports.
type MemberDebt struct {
	MemberID      string          `json:"empadronado_id"`
	DebtTotal     decimal.Decimal `json:"debt_total"`
	OverdueCount  int             `json:"overdue_count"`
	Tier          Tier            `json:"tier"`
	UpcomingTotal decimal.Decimal `json:"upcoming_total"`
	UpcomingCount int             `json:"upcoming_count"`
	Charges       []ChargeState   `json:"charges"`
}

// EffectivePaid sums pending and approved payments applied to the charge.
func EffectivePaid(charge Charge, payments []Payment) decimal.Decimal {
	paid := decimal.Zero
	for _, payment := range payments {
		if payment.ChargeID != charge.ID {
			continue
		}
		if !payment.Status.CountsTowardCharge() {
			continue
		}
		paid = paid.Add(payment.Amount)
	}
	return paid
}

// RemainingBalance is max(0, original - paid).
func RemainingBalance(charge Charge, paid decimal.Decimal) decimal.Decimal {
	remaining := charge.OriginalAmount.Sub(paid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// IsCovered reports whether the cached saldo is settled or payments reach the original amount.
func IsCovered(charge Charge, paid decimal.Decimal) bool {
	return !charge.Balance.IsPositive() || paid.GreaterThanOrEqual(charge.OriginalAmount)
}

// EvaluateCharge computes the live state of a charge at now.
func EvaluateCharge(charge Charge, payments []Payment, now time.Time) ChargeState {
	return evaluate(charge, EffectivePaid(charge, payments), now)
}

func evaluate(charge Charge, paid decimal.Decimal, now time.Time) ChargeState {
	state := ChargeState{
		Charge:           charge,
		EffectivePaid:    paid,
		RemainingBalance: RemainingBalance(charge, paid),
		Covered:          IsCovered(charge, paid),
	}
	if charge.Voided || state.Covered {
		return state
	}
	if charge.DueAt.Before(now) {
		state.Overdue = true
	} else {
		state.Upcoming = true
	}
	return state
}

// Reconcile computes the debt aggregate for one member. Voided charges and charges of
// other members are skipped. It has no side effects.
func Reconcile(memberID string, charges []Charge, payments []Payment, now time.Time) MemberDebt {
	paidByCharge := PaidByCharge(payments)
	debt := MemberDebt{
		MemberID:      memberID,
		DebtTotal:     decimal.Zero,
		UpcomingTotal: decimal.Zero,
	}
	for _, charge := range charges {
		if charge.MemberID != memberID || charge.Voided {
			continue
		}
		paid, ok := paidByCharge[charge.ID]
		if !ok {
			paid = decimal.Zero
		}
		state := evaluate(charge, paid, now)
		switch {
		case state.Overdue:
			debt.OverdueCount++
			debt.DebtTotal = debt.DebtTotal.Add(state.RemainingBalance)
		case state.Upcoming:
			debt.UpcomingCount++
			debt.UpcomingTotal = debt.UpcomingTotal.Add(state.RemainingBalance)
		}
		debt.Charges = append(debt.Charges, state)
	}
	sort.SliceStable(debt.Charges, func(i, j int) bool {
		return debt.Charges[i].Charge.Period < debt.Charges[j].Charge.Period
	})
	debt.Tier = TierForCount(debt.OverdueCount)
	return debt
}

// ReconcileAll reconciles every member found in charges, ordered by member id.
func ReconcileAll(charges []Charge, payments []Payment, now time.Time) []MemberDebt {
	byMember := make(map[string][]Charge)
	for _, charge := range charges {
		byMember[charge.MemberID] = append(byMember[charge.MemberID], charge)
	}
	members := make([]string, 0, len(byMember))
	for memberID := range byMember {
		members = append(members, memberID)
	}
	sort.Strings(members)

	result := make([]MemberDebt, 0, len(members))
	for _, memberID := range members {
		result = append(result, Reconcile(memberID, byMember[memberID], payments, now))
	}
	return result
}

// PaidByCharge sums pending and approved payment amounts per charge id.
func PaidByCharge(payments []Payment) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal, len(payments))
	for _, payment := range payments {
		if !payment.Status.CountsTowardCharge() {
			continue
		}
		current, ok := sums[payment.ChargeID]
		if !ok {
			current = decimal.Zero
		}
		sums[payment.ChargeID] = current.Add(payment.Amount)
	}
	return sums
}
