package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayment_ApproveFromPending(t *testing.T) {
	p := payment("p-1", "c-1", "m-1", "50", PaymentPending)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.Approve("approver-1", at))
	assert.Equal(t, PaymentApproved, p.Status)
	assert.Equal(t, "approver-1", p.ApprovedBy)
	assert.Equal(t, at, p.ApprovedAt)
}

func TestPayment_TerminalStatesRejectTransitions(t *testing.T) {
	approved := payment("p-1", "c-1", "m-1", "50", PaymentApproved)
	assert.ErrorIs(t, approved.Approve("x", testNow), ErrInvalidTransition)
	assert.ErrorIs(t, approved.Reject("dup", testNow), ErrInvalidTransition)

	rejected := payment("p-2", "c-1", "m-1", "50", PaymentRejected)
	assert.ErrorIs(t, rejected.Approve("x", testNow), ErrInvalidTransition)
	assert.ErrorIs(t, rejected.Reject("again", testNow), ErrInvalidTransition)
}

func TestPayment_RejectRequiresReason(t *testing.T) {
	p := payment("p-1", "c-1", "m-1", "50", PaymentPending)
	assert.ErrorIs(t, p.Reject("   ", testNow), ErrRejectionReasonRequired)
	assert.Equal(t, PaymentPending, p.Status)

	require.NoError(t, p.Reject("voucher ilegible", testNow))
	assert.Equal(t, PaymentRejected, p.Status)
	assert.Equal(t, "voucher ilegible", p.RejectionReason)
}

func TestPayment_ApproveRequiresApprover(t *testing.T) {
	p := payment("p-1", "c-1", "m-1", "50", PaymentPending)
	assert.ErrorIs(t, p.Approve("", testNow), ErrEmptyApprover)
}

func TestPayment_ValidateRejectsMalformedAmounts(t *testing.T) {
	for _, monto := range []string{"0", "-10"} {
		p := payment("p-1", "c-1", "m-1", monto, PaymentPending)
		assert.ErrorIs(t, p.Validate(), ErrInvalidAmount, "monto=%s", monto)
	}
	ok := payment("p-1", "c-1", "m-1", "0.01", PaymentPending)
	assert.NoError(t, ok.Validate())
}

func TestParsePaymentStatus(t *testing.T) {
	status, err := ParsePaymentStatus(" Aprobado ")
	require.NoError(t, err)
	assert.Equal(t, PaymentApproved, status)

	_, err = ParsePaymentStatus("anulado")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestParsePaymentMethod(t *testing.T) {
	method, err := ParsePaymentMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodOther, method)

	_, err = ParsePaymentMethod("bitcoin")
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestSplitAmount(t *testing.T) {
	shares, err := SplitAmount(amount("200"), 2)
	require.NoError(t, err)
	assert.True(t, shares[0].Equal(amount("100")))
	assert.True(t, shares[1].Equal(amount("100")))

	shares, err = SplitAmount(amount("100"), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"33.33", "33.33", "33.34"}, []string{shares[0].StringFixed(2), shares[1].StringFixed(2), shares[2].StringFixed(2)})
	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s)
	}
	assert.True(t, sum.Equal(amount("100")))

	_, err = SplitAmount(amount("100"), 0)
	assert.ErrorIs(t, err, ErrNoCharges)
	_, err = SplitAmount(amount("0.02"), 3)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("202502")
	require.NoError(t, err)
	start, err := p.Start()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, "2025-02", p.Label())

	for _, bad := range []string{"2025-02", "202513", "202500", "abcdef", ""} {
		_, err := ParsePeriod(bad)
		assert.ErrorIs(t, err, ErrInvalidPeriod, bad)
	}

	r := PeriodRange{From: "202501", To: "202503"}
	require.NoError(t, r.Validate())
	assert.True(t, r.Contains("202502"))
	assert.False(t, r.Contains("202504"))
	assert.Error(t, PeriodRange{From: "202504", To: "202501"}.Validate())
}

func TestPayment_JSONOmitsUnsetTransitionTimes(t *testing.T) {
	p := payment("p-1", "c-1", "m-1", "50", PaymentPending)
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.NotContains(t, fields, "approved_at")
	assert.NotContains(t, fields, "rejected_at")
	assert.Equal(t, "pendiente", fields["estado"])
	assert.Equal(t, "50", fields["monto"])

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, p.Approve("approver-1", at))
	data, err = json.Marshal(&p)
	require.NoError(t, err)

	var decoded Payment
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, at, decoded.ApprovedAt)
	assert.True(t, decoded.RejectedAt.IsZero())
	assert.NotContains(t, string(data), "rejected_at")
}
