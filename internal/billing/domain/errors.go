package billing

import "errors"

var (
	// ErrEmptyTenantID is returned when tenant id is empty.
	ErrEmptyTenantID = errors.New("billing: empty tenant id")
	// ErrEmptyMemberID is returned when member id is empty.
	ErrEmptyMemberID = errors.New("billing: empty member id")
	// ErrEmptyChargeID is returned when charge id is empty.
	ErrEmptyChargeID = errors.New("billing: empty charge id")
	// ErrEmptyPaymentID is returned when payment id is empty.
	ErrEmptyPaymentID = errors.New("billing: empty payment id")
	// ErrInvalidAmount is returned for non-positive payment amounts or negative charge amounts.
	ErrInvalidAmount = errors.New("billing: invalid amount")
	// ErrInvalidPeriod is returned when a period is not YYYYMM.
	ErrInvalidPeriod = errors.New("billing: period must be YYYYMM")
	// ErrInvalidStatus is returned for unknown payment statuses.
	ErrInvalidStatus = errors.New("billing: invalid payment status")
	// ErrInvalidMethod is returned for unknown payment methods.
	ErrInvalidMethod = errors.New("billing: invalid payment method")
	// ErrInvalidTier is returned for unknown tier names.
	ErrInvalidTier = errors.New("billing: invalid tier")
	// ErrInvalidTransition is returned when a payment is not pending.
	ErrInvalidTransition = errors.New("billing: payment is not pending")
	// ErrRejectionReasonRequired is returned when rejecting without a reason.
	ErrRejectionReasonRequired = errors.New("billing: rejection reason required")
	// ErrEmptyApprover is returned when approving without an approver id.
	ErrEmptyApprover = errors.New("billing: empty approver id")
	// ErrChargeNotFound is returned when a charge is not found.
	ErrChargeNotFound = errors.New("billing: charge not found")
	// ErrPaymentNotFound is returned when a payment is not found.
	ErrPaymentNotFound = errors.New("billing: payment not found")
	// ErrMemberNotFound is returned when a member is not found.
	ErrMemberNotFound = errors.New("billing: member not found")
	// ErrChargeVoided is returned when paying against a voided charge.
	ErrChargeVoided = errors.New("billing: charge is voided")
	// ErrConcurrentModification is returned when a stored payment changed underneath a transition.
	ErrConcurrentModification = errors.New("billing: concurrent modification")
	// ErrMemberMismatch is returned when a charge does not belong to the member.
	ErrMemberMismatch = errors.New("billing: charge belongs to another member")
	// ErrNoCharges is returned when a split payment names no charges.
	ErrNoCharges = errors.New("billing: no charges selected")
	// ErrVoidReasonRequired is returned when voiding a charge without a reason.
	ErrVoidReasonRequired = errors.New("billing: void reason required")
	// ErrDuplicateCharge is returned when a split payment names a charge twice.
	ErrDuplicateCharge = errors.New("billing: duplicate charge in selection")
)
