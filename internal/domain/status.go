package domain

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending        Status = "pending"
	StatusPendingPayment Status = "pending_payment"
	StatusConfirmed      Status = "confirmed"
	StatusCancelled      Status = "cancelled"
)

var validTransitions = map[Status][]Status{
	StatusPending:        {StatusPendingPayment, StatusConfirmed, StatusCancelled},
	StatusPendingPayment: {StatusPending, StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusCancelled},
	StatusCancelled:      {},
}

func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a booking in s can no longer return to an earlier state.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

func (s Status) String() string { return string(s) }

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", Validationf("invalid booking status: %s", s)
	}
	return status, nil
}

// Decision is an administrator action on a booking.
type Decision string

const (
	DecisionConfirm       Decision = "confirm"
	DecisionRejectPayment Decision = "reject-payment"
	DecisionCancel        Decision = "cancel"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionConfirm, DecisionRejectPayment, DecisionCancel:
		return d, nil
	}
	return "", Validationf("unknown decision %q", s)
}

// PaymentState is derived from the booking's payment fields and never stored.
type PaymentState string

const (
	PaymentUnpaid           PaymentState = "unpaid"
	PaymentAdvanceSubmitted PaymentState = "advance_submitted"
	PaymentAdvanceVerified  PaymentState = "advance_verified"
	PaymentPaidInFull       PaymentState = "paid_in_full"
	PaymentVoid             PaymentState = "void"
)
