package cycles

import (
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
)

// Reasons attached to cycle errors so callers can tell apart failures that
// share an error code.
const (
	ReasonInvalidAmount = "invalid_amount"
	ReasonEmptyRoster   = "empty_roster"
	ReasonNoActiveCycle = "no_active_cycle"
	ReasonNotBilled     = "not_billed"
	ReasonAlreadyPaid   = "already_paid"
	ReasonConcurrent    = "concurrent_update"
	ReasonDuplicate     = "duplicate_payment"
)

func reasonError(code pkgerrors.Code, reason, message string) *pkgerrors.Error {
	return pkgerrors.New(code, message).WithDetails(map[string]any{"reason": reason})
}

// ReasonOf returns the reason tag carried by err, or "" if there is none.
func ReasonOf(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}

func errEmptyRoster() error {
	return reasonError(pkgerrors.CodeValidation, ReasonEmptyRoster, "there is nobody to bill")
}

func errNoActiveCycle() error {
	return reasonError(pkgerrors.CodeNotFound, ReasonNoActiveCycle, "there is no active bill")
}

func errNotBilled() error {
	return reasonError(pkgerrors.CodeConflict, ReasonNotBilled, "you are not part of the current bill")
}

func errAlreadyPaid() error {
	return reasonError(pkgerrors.CodeConflict, ReasonAlreadyPaid, "you have already paid for the current bill")
}

func errDuplicatePayment(cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, cause, "payment already recorded").
		WithDetails(map[string]any{"reason": ReasonDuplicate})
}

func errConcurrentUpdate() error {
	return reasonError(pkgerrors.CodeConflict, ReasonConcurrent, "the bill was changed concurrently, try again")
}
