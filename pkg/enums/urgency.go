package enums

// Urgency is the escalation tier of a payment reminder.
type Urgency string

const (
	UrgencyNormal Urgency = "NORMAL"
	UrgencyUrgent Urgency = "URGENT"
	UrgencyFinal  Urgency = "FINAL"
)

// String implements fmt.Stringer.
func (u Urgency) String() string {
	return string(u)
}

// UrgencyForDaysLeft maps the whole days remaining before the due date to a tier.
func UrgencyForDaysLeft(daysLeft int) Urgency {
	switch {
	case daysLeft <= 1:
		return UrgencyFinal
	case daysLeft == 2:
		return UrgencyUrgent
	default:
		return UrgencyNormal
	}
}
