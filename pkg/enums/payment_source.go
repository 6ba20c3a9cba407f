package enums

import "fmt"

// PaymentSource records how a payment reached the ledger.
type PaymentSource string

const (
	PaymentSourceGateway PaymentSource = "gateway"
	PaymentSourceManual  PaymentSource = "manual"
)

var validPaymentSources = []PaymentSource{
	PaymentSourceGateway,
	PaymentSourceManual,
}

// String implements fmt.Stringer.
func (p PaymentSource) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentSource.
func (p PaymentSource) IsValid() bool {
	for _, candidate := range validPaymentSources {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentSource converts raw input into a PaymentSource.
func ParsePaymentSource(value string) (PaymentSource, error) {
	for _, candidate := range validPaymentSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment source %q", value)
}
