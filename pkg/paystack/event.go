package paystack

import "encoding/json"

// EventChargeSuccess is the event type of a completed charge.
const EventChargeSuccess = "charge.success"

// Event is the outer webhook envelope.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChargeData is the data object of a charge event. Metadata is kept raw
// because Paystack sends either an object or an empty string.
type ChargeData struct {
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	PaidAt    string          `json:"paid_at"`
	Metadata  json.RawMessage `json:"metadata"`
}
