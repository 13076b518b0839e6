package domain

// EnvelopeStatus is the coarse outcome field of a response envelope.
type EnvelopeStatus string

// Envelope statuses. Loads report "ok"; accepted mutations report "success";
// every rejection or failure reports "error". The split mirrors the wire
// protocol the frontend already speaks.
const (
	EnvelopeOK      EnvelopeStatus = "ok"
	EnvelopeSuccess EnvelopeStatus = "success"
	EnvelopeError   EnvelopeStatus = "error"
)

// Envelope is the canonical response shape for every operation. Raw faults
// never escape the service boundary; they are converted into an error
// envelope carrying the HTTP-analogue code.
type Envelope struct {
	Status   EnvelopeStatus `json:"status"`
	Message  string         `json:"message"`
	ReadOnly bool           `json:"readonly"`
	Result   map[string]any `json:"result"`
	// Code is the numeric status analogue (200/400/404/500), carried
	// alongside the body rather than inside it.
	Code int `json:"-"`
}

// OK reports whether the envelope describes a non-error outcome.
func (e Envelope) OK() bool { return e.Status != EnvelopeError }
