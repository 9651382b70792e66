// Package types holds the JSON envelopes every endpoint responds with.
package types

// SuccessEnvelope wraps successful payloads under a single "data" key.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope wraps failures under a single "error" key.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the client-visible surface of a failure. Code values are
// stable; Message and Details vary by code policy.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
