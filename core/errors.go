package core

import (
	"errors"
)

// Error classes. Per-request failures wrap exactly one of these so the engine can
// persist a stable reason; the underlying cause is wrapped alongside it.
var (
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrMalformedAmount   = errors.New("malformed amount")
	ErrNetwork           = errors.New("network error")
	ErrDeployment        = errors.New("deployment error")
	ErrContractCall      = errors.New("contract call error")
	ErrConfiguration     = errors.New("configuration error")
	ErrUnknownKind       = errors.New("unknown request kind")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCycleInProgress   = errors.New("relay cycle already in progress")
)

var errorClasses = []struct {
	err   error
	class string
}{
	{ErrMalformedPayload, "malformed_payload"},
	{ErrMalformedAmount, "amount_conversion_error"},
	{ErrUnknownKind, "unknown_kind"},
	{ErrDeployment, "deployment_error"},
	{ErrContractCall, "contract_call_error"},
	{ErrNetwork, "network_error"},
	{ErrConfiguration, "configuration_error"},
	{ErrInvalidTransition, "invalid_transition"},
}

// Classify maps an error to the class name stored with a failed request and used as a metrics label.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return "internal_error"
}
