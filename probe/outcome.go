package probe

// Outcome classifies the result of a connection probe or a setup attempt.
// The zero value means the target answered and the unit id is addressable.
// Outcomes are symbolic keys; mapping them to user-facing text is the job of
// the embedding host.
type Outcome string

const (
	// OutcomeSuccess indicates the unit id responded on the bus.
	OutcomeSuccess Outcome = ""
	// OutcomeInvalidHost indicates the host string could not be resolved.
	OutcomeInvalidHost Outcome = "invalid_host"
	// OutcomeInvalidParameter indicates a port or unit id outside its range.
	OutcomeInvalidParameter Outcome = "invalid_parameter"
	// OutcomeTimedOut indicates the TCP connect exceeded its bound.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeConnectionRefused indicates the endpoint actively refused.
	OutcomeConnectionRefused Outcome = "connection_refused"
	// OutcomePermissionDenied indicates the OS rejected the connect.
	OutcomePermissionDenied Outcome = "permission_denied"
	// OutcomeCannotConnect covers all other OS-level connect failures.
	OutcomeCannotConnect Outcome = "cannot_connect"
	// OutcomeUnitNoResponse indicates the endpoint is reachable but the unit
	// id did not answer, or answered with an unclassifiable protocol error.
	OutcomeUnitNoResponse Outcome = "unit_id_no_response"
	// OutcomeAlreadyConfigured is emitted by the setup flow when the
	// (host, unit id) pair is already registered. No probe is attempted.
	OutcomeAlreadyConfigured Outcome = "already_configured"
)

// OK reports whether the outcome represents success.
func (o Outcome) OK() bool {
	return o == OutcomeSuccess
}

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return string(o)
}
