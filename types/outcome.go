package types

// OutcomeStatus classifies how a compression operation ended.
type OutcomeStatus string

const (
	// OutcomeSuccess means the output archive was produced. Per-file
	// transcode failures do not change the outcome; they only raise the
	// failed counter.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeValidationError means the input was not a well-formed
	// container. No execution contexts were spawned.
	OutcomeValidationError OutcomeStatus = "validation_error"
	// OutcomeContextCrash means an execution context faulted. The whole
	// operation aborted and no partial result was returned.
	OutcomeContextCrash OutcomeStatus = "context_crash"
)

// IsTerminalFailure returns true for outcomes that reject the whole call.
func (s OutcomeStatus) IsTerminalFailure() bool {
	return s == OutcomeValidationError || s == OutcomeContextCrash
}
