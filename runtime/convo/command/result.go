package command

// ResultStatus is the per-command outcome.
type ResultStatus string

const (
	// StatusSuccess indicates the command executed fully.
	StatusSuccess ResultStatus = "SUCCESS"
	// StatusWarning indicates the command executed with a degraded effect
	// (e.g. an unknown extra ingredient was dropped under the warn policy).
	StatusWarning ResultStatus = "WARNING"
	// StatusError indicates the command did not execute.
	StatusError ResultStatus = "ERROR"
)

// ErrorCategory classifies failures for recovery policy.
type ErrorCategory string

const (
	// CategoryValidation marks input that cannot be understood as a valid
	// command. Recovery: ask the customer.
	CategoryValidation ErrorCategory = "VALIDATION"
	// CategoryBusiness marks a well-formed request violating a domain rule.
	// Recovery: user-facing explanation.
	CategoryBusiness ErrorCategory = "BUSINESS"
	// CategorySystem marks infrastructure failures, timeouts and internal
	// bugs. Recovery: generic canned retry message.
	CategorySystem ErrorCategory = "SYSTEM"
)

// ErrorCode identifies the precise failure.
type ErrorCode string

const (
	CodeItemUnavailable          ErrorCode = "ITEM_UNAVAILABLE"
	CodeItemNotFound             ErrorCode = "ITEM_NOT_FOUND"
	CodeSizeNotAvailable         ErrorCode = "SIZE_NOT_AVAILABLE"
	CodeModifierRemoveNotPresent ErrorCode = "MODIFIER_REMOVE_NOT_PRESENT"
	CodeModifierAddNotAllowed    ErrorCode = "MODIFIER_ADD_NOT_ALLOWED"
	CodeModifierConflict         ErrorCode = "MODIFIER_CONFLICT"
	CodeQuantityExceedsLimit     ErrorCode = "QUANTITY_EXCEEDS_LIMIT"
	CodeInventoryShortage        ErrorCode = "INVENTORY_SHORTAGE"
	CodeInvalidQuantity          ErrorCode = "INVALID_QUANTITY"
	CodeDatabaseError            ErrorCode = "DATABASE_ERROR"
	CodeInternalError            ErrorCode = "INTERNAL_ERROR"
)

// BatchOutcome classifies a batch of results.
type BatchOutcome string

const (
	OutcomeAllSuccess     BatchOutcome = "ALL_SUCCESS"
	OutcomePartialSuccess BatchOutcome = "PARTIAL_SUCCESS"
	OutcomeAllFailed      BatchOutcome = "ALL_FAILED"
	OutcomeFatalSystem    BatchOutcome = "FATAL_SYSTEM"
)

// FollowUpAction tells the orchestrator what the conversation should do next.
type FollowUpAction string

const (
	FollowUpContinue FollowUpAction = "CONTINUE"
	FollowUpAsk      FollowUpAction = "ASK"
	FollowUpStop     FollowUpAction = "STOP"
)

// FamilyMixed is the command family of a heterogeneous batch.
const FamilyMixed Kind = "MIXED"

type (
	// Result is the outcome of executing exactly one command.
	Result struct {
		Command       Command
		Status        ResultStatus
		Message       string
		Data          map[string]any
		ErrorCategory ErrorCategory
		ErrorCode     ErrorCode
	}

	// BatchResult aggregates the results of one command batch.
	BatchResult struct {
		Results          []Result
		Total            int
		Successful       int
		Failed           int
		ErrorsByCategory map[ErrorCategory]int
		ErrorsByCode     map[ErrorCode]int
		Outcome          BatchOutcome
		FollowUp         FollowUpAction
		SummaryMessage   string
		CommandFamily    Kind
	}
)

// Succeeded reports whether the result executed (SUCCESS or WARNING).
func (r Result) Succeeded() bool { return r.Status != StatusError }

// successResult builds a SUCCESS result.
func successResult(cmd Command, message string, data map[string]any) Result {
	return Result{Command: cmd, Status: StatusSuccess, Message: message, Data: data}
}

// warningResult builds a WARNING result carrying the degraded-effect code.
func warningResult(cmd Command, message string, code ErrorCode, data map[string]any) Result {
	return Result{
		Command:       cmd,
		Status:        StatusWarning,
		Message:       message,
		Data:          data,
		ErrorCategory: CategoryBusiness,
		ErrorCode:     code,
	}
}

// errorResult builds an ERROR result.
func errorResult(cmd Command, category ErrorCategory, code ErrorCode, message string) Result {
	return Result{
		Command:       cmd,
		Status:        StatusError,
		Message:       message,
		ErrorCategory: category,
		ErrorCode:     code,
	}
}

// Derive computes the batch aggregate from individual results. The derivation
// is deterministic and order-independent over the result statuses:
//
//   - any SYSTEM error           -> FATAL_SYSTEM, STOP
//   - all SUCCESS, no warnings   -> ALL_SUCCESS, CONTINUE
//   - successes mixed with
//     warnings or failures       -> PARTIAL_SUCCESS, ASK
//   - no successes               -> ALL_FAILED, ASK
//
// A VALIDATION error forces the follow-up to ASK regardless of the outcome.
func Derive(results []Result) BatchResult {
	br := BatchResult{
		Results:          results,
		Total:            len(results),
		ErrorsByCategory: make(map[ErrorCategory]int),
		ErrorsByCode:     make(map[ErrorCode]int),
		CommandFamily:    family(results),
	}
	var warnings int
	for _, r := range results {
		if r.Succeeded() {
			br.Successful++
		} else {
			br.Failed++
		}
		if r.Status == StatusWarning {
			warnings++
		}
		if r.ErrorCategory != "" {
			br.ErrorsByCategory[r.ErrorCategory]++
		}
		if r.ErrorCode != "" {
			br.ErrorsByCode[r.ErrorCode]++
		}
	}

	systemErrors := 0
	validationErrors := 0
	for _, r := range results {
		if r.Status != StatusError {
			continue
		}
		switch r.ErrorCategory {
		case CategorySystem:
			systemErrors++
		case CategoryValidation:
			validationErrors++
		}
	}

	switch {
	case systemErrors > 0:
		br.Outcome = OutcomeFatalSystem
		br.FollowUp = FollowUpStop
	case br.Failed == 0 && warnings == 0:
		br.Outcome = OutcomeAllSuccess
		br.FollowUp = FollowUpContinue
	case br.Successful > 0:
		br.Outcome = OutcomePartialSuccess
		br.FollowUp = FollowUpAsk
	default:
		br.Outcome = OutcomeAllFailed
		br.FollowUp = FollowUpAsk
	}
	if validationErrors > 0 && br.FollowUp != FollowUpStop {
		br.FollowUp = FollowUpAsk
	}
	br.SummaryMessage = summarize(br)
	return br
}

func family(results []Result) Kind {
	if len(results) == 0 {
		return FamilyMixed
	}
	first := results[0].Command.Kind()
	for _, r := range results[1:] {
		if r.Command.Kind() != first {
			return FamilyMixed
		}
	}
	return first
}

func summarize(br BatchResult) string {
	switch br.Outcome {
	case OutcomeAllSuccess:
		return "all commands succeeded"
	case OutcomePartialSuccess:
		return "some commands succeeded"
	case OutcomeAllFailed:
		return "no command succeeded"
	case OutcomeFatalSystem:
		return "system failure while executing commands"
	}
	return ""
}

// FatalSystemBatch builds the batch the orchestrator substitutes when a
// pipeline stage fails with a SYSTEM error outside the bus.
func FatalSystemBatch(message string) BatchResult {
	return Derive([]Result{errorResult(Unknown{}, CategorySystem, CodeInternalError, message)})
}
