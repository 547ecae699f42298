package command

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAllSuccess(t *testing.T) {
	br := Derive([]Result{
		successResult(AddItem{MenuItemID: "a"}, "ok", nil),
		successResult(AddItem{MenuItemID: "b"}, "ok", nil),
	})
	assert.Equal(t, OutcomeAllSuccess, br.Outcome)
	assert.Equal(t, FollowUpContinue, br.FollowUp)
	assert.Equal(t, 2, br.Successful)
	assert.Equal(t, 0, br.Failed)
	assert.Equal(t, KindAddItem, br.CommandFamily)
}

func TestDeriveWarningForcesPartial(t *testing.T) {
	br := Derive([]Result{
		successResult(AddItem{}, "ok", nil),
		warningResult(AddItem{}, "dropped a modifier", CodeModifierAddNotAllowed, nil),
	})
	assert.Equal(t, OutcomePartialSuccess, br.Outcome)
	assert.Equal(t, FollowUpAsk, br.FollowUp)
	assert.Equal(t, 2, br.Successful, "warnings still count as executed")
}

func TestDerivePartialSuccess(t *testing.T) {
	br := Derive([]Result{
		successResult(AddItem{}, "ok", nil),
		errorResult(AddItem{}, CategoryBusiness, CodeItemUnavailable, "sold out"),
	})
	assert.Equal(t, OutcomePartialSuccess, br.Outcome)
	assert.Equal(t, FollowUpAsk, br.FollowUp)
	assert.Equal(t, 1, br.ErrorsByCategory[CategoryBusiness])
	assert.Equal(t, 1, br.ErrorsByCode[CodeItemUnavailable])
}

func TestDeriveAllFailed(t *testing.T) {
	br := Derive([]Result{
		errorResult(RemoveItem{}, CategoryBusiness, CodeItemNotFound, "not in order"),
	})
	assert.Equal(t, OutcomeAllFailed, br.Outcome)
	assert.Equal(t, FollowUpAsk, br.FollowUp)
}

func TestDeriveSystemErrorWins(t *testing.T) {
	br := Derive([]Result{
		successResult(AddItem{}, "ok", nil),
		errorResult(AddItem{}, CategorySystem, CodeDatabaseError, "store down"),
		errorResult(AddItem{}, CategoryValidation, CodeInvalidQuantity, "bad quantity"),
	})
	assert.Equal(t, OutcomeFatalSystem, br.Outcome)
	assert.Equal(t, FollowUpStop, br.FollowUp, "system errors stop the turn even with validation errors present")
}

func TestDeriveMixedFamily(t *testing.T) {
	br := Derive([]Result{
		successResult(AddItem{}, "ok", nil),
		successResult(RemoveItem{}, "ok", nil),
	})
	assert.Equal(t, FamilyMixed, br.CommandFamily)
}

func TestFatalSystemBatch(t *testing.T) {
	br := FatalSystemBatch("classifier timeout")
	require.Len(t, br.Results, 1)
	assert.Equal(t, OutcomeFatalSystem, br.Outcome)
	assert.Equal(t, FollowUpStop, br.FollowUp)
}

// genResult produces an arbitrary single-command result across every status
// and error category combination the bus can emit.
func genResult() gopter.Gen {
	return gen.IntRange(0, 4).Map(func(n int) Result {
		switch n {
		case 0:
			return successResult(AddItem{}, "ok", nil)
		case 1:
			return warningResult(AddItem{}, "degraded", CodeModifierAddNotAllowed, nil)
		case 2:
			return errorResult(AddItem{}, CategoryValidation, CodeInvalidQuantity, "bad")
		case 3:
			return errorResult(AddItem{}, CategoryBusiness, CodeItemUnavailable, "sold out")
		default:
			return errorResult(AddItem{}, CategorySystem, CodeDatabaseError, "down")
		}
	})
}

func TestDeriveProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("counts are consistent and outcome matches statuses", prop.ForAll(
		func(results []Result) bool {
			br := Derive(results)
			if br.Total != len(results) || br.Successful+br.Failed != br.Total {
				return false
			}
			system, failures, warnings := 0, 0, 0
			for _, r := range results {
				if r.Status == StatusError {
					failures++
					if r.ErrorCategory == CategorySystem {
						system++
					}
				}
				if r.Status == StatusWarning {
					warnings++
				}
			}
			switch {
			case system > 0:
				return br.Outcome == OutcomeFatalSystem && br.FollowUp == FollowUpStop
			case failures == 0 && warnings == 0:
				return br.Outcome == OutcomeAllSuccess && br.FollowUp == FollowUpContinue
			case br.Successful > 0:
				return br.Outcome == OutcomePartialSuccess && br.FollowUp == FollowUpAsk
			default:
				return br.Outcome == OutcomeAllFailed && br.FollowUp == FollowUpAsk
			}
		},
		gen.SliceOf(genResult()),
	))

	properties.Property("derivation is order independent", prop.ForAll(
		func(results []Result) bool {
			br := Derive(results)
			reversed := make([]Result, len(results))
			for i, r := range results {
				reversed[len(results)-1-i] = r
			}
			rb := Derive(reversed)
			return br.Outcome == rb.Outcome && br.FollowUp == rb.FollowUp &&
				br.Successful == rb.Successful && br.Failed == rb.Failed
		},
		gen.SliceOf(genResult()),
	))

	properties.TestingRun(t)
}
