package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/talentlink/caseflow/internal/catalog"
)

// CheckResult is the validator's verdict on one requested status change.
type CheckResult struct {
	Allowed     bool     `json:"allowed"`
	Reason      string   `json:"reason"`
	Suggestions []string `json:"suggestions"`
}

// allowedForward computes the statuses reachable by a plain forward move
// from current. This is the fixed pipeline shape: the round cycle proposal →
// adjust → setup → waiting, waiting feeding the next round (or negotiation,
// or any re-proposal), then negotiation → awarded → onboarding →
// status check → offboarding.
func allowedForward(current string) map[string]bool {
	allowed := map[string]bool{}
	meta := catalog.MetaOf(current)

	if current == catalog.StatusAwaitingConfirmation {
		allowed[catalog.StatusProposalConfirmation] = true
	}
	if current == catalog.StatusProposalConfirmation {
		addAll(allowed, catalog.FirstRound(catalog.StageProposal))
	}

	switch meta.Stage {
	case catalog.StageProposal:
		addStageSuccessor(allowed, meta, catalog.StageAdjust)
	case catalog.StageAdjust:
		addStageSuccessor(allowed, meta, catalog.StageSetup)
	case catalog.StageSetup:
		addStageSuccessor(allowed, meta, catalog.StageWaiting)
	case catalog.StageWaiting:
		if meta.Round < meta.Total {
			if next, ok := catalog.StatusAt(meta.Round+1, meta.Total, catalog.StageProposal); ok {
				allowed[next] = true
			}
		}
		allowed[catalog.StatusNegotiation] = true
		addAll(allowed, catalog.AllProposals())
	}

	switch current {
	case catalog.StatusNegotiation:
		allowed[catalog.StatusAwarded] = true
		addAll(allowed, catalog.AllProposals())
	case catalog.StatusAwarded:
		allowed[catalog.StatusOnboarding] = true
		addAll(allowed, catalog.AllProposals())
	case catalog.StatusOnboarding:
		allowed[catalog.StatusStatusCheck] = true
	case catalog.StatusStatusCheck:
		allowed[catalog.StatusOffboarding] = true
	}

	return allowed
}

// addStageSuccessor adds the next-stage status for the current round. Round
// 1 accepts any round-1 successor (the caller may re-declare the total when
// moving on); later rounds must stay within their exact (round, total) cell.
func addStageSuccessor(allowed map[string]bool, meta catalog.Meta, next catalog.Stage) {
	if meta.Round == 1 {
		addAll(allowed, catalog.FirstRound(next))
		return
	}
	if name, ok := catalog.StatusAt(meta.Round, meta.Total, next); ok {
		allowed[name] = true
	}
}

// hasRoundProposal reports whether the history already contains a
// proposal-stage entry for the given round. The first proposal entry of the
// round decides, whatever total it was recorded under.
func hasRoundProposal(historyStatuses []string, round int) bool {
	if round == 0 {
		return true
	}
	for _, status := range historyStatuses {
		meta := catalog.MetaOf(status)
		if meta.Stage != catalog.StageProposal {
			continue
		}
		if meta.Round == round {
			return true
		}
	}
	return false
}

// validateChange applies the transition rules in order. awardConflict must
// be precomputed by the caller: whether another active case of the same
// supply already sits at Awarded or beyond.
func validateChange(before, after string, historyStatuses []string, awardConflict bool) CheckResult {
	beforeLevel := catalog.Level(before)
	afterLevel := catalog.Level(after)
	beforeMeta := catalog.MetaOf(before)
	afterMeta := catalog.MetaOf(after)

	if after == before {
		return CheckResult{Allowed: true, Reason: "status unchanged"}
	}

	if beforeLevel >= catalog.NoRollbackLevel && afterLevel < beforeLevel {
		return CheckResult{Reason: "cannot roll back from Onboarding or beyond"}
	}

	if after == catalog.StatusAwarded && awardConflict {
		return CheckResult{Reason: "another active case for this supply is already at Awarded or beyond"}
	}

	switch afterMeta.Stage {
	case catalog.StageAdjust, catalog.StageSetup, catalog.StageWaiting:
		if afterMeta.Round > 1 && !hasRoundProposal(historyStatuses, afterMeta.Round) {
			suggestions := catalog.ProposalsForTotal(afterMeta.Total)
			return CheckResult{
				Reason:      fmt.Sprintf("%s requires a proposal for interview round %d first", after, afterMeta.Round),
				Suggestions: suggestions,
			}
		}
	}

	if _, ok := catalog.StageOrder(afterMeta.Stage); ok &&
		beforeMeta.Stage == afterMeta.Stage &&
		beforeMeta.Round == afterMeta.Round &&
		afterMeta.Total != 0 && beforeMeta.Total != 0 &&
		afterMeta.Total != beforeMeta.Total {
		return CheckResult{Allowed: true, Reason: "round total adjusted in place"}
	}

	forward := allowedForward(before)
	if afterLevel > beforeLevel {
		if !forward[after] {
			options := sortedByLevel(forward)
			if len(options) == 0 {
				return CheckResult{Reason: "cannot advance from the current status"}
			}
			return CheckResult{
				Reason:      fmt.Sprintf("after %s the status can only change to: %s", before, strings.Join(options, ", ")),
				Suggestions: options,
			}
		}
		return CheckResult{Allowed: true, Reason: "change allowed"}
	}

	if afterLevel < beforeLevel {
		return CheckResult{Allowed: true, Reason: "rollback allowed"}
	}

	return CheckResult{Reason: "invalid status change"}
}

func addAll(set map[string]bool, names []string) {
	for _, n := range names {
		set[n] = true
	}
}

func sortedByLevel(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return catalog.Level(out[i]) < catalog.Level(out[j]) })
	return out
}
