package engine

import (
	"testing"

	"github.com/talentlink/caseflow/internal/catalog"
	"github.com/talentlink/caseflow/internal/models"
)

func historyOf(statuses ...string) *workingHistory {
	entries := make([]models.CaseHistoryEntry, len(statuses))
	for i, s := range statuses {
		entries[i] = models.CaseHistoryEntry{
			ID:     int64(i + 1),
			CaseID: 1,
			Seq:    int64(i + 1),
			Status: s,
			Active: true,
		}
	}
	return newWorkingHistory(entries)
}

func activeStatusList(h *workingHistory) []string {
	return h.activeStatuses()
}

func assertStatuses(t *testing.T, h *workingHistory, want ...string) {
	t.Helper()
	got := activeStatusList(h)
	if len(got) != len(want) {
		t.Fatalf("active statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("active statuses = %v, want %v", got, want)
		}
	}
}

func TestRewriteRoundTotal(t *testing.T) {
	h := historyOf("Proposal Sent", "Interview Adjusting", "Awaiting Result")
	rewriteRoundTotal(h, 2)
	assertStatuses(t, h, "1/2 Proposal Sent", "1/2 Interview Adjusting", "1/2 Awaiting Result")
}

func TestRewriteRoundTotalRenumbersByProposalCount(t *testing.T) {
	h := historyOf(
		catalog.StatusAwaitingConfirmation,
		"1/2 Proposal Sent",
		"1/2 Awaiting Result",
		"2/2 Proposal Sent",
	)
	rewriteRoundTotal(h, 3)
	assertStatuses(t, h,
		catalog.StatusAwaitingConfirmation,
		"1/3 Proposal Sent",
		"1/3 Awaiting Result",
		"2/3 Proposal Sent",
	)
}

func TestRewriteRoundTotalSkipsLeadingNonProposal(t *testing.T) {
	// A round-bearing entry before the first proposal has no round index
	// and is left alone.
	h := historyOf("Interview Adjusting", "Proposal Sent")
	rewriteRoundTotal(h, 2)
	assertStatuses(t, h, "Interview Adjusting", "1/2 Proposal Sent")
}

func TestRewriteChainPrefix(t *testing.T) {
	h := historyOf(
		"1/2 Proposal Sent",
		"1/2 Awaiting Result",
		"2/3 Proposal Sent",
		"2/3 Interview Adjusting",
	)
	// Advance within round 2 under total 2: relabel the chain from the last
	// proposal up to the adjust stage.
	rewriteChainPrefix(h, 2, 2, 1)
	assertStatuses(t, h,
		"1/2 Proposal Sent",
		"1/2 Awaiting Result",
		"2/2 Proposal Sent",
		"2/2 Interview Adjusting",
	)
}

func TestRewriteChainPrefixRespectsMaxStage(t *testing.T) {
	h := historyOf("2/3 Proposal Sent", "2/3 Interview Adjusting", "2/3 Interview Scheduled")
	rewriteChainPrefix(h, 2, 2, 1)
	assertStatuses(t, h, "2/2 Proposal Sent", "2/2 Interview Adjusting", "2/3 Interview Scheduled")
}

func TestRewriteChainPrefixNoProposalNoChange(t *testing.T) {
	h := historyOf(catalog.StatusAwaitingConfirmation, catalog.StatusProposalConfirmation)
	rewriteChainPrefix(h, 1, 2, 3)
	assertStatuses(t, h, catalog.StatusAwaitingConfirmation, catalog.StatusProposalConfirmation)
}

func TestRestartRenumberCompactsAndDropsPostInterview(t *testing.T) {
	h := historyOf(
		"1/2 Proposal Sent",
		"1/2 Awaiting Result",
		"2/2 Proposal Sent",
		"2/2 Awaiting Result",
		catalog.StatusNegotiation,
		catalog.StatusAwarded,
	)
	restartRenumber(h, 3)
	assertStatuses(t, h,
		"1/3 Proposal Sent",
		"1/3 Awaiting Result",
		"2/3 Proposal Sent",
		"2/3 Awaiting Result",
	)
	for _, e := range h.entries {
		if e.Active && catalog.Level(e.Status) > catalog.MaxInterviewLevel {
			t.Fatalf("post-interview entry %q still active after restart", e.Status)
		}
	}
}

func TestRestartRenumberKeepsEarlyStatuses(t *testing.T) {
	h := historyOf(catalog.StatusAwaitingConfirmation, catalog.StatusProposalConfirmation, "Proposal Sent", catalog.StatusAwarded)
	restartRenumber(h, 2)
	assertStatuses(t, h,
		catalog.StatusAwaitingConfirmation,
		catalog.StatusProposalConfirmation,
		"1/2 Proposal Sent",
	)
}

func TestRollbackDeactivateCutsWholeGroups(t *testing.T) {
	h := historyOf(
		"Proposal Sent",
		"1/2 Interview Adjusting",
		"Interview Scheduled",
		catalog.StatusNegotiation,
	)
	// Target "Interview Adjusting": its round-1 group bottoms out at level 6,
	// so the 1/2 variant (level 7) is cut together with it.
	rollbackDeactivate(h, "Interview Adjusting")
	assertStatuses(t, h, "Proposal Sent")
}

func TestRollbackDeactivateMonotone(t *testing.T) {
	h := historyOf(
		"Proposal Sent",
		"Interview Adjusting",
		"Interview Scheduled",
		"Awaiting Result",
		catalog.StatusNegotiation,
	)
	rollbackDeactivate(h, "Interview Scheduled")
	target := groupLevel("Interview Scheduled")
	for _, e := range h.entries {
		if e.Active && groupLevel(e.Status) >= target {
			t.Fatalf("entry %q survived rollback", e.Status)
		}
	}
	assertStatuses(t, h, "Proposal Sent", "Interview Adjusting")
}

func TestGroupLevel(t *testing.T) {
	if got := groupLevel("1/3 Interview Adjusting"); got != 6 {
		t.Fatalf("groupLevel(1/3 Interview Adjusting) = %d, want 6", got)
	}
	if got := groupLevel("2/3 Proposal Sent"); got != 15 {
		t.Fatalf("groupLevel(2/3 Proposal Sent) = %d, want 15", got)
	}
	if got := groupLevel(catalog.StatusNegotiation); got != 27 {
		t.Fatalf("groupLevel(Negotiation) = %d, want 27", got)
	}
}
