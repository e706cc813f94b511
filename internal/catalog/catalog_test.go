package catalog_test

import (
	"testing"

	"github.com/talentlink/caseflow/internal/catalog"
)

func TestLevelsTotalAndStrictlyIncreasing(t *testing.T) {
	names := catalog.Names()
	if len(names) != 31 {
		t.Fatalf("expected 31 statuses, got %d", len(names))
	}
	prev := 0
	for _, name := range names {
		lvl := catalog.Level(name)
		if lvl == 0 {
			t.Fatalf("no level for %q", name)
		}
		if lvl <= prev {
			t.Fatalf("levels not strictly increasing at %q: %d after %d", name, lvl, prev)
		}
		prev = lvl
	}
	if prev != 31 {
		t.Fatalf("top level = %d, want 31", prev)
	}
}

func TestThresholdLevels(t *testing.T) {
	if catalog.InitLevel != 1 {
		t.Fatalf("InitLevel = %d", catalog.InitLevel)
	}
	if catalog.NegotiationLevel != 27 {
		t.Fatalf("NegotiationLevel = %d", catalog.NegotiationLevel)
	}
	if catalog.AwardedLevel != 28 {
		t.Fatalf("AwardedLevel = %d", catalog.AwardedLevel)
	}
	if catalog.NoRollbackLevel != 29 {
		t.Fatalf("NoRollbackLevel = %d", catalog.NoRollbackLevel)
	}
	if catalog.MaxInterviewLevel != 26 {
		t.Fatalf("MaxInterviewLevel = %d", catalog.MaxInterviewLevel)
	}
}

func TestMetaCoversRoundSection(t *testing.T) {
	roundBased := 0
	for _, name := range catalog.Names() {
		m := catalog.MetaOf(name)
		if m.Stage == catalog.StageOther {
			continue
		}
		roundBased++
		if m.Round < 1 || m.Total < m.Round {
			t.Fatalf("%q meta out of range: %+v", name, m)
		}
		got, ok := catalog.StatusAt(m.Round, m.Total, m.Stage)
		if !ok || got != name {
			t.Fatalf("StatusAt(%d,%d,%s) = %q, %v; want %q", m.Round, m.Total, m.Stage, got, ok, name)
		}
	}
	if roundBased != 24 {
		t.Fatalf("round-based statuses = %d, want 24", roundBased)
	}
}

func TestMetaOfOther(t *testing.T) {
	for _, name := range []string{catalog.StatusAwaitingConfirmation, catalog.StatusNegotiation, catalog.StatusOffboarding, "No Such Status"} {
		m := catalog.MetaOf(name)
		if m.Stage != catalog.StageOther || m.Round != 0 || m.Total != 0 {
			t.Fatalf("MetaOf(%q) = %+v, want StageOther", name, m)
		}
	}
}

func TestStatusAtMissingCell(t *testing.T) {
	if name, ok := catalog.StatusAt(3, 2, catalog.StageProposal); ok {
		t.Fatalf("StatusAt(3,2,proposal) unexpectedly found %q", name)
	}
	if name, ok := catalog.StatusAt(2, 1, catalog.StageWaiting); ok {
		t.Fatalf("StatusAt(2,1,waiting) unexpectedly found %q", name)
	}
}

func TestProposalsForTotal(t *testing.T) {
	got := catalog.ProposalsForTotal(3)
	want := []string{"1/3 Proposal Sent", "2/3 Proposal Sent", "3/3 Proposal Sent"}
	if len(got) != len(want) {
		t.Fatalf("ProposalsForTotal(3) = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ProposalsForTotal(3)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if out := catalog.ProposalsForTotal(0); out != nil {
		t.Fatalf("ProposalsForTotal(0) = %v, want nil", out)
	}
}

func TestFirstRoundAndAllProposals(t *testing.T) {
	if got := catalog.FirstRound(catalog.StageProposal); len(got) != 3 {
		t.Fatalf("FirstRound(proposal) = %v", got)
	}
	if got := catalog.AllProposals(); len(got) != 6 {
		t.Fatalf("AllProposals() = %v", got)
	}
}

func TestMaxTotalRound(t *testing.T) {
	if n := catalog.MaxTotalRound(nil); n != 1 {
		t.Fatalf("MaxTotalRound(nil) = %d", n)
	}
	statuses := []string{catalog.StatusAwaitingConfirmation, "1/3 Proposal Sent", "Interview Adjusting"}
	if n := catalog.MaxTotalRound(statuses); n != 3 {
		t.Fatalf("MaxTotalRound = %d, want 3", n)
	}
}
