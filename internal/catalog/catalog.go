// Package catalog holds the fixed case-status registry: the total order of
// pipeline statuses and the stage/round metadata for the interview section.
// The tables are built once at package init and never change; every status
// comparison in the engine goes through this package.
package catalog

import "sort"

// Stage classifies a status within the round-based middle of the pipeline.
type Stage string

const (
	StageProposal Stage = "proposal"
	StageAdjust   Stage = "adjust"
	StageSetup    Stage = "setup"
	StageWaiting  Stage = "waiting"
	StageOther    Stage = "other"
)

// Pipeline endpoints outside the round-based section.
const (
	StatusAwaitingConfirmation = "Awaiting Confirmation"
	StatusProposalConfirmation = "Proposal Confirmation"
	StatusNegotiation          = "Negotiation"
	StatusAwarded              = "Awarded"
	StatusOnboarding           = "Onboarding"
	StatusStatusCheck          = "Status Check"
	StatusOffboarding          = "Offboarding"
)

// Meta describes where a round-based status sits: its stage, the interview
// round it belongs to, and the declared total rounds of its group. Statuses
// outside the interview section carry StageOther and zero rounds.
type Meta struct {
	Stage Stage
	Round int
	Total int
}

// levels is the authoritative status order. The middle section interleaves
// by level, not by round group: every round-1 status ranks below every
// round-2 status regardless of total.
var levels = map[string]int{
	StatusAwaitingConfirmation: 1,
	StatusProposalConfirmation: 2,
	"Proposal Sent":            3,
	"1/2 Proposal Sent":        4,
	"1/3 Proposal Sent":        5,
	"Interview Adjusting":      6,
	"1/2 Interview Adjusting":  7,
	"1/3 Interview Adjusting":  8,
	"Interview Scheduled":      9,
	"1/2 Interview Scheduled":  10,
	"1/3 Interview Scheduled":  11,
	"Awaiting Result":          12,
	"1/2 Awaiting Result":      13,
	"1/3 Awaiting Result":      14,
	"2/2 Proposal Sent":        15,
	"2/3 Proposal Sent":        16,
	"2/2 Interview Adjusting":  17,
	"2/3 Interview Adjusting":  18,
	"2/2 Interview Scheduled":  19,
	"2/3 Interview Scheduled":  20,
	"2/2 Awaiting Result":      21,
	"2/3 Awaiting Result":      22,
	"3/3 Proposal Sent":        23,
	"3/3 Interview Adjusting":  24,
	"3/3 Interview Scheduled":  25,
	"3/3 Awaiting Result":      26,
	StatusNegotiation:          27,
	StatusAwarded:              28,
	StatusOnboarding:           29,
	StatusStatusCheck:          30,
	StatusOffboarding:          31,
}

var stageSuffixes = map[string]Stage{
	"Proposal Sent":       StageProposal,
	"Interview Adjusting": StageAdjust,
	"Interview Scheduled": StageSetup,
	"Awaiting Result":     StageWaiting,
}

// roundTags maps the display prefix of a status name to (round, total).
// The untagged form is round 1 of 1.
var roundTags = map[string][2]int{
	"":     {1, 1},
	"1/2 ": {1, 2},
	"1/3 ": {1, 3},
	"2/2 ": {2, 2},
	"2/3 ": {2, 3},
	"3/3 ": {3, 3},
}

var stageOrder = map[Stage]int{
	StageProposal: 0,
	StageAdjust:   1,
	StageSetup:    2,
	StageWaiting:  3,
}

// Threshold levels referenced by the transition rules.
var (
	InitLevel         int
	NegotiationLevel  int
	AwardedLevel      int
	NoRollbackLevel   int
	MaxInterviewLevel int
)

var (
	statusMeta map[string]Meta
	ordered    []string // all status names, ascending level
)

func init() {
	statusMeta = make(map[string]Meta, len(stageSuffixes)*len(roundTags))
	for tag, rt := range roundTags {
		for suffix, stage := range stageSuffixes {
			name := tag + suffix
			if _, ok := levels[name]; ok {
				statusMeta[name] = Meta{Stage: stage, Round: rt[0], Total: rt[1]}
			}
		}
	}

	ordered = make([]string, 0, len(levels))
	for name := range levels {
		ordered = append(ordered, name)
	}
	sort.Slice(ordered, func(i, j int) bool { return levels[ordered[i]] < levels[ordered[j]] })

	InitLevel = levels[StatusAwaitingConfirmation]
	NegotiationLevel = levels[StatusNegotiation]
	AwardedLevel = levels[StatusAwarded]
	NoRollbackLevel = levels[StatusOnboarding]
	MaxInterviewLevel = levels["3/3 Awaiting Result"]
}

// Level returns the pipeline rank of a status name, or 0 for a name
// outside the catalog.
func Level(name string) int {
	return levels[name]
}

// Known reports whether name belongs to the fixed catalog.
func Known(name string) bool {
	_, ok := levels[name]
	return ok
}

// MetaOf returns the stage/round metadata for a status. Names outside the
// round-based section (including unknown names) come back as StageOther.
func MetaOf(name string) Meta {
	if m, ok := statusMeta[name]; ok {
		return m
	}
	return Meta{Stage: StageOther}
}

// StatusAt returns the status name for a (round, total, stage) cell, if the
// pipeline has one.
func StatusAt(round, total int, stage Stage) (string, bool) {
	for _, name := range ordered {
		m, ok := statusMeta[name]
		if ok && m.Round == round && m.Total == total && m.Stage == stage {
			return name, true
		}
	}
	return "", false
}

// ProposalsForTotal lists the proposal statuses whose group total equals
// total, ascending by level.
func ProposalsForTotal(total int) []string {
	if total <= 0 {
		return nil
	}
	var out []string
	for _, name := range ordered {
		m := statusMeta[name]
		if m.Stage == StageProposal && m.Total == total {
			out = append(out, name)
		}
	}
	return out
}

// FirstRound lists the round-1 statuses of a stage, ascending by level.
func FirstRound(stage Stage) []string {
	var out []string
	for _, name := range ordered {
		m := statusMeta[name]
		if m.Stage == stage && m.Round == 1 {
			out = append(out, name)
		}
	}
	return out
}

// AllProposals lists every proposal-stage status, ascending by level.
func AllProposals() []string {
	var out []string
	for _, name := range ordered {
		if statusMeta[name].Stage == StageProposal {
			out = append(out, name)
		}
	}
	return out
}

// StageOrder gives the ordinal of a round-based stage
// (proposal < adjust < setup < waiting). ok is false for StageOther.
func StageOrder(stage Stage) (int, bool) {
	n, ok := stageOrder[stage]
	return n, ok
}

// MaxTotalRound returns the largest group total implied by a set of status
// names, defaulting to 1 when none of them is round-based.
func MaxTotalRound(statuses []string) int {
	max := 1
	for _, s := range statuses {
		if m, ok := statusMeta[s]; ok && m.Total > max {
			max = m.Total
		}
	}
	return max
}

// Names returns every catalog status in ascending level order.
func Names() []string {
	out := make([]string, len(ordered))
	copy(out, ordered)
	return out
}
