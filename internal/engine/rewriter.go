package engine

import (
	"context"

	"github.com/talentlink/caseflow/internal/catalog"
	"github.com/talentlink/caseflow/internal/models"
	"github.com/talentlink/caseflow/internal/store"
)

// workingHistory is an in-memory working copy of one case's history log,
// ordered by sequence number. Rewrites mutate the copy and mark entries
// dirty; flush persists the dirty rows in one pass so a failed transition
// never leaves the log half-rewritten.
type workingHistory struct {
	entries []models.CaseHistoryEntry
	dirty   map[int64]bool
}

func newWorkingHistory(entries []models.CaseHistoryEntry) *workingHistory {
	return &workingHistory{entries: entries, dirty: map[int64]bool{}}
}

// activeIdx returns the indices of the currently active entries in log order.
func (h *workingHistory) activeIdx() []int {
	var idx []int
	for i := range h.entries {
		if h.entries[i].Active {
			idx = append(idx, i)
		}
	}
	return idx
}

func (h *workingHistory) activeStatuses() []string {
	var out []string
	for i := range h.entries {
		if h.entries[i].Active {
			out = append(out, h.entries[i].Status)
		}
	}
	return out
}

func (h *workingHistory) setStatus(i int, status string) {
	if h.entries[i].Status == status {
		return
	}
	h.entries[i].Status = status
	h.dirty[h.entries[i].ID] = true
}

func (h *workingHistory) setActive(i int, active bool) {
	if h.entries[i].Active == active {
		return
	}
	h.entries[i].Active = active
	h.dirty[h.entries[i].ID] = true
}

func (h *workingHistory) flush(ctx context.Context, st store.Store) error {
	for i := range h.entries {
		e := &h.entries[i]
		if !h.dirty[e.ID] {
			continue
		}
		status := e.Status
		active := e.Active
		if err := st.UpdateHistory(ctx, e.ID, store.HistoryUpdate{Status: &status, Active: &active}); err != nil {
			return err
		}
		delete(h.dirty, e.ID)
	}
	return nil
}

// rewriteRoundTotal relabels every active round-bearing entry onto
// targetTotal. Each entry's round index is recomputed as the number of
// active proposal entries seen up to and including it, so relative round
// order is preserved while the group total changes.
func rewriteRoundTotal(h *workingHistory, targetTotal int) {
	if targetTotal == 0 {
		return
	}
	proposalIdx := 0
	for _, i := range h.activeIdx() {
		meta := catalog.MetaOf(h.entries[i].Status)
		if meta.Stage == catalog.StageProposal {
			proposalIdx++
		}
		if _, ok := catalog.StageOrder(meta.Stage); !ok {
			continue
		}
		if proposalIdx == 0 {
			continue
		}
		if name, ok := catalog.StatusAt(proposalIdx, targetTotal, meta.Stage); ok {
			h.setStatus(i, name)
		}
	}
}

// rewriteChainPrefix relabels the contiguous run of active entries starting
// at the most recent proposal entry onto (targetRound, targetTotal), for
// stages at or below maxStageOrder. Used when a transition advances within
// an existing round so the whole chain agrees on its round cell.
func rewriteChainPrefix(h *workingHistory, targetRound, targetTotal, maxStageOrder int) {
	if targetRound == 0 || targetTotal == 0 {
		return
	}
	active := h.activeIdx()
	lastProposal := -1
	for k := len(active) - 1; k >= 0; k-- {
		if catalog.MetaOf(h.entries[active[k]].Status).Stage == catalog.StageProposal {
			lastProposal = k
			break
		}
	}
	if lastProposal < 0 {
		return
	}
	for _, i := range active[lastProposal:] {
		meta := catalog.MetaOf(h.entries[i].Status)
		ord, ok := catalog.StageOrder(meta.Stage)
		if !ok || ord > maxStageOrder {
			continue
		}
		if name, ok := catalog.StatusAt(targetRound, targetTotal, meta.Stage); ok {
			h.setStatus(i, name)
		}
	}
}

// restartRenumber rebuilds the active chain for a fresh proposal cycle after
// an award: round-bearing entries are renumbered 1..N under targetTotal by
// counting proposal entries, and anything past the interview section that is
// not part of the renumbered chain is deactivated.
func restartRenumber(h *workingHistory, targetTotal int) {
	proposalIdx := 0
	for _, i := range h.activeIdx() {
		meta := catalog.MetaOf(h.entries[i].Status)
		if meta.Stage == catalog.StageProposal {
			proposalIdx++
		}
		if _, ok := catalog.StageOrder(meta.Stage); ok {
			if proposalIdx == 0 {
				continue
			}
			if name, ok := catalog.StatusAt(proposalIdx, targetTotal, meta.Stage); ok {
				h.setStatus(i, name)
			}
		} else if catalog.Level(h.entries[i].Status) > catalog.MaxInterviewLevel {
			h.setActive(i, false)
		}
	}
}

// rollbackDeactivate deactivates every active entry whose group-normalized
// level is at or above the rollback target's. Group normalization takes the
// minimum level across all statuses sharing an entry's stage and round, so a
// whole stage/round group is cut together rather than split by total.
func rollbackDeactivate(h *workingHistory, target string) {
	targetLevel := groupLevel(target)
	for _, i := range h.activeIdx() {
		if groupLevel(h.entries[i].Status) >= targetLevel {
			h.setActive(i, false)
		}
	}
}

func groupLevel(status string) int {
	level := catalog.Level(status)
	meta := catalog.MetaOf(status)
	if _, ok := catalog.StageOrder(meta.Stage); !ok || meta.Round == 0 {
		return level
	}
	for _, name := range catalog.Names() {
		m := catalog.MetaOf(name)
		if m.Stage == meta.Stage && m.Round == meta.Round {
			if l := catalog.Level(name); l < level {
				level = l
			}
		}
	}
	return level
}
