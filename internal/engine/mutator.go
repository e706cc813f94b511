// Package engine implements the case status transition engine: the
// transition validator, the history rewriter, and the mutation orchestrator
// that applies a validated transition and its cross-case side effects.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/talentlink/caseflow/internal/catalog"
	"github.com/talentlink/caseflow/internal/store"
)

const maxRemarkLen = 500

// Engine is stateless; every call reads and writes through the injected
// persistence port.
type Engine struct {
	store store.Store
}

func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// TransitionResult reports one applied transition: the history row written,
// a newline-joined log of the side effects, and the sibling cases that were
// auto-closed by the exclusivity rule.
type TransitionResult struct {
	HistoryID     int64   `json:"insertId"`
	Message       string  `json:"msg"`
	ClosedCaseIDs []int64 `json:"closeCaseIds"`
}

// PreflightCheck validates a requested change without writing anything.
// caseID 0 means the case does not exist yet; only the two initial statuses
// are permitted then.
func (e *Engine) PreflightCheck(ctx context.Context, caseID int64, before, after string) (CheckResult, error) {
	if caseID == 0 {
		initial := []string{catalog.StatusAwaitingConfirmation, catalog.StatusProposalConfirmation}
		if after != initial[0] && after != initial[1] {
			return CheckResult{
				Reason:      fmt.Sprintf("a new case must start as %q or %q", initial[0], initial[1]),
				Suggestions: initial,
			}, nil
		}
		return CheckResult{Allowed: true}, nil
	}

	if !catalog.Known(before) || !catalog.Known(after) {
		return CheckResult{}, &InputError{Message: "unknown status"}
	}

	c, err := e.store.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CheckResult{}, &NotFoundError{Message: "case not found"}
		}
		return CheckResult{}, err
	}
	if c.Status != "" && c.Status != before {
		return CheckResult{}, &ConflictError{
			Message: fmt.Sprintf("case is currently %q, refresh and retry", c.Status),
		}
	}

	entries, err := e.store.ListHistory(ctx, caseID, false)
	if err != nil {
		return CheckResult{}, err
	}
	statuses := make([]string, 0, len(entries)+1)
	for _, entry := range entries {
		statuses = append(statuses, entry.Status)
	}
	if c.Status != "" {
		statuses = append(statuses, c.Status)
	}

	conflict, err := e.awardConflict(ctx, e.store, c.ID, c.SupplyID, after)
	if err != nil {
		return CheckResult{}, err
	}
	return validateChange(before, after, statuses, conflict), nil
}

// ApplyTransition applies one validated status change inside a single
// transaction: optimistic stale-state check, validation, history rewrite,
// current-status write, exclusivity side effects, and the supply aggregate
// recompute.
func (e *Engine) ApplyTransition(ctx context.Context, caseID int64, before, after string) (TransitionResult, error) {
	if !catalog.Known(before) || !catalog.Known(after) {
		return TransitionResult{}, &InputError{Message: "unknown status"}
	}
	if catalog.Level(before) == catalog.Level(after) {
		return TransitionResult{}, nil
	}

	var result TransitionResult
	err := e.store.Transact(ctx, func(tx store.Store) error {
		c, err := tx.GetCase(ctx, caseID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &NotFoundError{Message: "case not found"}
			}
			return err
		}
		if c.Status != "" && c.Status != before {
			return &ConflictError{
				Message: fmt.Sprintf("case is currently %q, refresh and retry", c.Status),
			}
		}

		entries, err := tx.ListHistory(ctx, caseID, false)
		if err != nil {
			return err
		}
		statuses := make([]string, 0, len(entries)+1)
		for _, entry := range entries {
			statuses = append(statuses, entry.Status)
		}
		if c.Status != "" {
			statuses = append(statuses, c.Status)
		}
		conflict, err := e.awardConflict(ctx, tx, c.ID, c.SupplyID, after)
		if err != nil {
			return err
		}
		if check := validateChange(before, after, statuses, conflict); !check.Allowed {
			return &ValidationError{Reason: check.Reason, Suggestions: check.Suggestions}
		}

		historyID, err := applyHistory(ctx, tx, caseID, before, after)
		if err != nil {
			return err
		}
		if err := tx.UpdateCaseStatus(ctx, caseID, after); err != nil {
			return err
		}

		msgs, closed, err := e.applySideEffects(ctx, tx, c.ID, c.SupplyID, before, after)
		if err != nil {
			return err
		}

		result = TransitionResult{
			HistoryID:     historyID,
			Message:       strings.Join(msgs, "\n"),
			ClosedCaseIDs: closed,
		}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return result, nil
}

// awardConflict reports whether a different active case on the same supply
// already sits at Awarded or beyond. Only consulted when the target status
// is Awarded.
func (e *Engine) awardConflict(ctx context.Context, st store.Store, caseID, supplyID int64, after string) (bool, error) {
	if after != catalog.StatusAwarded {
		return false, nil
	}
	siblings, err := st.ListCasesBySupply(ctx, supplyID, true)
	if err != nil {
		return false, err
	}
	for _, other := range siblings {
		if other.ID == caseID {
			continue
		}
		if catalog.Level(other.Status) >= catalog.AwardedLevel {
			return true, nil
		}
	}
	return false, nil
}

// applyHistory performs the structural history edit for one transition and
// returns the id of the inserted or merged entry. Dispatch order: round
// retotal, same stage/round merge, restart, rollback, chain-prefix advance.
func applyHistory(ctx context.Context, tx store.Store, caseID int64, before, after string) (int64, error) {
	entries, err := tx.ListHistory(ctx, caseID, false)
	if err != nil {
		return 0, err
	}
	h := newWorkingHistory(entries)

	beforeMeta := catalog.MetaOf(before)
	afterMeta := catalog.MetaOf(after)
	beforeLevel := catalog.Level(before)
	afterLevel := catalog.Level(after)
	isRollback := afterLevel < beforeLevel
	isRestart := afterMeta.Stage == catalog.StageProposal && beforeLevel >= catalog.AwardedLevel

	currentTotal := catalog.MaxTotalRound(h.activeStatuses())
	if afterMeta.Total != 0 && afterMeta.Total != currentTotal {
		rewriteRoundTotal(h, afterMeta.Total)
	}

	_, afterRoundBased := catalog.StageOrder(afterMeta.Stage)

	// Same stage and round: merge into the last matching active entry
	// instead of appending.
	if afterRoundBased && beforeMeta.Stage == afterMeta.Stage && beforeMeta.Round == afterMeta.Round {
		targetTotal := afterMeta.Total
		if targetTotal == 0 {
			targetTotal = beforeMeta.Total
		}
		if targetTotal == 0 {
			targetTotal = 1
		}
		beforeTotal := beforeMeta.Total
		if beforeTotal == 0 {
			beforeTotal = 1
		}
		if targetTotal != beforeTotal {
			rewriteRoundTotal(h, targetTotal)
		}

		active := h.activeIdx()
		match := -1
		for k := len(active) - 1; k >= 0; k-- {
			meta := catalog.MetaOf(h.entries[active[k]].Status)
			if meta.Stage == afterMeta.Stage && meta.Round == afterMeta.Round {
				match = active[k]
				break
			}
		}
		if match < 0 && len(active) > 0 {
			match = active[len(active)-1]
		}
		if match >= 0 {
			h.setStatus(match, after)
			if err := h.flush(ctx, tx); err != nil {
				return 0, err
			}
			return h.entries[match].ID, nil
		}
		if err := h.flush(ctx, tx); err != nil {
			return 0, err
		}
		inserted, err := tx.InsertHistory(ctx, caseID, after, "")
		if err != nil {
			return 0, err
		}
		return inserted.ID, nil
	}

	// Restart: re-entering a later proposal round after an award renumbers
	// the whole chain and drops the post-interview entries.
	if isRestart && afterMeta.Round > 1 {
		targetTotal := afterMeta.Total
		if targetTotal == 0 {
			targetTotal = 1
		}
		restartRenumber(h, targetTotal)
		if err := h.flush(ctx, tx); err != nil {
			return 0, err
		}
		inserted, err := tx.InsertHistory(ctx, caseID, after, "")
		if err != nil {
			return 0, err
		}
		return inserted.ID, nil
	}

	if isRollback {
		rollbackDeactivate(h, after)
	}

	if afterRoundBased {
		skipRewrite := false
		if isRollback && afterMeta.Round > 1 {
			skipRewrite = true
		}
		if !isRollback && afterMeta.Stage == catalog.StageProposal && afterMeta.Round > 1 {
			exists := false
			for _, i := range h.activeIdx() {
				meta := catalog.MetaOf(h.entries[i].Status)
				if meta.Stage == catalog.StageProposal && meta.Round == afterMeta.Round && meta.Total == afterMeta.Total {
					exists = true
					break
				}
			}
			if !exists {
				skipRewrite = true
			}
		}
		if !skipRewrite {
			maxStageOrder, _ := catalog.StageOrder(afterMeta.Stage)
			rewriteChainPrefix(h, afterMeta.Round, afterMeta.Total, maxStageOrder)
		}
	}

	if err := h.flush(ctx, tx); err != nil {
		return 0, err
	}
	inserted, err := tx.InsertHistory(ctx, caseID, after, "")
	if err != nil {
		return 0, err
	}
	return inserted.ID, nil
}

// applySideEffects enforces the cross-case exclusivity rule and refreshes
// the supply's aggregate status after the case itself has been updated.
func (e *Engine) applySideEffects(ctx context.Context, tx store.Store, caseID, supplyID int64, before, after string) ([]string, []int64, error) {
	beforeLevel := catalog.Level(before)
	afterLevel := catalog.Level(after)

	var msgs []string
	closed := []int64{}

	// Rolling back out of Awarded reopens the siblings that the award had
	// closed.
	if beforeLevel >= catalog.AwardedLevel && afterLevel < catalog.AwardedLevel {
		inactive, err := tx.ListCasesBySupply(ctx, supplyID, false)
		if err != nil {
			return nil, nil, err
		}
		for _, other := range inactive {
			if other.ID == caseID {
				continue
			}
			if catalog.Level(other.Status) > catalog.InitLevel {
				// only the active flag flips; the recorded closure
				// reason stays on the row
				if err := tx.SetCaseActive(ctx, other.ID, true, other.Reason); err != nil {
					return nil, nil, err
				}
				msgs = append(msgs, fmt.Sprintf("restored case %d (status %s) to active", other.ID, other.Status))
			}
		}
	}

	// Crossing into Awarded closes every other active case on the supply.
	if beforeLevel < catalog.AwardedLevel && afterLevel >= catalog.AwardedLevel {
		active, err := tx.ListCasesBySupply(ctx, supplyID, true)
		if err != nil {
			return nil, nil, err
		}
		for _, other := range active {
			if other.ID == caseID {
				continue
			}
			reason := fmt.Sprintf("Automatically marked inactive because case %d changed status to %q.", caseID, after)
			if err := tx.SetCaseActive(ctx, other.ID, false, reason); err != nil {
				return nil, nil, err
			}
			msgs = append(msgs, fmt.Sprintf("marked case %d (status: %s) inactive", other.ID, other.Status))
			closed = append(closed, other.ID)
		}
	}

	// Supply aggregate status: the maximum level among its active cases.
	active, err := tx.ListCasesBySupply(ctx, supplyID, true)
	if err != nil {
		return nil, nil, err
	}
	maxLevel := 0
	maxStatus := ""
	for _, c := range active {
		if lvl := catalog.Level(c.Status); lvl > maxLevel {
			maxLevel = lvl
			maxStatus = c.Status
		}
	}
	if maxStatus != "" && supplyID != 0 {
		current, err := tx.GetSupplyStatus(ctx, supplyID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// supply row gone; nothing to refresh
		case err != nil:
			return nil, nil, err
		case current != maxStatus:
			if err := tx.SetSupplyStatus(ctx, supplyID, maxStatus); err != nil {
				return nil, nil, err
			}
			msgs = append(msgs, fmt.Sprintf("updated supply %d aggregate status to %q", supplyID, maxStatus))
		}
	}

	return msgs, closed, nil
}

// CaseInvalidBatch deactivates a batch of cases after verifying that every
// id belongs to ownerID under ownerTable. Any mismatch rejects the whole
// batch with no partial effect.
func (e *Engine) CaseInvalidBatch(ctx context.Context, caseIDs []int64, ownerID int64, ownerTable string) error {
	if ownerTable != store.OwnerTableSupply && ownerTable != store.OwnerTableDemand {
		return &InputError{Message: "unknown owner table"}
	}
	if len(caseIDs) == 0 {
		return nil
	}
	return e.store.Transact(ctx, func(tx store.Store) error {
		owned, err := tx.ListCasesOwned(ctx, caseIDs, ownerTable, ownerID)
		if err != nil {
			return err
		}
		if len(owned) != len(caseIDs) {
			return &NotFoundError{Message: "batch contains cases not owned by the given record"}
		}
		return tx.DeactivateCases(ctx, caseIDs)
	})
}

// UpdateHistoryRemark overwrites the remark of one history entry after an
// ownership check.
func (e *Engine) UpdateHistoryRemark(ctx context.Context, caseID, historyID int64, remark string) error {
	if utf8.RuneCountInString(remark) > maxRemarkLen {
		return &InputError{Message: fmt.Sprintf("remark must be at most %d characters", maxRemarkLen)}
	}
	return e.store.Transact(ctx, func(tx store.Store) error {
		entry, err := tx.GetHistoryEntry(ctx, historyID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &NotFoundError{Message: "history entry not found"}
			}
			return err
		}
		if entry.CaseID != caseID {
			return &NotFoundError{Message: "history entry does not belong to this case"}
		}
		return tx.UpdateHistory(ctx, historyID, store.HistoryUpdate{Remark: &remark})
	})
}
