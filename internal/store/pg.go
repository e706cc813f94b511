package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/talentlink/caseflow/internal/models"
)

// querier is implemented by both *sql.DB and *sql.Tx so the same statement
// helpers serve transactional and plain calls.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type PGStore struct {
	db *sql.DB
	q  querier
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, q: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row rowScanner) (models.Case, error) {
	var (
		c      models.Case
		reason sql.NullString
	)
	if err := row.Scan(
		&c.ID,
		&c.SupplyID,
		&c.DemandID,
		&c.Status,
		&c.Active,
		&reason,
		&c.ToBeConfirmed,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return models.Case{}, err
	}
	if reason.Valid {
		c.Reason = reason.String
	}
	return c, nil
}

func scanHistory(row rowScanner) (models.CaseHistoryEntry, error) {
	var (
		e      models.CaseHistoryEntry
		remark sql.NullString
	)
	if err := row.Scan(&e.ID, &e.CaseID, &e.Seq, &e.Status, &remark, &e.Active, &e.CreatedAt); err != nil {
		return models.CaseHistoryEntry{}, err
	}
	if remark.Valid {
		e.Remark = remark.String
	}
	return e, nil
}

const caseColumns = "id, supply_id, demand_id, status, active, reason, to_be_confirmed, created_at, updated_at"
const historyColumns = "id, case_id, seq, status, remark, active, created_at"

func (s *PGStore) GetCase(ctx context.Context, id int64) (models.Case, error) {
	query := fmt.Sprintf("SELECT %s FROM cases WHERE id=$1", caseColumns)
	c, err := scanCase(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Case{}, ErrNotFound
		}
		return models.Case{}, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

func (s *PGStore) UpdateCaseStatus(ctx context.Context, id int64, status string) error {
	res, err := s.q.ExecContext(ctx, "UPDATE cases SET status=$2, updated_at=NOW() WHERE id=$1", id, status)
	if err != nil {
		return fmt.Errorf("update case status: %w", err)
	}
	return requireRow(res)
}

func (s *PGStore) SetCaseActive(ctx context.Context, id int64, active bool, reason string) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE cases SET active=$2, reason=$3, updated_at=NOW() WHERE id=$1",
		id, active, reason)
	if err != nil {
		return fmt.Errorf("set case active: %w", err)
	}
	return requireRow(res)
}

func (s *PGStore) ListCasesBySupply(ctx context.Context, supplyID int64, active bool) ([]models.Case, error) {
	query := fmt.Sprintf("SELECT %s FROM cases WHERE supply_id=$1 AND active=$2 ORDER BY id", caseColumns)
	rows, err := s.q.QueryContext(ctx, query, supplyID, active)
	if err != nil {
		return nil, fmt.Errorf("list cases by supply: %w", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

func (s *PGStore) ListCasesOwned(ctx context.Context, ids []int64, ownerTable string, ownerID int64) ([]models.Case, error) {
	var col string
	switch ownerTable {
	case OwnerTableSupply:
		col = "supply_id"
	case OwnerTableDemand:
		col = "demand_id"
	default:
		return nil, fmt.Errorf("unknown owner table %q", ownerTable)
	}
	query := fmt.Sprintf("SELECT %s FROM cases WHERE id = ANY($1) AND %s = $2 ORDER BY id", caseColumns, col)
	rows, err := s.q.QueryContext(ctx, query, pq.Array(ids), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owned cases: %w", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

func (s *PGStore) DeactivateCases(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q.ExecContext(ctx,
		"UPDATE cases SET active=FALSE, to_be_confirmed=FALSE, updated_at=NOW() WHERE id = ANY($1)",
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("deactivate cases: %w", err)
	}
	return nil
}

func (s *PGStore) ListHistory(ctx context.Context, caseID int64, activeOnly bool) ([]models.CaseHistoryEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM case_history WHERE case_id=$1", historyColumns)
	if activeOnly {
		query += " AND active=TRUE"
	}
	query += " ORDER BY seq"
	rows, err := s.q.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []models.CaseHistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func (s *PGStore) GetHistoryEntry(ctx context.Context, id int64) (models.CaseHistoryEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM case_history WHERE id=$1", historyColumns)
	e, err := scanHistory(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CaseHistoryEntry{}, ErrNotFound
		}
		return models.CaseHistoryEntry{}, fmt.Errorf("get history entry: %w", err)
	}
	return e, nil
}

func (s *PGStore) InsertHistory(ctx context.Context, caseID int64, status, remark string) (models.CaseHistoryEntry, error) {
	query := fmt.Sprintf(`
		INSERT INTO case_history (case_id, seq, status, remark, active)
		VALUES ($1, (SELECT COALESCE(MAX(seq),0)+1 FROM case_history WHERE case_id=$1), $2, $3, TRUE)
		RETURNING %s`, historyColumns)
	e, err := scanHistory(s.q.QueryRowContext(ctx, query, caseID, status, remark))
	if err != nil {
		return models.CaseHistoryEntry{}, fmt.Errorf("insert history: %w", err)
	}
	return e, nil
}

func (s *PGStore) UpdateHistory(ctx context.Context, id int64, upd HistoryUpdate) error {
	query := "UPDATE case_history SET updated_at=NOW()"
	args := []interface{}{id}
	argPos := 2
	if upd.Status != nil {
		query += fmt.Sprintf(", status=$%d", argPos)
		args = append(args, *upd.Status)
		argPos++
	}
	if upd.Remark != nil {
		query += fmt.Sprintf(", remark=$%d", argPos)
		args = append(args, *upd.Remark)
		argPos++
	}
	if upd.Active != nil {
		query += fmt.Sprintf(", active=$%d", argPos)
		args = append(args, *upd.Active)
	}
	query += " WHERE id=$1"
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update history: %w", err)
	}
	return requireRow(res)
}

func (s *PGStore) GetSupplyStatus(ctx context.Context, supplyID int64) (string, error) {
	var status sql.NullString
	err := s.q.QueryRowContext(ctx, "SELECT case_status FROM supplies WHERE id=$1", supplyID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get supply status: %w", err)
	}
	return status.String, nil
}

func (s *PGStore) SetSupplyStatus(ctx context.Context, supplyID int64, status string) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE supplies SET case_status=$2, updated_at=NOW() WHERE id=$1", supplyID, status)
	if err != nil {
		return fmt.Errorf("set supply status: %w", err)
	}
	return requireRow(res)
}

func (s *PGStore) Transact(ctx context.Context, fn func(Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&PGStore{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

func collectCases(rows *sql.Rows) ([]models.Case, error) {
	var cases []models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
