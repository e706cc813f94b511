package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/talentlink/caseflow/internal/store"
)

var caseCols = []string{"id", "supply_id", "demand_id", "status", "active", "reason", "to_be_confirmed", "created_at", "updated_at"}
var historyCols = []string{"id", "case_id", "seq", "status", "remark", "active", "created_at"}

func newMock(t *testing.T) (*store.PGStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	return store.NewPGStore(db), mock, func() { db.Close() }
}

func TestPGGetCase(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM cases WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(caseCols).
			AddRow(42, 7, 9, "Proposal Sent", true, nil, false, now, now))

	c, err := st.GetCase(context.Background(), 42)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), c.ID)
	assert.Equal(t, int64(7), c.SupplyID)
	assert.Equal(t, "Proposal Sent", c.Status)
	assert.Equal(t, "", c.Reason)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPGGetCaseNotFound(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery("SELECT .+ FROM cases WHERE id").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(caseCols))

	_, err := st.GetCase(context.Background(), 404)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPGInsertHistoryAssignsNextSeq(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO case_history").
		WithArgs(int64(5), "Negotiation", "").
		WillReturnRows(sqlmock.NewRows(historyCols).
			AddRow(31, 5, 4, "Negotiation", nil, true, now))

	e, err := st.InsertHistory(context.Background(), 5, "Negotiation", "")
	assert.NoError(t, err)
	assert.Equal(t, int64(31), e.ID)
	assert.Equal(t, int64(4), e.Seq)
	assert.True(t, e.Active)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPGListHistoryActiveOnly(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM case_history WHERE case_id=.+ AND active=TRUE ORDER BY seq").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(historyCols).
			AddRow(1, 5, 1, "Proposal Sent", nil, true, now).
			AddRow(3, 5, 3, "Interview Adjusting", "moved up", true, now))

	entries, err := st.ListHistory(context.Background(), 5, true)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "moved up", entries[1].Remark)
}

func TestPGUpdateHistoryPartialSet(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	status := "1/2 Proposal Sent"
	off := false
	mock.ExpectExec("UPDATE case_history SET updated_at=NOW\\(\\), status=.+, active=.+ WHERE id").
		WithArgs(int64(9), status, off).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.UpdateHistory(context.Background(), 9, store.HistoryUpdate{Status: &status, Active: &off})
	assert.NoError(t, err)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPGUpdateHistoryNoRows(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	remark := "x"
	mock.ExpectExec("UPDATE case_history SET updated_at=NOW\\(\\), remark=.+ WHERE id").
		WithArgs(int64(9), remark).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.UpdateHistory(context.Background(), 9, store.HistoryUpdate{Remark: &remark})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPGListCasesOwned(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	now := time.Now()
	ids := []int64{1, 2}
	mock.ExpectQuery("SELECT .+ FROM cases WHERE id = ANY.+ AND demand_id").
		WithArgs(pq.Array(ids), int64(20)).
		WillReturnRows(sqlmock.NewRows(caseCols).
			AddRow(1, 10, 20, "Proposal Sent", true, nil, false, now, now).
			AddRow(2, 11, 20, "Negotiation", true, nil, false, now, now))

	cases, err := st.ListCasesOwned(context.Background(), ids, store.OwnerTableDemand, 20)
	assert.NoError(t, err)
	assert.Len(t, cases, 2)

	_, err = st.ListCasesOwned(context.Background(), ids, "customers", 20)
	assert.Error(t, err)
}

func TestPGTransactCommit(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cases SET status").
		WithArgs(int64(1), "Negotiation").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := st.Transact(context.Background(), func(tx store.Store) error {
		return tx.UpdateCaseStatus(context.Background(), 1, "Negotiation")
	})
	assert.NoError(t, err)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPGTransactRollbackOnError(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cases SET status").
		WithArgs(int64(1), "Negotiation").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := st.Transact(context.Background(), func(tx store.Store) error {
		if err := tx.UpdateCaseStatus(context.Background(), 1, "Negotiation"); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPGGetSupplyStatus(t *testing.T) {
	st, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery("SELECT case_status FROM supplies WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"case_status"}).AddRow("Awarded"))

	status, err := st.GetSupplyStatus(context.Background(), 7)
	assert.NoError(t, err)
	assert.Equal(t, "Awarded", status)
}
