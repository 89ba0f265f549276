package requests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/hearthhq/hearth/internal/dbpool"
	"github.com/hearthhq/hearth/internal/platform"
)

func testStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pool := dbpool.NewPool(sqlx.NewDb(db, "sqlserver"), platform.EngineSQLServer, "beresheet", time.Second, time.Second)
	return NewStore(pool, "beresheet"), mock
}

func requestRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "user_id", "provider_type_id", "subject", "status", "created_at", "updated_at",
	}).AddRow(4, 7, nil, "Leaky faucet", "open", now, now)
}

const (
	getReqQuery    = `SELECT id, user_id, provider_type_id, subject, status, created_at, updated_at FROM \[beresheet\]\.\[requests\] WHERE id = @p1`
	touchQuery     = `UPDATE \[beresheet\]\.\[requests\] SET updated_at = @p1 WHERE id = @p2`
	insertMsgQuery = `INSERT INTO \[beresheet\]\.\[request_messages\] \(request_id, sender_id, body, media_url, created_at\) OUTPUT INSERTED\.id VALUES \(@p1, @p2, @p3, @p4, @p5\)`
)

func TestAddMessageTouchesRequest(t *testing.T) {
	store, mock := testStore(t)
	body := "On my way"

	mock.ExpectBegin()
	mock.ExpectExec(touchQuery).
		WithArgs(sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertMsgQuery).
		WithArgs(int64(4), int64(7), &body, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	msg, err := store.AddMessage(context.Background(), 4, MessageParams{SenderID: 7, Body: &body})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if msg.ID != 11 || msg.RequestID != 4 || msg.SenderID != 7 {
		t.Errorf("message = %+v", msg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAddMessageMissingRequest(t *testing.T) {
	store, mock := testStore(t)
	body := "Hello?"

	mock.ExpectBegin()
	mock.ExpectExec(touchQuery).
		WithArgs(sqlmock.AnyArg(), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.AddMessage(context.Background(), 99, MessageParams{SenderID: 7, Body: &body})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectQuery(`SELECT id, user_id, provider_type_id, subject, status, created_at, updated_at FROM \[beresheet\]\.\[requests\] WHERE 1 = 1 AND status = @p1 ORDER BY updated_at DESC OFFSET @p2 ROWS FETCH NEXT @p3 ROWS ONLY`).
		WithArgs("open", 0, 20).
		WillReturnRows(requestRows())
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM \[beresheet\]\.\[requests\] WHERE 1 = 1 AND status = @p1`).
		WithArgs("open").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := store.List(context.Background(), Filters{Status: "open"}, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || total != 1 {
		t.Errorf("items = %d, total = %d", len(items), total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSetStatusMissingRequest(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectExec(`UPDATE \[beresheet\]\.\[requests\] SET status = @p1, updated_at = @p2 WHERE id = @p3`).
		WithArgs("closed", sqlmock.AnyArg(), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.SetStatus(context.Background(), 99, "closed")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteCascadesMessages(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM \[beresheet\]\.\[request_messages\] WHERE request_id = @p1`).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM \[beresheet\]\.\[requests\] WHERE id = @p1`).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Delete(context.Background(), 4); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMessagesResolvesSender(t *testing.T) {
	store, mock := testStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(getReqQuery).
		WithArgs(int64(4)).
		WillReturnRows(requestRows())
	mock.ExpectQuery(`(?s)SELECT m\.id, m\.request_id, m\.sender_id, u\.full_name AS sender_name, m\.body,.*FROM \[beresheet\]\.\[request_messages\] m LEFT JOIN \[beresheet\]\.\[users\] u ON u\.id = m\.sender_id.*WHERE m\.request_id = @p1 ORDER BY m\.id`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "request_id", "sender_id", "sender_name", "body", "media_url", "created_at",
		}).AddRow(11, 4, 7, "Noa Levi", "On my way", nil, now))

	items, err := store.Messages(context.Background(), 4)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].SenderName == nil || *items[0].SenderName != "Noa Levi" {
		t.Errorf("SenderName = %v, want resolved name", items[0].SenderName)
	}
}

func TestMessagesMissingRequest(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectQuery(getReqQuery).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Messages(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
