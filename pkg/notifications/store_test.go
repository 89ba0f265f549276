package notifications

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

const (
	insertUserNotifQuery = `INSERT INTO \[beresheet\]\.\[user_notification\] \(user_id, title, body, sender_id, is_read, created_at\) OUTPUT INSERTED\.id VALUES \(@p1, @p2, @p3, @p4, @p5, @p6\)`
	insertHomeNotifQuery = `INSERT INTO \[beresheet\]\.\[home_notification\] \(title, body, sender_id, created_at\) OUTPUT INSERTED\.id VALUES \(@p1, @p2, @p3, @p4\)`
	tokenQuery           = `SELECT push_token FROM \[beresheet\]\.\[users\] WHERE id = @p1`
	allTokensQuery       = `SELECT push_token FROM \[beresheet\]\.\[users\] WHERE push_token IS NOT NULL`
)

func TestCreateForUserWritesUnread(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectQuery(insertUserNotifQuery).
		WithArgs(int64(7), "Package arrived", "Pick it up at the lobby", nil, int64(0), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	n, err := store.CreateForUser(context.Background(), UserParams{
		UserID: 7,
		Title:  "Package arrived",
		Body:   "Pick it up at the lobby",
	})
	if err != nil {
		t.Fatalf("CreateForUser: %v", err)
	}
	if n.ID != 3 || n.UserID != 7 || bool(n.IsRead) {
		t.Errorf("notification = %+v", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListForUserResolvesSender(t *testing.T) {
	store, mock := testStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)SELECT n\.id, n\.user_id, n\.title, n\.body, n\.sender_id, u\.full_name AS sender_name,.*FROM \[beresheet\]\.\[user_notification\] n LEFT JOIN \[beresheet\]\.\[users\] u ON u\.id = n\.sender_id.*WHERE n\.user_id = @p1.*ORDER BY n\.id DESC OFFSET @p2 ROWS FETCH NEXT @p3 ROWS ONLY`).
		WithArgs(int64(7), 0, 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "title", "body", "sender_id", "sender_name", "is_read", "created_at",
		}).AddRow(3, 7, "Package arrived", "Lobby", 2, "Adi Manager", false, now))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM \[beresheet\]\.\[user_notification\] WHERE user_id = @p1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := store.ListForUser(context.Background(), 7, 20, 0)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("items = %d, total = %d", len(items), total)
	}
	if items[0].SenderName == nil || *items[0].SenderName != "Adi Manager" {
		t.Errorf("SenderName = %v, want resolved name", items[0].SenderName)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUnreadCountBindsZero(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM \[beresheet\]\.\[user_notification\] WHERE user_id = @p1 AND is_read = @p2`).
		WithArgs(int64(7), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	total, err := store.UnreadCount(context.Background(), 7)
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMarkReadMissing(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectExec(`UPDATE \[beresheet\]\.\[user_notification\] SET is_read = @p1 WHERE id = @p2`).
		WithArgs(int64(1), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.MarkRead(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateForHome(t *testing.T) {
	store, mock := testStore(t)
	sender := int64(2)

	mock.ExpectQuery(insertHomeNotifQuery).
		WithArgs("Pool closed", "Maintenance until Friday", sender, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))

	n, err := store.CreateForHome(context.Background(), HomeParams{
		Title:    "Pool closed",
		Body:     "Maintenance until Friday",
		SenderID: &sender,
	})
	if err != nil {
		t.Fatalf("CreateForHome: %v", err)
	}
	if n.ID != 8 || n.SenderID == nil || *n.SenderID != 2 {
		t.Errorf("notification = %+v", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPushTokenForMissingUser(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectQuery(tokenQuery).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"push_token"}))

	_, err := store.PushTokenFor(context.Background(), 99)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestPushTokenForNullToken(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectQuery(tokenQuery).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"push_token"}).AddRow(nil))

	token, err := store.PushTokenFor(context.Background(), 7)
	if err != nil {
		t.Fatalf("PushTokenFor: %v", err)
	}
	if token != "" {
		t.Errorf("token = %q, want empty for null column", token)
	}
}

func TestPushTokensListsRegistered(t *testing.T) {
	store, mock := testStore(t)

	mock.ExpectQuery(allTokensQuery).
		WillReturnRows(sqlmock.NewRows([]string{"push_token"}).AddRow("tok-1").AddRow("tok-2"))

	tokens, err := store.PushTokens(context.Background())
	if err != nil {
		t.Fatalf("PushTokens: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "tok-1" || tokens[1] != "tok-2" {
		t.Errorf("tokens = %v", tokens)
	}
}
