package payment

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

var txCols = []string{
	"auction_id", "transaction_id", "winner_id", "amount",
	"status", "link", "detail", "created_at", "updated_at",
}

func txRow(auctionID, transactionID, winnerID string, amount float64, status Status, link, detail string) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(txCols).
		AddRow(auctionID, transactionID, winnerID, amount, string(status), link, detail, now, now)
}

func TestPostgresStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS payment_transactions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}

func TestPostgresStore_Create_New(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("INSERT INTO payment_transactions").
		WithArgs("a1", "user-2", 150.0, string(StatusRequested)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM payment_transactions WHERE auction_id").
		WithArgs("a1").
		WillReturnRows(txRow("a1", "", "user-2", 150, StatusRequested, "", ""))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	tx, created, err := store.Create(context.Background(), "a1", "user-2", 150)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}
	if tx.AuctionID != "a1" || tx.Status != StatusRequested || tx.ID != "" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
}

func TestPostgresStore_Create_Duplicate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("INSERT INTO payment_transactions").
		WithArgs("a1", "user-other", 999.0, string(StatusRequested)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .+ FROM payment_transactions WHERE auction_id").
		WithArgs("a1").
		WillReturnRows(txRow("a1", "tx-1", "user-2", 150, StatusLinkIssued, "link", ""))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	tx, created, err := store.Create(context.Background(), "a1", "user-other", 999)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created {
		t.Fatalf("conflict insert must report created=false")
	}
	if tx.WinnerID != "user-2" || tx.Status != StatusLinkIssued {
		t.Fatalf("expected the original transaction, got %+v", tx)
	}
}

func TestPostgresStore_AttachLink(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE payment_transactions").
		WithArgs("a1", "tx-1", "https://pay/tx-1", string(StatusLinkIssued), string(StatusRequested)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM payment_transactions WHERE auction_id").
		WithArgs("a1").
		WillReturnRows(txRow("a1", "tx-1", "user-2", 150, StatusLinkIssued, "https://pay/tx-1", ""))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	tx, err := store.AttachLink(context.Background(), "a1", "tx-1", "https://pay/tx-1")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if tx.Status != StatusLinkIssued || tx.ID != "tx-1" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
}

func TestPostgresStore_AttachLink_AlreadyAdvanced(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE payment_transactions").
		WithArgs("a1", "tx-1", "link", string(StatusLinkIssued), string(StatusRequested)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .+ FROM payment_transactions WHERE auction_id").
		WithArgs("a1").
		WillReturnRows(txRow("a1", "tx-1", "user-2", 150, StatusApproved, "link", ""))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	if _, err := store.AttachLink(context.Background(), "a1", "tx-1", "link"); !errors.Is(err, ErrTransactionFinalized) {
		t.Fatalf("expected ErrTransactionFinalized, got %v", err)
	}
}

func TestPostgresStore_Resolve(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE payment_transactions").
		WithArgs("tx-1", string(StatusApproved), "", string(StatusRequested), string(StatusLinkIssued)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM payment_transactions WHERE transaction_id").
		WithArgs("tx-1").
		WillReturnRows(txRow("a1", "tx-1", "user-2", 150, StatusApproved, "link", ""))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	tx, err := store.Resolve(context.Background(), "tx-1", StatusApproved, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tx.Status != StatusApproved {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
}

func TestPostgresStore_Resolve_AlreadyTerminal(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE payment_transactions").
		WithArgs("tx-1", string(StatusDeclined), "", string(StatusRequested), string(StatusLinkIssued)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM payment_transactions").
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(string(StatusApproved)))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	if _, err := store.Resolve(context.Background(), "tx-1", StatusDeclined, ""); !errors.Is(err, ErrTransactionFinalized) {
		t.Fatalf("expected ErrTransactionFinalized, got %v", err)
	}
}

func TestPostgresStore_Resolve_Unknown(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE payment_transactions").
		WithArgs("tx-missing", string(StatusApproved), "", string(StatusRequested), string(StatusLinkIssued)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM payment_transactions").
		WithArgs("tx-missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectClose()

	store := NewPostgresStore(db)
	if _, err := store.Resolve(context.Background(), "tx-missing", StatusApproved, ""); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestPostgresStore_GetByAuction_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT .+ FROM payment_transactions WHERE auction_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectClose()

	store := NewPostgresStore(db)
	if _, err := store.GetByAuction(context.Background(), "missing"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestPostgresStore_Expire(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	cutoff := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	mock.ExpectQuery("UPDATE payment_transactions").
		WithArgs(string(StatusDeclined), string(StatusRequested), string(StatusLinkIssued), cutoff).
		WillReturnRows(txRow("a1", "tx-1", "user-2", 150, StatusDeclined, "link", "expired"))
	mock.ExpectClose()

	store := NewPostgresStore(db)
	expired, err := store.Expire(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 1 || expired[0].Detail != "expired" {
		t.Fatalf("unexpected expired set: %+v", expired)
	}
}
