package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists payment transactions in Postgres, with the
// auction id as primary key so duplicate winner events cannot create a
// second transaction even across coordinator restarts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a store over an open DB handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresStoreWithSchema initializes the schema then returns the
// store.
func NewPostgresStoreWithSchema(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	store := NewPostgresStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the transactions table if it does not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payment_transactions (
			auction_id TEXT PRIMARY KEY,
			transaction_id TEXT UNIQUE,
			winner_id TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			link TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

const txColumns = `auction_id, COALESCE(transaction_id, ''), winner_id, amount, status, link, detail, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, auctionID, winnerID string, amount float64) (Transaction, bool, error) {
	if auctionID == "" {
		return Transaction{}, false, fmt.Errorf("create transaction: empty auction id")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_transactions (auction_id, winner_id, amount, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (auction_id) DO NOTHING`,
		auctionID, winnerID, amount, StatusRequested,
	)
	if err != nil {
		return Transaction{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Transaction{}, false, err
	}

	tx, err := s.GetByAuction(ctx, auctionID)
	if err != nil {
		return Transaction{}, false, err
	}
	return tx, affected == 1, nil
}

func (s *PostgresStore) AttachLink(ctx context.Context, auctionID, transactionID, link string) (Transaction, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET transaction_id = $2, link = $3, status = $4, updated_at = NOW()
		WHERE auction_id = $1 AND status = $5`,
		auctionID, transactionID, link, StatusLinkIssued, StatusRequested,
	)
	if err != nil {
		return Transaction{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Transaction{}, err
	}
	if affected == 0 {
		if _, getErr := s.GetByAuction(ctx, auctionID); getErr != nil {
			return Transaction{}, getErr
		}
		return Transaction{}, ErrTransactionFinalized
	}
	return s.GetByAuction(ctx, auctionID)
}

func (s *PostgresStore) Resolve(ctx context.Context, transactionID string, status Status, detail string) (Transaction, error) {
	if !status.Terminal() {
		return Transaction{}, fmt.Errorf("resolve to non-terminal status %q", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $2, detail = $3, updated_at = NOW()
		WHERE transaction_id = $1 AND status IN ($4, $5)`,
		transactionID, status, detail, StatusRequested, StatusLinkIssued,
	)
	if err != nil {
		return Transaction{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Transaction{}, err
	}
	if affected == 0 {
		var current string
		row := s.db.QueryRowContext(ctx,
			`SELECT status FROM payment_transactions WHERE transaction_id = $1`, transactionID)
		switch scanErr := row.Scan(&current); {
		case scanErr == nil:
			return Transaction{}, ErrTransactionFinalized
		case errors.Is(scanErr, sql.ErrNoRows):
			return Transaction{}, ErrTransactionNotFound
		default:
			return Transaction{}, scanErr
		}
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM payment_transactions WHERE transaction_id = $1`, transactionID)
	return scanTransaction(row)
}

func (s *PostgresStore) GetByAuction(ctx context.Context, auctionID string) (Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM payment_transactions WHERE auction_id = $1`, auctionID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, err
}

func (s *PostgresStore) Expire(ctx context.Context, cutoff time.Time) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE payment_transactions
		SET status = $1, detail = 'expired', updated_at = NOW()
		WHERE status IN ($2, $3) AND updated_at < $4
		RETURNING `+txColumns,
		StatusDeclined, StatusRequested, StatusLinkIssued, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, tx)
	}
	return expired, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var tx Transaction
	var status string
	err := row.Scan(&tx.AuctionID, &tx.ID, &tx.WinnerID, &tx.Amount,
		&status, &tx.Link, &tx.Detail, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return Transaction{}, err
	}
	tx.Status = Status(status)
	return tx, nil
}
