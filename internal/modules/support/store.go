// README: Support ticket store backed by PostgreSQL.
package support

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Create inserts an open ticket. A repeat contact about the same order is
// stored escalated from the start so a human picks it up.
func (s *Store) Create(ctx context.Context, t *Ticket) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO support_tickets (customer_id, order_id, subject, body, status, escalated)
		VALUES ($1, $2, $3, $4, 'open',
			$2 IS NOT NULL AND EXISTS (
				SELECT 1 FROM support_tickets
				WHERE customer_id = $1 AND order_id = $2
			))
		RETURNING id, escalated, created_at`,
		t.CustomerID, t.OrderID, t.Subject, t.Body,
	).Scan(&t.ID, &t.Escalated, &t.CreatedAt)
}

func (s *Store) Get(ctx context.Context, id int64) (*Ticket, error) {
	var t Ticket
	err := s.db.QueryRow(ctx, `
		SELECT id, customer_id, order_id, subject, body, status, escalated, created_at, closed_at
		FROM support_tickets WHERE id = $1`, id,
	).Scan(&t.ID, &t.CustomerID, &t.OrderID, &t.Subject, &t.Body, &t.Status, &t.Escalated, &t.CreatedAt, &t.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Close moves an open ticket to closed; closing twice fails.
func (s *Store) Close(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE support_tickets
		SET status = 'closed', closed_at = NOW()
		WHERE id = $1 AND status = 'open'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Escalate flags an open ticket for human handling.
func (s *Store) Escalate(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE support_tickets
		SET escalated = TRUE
		WHERE id = $1 AND status = 'open'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
