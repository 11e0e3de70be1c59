// README: Invoice persistence; owns year-scoped number allocation under the
// (year, seq) unique constraint.
package invoice

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"spaeti/internal/types"
)

var (
	ErrNotFound     = errors.New("invoice not found")
	ErrNotDelivered = errors.New("order is not delivered")
	// ErrExists signals the order already has an invoice; callers fetch it
	// instead of regenerating.
	ErrExists = errors.New("invoice already exists for order")
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const invoiceColumns = `
	id, order_id, year, seq, invoice_number,
	net_7, tax_7, net_19, tax_19, gross,
	document, created_at, sent_at`

func (s *Store) GetByOrder(ctx context.Context, orderID int64) (*Invoice, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1`, orderID)
	return scanInvoice(row)
}

func (s *Store) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = $1`, number)
	return scanInvoice(row)
}

// Create allocates the next sequence number for the invoice's year and
// inserts the row. The read-then-use on MAX(seq) is guarded by the
// (year, seq) unique constraint: a concurrent allocation makes the insert
// fail cleanly and the caller retries. Numbers are therefore monotonically
// increasing within a year and never reused, even across retries.
// The render callback runs after the number is allocated so the document can
// embed it.
func (s *Store) Create(ctx context.Context, inv *Invoice, render func(*Invoice) string) error {
	const attempts = 5
	for i := 0; i < attempts; i++ {
		err := s.tryCreate(ctx, inv, render)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "order_id") {
				return ErrExists
			}
			// Lost the (year, seq) race; allocate again.
			continue
		}
		return err
	}
	return errors.New("invoice number allocation kept conflicting")
}

func (s *Store) tryCreate(ctx context.Context, inv *Invoice, render func(*Invoice) string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM invoices WHERE year = $1`, inv.Year,
	).Scan(&inv.Seq); err != nil {
		return err
	}
	inv.Number = FormatNumber(inv.Year, inv.Seq)
	if render != nil {
		inv.Document = render(inv)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (
			order_id, year, seq, invoice_number,
			net_7, tax_7, net_19, tax_19, gross, document
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		inv.OrderID, inv.Year, inv.Seq, inv.Number,
		inv.Net7, inv.Tax7, inv.Net19, inv.Tax19, inv.Gross, inv.Document,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkSent stamps the moment the invoice mail was queued.
func (s *Store) MarkSent(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE invoices SET sent_at = NOW() WHERE id = $1 AND sent_at IS NULL`, id)
	return err
}

// orderData is the slice of the ledger the compiler needs.
type orderData struct {
	OrderID     int64
	OrderNumber string
	CustomerID  int64
	Status      string
	DeliveryFee types.Money
	Total       types.Money
	Lines       []orderLine
}

type orderLine struct {
	Name      string
	Category  string
	UnitPrice types.Money
	Quantity  int
	Override  *types.Money
}

func (s *Store) orderData(ctx context.Context, orderID int64) (*orderData, error) {
	var d orderData
	err := s.db.QueryRow(ctx, `
		SELECT id, order_number, customer_id, status, delivery_fee, total
		FROM orders WHERE id = $1`, orderID,
	).Scan(&d.OrderID, &d.OrderNumber, &d.CustomerID, &d.Status, &d.DeliveryFee, &d.Total)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT name, category, unit_price, quantity, tax_rate
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l orderLine
		if err := rows.Scan(&l.Name, &l.Category, &l.UnitPrice, &l.Quantity, &l.Override); err != nil {
			return nil, err
		}
		d.Lines = append(d.Lines, l)
	}
	return &d, rows.Err()
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.OrderID, &inv.Year, &inv.Seq, &inv.Number,
		&inv.Net7, &inv.Tax7, &inv.Net19, &inv.Tax19, &inv.Gross,
		&inv.Document, &inv.CreatedAt, &inv.SentAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
