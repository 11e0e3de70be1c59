// README: Order ledger backed by PostgreSQL; owns the stock-reservation
// transaction boundary and all compare-and-set status writes.
package order

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"spaeti/internal/auth"
	"spaeti/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Line is one requested order line before price snapshotting.
type Line struct {
	ProductID int64
	Quantity  int
}

// CreateDraft carries everything the creation transaction needs. Prices are
// snapshotted from the catalog inside the transaction, not taken from the
// caller.
type CreateDraft struct {
	CustomerID    int64
	AddressID     int64
	Lines         []Line
	Status        Status
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	PaymentRef    *string
	DeliveryFee   types.Money
	Notes         string
}

// CreateOrder performs the all-or-nothing creation unit: address ownership
// check, stock decrement per line, order insert with a sequence-allocated id
// and derived order number, item inserts with snapshotted prices, and the
// first timeline entry.
func (s *Store) CreateOrder(ctx context.Context, d CreateDraft) (*Order, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var addressOK bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM addresses WHERE id = $1 AND customer_id = $2
		)`, d.AddressID, d.CustomerID,
	).Scan(&addressOK)
	if err != nil {
		return nil, err
	}
	if !addressOK {
		return nil, ErrInvalidAddress
	}

	subtotal := types.Money{}
	items := make([]Item, 0, len(d.Lines))
	for i, line := range d.Lines {
		var (
			name     string
			category string
			price    types.Money
			stock    int
			taxRate  *types.Money
		)
		err := tx.QueryRow(ctx, `
			SELECT name, category, price, stock, tax_rate
			FROM products
			WHERE id = $1
			FOR UPDATE`, line.ProductID,
		).Scan(&name, &category, &price, &stock, &taxRate)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ProductUnavailableError{Line: i, ProductID: line.ProductID}
		}
		if err != nil {
			return nil, err
		}
		if stock < line.Quantity {
			return nil, &ProductUnavailableError{Line: i, ProductID: line.ProductID}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2 WHERE id = $1`,
			line.ProductID, line.Quantity,
		); err != nil {
			return nil, err
		}
		items = append(items, Item{
			ProductID: line.ProductID,
			Name:      name,
			Category:  category,
			UnitPrice: price,
			Quantity:  line.Quantity,
			TaxRate:   taxRate,
		})
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	// The id comes straight off the serial sequence, so two concurrent
	// creations can never derive the same order number.
	var id int64
	if err := tx.QueryRow(ctx,
		`SELECT nextval(pg_get_serial_sequence('orders', 'id'))`,
	).Scan(&id); err != nil {
		return nil, err
	}

	o := &Order{
		ID:            id,
		OrderNumber:   FormatOrderNumber(id),
		TrackingToken: NewTrackingToken(),
		CustomerID:    d.CustomerID,
		AddressID:     d.AddressID,
		Status:        d.Status,
		PaymentMethod: d.PaymentMethod,
		PaymentStatus: d.PaymentStatus,
		PaymentRef:    d.PaymentRef,
		Subtotal:      types.Round2(subtotal),
		DeliveryFee:   types.Round2(d.DeliveryFee),
		Notes:         d.Notes,
	}
	o.Total = o.Subtotal.Add(o.DeliveryFee)

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (
			id, order_number, tracking_token, customer_id, address_id,
			status, status_version, payment_method, payment_status, payment_ref,
			subtotal, delivery_fee, total, notes
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, 0, $7, $8, $9,
			$10, $11, $12, $13
		)
		RETURNING created_at`,
		o.ID, o.OrderNumber, o.TrackingToken, o.CustomerID, o.AddressID,
		string(o.Status), string(o.PaymentMethod), string(o.PaymentStatus), o.PaymentRef,
		o.Subtotal, o.DeliveryFee, o.Total, o.Notes,
	).Scan(&o.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range items {
		it := &items[i]
		it.OrderID = o.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO order_items (
				order_id, product_id, name, category, unit_price, quantity, tax_rate
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			it.OrderID, it.ProductID, it.Name, it.Category, it.UnitPrice, it.Quantity, it.TaxRate,
		).Scan(&it.ID)
		if err != nil {
			return nil, err
		}
	}
	o.Items = items

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, from_status, to_status, actor_role, actor_id, note)
		VALUES ($1, 'none', $2, 'customer', $3, '')`,
		o.ID, string(o.Status), o.CustomerID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

const orderColumns = `
	id, order_number, tracking_token, customer_id, address_id, driver_id,
	status, status_version, payment_method, payment_status, payment_ref,
	subtotal, delivery_fee, total, notes, rating,
	created_at, picked_at, delivered_at, cancelled_at, cancel_reason`

func (s *Store) Get(ctx context.Context, id int64) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	o.Items, err = s.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetByNumber resolves a human-facing order number.
func (s *Store) GetByNumber(ctx context.Context, number string) (*Order, error) {
	id, err := ParseOrderNumber(number)
	if err != nil {
		return nil, err
	}
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.OrderNumber != number {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Store) loadItems(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, product_id, name, category, unit_price, quantity, tax_rate, picked
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Category,
			&it.UnitPrice, &it.Quantity, &it.TaxRate, &it.Picked,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateStatusParams is one guarded status write plus its side effects.
type UpdateStatusParams struct {
	OrderID      int64
	From         Status
	To           Status
	Version      int
	Effects      Effects
	ActorRole    auth.Role
	ActorID      *int64
	CancelReason *string
	// AssignDriver carries the driver for an admin hand-assignment into
	// picking; it is written in the same guarded update as the status.
	AssignDriver *int64
	Note         string
}

// UpdateStatus applies a transition under optimistic concurrency: the write
// predicate re-verifies the expected prior status and version, so two
// simultaneous transition requests for the same order cannot both succeed.
// Returns false when the compare-and-set loses.
func (s *Store) UpdateStatus(ctx context.Context, p UpdateStatusParams) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	q := `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    driver_id = COALESCE($6, driver_id),
		    picked_at = CASE WHEN $1 = 'picked' THEN NOW() ELSE picked_at END,
		    delivered_at = CASE WHEN $1 = 'delivered' THEN NOW() ELSE delivered_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END,
		    cancel_reason = COALESCE($5, cancel_reason),
		    payment_status = CASE
		        WHEN $1 = 'delivered' THEN 'paid'
		        WHEN $1 = 'cancelled' AND payment_status = 'paid' THEN 'refund_pending'
		        ELSE payment_status
		    END
		WHERE id = $2 AND status = $3 AND status_version = $4`
	if p.To == StatusPicked {
		// The picked guard is part of the write predicate so a concurrent
		// un-pick cannot slip between check and write.
		q += ` AND NOT EXISTS (
			SELECT 1 FROM order_items WHERE order_id = $2 AND NOT picked
		)`
	}
	if p.AssignDriver != nil {
		q += ` AND driver_id IS NULL`
	}
	tag, err := tx.Exec(ctx, q,
		string(p.To), p.OrderID, string(p.From), p.Version, p.CancelReason, p.AssignDriver,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if p.Effects.ReleaseStock {
		// Compensating action: stock was decremented at creation time.
		if _, err := tx.Exec(ctx, `
			UPDATE products p
			SET stock = p.stock + oi.quantity
			FROM order_items oi
			WHERE oi.order_id = $1 AND oi.product_id = p.id`,
			p.OrderID,
		); err != nil {
			return false, err
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, from_status, to_status, actor_role, actor_id, note)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.OrderID, string(p.From), string(p.To), string(p.ActorRole), p.ActorID, p.Note,
	); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Claim atomically assigns an unclaimed confirmed order to a driver. The
// predicate evaluates both conditions against the persisted row, so of N
// racing drivers exactly one wins.
func (s *Store) Claim(ctx context.Context, orderID, driverID int64) (*Order, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET driver_id = $2,
		    status = 'picking',
		    status_version = status_version + 1
		WHERE id = $1 AND status = 'confirmed' AND driver_id IS NULL`,
		orderID, driverID,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() != 1 {
		// Distinguish a lost race from a plainly unclaimable order.
		var status Status
		var claimedBy *int64
		err := s.db.QueryRow(ctx,
			`SELECT status, driver_id FROM orders WHERE id = $1`, orderID,
		).Scan(&status, &claimedBy)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if claimedBy != nil {
			return nil, ErrAlreadyClaimed
		}
		return nil, ErrOrderNotClaimable
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, from_status, to_status, actor_role, actor_id, note)
		VALUES ($1, 'confirmed', 'picking', 'driver', $2, 'claimed')`,
		orderID, driverID,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.Get(ctx, orderID)
}

// MarkItemPicked flips one line's picked flag; only the claiming driver may
// do so, and only while the order is in picking.
func (s *Store) MarkItemPicked(ctx context.Context, orderID, itemID, driverID int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE order_items oi
		SET picked = TRUE
		FROM orders o
		WHERE oi.id = $2 AND oi.order_id = $1
		  AND o.id = oi.order_id
		  AND o.status = 'picking'
		  AND o.driver_id = $3`,
		orderID, itemID, driverID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status Status
	var claimedBy *int64
	err = s.db.QueryRow(ctx,
		`SELECT status, driver_id FROM orders WHERE id = $1`, orderID,
	).Scan(&status, &claimedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if claimedBy == nil || *claimedBy != driverID {
		return ErrForbidden
	}
	if status != StatusPicking {
		return ErrConflict
	}
	return ErrNotFound
}

// ListOpen returns confirmed, unclaimed orders for the driver feed.
func (s *Store) ListOpen(ctx context.Context) ([]Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'confirmed' AND driver_id IS NULL
		ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ConfirmPaymentByRef moves a pending order to confirmed once the external
// payment authority reports capture. Repeated callbacks for the same
// reference are no-ops.
func (s *Store) ConfirmPaymentByRef(ctx context.Context, ref string) (*Order, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		UPDATE orders
		SET status = 'confirmed',
		    status_version = status_version + 1,
		    payment_status = 'paid'
		WHERE payment_ref = $1 AND status = 'pending'
		RETURNING id`, ref,
	).Scan(&id)
	if err == nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_status_log (order_id, from_status, to_status, actor_role, actor_id, note)
			VALUES ($1, 'pending', 'confirmed', 'system', NULL, 'payment captured')`,
			id,
		); err != nil {
			return nil, false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		o, err := s.Get(ctx, id)
		return o, true, err
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	// Not pending (already confirmed) or unknown reference.
	err = s.db.QueryRow(ctx,
		`SELECT id FROM orders WHERE payment_ref = $1`, ref,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	o, err := s.Get(ctx, id)
	return o, false, err
}

// SetRating records the one-shot post-delivery rating.
func (s *Store) SetRating(ctx context.Context, orderID int64, rating int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders SET rating = $2
		WHERE id = $1 AND status = 'delivered' AND rating IS NULL`,
		orderID, rating,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var status Status
	var existing *int
	err = s.db.QueryRow(ctx,
		`SELECT status, rating FROM orders WHERE id = $1`, orderID,
	).Scan(&status, &existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyRated
	}
	return ErrConflict
}

// CustomerEmail returns the email on file for the order's customer.
func (s *Store) CustomerEmail(ctx context.Context, orderID int64) (string, error) {
	var email string
	err := s.db.QueryRow(ctx, `
		SELECT c.email
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1`, orderID,
	).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return email, err
}

// StatusLog returns the order's timeline, oldest first.
func (s *Store) StatusLog(ctx context.Context, orderID int64) ([]LogEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_role, actor_id, note, changed_at
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(
			&e.ID, &e.OrderID, &e.FromStatus, &e.ToStatus,
			&e.ActorRole, &e.ActorID, &e.Note, &e.ChangedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.TrackingToken, &o.CustomerID, &o.AddressID, &o.DriverID,
		&o.Status, &o.StatusVersion, &o.PaymentMethod, &o.PaymentStatus, &o.PaymentRef,
		&o.Subtotal, &o.DeliveryFee, &o.Total, &o.Notes, &o.Rating,
		&o.CreatedAt, &o.PickedAt, &o.DeliveredAt, &o.CancelledAt, &o.CancelReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
