// README: Invoice generation tests: once per order, year-scoped numbering.
// DB-backed; skipped unless SPAETI_TEST_DSN is set.
package invoice

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) InvoiceReady(ctx context.Context, customerID int64, orderNumber, invoiceNumber string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, invoiceNumber)
}

func TestGenerateForDeliveredOrder(t *testing.T) {
	db := setupInvoiceTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewService(NewStore(db), notifier, zerolog.Nop())
	ctx := context.Background()

	orderID := seedDeliveredOrder(t, db, "SPT-00001")

	require.NoError(t, svc.Generate(ctx, orderID))

	inv, err := svc.GetByOrder(ctx, orderID)
	require.NoError(t, err)

	year := time.Now().UTC().Year()
	assert.Equal(t, FormatNumber(year, 1), inv.Number)
	assert.Equal(t, 1, inv.Seq)

	// 2x Milch 1.99 = 3.98 @7%; 1x Chips 2.49 @19%; fee 2.99 @19%
	assert.Equal(t, "3.72", inv.Net7.StringFixed(2))
	assert.Equal(t, "0.26", inv.Tax7.StringFixed(2))
	assert.Equal(t, "4.60", inv.Net19.StringFixed(2))
	assert.Equal(t, "0.88", inv.Tax19.StringFixed(2))
	assert.Equal(t, "9.46", inv.Gross.StringFixed(2))

	sum := inv.Net7.Add(inv.Tax7).Add(inv.Net19).Add(inv.Tax19)
	assert.True(t, sum.Equal(inv.Gross), "net+tax must reconcile to gross")

	assert.Contains(t, inv.Document, "Rechnung "+inv.Number)
	assert.Contains(t, inv.Document, "Bestellung SPT-00001")
	assert.Contains(t, inv.Document, "Milch")

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, inv.Number, notifier.calls[0])
	assert.NotNil(t, inv.SentAt)
}

func TestGenerateIsIdempotent(t *testing.T) {
	db := setupInvoiceTestDB(t)
	svc := NewService(NewStore(db), nil, zerolog.Nop())
	ctx := context.Background()

	orderID := seedDeliveredOrder(t, db, "SPT-00002")

	require.NoError(t, svc.Generate(ctx, orderID))
	first, err := svc.GetByOrder(ctx, orderID)
	require.NoError(t, err)

	require.NoError(t, svc.Generate(ctx, orderID))
	second, err := svc.GetByOrder(ctx, orderID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Number, second.Number)
	assert.Equal(t, first.Document, second.Document)

	var count int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestGenerateRequiresDelivery(t *testing.T) {
	db := setupInvoiceTestDB(t)
	svc := NewService(NewStore(db), nil, zerolog.Nop())
	ctx := context.Background()

	orderID := seedOrder(t, db, "SPT-00003", "confirmed")

	err := svc.Generate(ctx, orderID)
	assert.ErrorIs(t, err, ErrNotDelivered)

	err = svc.Generate(ctx, 999999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSequentialNumbering(t *testing.T) {
	db := setupInvoiceTestDB(t)
	svc := NewService(NewStore(db), nil, zerolog.Nop())
	ctx := context.Background()

	year := time.Now().UTC().Year()
	for i := 1; i <= 3; i++ {
		orderID := seedDeliveredOrder(t, db, fmt.Sprintf("SPT-1%04d", i))
		require.NoError(t, svc.Generate(ctx, orderID))
		inv, err := svc.GetByOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, i, inv.Seq)
		assert.Equal(t, FormatNumber(year, i), inv.Number)
	}
}

func TestConcurrentGenerationAllocatesUniqueNumbers(t *testing.T) {
	db := setupInvoiceTestDB(t)
	svc := NewService(NewStore(db), nil, zerolog.Nop())
	ctx := context.Background()

	const n = 6
	orderIDs := make([]int64, n)
	for i := range orderIDs {
		orderIDs[i] = seedDeliveredOrder(t, db, fmt.Sprintf("SPT-2%04d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range orderIDs {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()
			errs <- svc.Generate(ctx, orderID)
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := map[int]bool{}
	for _, id := range orderIDs {
		inv, err := svc.GetByOrder(ctx, id)
		require.NoError(t, err)
		assert.False(t, seen[inv.Seq], "seq %d allocated twice", inv.Seq)
		seen[inv.Seq] = true
	}
}

func TestConcurrentGenerationSameOrder(t *testing.T) {
	db := setupInvoiceTestDB(t)
	svc := NewService(NewStore(db), nil, zerolog.Nop())
	ctx := context.Background()

	orderID := seedDeliveredOrder(t, db, "SPT-30001")

	const attempts = 4
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.Generate(ctx, orderID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE order_id = $1`, orderID).Scan(&count))
	assert.Equal(t, 1, count)
}

// ---- harness ----

func seedDeliveredOrder(t *testing.T, db *pgxpool.Pool, number string) int64 {
	return seedOrder(t, db, number, "delivered")
}

// seedOrder inserts an order with two lines: 2x Milch 1.99 (food) and
// 1x Chips 2.49, fee 2.99.
func seedOrder(t *testing.T, db *pgxpool.Pool, number, status string) int64 {
	t.Helper()
	ctx := context.Background()

	var customerID int64
	require.NoError(t, db.QueryRow(ctx, `
		INSERT INTO customers (name, email) VALUES ($1, $2) RETURNING id`,
		"c_"+number, number+"@example.com",
	).Scan(&customerID))

	var addressID int64
	require.NoError(t, db.QueryRow(ctx, `
		INSERT INTO addresses (customer_id, street, zip, city)
		VALUES ($1, 'Weserstr. 1', '12045', 'Berlin') RETURNING id`,
		customerID,
	).Scan(&addressID))

	var orderID int64
	require.NoError(t, db.QueryRow(ctx, `
		INSERT INTO orders (
			order_number, tracking_token, customer_id, address_id,
			status, payment_method, payment_status, subtotal, delivery_fee, total
		) VALUES ($1, $2, $3, $4, $5, 'cash', 'paid', 6.47, 2.99, 9.46)
		RETURNING id`,
		number, "tok_"+number, customerID, addressID, status,
	).Scan(&orderID))

	for _, line := range []struct {
		name, category, price string
		qty                   int
	}{
		{"Milch", "food", "1.99", 2},
		{"Chips", "snacks", "2.49", 1},
	} {
		var productID int64
		require.NoError(t, db.QueryRow(ctx, `
			INSERT INTO products (name, category, price, stock)
			VALUES ($1, $2, $3, 100) RETURNING id`,
			line.name+" "+number, line.category, line.price,
		).Scan(&productID))
		_, err := db.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, name, category, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			orderID, productID, line.name, line.category, line.price, line.qty,
		)
		require.NoError(t, err)
	}
	return orderID
}

func setupInvoiceTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("SPAETI_TEST_DSN")
	if dsn == "" {
		t.Skip("SPAETI_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyTestMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, `
		TRUNCATE TABLE support_tickets, invoices, order_status_log, order_items,
		               orders, addresses, products, customers
		RESTART IDENTITY CASCADE`,
	); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

func applyTestMigration(ctx context.Context, db *pgxpool.Pool) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	content, err := os.ReadFile(filepath.Join(dir, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	for _, stmt := range strings.Split(b.String(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
