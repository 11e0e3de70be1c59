// README: Support ticket tests. DB-backed; skipped unless SPAETI_TEST_DSN is
// set.
package support

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type stubNotifier struct {
	acks int
}

func (n *stubNotifier) TicketReceived(ctx context.Context, customerID int64) {
	n.acks++
}

type stubBus struct {
	events []string
}

func (b *stubBus) PublishTicketUpdate(ctx context.Context, ticketID int64, status string) {
	b.events = append(b.events, status)
}

func TestTicketLifecycle(t *testing.T) {
	db := setupSupportTestDB(t)
	notifier := &stubNotifier{}
	bus := &stubBus{}
	svc := NewService(NewStore(db), notifier, bus, zerolog.Nop())
	ctx := context.Background()

	customerID := seedTicketCustomer(t, db, "anna@example.com")

	ticket, err := svc.Create(ctx, CreateCommand{
		CustomerID: customerID,
		Subject:    "Wrong item delivered",
		Body:       "I got sparkling water instead of still.",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Status != StatusOpen {
		t.Fatalf("status %s", ticket.Status)
	}
	if notifier.acks != 1 {
		t.Fatalf("expected 1 acknowledgment, got %d", notifier.acks)
	}

	closed, err := svc.Close(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != StatusClosed || closed.ClosedAt == nil {
		t.Fatalf("expected closed with stamp, got %+v", closed)
	}

	if _, err := svc.Close(ctx, ticket.ID); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("double close: expected ErrAlreadyClosed, got %v", err)
	}
	if _, err := svc.Close(ctx, 999999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown ticket: expected ErrNotFound, got %v", err)
	}

	if len(bus.events) != 2 || bus.events[0] != "open" || bus.events[1] != "closed" {
		t.Fatalf("bus events: %v", bus.events)
	}
}

func TestTicketValidation(t *testing.T) {
	db := setupSupportTestDB(t)
	svc := NewService(NewStore(db), nil, nil, zerolog.Nop())
	ctx := context.Background()

	customerID := seedTicketCustomer(t, db, "ben@example.com")

	if _, err := svc.Create(ctx, CreateCommand{CustomerID: customerID, Body: "no subject"}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("missing subject: expected ErrBadRequest, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateCommand{CustomerID: customerID, Subject: "no body"}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("missing body: expected ErrBadRequest, got %v", err)
	}
}

func TestEscalationSilencesAutomation(t *testing.T) {
	db := setupSupportTestDB(t)
	svc := NewService(NewStore(db), nil, nil, zerolog.Nop())
	ctx := context.Background()

	customerID := seedTicketCustomer(t, db, "carla@example.com")
	ticket, err := svc.Create(ctx, CreateCommand{
		CustomerID: customerID,
		Subject:    "Where is my order",
		Body:       "Third time asking.",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	escalated, err := svc.Escalate(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if !escalated.Escalated {
		t.Fatal("expected escalated flag")
	}
	if escalated.Status != StatusOpen {
		t.Fatalf("escalation must not close the ticket, got %s", escalated.Status)
	}

	// Closed tickets cannot be escalated any more.
	if _, err := svc.Close(ctx, ticket.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Escalate(ctx, ticket.ID); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("escalate after close: expected ErrAlreadyClosed, got %v", err)
	}
}

func TestRepeatContactEscalatesAndSkipsAutoAck(t *testing.T) {
	db := setupSupportTestDB(t)
	notifier := &stubNotifier{}
	svc := NewService(NewStore(db), notifier, nil, zerolog.Nop())
	ctx := context.Background()

	customerID := seedTicketCustomer(t, db, "dora@example.com")
	orderID := seedTicketOrder(t, db, customerID)

	first, err := svc.Create(ctx, CreateCommand{
		CustomerID: customerID,
		OrderID:    &orderID,
		Subject:    "Order is late",
		Body:       "Estimated 20:00, nothing yet.",
	})
	if err != nil {
		t.Fatalf("first ticket: %v", err)
	}
	if first.Escalated {
		t.Fatal("first contact must not escalate")
	}
	if notifier.acks != 1 {
		t.Fatalf("expected auto-ack on first contact, got %d", notifier.acks)
	}

	second, err := svc.Create(ctx, CreateCommand{
		CustomerID: customerID,
		OrderID:    &orderID,
		Subject:    "Still nothing",
		Body:       "Second time asking about the same order.",
	})
	if err != nil {
		t.Fatalf("second ticket: %v", err)
	}
	if !second.Escalated {
		t.Fatal("repeat contact must escalate")
	}
	if notifier.acks != 1 {
		t.Fatalf("escalated ticket must skip the auto-ack, got %d acks", notifier.acks)
	}

	// A ticket without an order reference never counts as repeat contact.
	plain, err := svc.Create(ctx, CreateCommand{
		CustomerID: customerID,
		Subject:    "Unrelated question",
		Body:       "Do you deliver on Sundays?",
	})
	if err != nil {
		t.Fatalf("plain ticket: %v", err)
	}
	if plain.Escalated {
		t.Fatal("ticket without order must not escalate")
	}
	if notifier.acks != 2 {
		t.Fatalf("expected auto-ack on unrelated ticket, got %d", notifier.acks)
	}
}

// ---- harness ----

func seedTicketCustomer(t *testing.T, db *pgxpool.Pool, email string) int64 {
	t.Helper()
	var id int64
	if err := db.QueryRow(context.Background(), `
		INSERT INTO customers (name, email) VALUES ($1, $2) RETURNING id`,
		strings.Split(email, "@")[0], email,
	).Scan(&id); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return id
}

func seedTicketOrder(t *testing.T, db *pgxpool.Pool, customerID int64) int64 {
	t.Helper()
	ctx := context.Background()
	var addressID int64
	if err := db.QueryRow(ctx, `
		INSERT INTO addresses (customer_id, street, zip, city)
		VALUES ($1, 'Bergstraße 1', '10115', 'Berlin') RETURNING id`,
		customerID,
	).Scan(&addressID); err != nil {
		t.Fatalf("seed address: %v", err)
	}
	var orderID int64
	if err := db.QueryRow(ctx, `
		INSERT INTO orders (order_number, tracking_token, customer_id, address_id,
		                    status, payment_method, subtotal, delivery_fee, total)
		VALUES ('SPT-00001', 'tickettickettickettickettickettt', $1, $2,
		        'delivering', 'cash', 6.47, 2.99, 9.46)
		RETURNING id`,
		customerID, addressID,
	).Scan(&orderID); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return orderID
}

func setupSupportTestDB(t *testing.T) *pgxpool.Pool {
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

	if err := applySupportMigration(ctx, db); err != nil {
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

func applySupportMigration(ctx context.Context, db *pgxpool.Pool) error {
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
