// README: Invoice service; generates the legal invoice once per delivered
// order, idempotently.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notifier queues the invoice mail; best-effort.
type Notifier interface {
	InvoiceReady(ctx context.Context, customerID int64, orderNumber, invoiceNumber string)
}

type Service struct {
	store    *Store
	notifier Notifier
	log      zerolog.Logger
}

func NewService(store *Store, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{store: store, notifier: notifier, log: log}
}

// Generate computes and persists the invoice for a delivered order. Calling
// it again for the same order returns the stored invoice unchanged.
func (s *Service) Generate(ctx context.Context, orderID int64) error {
	_, err := s.generate(ctx, orderID)
	return err
}

// GetByOrder returns the stored invoice for an order.
func (s *Service) GetByOrder(ctx context.Context, orderID int64) (*Invoice, error) {
	return s.store.GetByOrder(ctx, orderID)
}

func (s *Service) generate(ctx context.Context, orderID int64) (*Invoice, error) {
	if existing, err := s.store.GetByOrder(ctx, orderID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	d, err := s.store.orderData(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if d.Status != "delivered" {
		return nil, ErrNotDelivered
	}

	lines := make([]LineInput, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = LineInput{
			Gross:    l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
			Category: l.Category,
			Override: l.Override,
		}
	}
	totals, err := Compute(lines, d.DeliveryFee)
	if err != nil {
		return nil, fmt.Errorf("compute invoice for order %d: %w", orderID, err)
	}

	inv := &Invoice{
		OrderID: orderID,
		Year:    time.Now().UTC().Year(),
		Net7:    totals.Net7,
		Tax7:    totals.Tax7,
		Net19:   totals.Net19,
		Tax19:   totals.Tax19,
		Gross:   totals.Gross,
	}
	render := func(i *Invoice) string { return renderDocument(d, totals, i) }
	if err := s.store.Create(ctx, inv, render); err != nil {
		if errors.Is(err, ErrExists) {
			// Raced another generation attempt; the stored one wins.
			return s.store.GetByOrder(ctx, orderID)
		}
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.InvoiceReady(ctx, d.CustomerID, d.OrderNumber, inv.Number)
		if err := s.store.MarkSent(ctx, inv.ID); err != nil {
			s.log.Warn().Err(err).Str("invoice", inv.Number).Msg("mark invoice sent")
		}
	}
	s.log.Info().Str("invoice", inv.Number).Int64("order_id", orderID).Msg("invoice generated")
	return inv, nil
}

// renderDocument produces the plain-text legal invoice. The document is
// frozen at generation time; regenerations never alter it.
func renderDocument(d *orderData, t Totals, inv *Invoice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rechnung %s\n", FormatNumber(inv.Year, inv.Seq))
	fmt.Fprintf(&b, "Bestellung %s\n\n", d.OrderNumber)
	for _, l := range d.Lines {
		gross := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		fmt.Fprintf(&b, "%-30s %2dx %8s € %10s €\n",
			l.Name, l.Quantity, l.UnitPrice.StringFixed(2), gross.StringFixed(2))
	}
	fmt.Fprintf(&b, "%-30s %13s %10s €\n\n", "Lieferung", "", d.DeliveryFee.StringFixed(2))
	fmt.Fprintf(&b, "Netto  7%%: %10s €   MwSt  7%%: %10s €\n", t.Net7.StringFixed(2), t.Tax7.StringFixed(2))
	fmt.Fprintf(&b, "Netto 19%%: %10s €   MwSt 19%%: %10s €\n", t.Net19.StringFixed(2), t.Tax19.StringFixed(2))
	fmt.Fprintf(&b, "Gesamt:    %10s €\n", t.Gross.StringFixed(2))
	return b.String()
}
