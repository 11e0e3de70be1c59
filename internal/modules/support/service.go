// README: Support ticket service. Escalated tickets suppress the automated
// acknowledgment; a human follows up instead. Repeat contact about the same
// order escalates the new ticket automatically.
package support

import (
	"context"

	"github.com/rs/zerolog"
)

type Notifier interface {
	TicketReceived(ctx context.Context, customerID int64)
}

type EventBus interface {
	PublishTicketUpdate(ctx context.Context, ticketID int64, status string)
}

type Service struct {
	store    *Store
	notifier Notifier
	bus      EventBus
	log      zerolog.Logger
}

func NewService(store *Store, notifier Notifier, bus EventBus, log zerolog.Logger) *Service {
	return &Service{store: store, notifier: notifier, bus: bus, log: log}
}

type CreateCommand struct {
	CustomerID int64
	OrderID    *int64
	Subject    string
	Body       string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ticket, error) {
	if cmd.Subject == "" || cmd.Body == "" {
		return nil, ErrBadRequest
	}
	t := &Ticket{
		CustomerID: cmd.CustomerID,
		OrderID:    cmd.OrderID,
		Subject:    cmd.Subject,
		Body:       cmd.Body,
		Status:     StatusOpen,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	if s.bus != nil {
		s.bus.PublishTicketUpdate(ctx, t.ID, string(t.Status))
	}
	if s.notifier != nil && !t.Escalated {
		s.notifier.TicketReceived(ctx, t.CustomerID)
	}
	return t, nil
}

func (s *Service) Close(ctx context.Context, id int64) (*Ticket, error) {
	ok, err := s.store.Close(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := s.store.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyClosed
	}
	if s.bus != nil {
		s.bus.PublishTicketUpdate(ctx, id, string(StatusClosed))
	}
	return s.store.Get(ctx, id)
}

// Escalate blocks any further automated responses on the ticket.
func (s *Service) Escalate(ctx context.Context, id int64) (*Ticket, error) {
	ok, err := s.store.Escalate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, err := s.store.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyClosed
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Ticket, error) {
	return s.store.Get(ctx, id)
}
