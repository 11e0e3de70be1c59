// README: Order service implements creation, claim arbitration, state
// transitions, and the cancellation policy.
package order

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"spaeti/internal/auth"
	"spaeti/internal/payment"
	"spaeti/internal/types"
)

// EventBus fans out order updates to subscribed sessions. Publishing is
// best-effort; the ledger stays the source of truth.
type EventBus interface {
	PublishOrderUpdate(ctx context.Context, orderID int64, status Status)
}

// Notifier sends transactional email/push on status change. Best-effort,
// never blocks a ledger write.
type Notifier interface {
	OrderStatus(ctx context.Context, o *Order, to Status)
}

// Invoicer closes out a delivered order. Generation is idempotent, so a
// failed call here can be retried out of band.
type Invoicer interface {
	Generate(ctx context.Context, orderID int64) error
}

type Service struct {
	store       *Store
	bus         EventBus
	notifier    Notifier
	invoicer    Invoicer
	payments    payment.Authority
	deliveryFee types.Money
	log         zerolog.Logger
}

type ServiceDeps struct {
	Store       *Store
	Bus         EventBus
	Notifier    Notifier
	Invoicer    Invoicer
	Payments    payment.Authority
	DeliveryFee types.Money
	Logger      zerolog.Logger
}

func NewService(d ServiceDeps) *Service {
	return &Service{
		store:       d.Store,
		bus:         d.Bus,
		notifier:    d.Notifier,
		invoicer:    d.Invoicer,
		payments:    d.Payments,
		deliveryFee: d.DeliveryFee,
		log:         d.Logger,
	}
}

type CreateCommand struct {
	CustomerID    int64
	AddressID     int64
	Lines         []Line
	PaymentMethod PaymentMethod
	Notes         string
}

// Create runs the all-or-nothing creation unit. For online payment the
// external session is created first; if the authority rejects it no order row
// persists. Online orders start pending and are confirmed only by the
// capture callback.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if len(cmd.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, l := range cmd.Lines {
		if l.ProductID <= 0 || l.Quantity <= 0 {
			return nil, ErrBadRequest
		}
	}
	switch cmd.PaymentMethod {
	case PaymentCash, PaymentCard, PaymentOnline:
	default:
		return nil, ErrBadRequest
	}

	draft := CreateDraft{
		CustomerID:    cmd.CustomerID,
		AddressID:     cmd.AddressID,
		Lines:         cmd.Lines,
		Status:        StatusConfirmed,
		PaymentMethod: cmd.PaymentMethod,
		PaymentStatus: PaymentStatusPending,
		DeliveryFee:   s.deliveryFee,
		Notes:         cmd.Notes,
	}
	if cmd.PaymentMethod == PaymentOnline {
		sess, err := s.payments.CreateSession(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("payment session rejected")
			return nil, ErrPaymentInit
		}
		draft.Status = StatusPending
		draft.PaymentRef = &sess.Ref
	}

	o, err := s.store.CreateOrder(ctx, draft)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, o, o.Status)
	return o, nil
}

type TransitionCommand struct {
	OrderID int64
	To      Status
	Actor   auth.Principal
	// AssignDriver names the driver for an admin confirmed → picking
	// assignment; required for that transition, ignored otherwise.
	AssignDriver *int64
	Note         string
}

// RequestTransition applies one guarded status change and its side effects.
func (s *Service) RequestTransition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if cmd.Actor.Role == auth.RoleDriver && o.DriverID != nil && *o.DriverID != cmd.Actor.ID {
		return nil, ErrForbidden
	}

	eff, err := Transition(o.Status, cmd.To, cmd.Actor.Role, ItemsAllPicked(o.Items))
	if err != nil {
		return nil, err
	}
	var assign *int64
	if cmd.To == StatusPicking {
		if cmd.AssignDriver == nil {
			return nil, ErrBadRequest
		}
		assign = cmd.AssignDriver
	}

	ok, err := s.store.UpdateStatus(ctx, UpdateStatusParams{
		OrderID:      o.ID,
		From:         o.Status,
		To:           cmd.To,
		Version:      o.StatusVersion,
		Effects:      eff,
		ActorRole:    cmd.Actor.Role,
		ActorID:      &cmd.Actor.ID,
		AssignDriver: assign,
		Note:         cmd.Note,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	updated, err := s.store.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, updated, cmd.To)

	if eff.GenerateInvoice && s.invoicer != nil {
		if err := s.invoicer.Generate(ctx, o.ID); err != nil {
			s.log.Error().Err(err).Int64("order_id", o.ID).Msg("invoice generation failed")
		}
	}
	return updated, nil
}

type ClaimCommand struct {
	OrderID  int64
	DriverID int64
}

// Claim arbitrates concurrent accept requests: exactly one driver wins, the
// rest get ErrAlreadyClaimed. Retrying a lost claim returns the same outcome.
func (s *Service) Claim(ctx context.Context, cmd ClaimCommand) (*Order, error) {
	o, err := s.store.Claim(ctx, cmd.OrderID, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, o, o.Status)
	return o, nil
}

type CancelCommand struct {
	OrderID int64
	Actor   auth.Principal
	Reason  string
}

// Cancel applies the self-service cancellation policy: customers may cancel
// only while the order is pending or confirmed. Once picking has begun the
// physical pick needs human compensation, so the request is answered with
// ErrSupportNeeded instead of a generic rejection. Payment reversal for
// prepaid orders is delegated as a separate retryable step and never blocks
// the cancellation itself.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if cmd.Actor.Role == auth.RoleCustomer {
		if o.CustomerID != cmd.Actor.ID {
			return nil, ErrForbidden
		}
		switch o.Status {
		case StatusPending, StatusConfirmed:
		case StatusDelivered, StatusCancelled:
			return nil, ErrInvalidTransition
		default:
			return nil, ErrSupportNeeded
		}
	}

	eff, err := Transition(o.Status, StatusCancelled, cmd.Actor.Role, ItemsAllPicked(o.Items))
	if err != nil {
		return nil, err
	}

	wasPaid := o.PaymentStatus == PaymentStatusPaid
	reason := cmd.Reason
	ok, err := s.store.UpdateStatus(ctx, UpdateStatusParams{
		OrderID:      o.ID,
		From:         o.Status,
		To:           StatusCancelled,
		Version:      o.StatusVersion,
		Effects:      eff,
		ActorRole:    cmd.Actor.Role,
		ActorID:      &cmd.Actor.ID,
		CancelReason: &reason,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	updated, err := s.store.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, updated, StatusCancelled)

	if wasPaid {
		if err := s.payments.RequestReversal(ctx, o.ID, o.Total); err != nil {
			s.log.Error().Err(err).Int64("order_id", o.ID).Msg("payment reversal request failed")
		}
	}
	return updated, nil
}

type PickItemCommand struct {
	OrderID  int64
	ItemID   int64
	DriverID int64
}

// MarkItemPicked records warehouse picking progress for one line.
func (s *Service) MarkItemPicked(ctx context.Context, cmd PickItemCommand) error {
	return s.store.MarkItemPicked(ctx, cmd.OrderID, cmd.ItemID, cmd.DriverID)
}

// ConfirmPayment handles the external authority's capture callback.
// Unknown references fail; repeated callbacks are idempotent.
func (s *Service) ConfirmPayment(ctx context.Context, ref string) (*Order, error) {
	o, changed, err := s.store.ConfirmPaymentByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, o, o.Status)
	}
	return o, nil
}

// ListOpen returns the claimable feed for driver sessions.
func (s *Service) ListOpen(ctx context.Context) ([]Order, error) {
	return s.store.ListOpen(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.store.Get(ctx, id)
}

// GetFor returns the order if the principal may see it: the owning customer,
// the claiming driver, or staff.
func (s *Service) GetFor(ctx context.Context, id int64, p auth.Principal) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch p.Role {
	case auth.RoleAdmin, auth.RoleSupport:
		return o, nil
	case auth.RoleCustomer:
		if o.CustomerID == p.ID {
			return o, nil
		}
	case auth.RoleDriver:
		if o.DriverID != nil && *o.DriverID == p.ID {
			return o, nil
		}
	}
	return nil, ErrForbidden
}

// Timeline returns the append-only status log for an order.
func (s *Service) Timeline(ctx context.Context, orderID int64) ([]LogEntry, error) {
	return s.store.StatusLog(ctx, orderID)
}

// publish pushes the update to the bus and the notifier. Both are
// fire-and-forget; failures are logged, never returned, so a slow notifier
// can never hold up the ledger.
func (s *Service) publish(ctx context.Context, o *Order, to Status) {
	if s.bus != nil {
		s.bus.PublishOrderUpdate(ctx, o.ID, to)
	}
	if s.notifier != nil {
		s.notifier.OrderStatus(ctx, o, to)
	}
}

// IsStateConflict reports whether err is an expected concurrency outcome
// rather than a fault worth logging.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrOrderNotClaimable) ||
		errors.Is(err, ErrItemsNotPicked)
}
