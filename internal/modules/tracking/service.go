// README: Tracking token verifier; gates anonymous read/cancel/review access
// to a single order.
package tracking

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"spaeti/internal/auth"
	"spaeti/internal/modules/order"
)

// ErrDenied covers every failed bearer access: unknown order number, forged
// token, malformed input. Collapsing them into one answer keeps the endpoint
// from acting as an existence oracle.
var (
	ErrDenied        = errors.New("tracking access denied")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// OrderSource is the slice of the order ledger the verifier reads.
type OrderSource interface {
	GetByNumber(ctx context.Context, number string) (*order.Order, error)
	CustomerEmail(ctx context.Context, orderID int64) (string, error)
	StatusLog(ctx context.Context, orderID int64) ([]order.LogEntry, error)
	SetRating(ctx context.Context, orderID int64, rating int) error
}

// Canceller runs the regular cancellation policy on behalf of the token
// bearer.
type Canceller interface {
	Cancel(ctx context.Context, cmd order.CancelCommand) (*order.Order, error)
}

// Notifier mails the tokenized tracking link.
type Notifier interface {
	TrackingLink(ctx context.Context, email, orderNumber, link string)
}

type Service struct {
	orders    OrderSource
	canceller Canceller
	notifier  Notifier
	baseURL   string
	log       zerolog.Logger
}

func NewService(orders OrderSource, canceller Canceller, notifier Notifier, baseURL string, log zerolog.Logger) *Service {
	return &Service{orders: orders, canceller: canceller, notifier: notifier, baseURL: baseURL, log: log}
}

// Detail is the full anonymous read granted by a valid bearer token.
type Detail struct {
	Order    *order.Order
	Timeline []order.LogEntry
}

// Lookup grants full order detail to a valid bearer token.
func (s *Service) Lookup(ctx context.Context, orderNumber, token string) (*Detail, error) {
	o, err := s.verify(ctx, orderNumber, token)
	if err != nil {
		return nil, err
	}
	timeline, err := s.orders.StatusLog(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &Detail{Order: o, Timeline: timeline}, nil
}

// RequestLink is the email-verification access mode. It never reveals whether
// the supplied address matches the order's customer: the response is the same
// generic acknowledgment either way, and only a matching address triggers the
// out-of-band mail with a fresh tokenized link.
func (s *Service) RequestLink(ctx context.Context, orderNumber, email string) {
	o, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return
	}
	onFile, err := s.orders.CustomerEmail(ctx, o.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("order", orderNumber).Msg("email lookup failed")
		return
	}
	if !strings.EqualFold(strings.TrimSpace(email), onFile) {
		return
	}
	link := fmt.Sprintf("%s/track/%s?token=%s", s.baseURL, o.OrderNumber, o.TrackingToken)
	s.notifier.TrackingLink(ctx, onFile, o.OrderNumber, link)
}

// CancelByToken runs the self-service cancellation policy as the owning
// customer.
func (s *Service) CancelByToken(ctx context.Context, orderNumber, token, reason string) (*order.Order, error) {
	o, err := s.verify(ctx, orderNumber, token)
	if err != nil {
		return nil, err
	}
	return s.canceller.Cancel(ctx, order.CancelCommand{
		OrderID: o.ID,
		Actor:   auth.Principal{ID: o.CustomerID, Role: auth.RoleCustomer},
		Reason:  reason,
	})
}

// Review records the one-shot rating on a delivered order.
func (s *Service) Review(ctx context.Context, orderNumber, token string, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	o, err := s.verify(ctx, orderNumber, token)
	if err != nil {
		return err
	}
	return s.orders.SetRating(ctx, o.ID, rating)
}

func (s *Service) verify(ctx context.Context, orderNumber, token string) (*order.Order, error) {
	if token == "" {
		return nil, ErrDenied
	}
	o, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, ErrDenied
	}
	if subtle.ConstantTimeCompare([]byte(o.TrackingToken), []byte(token)) != 1 {
		return nil, ErrDenied
	}
	return o, nil
}
