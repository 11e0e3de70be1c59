// README: Support ticket sibling state machine: open → closed, with an
// escalation flag that silences automated responses.
package support

import (
	"errors"
	"time"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

var (
	ErrNotFound      = errors.New("ticket not found")
	ErrAlreadyClosed = errors.New("ticket already closed")
	ErrBadRequest    = errors.New("bad request")
)

type Ticket struct {
	ID         int64
	CustomerID int64
	// OrderID loosely couples the ticket to an order; optional.
	OrderID   *int64
	Subject   string
	Body      string
	Status    Status
	Escalated bool
	CreatedAt time.Time
	ClosedAt  *time.Time
}
