// README: Order aggregate, status definitions, and the transition table.
package order

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"spaeti/internal/auth"
	"spaeti/internal/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusPicking    Status = "picking"
	StatusPicked     Status = "picked"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentOnline PaymentMethod = "online"
)

type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusRefundPending PaymentStatus = "refund_pending"
)

type Order struct {
	ID            int64
	OrderNumber   string
	TrackingToken string
	CustomerID    int64
	AddressID     int64
	DriverID      *int64
	Status        Status
	StatusVersion int
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	PaymentRef    *string
	Subtotal      types.Money
	DeliveryFee   types.Money
	Total         types.Money
	Notes         string
	Rating        *int
	CreatedAt     time.Time
	PickedAt      *time.Time
	DeliveredAt   *time.Time
	CancelledAt   *time.Time
	CancelReason  *string
	Items         []Item
}

type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Name      string
	Category  string
	UnitPrice types.Money
	Quantity  int
	// TaxRate overrides the category-derived rate when set (e.g. 0.07).
	TaxRate *types.Money
	Picked  bool
}

// LogEntry is one row of the append-only status timeline.
type LogEntry struct {
	ID         int64
	OrderID    int64
	FromStatus Status
	ToStatus   Status
	ActorRole  auth.Role
	ActorID    *int64
	Note       string
	ChangedAt  time.Time
}

// AllowedTransitions represents the order state flow (diagram) as code.
// Cancellation is reachable from pending, confirmed, and picking only;
// delivered and cancelled are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusPicking, StatusCancelled},
	StatusPicking:    {StatusPicked, StatusCancelled},
	StatusPicked:     {StatusDelivering},
	StatusDelivering: {StatusDelivered},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// RoleAllowed reports whether the given role may request a particular
// transition. Drivers never reach picking through here: claiming goes through
// Claim, which assigns driver_id and status in one guarded write. Admins may
// hand-assign confirmed → picking, naming the target driver with the request.
func RoleAllowed(from, to Status, role auth.Role) bool {
	if to == StatusPicking {
		// Entering picking must set driver_id atomically, so only paths
		// that carry a driver (Claim, admin assignment) are allowed.
		return role == auth.RoleAdmin
	}
	if role == auth.RoleAdmin {
		return true
	}
	switch to {
	case StatusConfirmed:
		// Payment capture confirmation; system only.
		return role == auth.RoleSystem
	case StatusPicked, StatusDelivering, StatusDelivered:
		return role == auth.RoleDriver
	case StatusCancelled:
		if role == auth.RoleSupport {
			return true
		}
		// Customers may self-cancel only before picking starts.
		return role == auth.RoleCustomer && (from == StatusPending || from == StatusConfirmed)
	}
	return false
}

// Effects lists the side effects the caller must apply alongside a
// successful status write.
type Effects struct {
	StampPicked     bool
	StampDelivered  bool
	StampCancelled  bool
	ReleaseStock    bool
	GenerateInvoice bool
}

// Transition is the pure guard: given the current status, the requested
// status, the requester's role, and whether every item has been picked, it
// either returns the side effects to apply or the violated guard. All
// persistence happens in the caller under a compare-and-set on the prior
// status.
func Transition(current, requested Status, role auth.Role, allItemsPicked bool) (Effects, error) {
	var eff Effects
	if !CanTransition(current, requested) {
		return eff, ErrInvalidTransition
	}
	if !RoleAllowed(current, requested, role) {
		return eff, ErrForbidden
	}
	if current == StatusPicking && requested == StatusPicked && !allItemsPicked {
		return eff, ErrItemsNotPicked
	}
	switch requested {
	case StatusPicked:
		eff.StampPicked = true
	case StatusDelivered:
		eff.StampDelivered = true
		eff.GenerateInvoice = true
	case StatusCancelled:
		eff.StampCancelled = true
		eff.ReleaseStock = true
	}
	return eff, nil
}

// FormatOrderNumber renders the human-facing order number for a ledger id.
func FormatOrderNumber(id int64) string {
	return fmt.Sprintf("SPT-%05d", id)
}

// ParseOrderNumber extracts the ledger id from an order number.
func ParseOrderNumber(number string) (int64, error) {
	rest, ok := strings.CutPrefix(number, "SPT-")
	if !ok {
		return 0, ErrNotFound
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrNotFound
	}
	return id, nil
}

// NewTrackingToken returns 16 random bytes hex-encoded. The token is a bearer
// secret; it is generated once at creation and never rotated.
func NewTrackingToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ItemsAllPicked reports whether every line of the order has been picked.
func ItemsAllPicked(items []Item) bool {
	for _, it := range items {
		if !it.Picked {
			return false
		}
	}
	return len(items) > 0
}
