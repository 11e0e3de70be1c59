// README: Invoice record and number formatting.
package invoice

import (
	"fmt"
	"time"

	"spaeti/internal/types"
)

type Invoice struct {
	ID      int64
	OrderID int64
	Year    int
	Seq     int
	Number  string
	Net7    types.Money
	Tax7    types.Money
	Net19   types.Money
	Tax19   types.Money
	Gross   types.Money
	// Document is the rendered legal invoice.
	Document  string
	CreatedAt time.Time
	SentAt    *time.Time
}

// FormatNumber renders the year-scoped invoice number, e.g. RE-2026-00042.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("RE-%d-%05d", year, seq)
}
