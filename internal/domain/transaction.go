package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Transaction is one validated, normalized bank transaction ready to be
// persisted. This is a domain struct, not a database row; the store maps it
// into the transactions table schema.
//
// A transaction is immutable once loaded: the store never updates or deletes
// rows in the transactions table, corrections arrive as new batches.
type Transaction struct {
	TransactionID      string // unique natural key
	CustomerID         string
	CustomerDOB        civil.Date // must precede TransactionDate
	CustGender         string     // as supplied by the export ("M"/"F"/...)
	CustLocation       string
	CustAccountBalance decimal.Decimal // non-negative
	TransactionDate    civil.Date
	TransactionTime    int64           // HHMMSS encoded, as in the source export
	TransactionAmount  decimal.Decimal // strictly positive
	ProcessedAt        time.Time       // set by the store at load time
}
