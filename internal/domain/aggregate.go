package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// DailyAggregate is the per-date rollup consumed by the ML training inputs.
// It is always recomputed from the transactions table for its date, never
// patched incrementally, so re-running aggregation converges.
type DailyAggregate struct {
	AggregationDate   civil.Date
	TotalTransactions int64
	TotalAmount       decimal.Decimal
	AvgAmount         decimal.Decimal // TotalAmount / TotalTransactions, 0 when count is 0
	UniqueCustomers   int64
}

// CustomerAggregate is the per-(customer, date) rollup. Same recompute-and-
// upsert discipline as DailyAggregate.
type CustomerAggregate struct {
	CustomerID        string
	AggregationDate   civil.Date
	TotalTransactions int64
	TotalSpent        decimal.Decimal
	AvgAmount         decimal.Decimal
}
