package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Row types mirror the authoritative store schema. Table and column names are
// a compatibility contract shared with the reporting stack and the ML
// training inputs; do not rename them.
//
// Dates cross this boundary as ISO YYYY-MM-DD strings backing DATE columns,
// which keeps recomputed aggregates bit-identical across re-runs.

// TransactionRow is one row of the append-only transactions table.
type TransactionRow struct {
	TransactionID      string          `gorm:"column:transaction_id;primaryKey;size:64"`
	CustomerID         string          `gorm:"column:customer_id;size:100;index:idx_transactions_customer_id"`
	CustomerDOB        string          `gorm:"column:customer_dob;type:date"`
	CustGender         string          `gorm:"column:cust_gender;size:16"`
	CustLocation       string          `gorm:"column:cust_location;size:200"`
	CustAccountBalance decimal.Decimal `gorm:"column:cust_account_balance;type:decimal(15,2)"`
	TransactionDate    string          `gorm:"column:transaction_date;type:date;index:idx_transactions_transaction_date"`
	TransactionTime    int64           `gorm:"column:transaction_time"`
	TransactionAmount  decimal.Decimal `gorm:"column:transaction_amount;type:decimal(15,2)"`
	ProcessedAt        time.Time       `gorm:"column:processed_at"`
}

func (TransactionRow) TableName() string { return "transactions" }

// DailyAggregateRow is one row of daily_transactions_agg, keyed by date.
type DailyAggregateRow struct {
	AggregationDate   string          `gorm:"column:aggregation_date;primaryKey;type:date"`
	TotalTransactions int64           `gorm:"column:total_transactions"`
	TotalAmount       decimal.Decimal `gorm:"column:total_amount;type:decimal(15,2)"`
	AvgAmount         decimal.Decimal `gorm:"column:avg_transaction_amount;type:decimal(15,2)"`
	UniqueCustomers   int64           `gorm:"column:unique_customers"`
}

func (DailyAggregateRow) TableName() string { return "daily_transactions_agg" }

// CustomerAggregateRow is one row of customer_behavior_agg, keyed by
// (customer, date).
type CustomerAggregateRow struct {
	CustomerID        string          `gorm:"column:customer_id;primaryKey;size:100"`
	AggregationDate   string          `gorm:"column:aggregation_date;primaryKey;type:date;index:idx_customer_behavior_agg_date"`
	TotalTransactions int64           `gorm:"column:total_transactions"`
	TotalSpent        decimal.Decimal `gorm:"column:total_spent;type:decimal(15,2)"`
	AvgAmount         decimal.Decimal `gorm:"column:avg_transaction_amount;type:decimal(15,2)"`
}

func (CustomerAggregateRow) TableName() string { return "customer_behavior_agg" }
