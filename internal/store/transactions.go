package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dvloznov/bankbatch/internal/domain"
)

// InsertChunk persists one chunk of validated transactions in a single
// database transaction. Records whose transaction id already exists are
// skipped and returned as duplicates; the stored rows are never touched.
// On error nothing is committed, so a retried chunk cannot double-count.
func (s *Store) InsertChunk(ctx context.Context, records []domain.Transaction) (int, []string, error) {
	if len(records) == 0 {
		return 0, nil, nil
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.TransactionID
	}

	var inserted int
	var duplicates []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&TransactionRow{}).
			Where("transaction_id IN ?", ids).
			Pluck("transaction_id", &existing).Error; err != nil {
			return fmt.Errorf("check existing ids: %w", err)
		}
		stored := make(map[string]struct{}, len(existing))
		for _, id := range existing {
			stored[id] = struct{}{}
		}

		processedAt := s.now().UTC().Truncate(time.Second)
		rows := make([]TransactionRow, 0, len(records))
		for _, rec := range records {
			if _, ok := stored[rec.TransactionID]; ok {
				duplicates = append(duplicates, rec.TransactionID)
				continue
			}
			rows = append(rows, transactionToRow(rec, processedAt))
		}

		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("insert chunk: %w", err)
			}
		}
		inserted = len(rows)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return inserted, duplicates, nil
}

// GetTransaction reads one stored transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var row TransactionRow
	if err := s.db.WithContext(ctx).First(&row, "transaction_id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get transaction %q: %w", id, err)
	}
	tx, err := rowToTransaction(row)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// CountTransactions returns the number of stored transactions.
func (s *Store) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&TransactionRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

type dailyTotalsRow struct {
	AggregationDate   string
	TotalTransactions int64
	TotalAmount       decimal.Decimal
	UniqueCustomers   int64
}

// DailyTotals scans the transactions in [from, to] grouped by date. Averages
// are left to the aggregation engine; this is a pure range scan over the
// indexed transaction_date column.
func (s *Store) DailyTotals(ctx context.Context, from, to civil.Date) ([]domain.DailyAggregate, error) {
	var rows []dailyTotalsRow
	err := s.db.WithContext(ctx).Model(&TransactionRow{}).
		Select("transaction_date AS aggregation_date, " +
			"COUNT(*) AS total_transactions, " +
			"SUM(transaction_amount) AS total_amount, " +
			"COUNT(DISTINCT customer_id) AS unique_customers").
		Where("transaction_date BETWEEN ? AND ?", from.String(), to.String()).
		Group("transaction_date").
		Order("transaction_date").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("daily totals %s..%s: %w", from, to, err)
	}

	out := make([]domain.DailyAggregate, 0, len(rows))
	for _, r := range rows {
		date, err := civil.ParseDate(r.AggregationDate)
		if err != nil {
			return nil, fmt.Errorf("daily totals: bad date %q: %w", r.AggregationDate, err)
		}
		out = append(out, domain.DailyAggregate{
			AggregationDate:   date,
			TotalTransactions: r.TotalTransactions,
			TotalAmount:       r.TotalAmount.Round(2),
			UniqueCustomers:   r.UniqueCustomers,
		})
	}
	return out, nil
}

type customerTotalsRow struct {
	CustomerID        string
	AggregationDate   string
	TotalTransactions int64
	TotalSpent        decimal.Decimal
}

// CustomerTotals scans the transactions in [from, to] grouped by
// (customer, date).
func (s *Store) CustomerTotals(ctx context.Context, from, to civil.Date) ([]domain.CustomerAggregate, error) {
	var rows []customerTotalsRow
	err := s.db.WithContext(ctx).Model(&TransactionRow{}).
		Select("customer_id, transaction_date AS aggregation_date, " +
			"COUNT(*) AS total_transactions, " +
			"SUM(transaction_amount) AS total_spent").
		Where("transaction_date BETWEEN ? AND ?", from.String(), to.String()).
		Group("customer_id, transaction_date").
		Order("customer_id, transaction_date").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("customer totals %s..%s: %w", from, to, err)
	}

	out := make([]domain.CustomerAggregate, 0, len(rows))
	for _, r := range rows {
		date, err := civil.ParseDate(r.AggregationDate)
		if err != nil {
			return nil, fmt.Errorf("customer totals: bad date %q: %w", r.AggregationDate, err)
		}
		out = append(out, domain.CustomerAggregate{
			CustomerID:        r.CustomerID,
			AggregationDate:   date,
			TotalTransactions: r.TotalTransactions,
			TotalSpent:        r.TotalSpent.Round(2),
		})
	}
	return out, nil
}

func transactionToRow(tx domain.Transaction, processedAt time.Time) TransactionRow {
	return TransactionRow{
		TransactionID:      tx.TransactionID,
		CustomerID:         tx.CustomerID,
		CustomerDOB:        tx.CustomerDOB.String(),
		CustGender:         tx.CustGender,
		CustLocation:       tx.CustLocation,
		CustAccountBalance: tx.CustAccountBalance,
		TransactionDate:    tx.TransactionDate.String(),
		TransactionTime:    tx.TransactionTime,
		TransactionAmount:  tx.TransactionAmount,
		ProcessedAt:        processedAt,
	}
}

func rowToTransaction(row TransactionRow) (domain.Transaction, error) {
	dob, err := civil.ParseDate(row.CustomerDOB)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("row %s: bad customer_dob %q: %w", row.TransactionID, row.CustomerDOB, err)
	}
	date, err := civil.ParseDate(row.TransactionDate)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("row %s: bad transaction_date %q: %w", row.TransactionID, row.TransactionDate, err)
	}
	return domain.Transaction{
		TransactionID:      row.TransactionID,
		CustomerID:         row.CustomerID,
		CustomerDOB:        dob,
		CustGender:         row.CustGender,
		CustLocation:       row.CustLocation,
		CustAccountBalance: row.CustAccountBalance,
		TransactionDate:    date,
		TransactionTime:    row.TransactionTime,
		TransactionAmount:  row.TransactionAmount,
		ProcessedAt:        row.ProcessedAt,
	}, nil
}
