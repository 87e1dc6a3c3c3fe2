package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"gorm.io/gorm/clause"

	"github.com/dvloznov/bankbatch/internal/domain"
)

// UpsertDailyAggregates replaces aggregate rows keyed by date. Whole rows are
// written, never incremented, so reprocessing a period cannot double-count.
func (s *Store) UpsertDailyAggregates(ctx context.Context, aggs []domain.DailyAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	rows := make([]DailyAggregateRow, len(aggs))
	for i, a := range aggs {
		rows[i] = DailyAggregateRow{
			AggregationDate:   a.AggregationDate.String(),
			TotalTransactions: a.TotalTransactions,
			TotalAmount:       a.TotalAmount,
			AvgAmount:         a.AvgAmount,
			UniqueCustomers:   a.UniqueCustomers,
		}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "aggregation_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_transactions", "total_amount", "avg_transaction_amount", "unique_customers",
		}),
	}).CreateInBatches(&rows, 500).Error
	if err != nil {
		return fmt.Errorf("upsert daily aggregates: %w", err)
	}
	return nil
}

// UpsertCustomerAggregates replaces aggregate rows keyed by (customer, date).
func (s *Store) UpsertCustomerAggregates(ctx context.Context, aggs []domain.CustomerAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	rows := make([]CustomerAggregateRow, len(aggs))
	for i, a := range aggs {
		rows[i] = CustomerAggregateRow{
			CustomerID:        a.CustomerID,
			AggregationDate:   a.AggregationDate.String(),
			TotalTransactions: a.TotalTransactions,
			TotalSpent:        a.TotalSpent,
			AvgAmount:         a.AvgAmount,
		}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}, {Name: "aggregation_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_transactions", "total_spent", "avg_transaction_amount",
		}),
	}).CreateInBatches(&rows, 500).Error
	if err != nil {
		return fmt.Errorf("upsert customer aggregates: %w", err)
	}
	return nil
}

// GetDailyAggregate reads one daily rollup row.
func (s *Store) GetDailyAggregate(ctx context.Context, date civil.Date) (*domain.DailyAggregate, error) {
	var row DailyAggregateRow
	if err := s.db.WithContext(ctx).First(&row, "aggregation_date = ?", date.String()).Error; err != nil {
		return nil, fmt.Errorf("get daily aggregate %s: %w", date, err)
	}
	return &domain.DailyAggregate{
		AggregationDate:   date,
		TotalTransactions: row.TotalTransactions,
		TotalAmount:       row.TotalAmount,
		AvgAmount:         row.AvgAmount,
		UniqueCustomers:   row.UniqueCustomers,
	}, nil
}

// GetCustomerAggregate reads one customer rollup row.
func (s *Store) GetCustomerAggregate(ctx context.Context, customerID string, date civil.Date) (*domain.CustomerAggregate, error) {
	var row CustomerAggregateRow
	err := s.db.WithContext(ctx).
		First(&row, "customer_id = ? AND aggregation_date = ?", customerID, date.String()).Error
	if err != nil {
		return nil, fmt.Errorf("get customer aggregate %s/%s: %w", customerID, date, err)
	}
	return &domain.CustomerAggregate{
		CustomerID:        customerID,
		AggregationDate:   date,
		TotalTransactions: row.TotalTransactions,
		TotalSpent:        row.TotalSpent,
		AvgAmount:         row.AvgAmount,
	}, nil
}
