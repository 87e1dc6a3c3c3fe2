package pipeline

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bankbatch/internal/batchfile"
	"github.com/dvloznov/bankbatch/internal/config"
	"github.com/dvloznov/bankbatch/internal/domain"
)

// RuleCode identifies one validation rule a record violated. Invalidity is
// data, not an error: codes flow into the run report, they never abort a batch.
type RuleCode string

const (
	// Presence / type coercion.
	RuleMissingTransactionID RuleCode = "missing_transaction_id"
	RuleMissingCustomerID    RuleCode = "missing_customer_id"
	RuleMissingGender        RuleCode = "missing_gender"
	RuleMissingLocation      RuleCode = "missing_location"
	RuleInvalidDOB           RuleCode = "invalid_customer_dob"
	RuleInvalidDate          RuleCode = "invalid_transaction_date"
	RuleInvalidTime          RuleCode = "invalid_transaction_time"
	RuleInvalidAmount        RuleCode = "invalid_transaction_amount"
	RuleInvalidBalance       RuleCode = "invalid_account_balance"

	// Range / business rules.
	RuleBalanceBelowFloor RuleCode = "balance_below_floor"
	RuleAmountNotPositive RuleCode = "non_positive_amount"
	RuleAmountAboveLimit  RuleCode = "amount_above_limit"
	RuleFutureDate        RuleCode = "future_transaction_date"
	RuleDOBAfterDate      RuleCode = "dob_not_before_transaction"

	// Referential shape.
	RuleMalformedID RuleCode = "malformed_transaction_id"
)

// Outcome is the result of validating one raw record. When valid, Transaction
// carries the coerced record ready for loading.
type Outcome struct {
	Record      batchfile.RawRecord
	Transaction *domain.Transaction
	Violations  []RuleCode
}

// Valid reports whether the record passed every check.
func (o Outcome) Valid() bool {
	return len(o.Violations) == 0
}

// Validator applies type, range and shape checks to raw records. It is a pure
// function of its input: no side effects, no store access.
type Validator struct {
	rules config.Validation
	now   func() time.Time
}

// NewValidator builds a validator from the configured rule thresholds.
func NewValidator(rules config.Validation) *Validator {
	return &Validator{rules: rules, now: time.Now}
}

// Validate checks one record. Categories run in fixed order: presence/type,
// then range/business rules, then identifier shape. The first failing
// category short-circuits the later ones, but every violation inside the
// failing category is collected.
func (v *Validator) Validate(rec batchfile.RawRecord) Outcome {
	out := Outcome{Record: rec}

	tx := domain.Transaction{
		TransactionID: rec.TransactionID,
		CustomerID:    rec.CustomerID,
		CustGender:    rec.CustGender,
		CustLocation:  rec.CustLocation,
	}

	// Category 1: presence and type coercion.
	if rec.TransactionID == "" {
		out.Violations = append(out.Violations, RuleMissingTransactionID)
	}
	if rec.CustomerID == "" {
		out.Violations = append(out.Violations, RuleMissingCustomerID)
	}
	if rec.CustGender == "" {
		out.Violations = append(out.Violations, RuleMissingGender)
	}
	if rec.CustLocation == "" {
		out.Violations = append(out.Violations, RuleMissingLocation)
	}

	dob, err := parseDate(rec.CustomerDOB)
	if err != nil {
		out.Violations = append(out.Violations, RuleInvalidDOB)
	} else {
		tx.CustomerDOB = dob
	}

	txDate, err := parseDate(rec.TransactionDate)
	if err != nil {
		out.Violations = append(out.Violations, RuleInvalidDate)
	} else {
		tx.TransactionDate = txDate
	}

	txTime, err := parseTimeOfDay(rec.TransactionTime)
	if err != nil {
		out.Violations = append(out.Violations, RuleInvalidTime)
	} else {
		tx.TransactionTime = txTime
	}

	amount, err := decimal.NewFromString(rec.TransactionAmount)
	if err != nil {
		out.Violations = append(out.Violations, RuleInvalidAmount)
	} else {
		tx.TransactionAmount = amount
	}

	balance, err := decimal.NewFromString(rec.CustAccountBalance)
	if err != nil {
		out.Violations = append(out.Violations, RuleInvalidBalance)
	} else {
		tx.CustAccountBalance = balance
	}

	if len(out.Violations) > 0 {
		return out
	}

	// Category 2: range and business rules.
	if tx.CustAccountBalance.LessThan(v.rules.BalanceFloor) {
		out.Violations = append(out.Violations, RuleBalanceBelowFloor)
	}
	if !tx.TransactionAmount.IsPositive() {
		out.Violations = append(out.Violations, RuleAmountNotPositive)
	} else if tx.TransactionAmount.GreaterThan(v.rules.MaxAmount) {
		out.Violations = append(out.Violations, RuleAmountAboveLimit)
	}
	if tx.TransactionDate.After(civil.DateOf(v.now())) {
		out.Violations = append(out.Violations, RuleFutureDate)
	}
	if !tx.CustomerDOB.Before(tx.TransactionDate) {
		out.Violations = append(out.Violations, RuleDOBAfterDate)
	}

	if len(out.Violations) > 0 {
		return out
	}

	// Category 3: identifier shape.
	if len(tx.TransactionID) > v.rules.MaxIDLength || strings.ContainsAny(tx.TransactionID, ",;|\t\n\r\"") {
		out.Violations = append(out.Violations, RuleMalformedID)
		return out
	}

	out.Transaction = &tx
	return out
}

// dateLayouts covers the upstream export (day/month/two-digit-year, with or
// without zero padding) and ISO.
var dateLayouts = []string{"2006-01-02", "2/1/06", "2/1/2006"}

func parseDate(s string) (civil.Date, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return civil.DateOf(t), nil
		}
		lastErr = err
	}
	return civil.Date{}, lastErr
}

// parseTimeOfDay parses the export's HHMMSS integer clock field.
func parseTimeOfDay(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty time field")
	}
	t, err := time.Parse("150405", padTime(s))
	if err != nil {
		return 0, err
	}
	return int64(t.Hour()*10000 + t.Minute()*100 + t.Second()), nil
}

func padTime(s string) string {
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}
