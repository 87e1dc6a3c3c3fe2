package pipeline

import (
	"testing"
	"time"

	"github.com/dvloznov/bankbatch/internal/batchfile"
	"github.com/dvloznov/bankbatch/internal/config"
)

// frozen processing time so future-date checks are deterministic
var testNow = time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	v := NewValidator(config.Default().Validation)
	v.now = func() time.Time { return testNow }
	return v
}

func goodRecord() batchfile.RawRecord {
	return batchfile.RawRecord{
		TransactionID:      "T1",
		CustomerID:         "C1001",
		CustomerDOB:        "10/01/94",
		CustGender:         "F",
		CustLocation:       "MUMBAI",
		CustAccountBalance: "17819.05",
		TransactionDate:    "02/08/16",
		TransactionTime:    "143207",
		TransactionAmount:  "25.00",
	}
}

func TestValidate_ValidRecord(t *testing.T) {
	out := newTestValidator().Validate(goodRecord())
	if !out.Valid() {
		t.Fatalf("expected valid, got violations %v", out.Violations)
	}
	tx := out.Transaction
	if tx == nil {
		t.Fatal("valid outcome must carry the coerced transaction")
	}
	if tx.TransactionID != "T1" || tx.CustomerID != "C1001" {
		t.Errorf("identifiers not carried: %+v", tx)
	}
	if tx.TransactionDate.String() != "2016-08-02" {
		t.Errorf("TransactionDate = %s, want 2016-08-02", tx.TransactionDate)
	}
	if tx.CustomerDOB.String() != "1994-01-10" {
		t.Errorf("CustomerDOB = %s, want 1994-01-10", tx.CustomerDOB)
	}
	if tx.TransactionTime != 143207 {
		t.Errorf("TransactionTime = %d, want 143207", tx.TransactionTime)
	}
	if !tx.TransactionAmount.Equal(decimalFromString(t, "25.00")) {
		t.Errorf("TransactionAmount = %s", tx.TransactionAmount)
	}
}

func TestValidate_RuleViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*batchfile.RawRecord)
		want   RuleCode
	}{
		{"missing transaction id", func(r *batchfile.RawRecord) { r.TransactionID = "" }, RuleMissingTransactionID},
		{"missing customer id", func(r *batchfile.RawRecord) { r.CustomerID = "" }, RuleMissingCustomerID},
		{"missing gender", func(r *batchfile.RawRecord) { r.CustGender = "" }, RuleMissingGender},
		{"missing location", func(r *batchfile.RawRecord) { r.CustLocation = "" }, RuleMissingLocation},
		{"unparseable dob", func(r *batchfile.RawRecord) { r.CustomerDOB = "not-a-date" }, RuleInvalidDOB},
		{"unparseable date", func(r *batchfile.RawRecord) { r.TransactionDate = "31/31/99" }, RuleInvalidDate},
		{"unparseable time", func(r *batchfile.RawRecord) { r.TransactionTime = "256161" }, RuleInvalidTime},
		{"missing time", func(r *batchfile.RawRecord) { r.TransactionTime = "" }, RuleInvalidTime},
		{"unparseable amount", func(r *batchfile.RawRecord) { r.TransactionAmount = "12,50" }, RuleInvalidAmount},
		{"unparseable balance", func(r *batchfile.RawRecord) { r.CustAccountBalance = "x" }, RuleInvalidBalance},
		{"negative balance", func(r *batchfile.RawRecord) { r.CustAccountBalance = "-100.00" }, RuleBalanceBelowFloor},
		{"zero amount", func(r *batchfile.RawRecord) { r.TransactionAmount = "0" }, RuleAmountNotPositive},
		{"negative amount", func(r *batchfile.RawRecord) { r.TransactionAmount = "-5.00" }, RuleAmountNotPositive},
		{"amount above limit", func(r *batchfile.RawRecord) { r.TransactionAmount = "1000000.01" }, RuleAmountAboveLimit},
		{"future transaction date", func(r *batchfile.RawRecord) { r.TransactionDate = "2999-01-01" }, RuleFutureDate},
		{"dob after transaction", func(r *batchfile.RawRecord) { r.CustomerDOB = "2020-05-05" }, RuleDOBAfterDate},
		{"dob equals transaction date", func(r *batchfile.RawRecord) { r.CustomerDOB = "02/08/16" }, RuleDOBAfterDate},
		{"oversized transaction id", func(r *batchfile.RawRecord) {
			long := make([]byte, 65)
			for i := range long {
				long[i] = 'A'
			}
			r.TransactionID = string(long)
		}, RuleMalformedID},
		{"delimiter in transaction id", func(r *batchfile.RawRecord) { r.TransactionID = "T1;DROP" }, RuleMalformedID},
	}

	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := goodRecord()
			tt.mutate(&rec)
			out := v.Validate(rec)
			if out.Valid() {
				t.Fatal("expected invalid outcome")
			}
			if out.Transaction != nil {
				t.Error("invalid outcome must not carry a transaction")
			}
			if !hasViolation(out, tt.want) {
				t.Errorf("violations = %v, want %s", out.Violations, tt.want)
			}
		})
	}
}

// The first failing category short-circuits later categories, but collects
// every violation within itself.
func TestValidate_CategoryShortCircuit(t *testing.T) {
	rec := goodRecord()
	rec.TransactionID = ""        // category 1
	rec.CustomerID = ""           // category 1
	rec.CustAccountBalance = "-1" // category 2, must not be evaluated

	out := newTestValidator().Validate(rec)
	if !hasViolation(out, RuleMissingTransactionID) || !hasViolation(out, RuleMissingCustomerID) {
		t.Errorf("both presence violations expected, got %v", out.Violations)
	}
	if hasViolation(out, RuleBalanceBelowFloor) {
		t.Errorf("range rules must not run when presence fails, got %v", out.Violations)
	}
}

func TestValidate_RangeCollectsAll(t *testing.T) {
	rec := goodRecord()
	rec.CustAccountBalance = "-1"
	rec.TransactionDate = "2999-01-01"

	out := newTestValidator().Validate(rec)
	if !hasViolation(out, RuleBalanceBelowFloor) || !hasViolation(out, RuleFutureDate) {
		t.Errorf("all range violations expected, got %v", out.Violations)
	}
}

func TestValidate_ISODatesAccepted(t *testing.T) {
	rec := goodRecord()
	rec.CustomerDOB = "1994-01-10"
	rec.TransactionDate = "2016-08-02"
	if out := newTestValidator().Validate(rec); !out.Valid() {
		t.Errorf("ISO dates must validate, got %v", out.Violations)
	}
}

func hasViolation(out Outcome, code RuleCode) bool {
	for _, c := range out.Violations {
		if c == code {
			return true
		}
	}
	return false
}
