// Package batchfile reads monthly transaction batch files. One file is one
// batch: a header row followed by one record per transaction, in the column
// layout of the upstream bank export.
package batchfile

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RawRecord is one unvalidated row of a batch file. All fields are raw
// strings; the pipeline validator owns type coercion and business rules.
type RawRecord struct {
	TransactionID      string
	CustomerID         string
	CustomerDOB        string
	CustGender         string
	CustLocation       string
	CustAccountBalance string
	TransactionDate    string
	TransactionTime    string
	TransactionAmount  string

	// Line is the 1-based line number in the source file, for error reporting.
	Line int
}

// Batch is one parsed batch file. Payload keeps the unmodified file bytes so
// the orchestrator can archive the original upstream data for audit.
type Batch struct {
	Name    string
	Payload []byte
	Records []RawRecord
}

// canonical column names after normalization. The upstream export has used
// both "TransactionAmount" and "TransactionAmount (INR)" over time.
var columns = map[string]func(*RawRecord, string){
	"transactionid":      func(r *RawRecord, v string) { r.TransactionID = v },
	"customerid":         func(r *RawRecord, v string) { r.CustomerID = v },
	"customerdob":        func(r *RawRecord, v string) { r.CustomerDOB = v },
	"custgender":         func(r *RawRecord, v string) { r.CustGender = v },
	"custlocation":       func(r *RawRecord, v string) { r.CustLocation = v },
	"custaccountbalance": func(r *RawRecord, v string) { r.CustAccountBalance = v },
	"transactiondate":    func(r *RawRecord, v string) { r.TransactionDate = v },
	"transactiontime":    func(r *RawRecord, v string) { r.TransactionTime = v },
	"transactionamount":  func(r *RawRecord, v string) { r.TransactionAmount = v },
}

// Read loads and parses a batch file from disk.
func Read(path string) (*Batch, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file %q: %w", path, err)
	}
	return Parse(filepath.Base(path), payload)
}

// Parse parses a batch held in memory. The header row is required; unknown
// columns are ignored so upstream can add fields without breaking ingestion.
func Parse(name string, payload []byte) (*Batch, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.TrimLeadingSpace = true
	// Rows with missing trailing fields still produce a record; the validator
	// reports the missing fields per rule rather than the file aborting.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("batch file %q: empty file", name)
	}
	if err != nil {
		return nil, fmt.Errorf("batch file %q: read header: %w", name, err)
	}

	setters := make([]func(*RawRecord, string), len(header))
	known := 0
	for i, h := range header {
		if set, ok := columns[normalizeHeader(h)]; ok {
			setters[i] = set
			known++
		}
	}
	if known == 0 {
		return nil, fmt.Errorf("batch file %q: no recognized columns in header %v", name, header)
	}

	batch := &Batch{Name: name, Payload: payload}
	line := 1
	for {
		row, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("batch file %q: line %d: %w", name, line, err)
		}
		rec := RawRecord{Line: line}
		for i, v := range row {
			if i < len(setters) && setters[i] != nil {
				setters[i](&rec, strings.TrimSpace(v))
			}
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

// normalizeHeader lowercases and strips everything but letters and digits, so
// "TransactionAmount (INR)" and "transaction_amount" both match.
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	// Unit suffixes like "inr" on the amount column are part of the label,
	// not the name.
	if strings.HasPrefix(s, "transactionamount") {
		return "transactionamount"
	}
	return s
}
