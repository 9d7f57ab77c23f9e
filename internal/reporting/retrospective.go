// Package reporting aggregates payment activity into retrospective reports
// for the admin surface.
package reporting

import (
	"sync"
	"time"
)

// Entry is one recorded payment event.
type Entry struct {
	Timestamp time.Time
	OrderID   string
	UserID    string
	Status    string // terminal order status, or "created"
	Amount    int64
	Currency  string
	Method    string
	ErrorCode string
}

// Report summarizes payment activity over a window of entries.
type Report struct {
	TotalEvents          int              `json:"total_events"`
	OrdersCreated        int              `json:"orders_created"`
	CompletedPayments    int              `json:"completed_payments"`
	FailedPayments       int              `json:"failed_payments"`
	Refunds              int              `json:"refunds"`
	TotalAmountCompleted int64            `json:"total_amount_completed"`
	TotalAmountRefunded  int64            `json:"total_amount_refunded"`
	AmountByCurrency     map[string]int64 `json:"amount_by_currency"`
	ErrorBreakdown       map[string]int   `json:"error_breakdown"`
	MethodUsage          map[string]int   `json:"method_usage"`
	DateFrom             time.Time        `json:"date_from"`
	DateTo               time.Time        `json:"date_to"`
}

// Reporter collects entries and generates reports. Safe for concurrent use.
type Reporter struct {
	mu      sync.Mutex
	entries []Entry
}

// NewReporter creates an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Record appends one entry.
func (r *Reporter) Record(e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Generate aggregates all recorded entries into a Report.
func (r *Reporter) Generate() *Report {
	r.mu.Lock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	report := &Report{
		AmountByCurrency: make(map[string]int64),
		ErrorBreakdown:   make(map[string]int),
		MethodUsage:      make(map[string]int),
	}
	if len(entries) == 0 {
		return report
	}

	report.DateFrom = entries[0].Timestamp
	report.DateTo = entries[0].Timestamp
	for _, e := range entries {
		report.TotalEvents++
		if e.Timestamp.Before(report.DateFrom) {
			report.DateFrom = e.Timestamp
		}
		if e.Timestamp.After(report.DateTo) {
			report.DateTo = e.Timestamp
		}
		if e.Method != "" {
			report.MethodUsage[e.Method]++
		}

		switch e.Status {
		case "created":
			report.OrdersCreated++
		case "completed":
			report.CompletedPayments++
			report.TotalAmountCompleted += e.Amount
			report.AmountByCurrency[e.Currency] += e.Amount
		case "failed":
			report.FailedPayments++
			if e.ErrorCode != "" {
				report.ErrorBreakdown[e.ErrorCode]++
			}
		case "refunded":
			report.Refunds++
			report.TotalAmountRefunded += e.Amount
		}
	}
	return report
}
