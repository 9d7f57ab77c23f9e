package reporting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateEmptyReport(t *testing.T) {
	r := NewReporter()
	report := r.Generate()
	assert.Zero(t, report.TotalEvents)
	assert.NotNil(t, report.AmountByCurrency)
	assert.NotNil(t, report.ErrorBreakdown)
	assert.NotNil(t, report.MethodUsage)
}

func TestGenerateAggregates(t *testing.T) {
	r := NewReporter()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	r.Record(Entry{Timestamp: base, OrderID: "o1", Status: "created", Amount: 1000, Currency: "CNY", Method: "qr_code"})
	r.Record(Entry{Timestamp: base.Add(time.Minute), OrderID: "o1", Status: "completed", Amount: 1000, Currency: "CNY", Method: "qr_code"})
	r.Record(Entry{Timestamp: base.Add(2 * time.Minute), OrderID: "o2", Status: "created", Amount: 500, Currency: "USD", Method: "card_tokenized"})
	r.Record(Entry{Timestamp: base.Add(3 * time.Minute), OrderID: "o2", Status: "failed", Amount: 500, Currency: "USD", Method: "card_tokenized", ErrorCode: "SETTLE_FAILED"})
	r.Record(Entry{Timestamp: base.Add(4 * time.Minute), OrderID: "o1", Status: "refunded", Amount: 400, Currency: "CNY", Method: "qr_code"})

	report := r.Generate()
	assert.Equal(t, 5, report.TotalEvents)
	assert.Equal(t, 2, report.OrdersCreated)
	assert.Equal(t, 1, report.CompletedPayments)
	assert.Equal(t, 1, report.FailedPayments)
	assert.Equal(t, 1, report.Refunds)
	assert.Equal(t, int64(1000), report.TotalAmountCompleted)
	assert.Equal(t, int64(400), report.TotalAmountRefunded)
	assert.Equal(t, int64(1000), report.AmountByCurrency["CNY"])
	assert.Equal(t, 1, report.ErrorBreakdown["SETTLE_FAILED"])
	assert.Equal(t, 3, report.MethodUsage["qr_code"])
	assert.Equal(t, 2, report.MethodUsage["card_tokenized"])
	assert.Equal(t, base, report.DateFrom)
	assert.Equal(t, base.Add(4*time.Minute), report.DateTo)
}

func TestRecordIsConcurrencySafe(t *testing.T) {
	r := NewReporter()
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				r.Record(Entry{Timestamp: time.Now(), Status: "created", Method: "qr_code"})
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	assert.Equal(t, 1000, r.Generate().TotalEvents)
}
