package stream

import (
	"sync/atomic"
)

// Statistics field constants
const (
	InputCount    = "input_count"
	FilteredCount = "filtered_count"
	OutputCount   = "output_count"
	ErrorCount    = "error_count"
	MailboxLen    = "mailbox_len"
)

// StatsCollector statistics information collector
// Provides thread-safe statistics collection functionality
type StatsCollector struct {
	inputCount    int64
	filteredCount int64
	outputCount   int64
	errorCount    int64
}

// NewStatsCollector creates a new statistics collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{}
}

// IncrementInput counts an event taken from the mailbox
func (sc *StatsCollector) IncrementInput() {
	atomic.AddInt64(&sc.inputCount, 1)
}

// IncrementFiltered counts an event rejected by the query filter
func (sc *StatsCollector) IncrementFiltered() {
	atomic.AddInt64(&sc.filteredCount, 1)
}

// AddOutput counts delivered output events
func (sc *StatsCollector) AddOutput(n int) {
	atomic.AddInt64(&sc.outputCount, int64(n))
}

// IncrementError counts an isolated per-event failure
func (sc *StatsCollector) IncrementError() {
	atomic.AddInt64(&sc.errorCount, 1)
}

// Reset resets statistics information
func (sc *StatsCollector) Reset() {
	atomic.StoreInt64(&sc.inputCount, 0)
	atomic.StoreInt64(&sc.filteredCount, 0)
	atomic.StoreInt64(&sc.outputCount, 0)
	atomic.StoreInt64(&sc.errorCount, 0)
}

// GetBasicStats gets basic statistics information
func (sc *StatsCollector) GetBasicStats(mailboxLen int) map[string]int64 {
	return map[string]int64{
		InputCount:    atomic.LoadInt64(&sc.inputCount),
		FilteredCount: atomic.LoadInt64(&sc.filteredCount),
		OutputCount:   atomic.LoadInt64(&sc.outputCount),
		ErrorCount:    atomic.LoadInt64(&sc.errorCount),
		MailboxLen:    int64(mailboxLen),
	}
}
