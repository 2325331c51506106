package sema

import "sync"

// CallRecord captures the usage and raw response of one engine call.
type CallRecord struct {
	Capability string
	EngineID   string
	Op         string
	Usage      TokenUsage
	Raw        any
}

// Tracker accumulates usage metadata across engine calls. Attach one to a
// Registry with WithTracker and every successful dispatch is recorded,
// including each attempt made by the repair loops.
//
// Trackers are safe for concurrent use by multiple goroutines.
type Tracker struct {
	mu      sync.RWMutex
	records []CallRecord
}

// NewTracker creates an empty usage tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make([]CallRecord, 0)}
}

// Record appends one call record.
func (t *Tracker) Record(rec CallRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
}

// Calls returns a copy of all recorded calls, in order.
func (t *Tracker) Calls() []CallRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]CallRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Len returns the number of recorded calls.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Total sums token usage across all recorded calls.
func (t *Tracker) Total() TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total TokenUsage
	for _, rec := range t.records {
		total.Prompt += rec.Usage.Prompt
		total.Completion += rec.Usage.Completion
		total.Total += rec.Usage.Total
	}
	return total
}

// TotalFor sums token usage for calls handled by one capability.
func (t *Tracker) TotalFor(capability string) TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total TokenUsage
	for _, rec := range t.records {
		if rec.Capability != capability {
			continue
		}
		total.Prompt += rec.Usage.Prompt
		total.Completion += rec.Usage.Completion
		total.Total += rec.Usage.Total
	}
	return total
}

// Last returns the most recent call record, or false if none exist.
func (t *Tracker) Last() (CallRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.records) == 0 {
		return CallRecord{}, false
	}
	return t.records[len(t.records)-1], true
}

// Reset discards all recorded calls.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = t.records[:0]
}
