package resilience

import "sync"

// Bulkhead caps the number of concurrent in-flight calls. Admission never
// waits: a call that finds the bulkhead full is rejected.
type Bulkhead struct {
	mu       sync.Mutex
	limit    int
	inFlight int
}

// NewBulkhead creates a bulkhead admitting up to limit concurrent calls
func NewBulkhead(limit int) *Bulkhead {
	if limit <= 0 {
		limit = 1
	}
	return &Bulkhead{limit: limit}
}

// TryAcquire takes a permit if one is free
func (b *Bulkhead) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inFlight >= b.limit {
		return false
	}
	b.inFlight++
	return true
}

// Release returns a permit
func (b *Bulkhead) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inFlight > 0 {
		b.inFlight--
	}
}

// SetLimit changes the width. Calls already admitted keep their permits.
func (b *Bulkhead) SetLimit(limit int) {
	if limit <= 0 {
		limit = 1
	}
	b.mu.Lock()
	b.limit = limit
	b.mu.Unlock()
}

// InFlight returns the number of permits currently held
func (b *Bulkhead) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

// Limit returns the configured width
func (b *Bulkhead) Limit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}
