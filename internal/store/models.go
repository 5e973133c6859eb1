package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a batch or item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Batch represents one uploaded set of items. TotalItems is fixed at
// ingestion; ProcessedItems only ever grows, by one per item that reaches a
// terminal state.
type Batch struct {
	ID             string
	Status         Status
	TotalItems     int
	ProcessedItems int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item represents one product's image-processing unit of work within a batch.
// OutputURLs holds only successfully produced references, so it may be shorter
// than SourceURLs.
type Item struct {
	ID           int64
	BatchID      string
	SerialNumber string
	ProductName  string
	SourceURLs   []string
	OutputURLs   []string
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HealthSummary describes aggregated item counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}
