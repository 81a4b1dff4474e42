package domain

import (
	"strings"
	"time"
)

// MaxNumberLength bounds virtual numbers and participant identifiers.
const MaxNumberLength = 18

// VirtualNumber is a leasable phone number from the shared pool.
type VirtualNumber struct {
	Value     string    `json:"value"`
	SessionID *string   `json:"session_id"` // nil means available
	CreatedAt time.Time `json:"created_at"`
}

// Available reports whether no session currently holds the number.
func (n VirtualNumber) Available() bool {
	return n.SessionID == nil
}

// PoolReport summarises the pool for the listing endpoint.
type PoolReport struct {
	Numbers   []VirtualNumber
	PoolSize  int
	Available int
	InUse     int
}

// NewPoolReport counts availability across numbers.
func NewPoolReport(numbers []VirtualNumber) PoolReport {
	report := PoolReport{Numbers: numbers, PoolSize: len(numbers)}
	for _, n := range numbers {
		if n.Available() {
			report.Available++
		}
	}
	report.InUse = report.PoolSize - report.Available
	return report
}

// ValidatePhoneIdentifier checks a number or participant identifier.
func ValidatePhoneIdentifier(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError("%s is required", field)
	}
	if len(value) > MaxNumberLength {
		return NewValidationError("%s must be at most %d characters", field, MaxNumberLength)
	}
	return nil
}
