package models

import "time"

// Filter narrows a participant listing. Zero fields do not filter.
type Filter struct {
	PaymentStatuses []PaymentStatus
	// PaymentStartedBefore keeps cycles that began at or before this instant.
	PaymentStartedBefore *time.Time
	Limit                int
}
