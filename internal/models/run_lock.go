package models

import "time"

// RunLock is a single-row advisory lock that prevents two scheduled
// invocations from overlapping. A lock older than the configured staleness
// timeout is treated as abandoned and may be taken over.
type RunLock struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"not null"`
	AcquiredAt time.Time
}
