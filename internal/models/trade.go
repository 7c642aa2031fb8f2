package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	TradeStatusFilled    = "FILLED"
	TradeStatusSimulated = "SIMULATED"
	TradeStatusFailed    = "FAILED"
)

// Trade is an append-only audit record of one order attempt. Every attempt
// produces exactly one row, whether it filled, was simulated under dry-run or
// was rejected; rows are never mutated after creation.
type Trade struct {
	gorm.Model
	Symbol    string  `gorm:"index;not null"`
	Side      string  `gorm:"not null"` // "BUY" or "SELL"
	Quantity  float64 `gorm:"not null"`
	Price     float64 `gorm:"not null"`
	Value     float64 `gorm:"not null"`
	OrderID   *string // nil for dry-run and rejected orders
	Status    string  `gorm:"not null"` // "FILLED", "SIMULATED" or "FAILED"
	IsDryRun  bool    `gorm:"default:false"`
	TradeDate time.Time
}
