package models

import "gorm.io/gorm"

const (
	SignalLongCross  = "LONG_CROSS"
	SignalShortCross = "SHORT_CROSS"
)

// Signal is an append-only record of a detected trend crossover. Rows are
// created by signal detection and flipped to processed after the execution
// attempt; they are never deleted.
type Signal struct {
	gorm.Model
	Symbol       string  `gorm:"index;not null"`
	SignalType   string  `gorm:"not null"` // "LONG_CROSS" or "SHORT_CROSS"
	Direction    string  `gorm:"not null"` // "BUY" or "SELL"
	SignalPrice  float64 `gorm:"not null"`
	CurrentPrice float64 `gorm:"not null"`
	TrendValue   float64 `gorm:"not null"`
	IsProcessed  bool    `gorm:"index;default:false"`
}
