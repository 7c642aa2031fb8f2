package models

import "gorm.io/gorm"

// Trend is the classification of a symbol relative to its supertrend line.
type Trend string

const (
	TrendBull    Trend = "BULL"
	TrendBear    Trend = "BEAR"
	TrendNeutral Trend = "NEUTRAL"
)

// Market is a tradable symbol together with its execution policy and the last
// trend classification observed for it. The trend column is the only state
// carried between runs; crossover detection compares against it.
type Market struct {
	gorm.Model
	Symbol        string  `gorm:"uniqueIndex;not null"`
	IsActive      bool    `gorm:"default:true"`
	FixedQuantity float64 `gorm:"not null;default:0"`
	BuyAll        bool    `gorm:"default:false"`
	Trend         Trend   `gorm:"default:NEUTRAL"`
}
