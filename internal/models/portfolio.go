package models

import (
	"time"

	"gorm.io/gorm"
)

// AssetPosition is the latest known balance and valuation for a single asset.
// One row per asset, upserted on every run.
type AssetPosition struct {
	gorm.Model
	Asset        string  `gorm:"uniqueIndex;not null"`
	Free         float64 `gorm:"not null;default:0"`
	Locked       float64 `gorm:"not null;default:0"`
	Total        float64 `gorm:"not null;default:0"`
	CurrentPrice float64 `gorm:"not null;default:0"`
	USDValue     float64 `gorm:"not null;default:0"`
}

// PortfolioSnapshot is an append-only valuation of the whole portfolio,
// written once at the end of a run.
type PortfolioSnapshot struct {
	gorm.Model
	TotalValue    float64 `gorm:"not null"`
	StableBalance float64 `gorm:"not null"`
	CryptoValue   float64 `gorm:"not null"`
	SnapshotDate  time.Time
}
