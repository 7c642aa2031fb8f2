package database

import (
	"fmt"

	"supertrend-bot-go/internal/config"
	"supertrend-bot-go/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection, migrates the schema and
// seeds the markets table from the configuration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db, cfg); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema and seeds markets from the config.
// Existing rows are never dropped; trades, signals and snapshots are an
// append-only audit trail that must survive restarts.
func Migrate(db *gorm.DB, cfg *config.Config) error {
	err := db.AutoMigrate(
		&models.Market{},
		&models.Signal{},
		&models.Trade{},
		&models.AssetPosition{},
		&models.PortfolioSnapshot{},
		&models.RunLock{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// Seed markets from the config. Symbols already in the table keep their
	// state (in particular the persisted trend); only policy fields follow
	// the config file.
	for _, seed := range cfg.Trading.Markets {
		market := models.Market{
			Symbol:        seed.Symbol,
			IsActive:      true,
			FixedQuantity: seed.Quantity,
			BuyAll:        seed.BuyAll,
			Trend:         models.TrendNeutral,
		}
		if err := db.Where(models.Market{Symbol: seed.Symbol}).FirstOrCreate(&market).Error; err != nil {
			return fmt.Errorf("failed to seed market '%s': %w", seed.Symbol, err)
		}
		updates := map[string]interface{}{
			"fixed_quantity": seed.Quantity,
			"buy_all":        seed.BuyAll,
			"is_active":      true,
		}
		if err := db.Model(&market).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update market '%s': %w", seed.Symbol, err)
		}
	}

	return nil
}
