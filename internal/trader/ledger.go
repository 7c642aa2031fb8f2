package trader

import (
	"errors"
	"fmt"
	"time"

	"supertrend-bot-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRunInProgress is returned when another invocation holds the run lock.
var ErrRunInProgress = errors.New("another run is already in progress")

const runLockID = 1

// TradeLedger is the persistence facade of the engine. It enforces the
// append-only and upsert semantics of the schema and retries transient
// database errors a bounded number of times; it holds no business logic.
type TradeLedger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTradeLedger creates a ledger over an opened database.
func NewTradeLedger(db *gorm.DB, logger *zap.Logger) *TradeLedger {
	return &TradeLedger{db: db, logger: logger}
}

// withRetry runs op up to three times with exponential backoff. SQLite can
// report transient busy errors when the UI or a previous run holds the file.
func (l *TradeLedger) withRetry(op func() error) error {
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrRunInProgress) {
			return err // not transient
		}
		backoff := time.Duration(100*(1<<attempt)) * time.Millisecond
		l.logger.Warn("Persistence operation failed, retrying...",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		time.Sleep(backoff)
	}
	return fmt.Errorf("persistence operation failed after %d attempts: %w", maxAttempts, err)
}

// ActiveMarkets returns all markets enabled for trading, ordered by symbol.
func (l *TradeLedger) ActiveMarkets() ([]models.Market, error) {
	var markets []models.Market
	err := l.withRetry(func() error {
		return l.db.Where("is_active = ?", true).Order("symbol").Find(&markets).Error
	})
	if err != nil {
		return nil, fmt.Errorf("could not load active markets: %w", err)
	}
	return markets, nil
}

// SaveSignalAndTrend persists a detected signal (may be nil when only the
// trend changed) and the market's new trend in a single transaction. Doing
// both atomically is what prevents the same crossover from firing twice after
// a partial failure.
func (l *TradeLedger) SaveSignalAndTrend(signal *models.Signal, market *models.Market, trend models.Trend) error {
	return l.withRetry(func() error {
		return l.db.Transaction(func(tx *gorm.DB) error {
			if signal != nil {
				if err := tx.Create(signal).Error; err != nil {
					return fmt.Errorf("failed to create signal: %w", err)
				}
			}
			if err := tx.Model(market).Update("trend", trend).Error; err != nil {
				return fmt.Errorf("failed to update market trend: %w", err)
			}
			market.Trend = trend
			return nil
		})
	})
}

// RecordTrade appends one trade row. Trades are never updated or deleted.
func (l *TradeLedger) RecordTrade(trade *models.Trade) error {
	return l.withRetry(func() error {
		return l.db.Create(trade).Error
	})
}

// MarkSignalProcessed flips a signal to processed after an execution attempt.
func (l *TradeLedger) MarkSignalProcessed(signalID uint) error {
	return l.withRetry(func() error {
		return l.db.Model(&models.Signal{}).Where("id = ?", signalID).
			Update("is_processed", true).Error
	})
}

// UnprocessedSignals returns signals for a symbol whose execution attempt
// never completed, oldest first. A crash between signal creation and
// execution leaves them here to be replayed on the next run.
func (l *TradeLedger) UnprocessedSignals(symbol string) ([]models.Signal, error) {
	var signals []models.Signal
	err := l.withRetry(func() error {
		return l.db.Where("symbol = ? AND is_processed = ?", symbol, false).
			Order("id").Find(&signals).Error
	})
	if err != nil {
		return nil, fmt.Errorf("could not load unprocessed signals for %s: %w", symbol, err)
	}
	return signals, nil
}

// UpsertAssetPosition stores the latest balance and valuation for an asset,
// one row per asset.
func (l *TradeLedger) UpsertAssetPosition(pos *models.AssetPosition) error {
	return l.withRetry(func() error {
		return l.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "asset"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"free", "locked", "total", "current_price", "usd_value", "updated_at",
			}),
		}).Create(pos).Error
	})
}

// AppendSnapshot writes the single end-of-run portfolio snapshot row.
func (l *TradeLedger) AppendSnapshot(snapshot *models.PortfolioSnapshot) error {
	return l.withRetry(func() error {
		return l.db.Create(snapshot).Error
	})
}

// AcquireRunLock takes the advisory run lock for this invocation. It fails
// with ErrRunInProgress while a younger-than-staleAfter lock exists; an older
// lock is treated as abandoned by a crashed run and taken over.
func (l *TradeLedger) AcquireRunLock(runID string, staleAfter time.Duration) error {
	return l.withRetry(func() error {
		return l.db.Transaction(func(tx *gorm.DB) error {
			var lock models.RunLock
			err := tx.First(&lock, runLockID).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				lock = models.RunLock{ID: runLockID, RunID: runID, AcquiredAt: time.Now()}
				return tx.Create(&lock).Error
			case err != nil:
				return err
			}

			if time.Since(lock.AcquiredAt) < staleAfter {
				return ErrRunInProgress
			}

			l.logger.Warn("Taking over stale run lock",
				zap.String("stale_run_id", lock.RunID),
				zap.Time("acquired_at", lock.AcquiredAt),
			)
			return tx.Model(&lock).Updates(map[string]interface{}{
				"run_id":      runID,
				"acquired_at": time.Now(),
			}).Error
		})
	})
}

// ReleaseRunLock frees the run lock if this invocation still holds it.
func (l *TradeLedger) ReleaseRunLock(runID string) error {
	return l.withRetry(func() error {
		return l.db.Where("id = ? AND run_id = ?", runLockID, runID).
			Delete(&models.RunLock{}).Error
	})
}
