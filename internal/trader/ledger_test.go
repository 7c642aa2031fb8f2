package trader

import (
	"testing"
	"time"

	"supertrend-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupLedger creates a ledger over a fresh, non-shared in-memory database.
func setupLedger(t *testing.T) (*TradeLedger, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(
		&models.Market{},
		&models.Signal{},
		&models.Trade{},
		&models.AssetPosition{},
		&models.PortfolioSnapshot{},
		&models.RunLock{},
	)
	assert.NoError(t, err)

	return NewTradeLedger(db, zap.NewNop()), db
}

func TestSaveSignalAndTrend_Atomic(t *testing.T) {
	ledger, db := setupLedger(t)
	market := &models.Market{Symbol: "BTCUSDT", IsActive: true, Trend: models.TrendBear}
	assert.NoError(t, db.Create(market).Error)

	signal := &models.Signal{
		Symbol:       "BTCUSDT",
		SignalType:   models.SignalLongCross,
		Direction:    models.SideBuy,
		SignalPrice:  49000,
		CurrentPrice: 50000,
		TrendValue:   49000,
	}

	err := ledger.SaveSignalAndTrend(signal, market, models.TrendBull)
	assert.NoError(t, err)
	assert.NotZero(t, signal.ID)
	assert.Equal(t, models.TrendBull, market.Trend)

	var stored models.Market
	assert.NoError(t, db.First(&stored, market.ID).Error)
	assert.Equal(t, models.TrendBull, stored.Trend)

	var count int64
	db.Model(&models.Signal{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSaveSignalAndTrend_TrendOnly(t *testing.T) {
	ledger, db := setupLedger(t)
	market := &models.Market{Symbol: "BTCUSDT", IsActive: true, Trend: models.TrendNeutral}
	assert.NoError(t, db.Create(market).Error)

	// First observation: no signal, the trend is still recorded.
	err := ledger.SaveSignalAndTrend(nil, market, models.TrendBull)
	assert.NoError(t, err)

	var stored models.Market
	assert.NoError(t, db.First(&stored, market.ID).Error)
	assert.Equal(t, models.TrendBull, stored.Trend)

	var count int64
	db.Model(&models.Signal{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestUnprocessedSignals(t *testing.T) {
	ledger, db := setupLedger(t)
	db.Create(&models.Signal{Symbol: "BTCUSDT", SignalType: models.SignalLongCross, Direction: models.SideBuy})
	db.Create(&models.Signal{Symbol: "BTCUSDT", SignalType: models.SignalShortCross, Direction: models.SideSell, IsProcessed: true})
	db.Create(&models.Signal{Symbol: "ETHUSDT", SignalType: models.SignalLongCross, Direction: models.SideBuy})

	pending, err := ledger.UnprocessedSignals("BTCUSDT")
	assert.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, models.SignalLongCross, pending[0].SignalType)

	assert.NoError(t, ledger.MarkSignalProcessed(pending[0].ID))

	pending, err = ledger.UnprocessedSignals("BTCUSDT")
	assert.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRecordTrade_AppendOnly(t *testing.T) {
	ledger, db := setupLedger(t)

	for i := 0; i < 3; i++ {
		err := ledger.RecordTrade(&models.Trade{
			Symbol:    "BTCUSDT",
			Side:      models.SideBuy,
			Quantity:  0.01,
			Price:     50000,
			Value:     500,
			Status:    models.TradeStatusSimulated,
			IsDryRun:  true,
			TradeDate: time.Now(),
		})
		assert.NoError(t, err)
	}

	var count int64
	db.Model(&models.Trade{}).Count(&count)
	assert.Equal(t, int64(3), count)
}

func TestUpsertAssetPosition(t *testing.T) {
	ledger, db := setupLedger(t)

	err := ledger.UpsertAssetPosition(&models.AssetPosition{
		Asset: "BTC", Free: 1, Locked: 0, Total: 1, CurrentPrice: 50000, USDValue: 50000,
	})
	assert.NoError(t, err)

	err = ledger.UpsertAssetPosition(&models.AssetPosition{
		Asset: "BTC", Free: 0.5, Locked: 0.5, Total: 1, CurrentPrice: 51000, USDValue: 51000,
	})
	assert.NoError(t, err)

	var count int64
	db.Model(&models.AssetPosition{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var pos models.AssetPosition
	assert.NoError(t, db.Where("asset = ?", "BTC").First(&pos).Error)
	assert.Equal(t, 0.5, pos.Free)
	assert.Equal(t, float64(51000), pos.USDValue)
}

func TestRunLock(t *testing.T) {
	ledger, _ := setupLedger(t)
	staleAfter := time.Hour

	assert.NoError(t, ledger.AcquireRunLock("run-1", staleAfter))

	// A second invocation must be refused while the lock is fresh.
	err := ledger.AcquireRunLock("run-2", staleAfter)
	assert.ErrorIs(t, err, ErrRunInProgress)

	assert.NoError(t, ledger.ReleaseRunLock("run-1"))
	assert.NoError(t, ledger.AcquireRunLock("run-2", staleAfter))
}

func TestRunLock_StaleTakeover(t *testing.T) {
	ledger, db := setupLedger(t)

	// Simulate a crashed run that left an old lock behind.
	old := models.RunLock{ID: 1, RunID: "crashed", AcquiredAt: time.Now().Add(-3 * time.Hour)}
	assert.NoError(t, db.Create(&old).Error)

	assert.NoError(t, ledger.AcquireRunLock("run-2", time.Hour))

	var lock models.RunLock
	assert.NoError(t, db.First(&lock, 1).Error)
	assert.Equal(t, "run-2", lock.RunID)
}

func TestRunLock_ReleaseOnlyOwn(t *testing.T) {
	ledger, db := setupLedger(t)

	assert.NoError(t, ledger.AcquireRunLock("run-1", time.Hour))
	// A stranger's release must not free the lock.
	assert.NoError(t, ledger.ReleaseRunLock("other"))

	var count int64
	db.Model(&models.RunLock{}).Count(&count)
	assert.Equal(t, int64(1), count)
}
